package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casino-server/internal/settle"
	"casino-server/internal/state"
)

// ---- 内存假实现 ----

type memRounds struct {
	mu     sync.Mutex
	rounds map[string]*settle.Round
}

func newMemRounds() *memRounds {
	return &memRounds{rounds: map[string]*settle.Round{}}
}

func (s *memRounds) put(r *settle.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rounds[r.RoundID] = &cp
}

func (s *memRounds) Get(_ context.Context, roundID string) (*settle.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return nil, errors.New("round not found")
	}
	cp := *r
	return &cp, nil
}

func (s *memRounds) ClaimTransition(_ context.Context, roundID, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return false, errors.New("round not found")
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (s *memRounds) SaveOutcome(_ context.Context, roundID string, oc *settle.Outcome) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return false, errors.New("round not found")
	}
	if r.Outcome != nil {
		return false, nil
	}
	r.Outcome = oc
	return true, nil
}

func (s *memRounds) MarkResolved(_ context.Context, _ string, _ int64) error { return nil }

func (s *memRounds) ListDue(_ context.Context, nowMs int64, limit int) ([]settle.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []settle.Round
	for _, r := range s.rounds {
		if len(out) >= limit {
			break
		}
		if r.Status == state.StatusResolving || (r.Status == state.StatusBetting && r.BetCloseAt <= nowMs) {
			out = append(out, *r)
		}
	}
	return out, nil
}

// fakeSource 固定返回预设结果或错误
type fakeSource struct {
	mu    sync.Mutex
	oc    *settle.Outcome
	err   error
	calls int
}

func (f *fakeSource) Generate(_ context.Context, _ *settle.Round) (*settle.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.oc, f.err
}

// fakeSettler 记录调用，并模拟结算副作用（resolving->completed / void）
type fakeSettler struct {
	rounds      *memRounds
	settleCalls int32
	voidCalls   int32
}

func (f *fakeSettler) Settle(ctx context.Context, roundID string) (*settle.Result, error) {
	atomic.AddInt32(&f.settleCalls, 1)
	r, err := f.rounds.Get(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if r.Status == state.StatusCompleted {
		return &settle.Result{RoundID: roundID, GameType: r.GameType, Outcome: r.Outcome}, nil
	}
	if r.Status != state.StatusResolving || r.Outcome == nil {
		return nil, settle.ErrRoundNotReady
	}
	_, err = f.rounds.ClaimTransition(ctx, roundID, state.StatusResolving, state.StatusCompleted)
	if err != nil {
		return nil, err
	}
	return &settle.Result{RoundID: roundID, GameType: r.GameType, Outcome: r.Outcome, TotalPayout: decimal.Zero}, nil
}

func (f *fakeSettler) VoidRound(ctx context.Context, roundID string) error {
	atomic.AddInt32(&f.voidCalls, 1)
	_, err := f.rounds.ClaimTransition(ctx, roundID, state.StatusResolving, state.StatusVoid)
	return err
}

func newTestScheduler(rounds *memRounds, src OutcomeSource) (*Scheduler, *fakeSettler) {
	st := &fakeSettler{rounds: rounds}
	s := NewScheduler(rounds, src, st, time.Second)
	return s, st
}

func dueRound(id string) *settle.Round {
	return &settle.Round{
		RoundID:    id,
		GameType:   settle.GameRoulette,
		Status:     state.StatusBetting,
		BetCloseAt: time.Now().Add(-time.Second).UnixMilli(),
	}
}

func TestTickClosesAndSettlesDueRound(t *testing.T) {
	rounds := newMemRounds()
	rounds.put(dueRound("R1"))
	src := &fakeSource{oc: settle.WheelOutcome(9)}
	s, st := newTestScheduler(rounds, src)

	s.Tick(context.Background())

	r, err := rounds.Get(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, r.Status)
	require.NotNil(t, r.Outcome, "开奖结果先持久化再结算")
	assert.Equal(t, 9, *r.Outcome.Number)
	assert.Equal(t, int32(1), st.settleCalls)
}

func TestTickSkipsNotDueRound(t *testing.T) {
	rounds := newMemRounds()
	r := dueRound("R1")
	r.BetCloseAt = time.Now().Add(time.Hour).UnixMilli()
	rounds.put(r)
	src := &fakeSource{oc: settle.WheelOutcome(9)}
	s, st := newTestScheduler(rounds, src)

	s.Tick(context.Background())

	got, _ := rounds.Get(context.Background(), "R1")
	assert.Equal(t, state.StatusBetting, got.Status, "未到封盘时间不动")
	assert.Equal(t, int32(0), st.settleCalls)
}

func TestConcurrentClaimExactlyOne(t *testing.T) {
	rounds := newMemRounds()
	rounds.put(dueRound("R1"))

	// N 个并发封盘竞争者，恰好一个成功
	const n = 16
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := rounds.ClaimTransition(context.Background(), "R1", state.StatusBetting, state.StatusResolving)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestConcurrentTickSettlesOnce(t *testing.T) {
	rounds := newMemRounds()
	rounds.put(dueRound("R1"))
	src := &fakeSource{oc: settle.WheelOutcome(3)}
	s, _ := newTestScheduler(rounds, src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Tick(context.Background())
		}()
	}
	wg.Wait()

	r, _ := rounds.Get(context.Background(), "R1")
	assert.Equal(t, state.StatusCompleted, r.Status)
	assert.Equal(t, 3, *r.Outcome.Number)
}

func TestOutcomeFirstWriteWins(t *testing.T) {
	rounds := newMemRounds()
	stored := settle.WheelOutcome(5)
	rounds.put(&settle.Round{
		RoundID:  "R1",
		GameType: settle.GameRoulette,
		Status:   state.StatusResolving,
		Outcome:  stored,
	})
	src := &fakeSource{oc: settle.WheelOutcome(9)}
	s, st := newTestScheduler(rounds, src)

	// 回合快照里还没有结果（慢实例），但另一条路径已先落库：
	// 本次生成的结果不得覆盖，结算以落库的为准
	snapshot := &settle.Round{RoundID: "R1", GameType: settle.GameRoulette, Status: state.StatusResolving}
	require.NoError(t, s.process(context.Background(), snapshot))

	r, _ := rounds.Get(context.Background(), "R1")
	assert.Equal(t, state.StatusCompleted, r.Status)
	assert.Equal(t, 5, *r.Outcome.Number, "落库结果不被后来者覆盖")
	assert.Equal(t, int32(1), st.settleCalls)
}

func TestGenerationFailureVoidsRound(t *testing.T) {
	rounds := newMemRounds()
	rounds.put(dueRound("R1"))
	src := &fakeSource{err: errors.New("rng backend down")}
	s, st := newTestScheduler(rounds, src)

	s.Tick(context.Background())

	r, _ := rounds.Get(context.Background(), "R1")
	assert.Equal(t, state.StatusVoid, r.Status)
	assert.Equal(t, int32(1), st.voidCalls)
	assert.Equal(t, int32(0), st.settleCalls)
}

func TestUnresolvedMarketStaysResolving(t *testing.T) {
	rounds := newMemRounds()
	rounds.put(dueRound("R1"))
	src := &fakeSource{err: ErrUnresolved}
	s, st := newTestScheduler(rounds, src)

	// 外部市场未出结果：封盘后停留在 resolving，不作废
	s.Tick(context.Background())
	r, _ := rounds.Get(context.Background(), "R1")
	assert.Equal(t, state.StatusResolving, r.Status)
	assert.Nil(t, r.Outcome)
	assert.Equal(t, int32(0), st.voidCalls)

	// 结果就绪后的下一轮询完成结算
	src.mu.Lock()
	src.err = nil
	src.oc = settle.WheelOutcome(21)
	src.mu.Unlock()
	s.Tick(context.Background())
	r, _ = rounds.Get(context.Background(), "R1")
	assert.Equal(t, state.StatusCompleted, r.Status)
}

func TestTriggerResolveManual(t *testing.T) {
	rounds := newMemRounds()
	rounds.put(dueRound("R1"))
	src := &fakeSource{oc: settle.WheelOutcome(30)}
	s, _ := newTestScheduler(rounds, src)

	res, err := s.TriggerResolve(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, "R1", res.RoundID)

	r, _ := rounds.Get(context.Background(), "R1")
	assert.Equal(t, state.StatusCompleted, r.Status)
}

func TestTriggerResolveRejectsEarly(t *testing.T) {
	rounds := newMemRounds()
	r := dueRound("R1")
	r.BetCloseAt = time.Now().Add(time.Hour).UnixMilli()
	rounds.put(r)
	s, _ := newTestScheduler(rounds, &fakeSource{oc: settle.WheelOutcome(1)})

	_, err := s.TriggerResolve(context.Background(), "R1")
	assert.ErrorIs(t, err, ErrNotDue)
}

func TestTriggerResolveVoidedRound(t *testing.T) {
	rounds := newMemRounds()
	rounds.put(dueRound("R1"))
	s, _ := newTestScheduler(rounds, &fakeSource{err: errors.New("backend down")})

	_, err := s.TriggerResolve(context.Background(), "R1")
	assert.ErrorIs(t, err, ErrVoided)
}
