package settle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casino-server/internal/state"
)

// ---- 内存假实现 ----

type memRoundStore struct {
	mu     sync.Mutex
	rounds map[string]*Round
}

func newMemRoundStore() *memRoundStore {
	return &memRoundStore{rounds: map[string]*Round{}}
}

func (s *memRoundStore) put(r *Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rounds[r.RoundID] = &cp
}

func (s *memRoundStore) Get(_ context.Context, roundID string) (*Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return nil, errors.New("round not found")
	}
	cp := *r
	return &cp, nil
}

func (s *memRoundStore) ClaimTransition(_ context.Context, roundID, from, to string) (bool, error) {
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

func (s *memRoundStore) SaveOutcome(_ context.Context, roundID string, oc *Outcome) (bool, error) {
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

func (s *memRoundStore) MarkResolved(_ context.Context, roundID string, _ int64) error {
	return nil
}

type memBetStore struct {
	mu   sync.Mutex
	bets map[string][]Bet // round_id -> bets
}

func newMemBetStore() *memBetStore {
	return &memBetStore{bets: map[string][]Bet{}}
}

func (s *memBetStore) put(roundID string, bs ...Bet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bets[roundID] = append(s.bets[roundID], bs...)
}

func (s *memBetStore) ListByRound(_ context.Context, roundID string) ([]Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Bet{}, s.bets[roundID]...), nil
}

func (s *memBetStore) ApplyResult(_ context.Context, roundID string, r BetResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.bets[roundID] {
		if b.BillNo != r.BillNo {
			continue
		}
		if b.Status != BetPending {
			return false, nil
		}
		s.bets[roundID][i].Status = r.Status
		return true, nil
	}
	return false, errors.New("bet not found")
}

type memLogStore struct {
	mu   sync.Mutex
	logs map[string]*Result
}

func newMemLogStore() *memLogStore {
	return &memLogStore{logs: map[string]*Result{}}
}

func (s *memLogStore) Create(_ context.Context, res *Result) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[res.RoundID]; ok {
		return false, nil
	}
	s.logs[res.RoundID] = res
	return true, nil
}

func (s *memLogStore) Get(_ context.Context, roundID string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.logs[roundID]
	if !ok {
		return nil, errors.New("settlement log not found")
	}
	return r, nil
}

type memWallet struct {
	mu      sync.Mutex
	credits map[string]decimal.Decimal // idempotency key -> amount
	calls   map[string]int
	failOn  map[string]bool // 模拟瞬时故障
}

func newMemWallet() *memWallet {
	return &memWallet{credits: map[string]decimal.Decimal{}, calls: map[string]int{}, failOn: map[string]bool{}}
}

func (w *memWallet) CreditOrRefund(_ context.Context, key string, _ int64, amount decimal.Decimal, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls[key]++
	if w.failOn[key] {
		return errors.New("wallet temporarily unavailable")
	}
	if _, ok := w.credits[key]; ok {
		return nil // 幂等：同 key 不重复入账
	}
	w.credits[key] = amount
	return nil
}

type memPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *memPublisher) Publish(topic string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

// ---- 组装 ----

type fixture struct {
	rounds *memRoundStore
	bets   *memBetStore
	logs   *memLogStore
	wallet *memWallet
	pub    *memPublisher
	eng    *Engine
}

func newFixture() *fixture {
	f := &fixture{
		rounds: newMemRoundStore(),
		bets:   newMemBetStore(),
		logs:   newMemLogStore(),
		wallet: newMemWallet(),
		pub:    &memPublisher{},
	}
	f.eng = NewEngine(f.rounds, f.bets, f.logs, f.wallet, f.pub)
	return f
}

func (f *fixture) seedRoulette(roundID string, number int) {
	f.rounds.put(&Round{
		RoundID:  roundID,
		GameType: GameRoulette,
		Status:   state.StatusResolving,
		Outcome:  WheelOutcome(number),
	})
}

func TestSettleHappyPath(t *testing.T) {
	f := newFixture()
	f.seedRoulette("R1", 7)
	f.bets.put("R1",
		mkBet("b1", "straight:7", 10, GameRoulette),
		mkBet("b2", "straight:8", 10, GameRoulette),
		mkBet("b3", "red", 20, GameRoulette), // 7 为红
	)

	res, err := f.eng.Settle(context.Background(), "R1")
	require.NoError(t, err)
	require.Len(t, res.Bets, 3)
	assert.Equal(t, "360.00", resultByBill(t, res.Bets, "b1").Payout.StringFixed(2), "35:1 总回报 36x")
	assert.Equal(t, BetLost, resultByBill(t, res.Bets, "b2").Status)
	assert.Equal(t, "40.00", resultByBill(t, res.Bets, "b3").Payout.StringFixed(2))
	assert.Equal(t, "400.00", res.TotalPayout.StringFixed(2))

	// 回合翻转为 completed，仅赢单入账
	round, err := f.rounds.Get(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, round.Status)
	assert.Len(t, f.wallet.credits, 2)
	assert.Equal(t, "360.00", f.wallet.credits["b1"].StringFixed(2))
	assert.Contains(t, f.pub.topics, "round_completed")
}

func TestSettleTwiceIsIdempotent(t *testing.T) {
	f := newFixture()
	f.seedRoulette("R1", 0)
	f.bets.put("R1",
		mkBet("b1", "straight:0", 10, GameRoulette),
		mkBet("b2", "black", 10, GameRoulette),
	)

	first, err := f.eng.Settle(context.Background(), "R1")
	require.NoError(t, err)
	second, err := f.eng.Settle(context.Background(), "R1")
	require.NoError(t, err)

	// 两次结果完全一致
	require.Len(t, second.Bets, len(first.Bets))
	for i := range first.Bets {
		assert.Equal(t, first.Bets[i].BillNo, second.Bets[i].BillNo)
		assert.Equal(t, first.Bets[i].Status, second.Bets[i].Status)
		assert.True(t, first.Bets[i].Payout.Equal(second.Bets[i].Payout))
	}
	// 任何注单都不会二次入账
	assert.Equal(t, 1, f.wallet.calls["b1"])
	assert.Equal(t, "360.00", f.wallet.credits["b1"].StringFixed(2))
}

func TestSettleRetryAfterWalletFailure(t *testing.T) {
	f := newFixture()
	f.seedRoulette("R1", 5)
	f.bets.put("R1",
		mkBet("b1", "straight:5", 10, GameRoulette),
		mkBet("b2", "odd", 10, GameRoulette),
	)

	// 第二笔入账瞬时故障：本次结算失败，回合停留在 resolving
	f.wallet.failOn["b2"] = true
	_, err := f.eng.Settle(context.Background(), "R1")
	require.Error(t, err)
	round, _ := f.rounds.Get(context.Background(), "R1")
	assert.Equal(t, state.StatusResolving, round.Status)

	// 故障恢复后重试：续入 b2，b1 不重复入账
	f.wallet.failOn["b2"] = false
	res, err := f.eng.Settle(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, "380.00", res.TotalPayout.StringFixed(2))
	assert.Len(t, f.wallet.credits, 2)
	assert.Equal(t, "360.00", f.wallet.credits["b1"].StringFixed(2))
	assert.Equal(t, "20.00", f.wallet.credits["b2"].StringFixed(2))
	round, _ = f.rounds.Get(context.Background(), "R1")
	assert.Equal(t, state.StatusCompleted, round.Status)
}

func TestSettleRequiresResolvingAndOutcome(t *testing.T) {
	f := newFixture()

	f.rounds.put(&Round{RoundID: "R1", GameType: GameRoulette, Status: state.StatusBetting})
	_, err := f.eng.Settle(context.Background(), "R1")
	assert.ErrorIs(t, err, ErrRoundNotReady)

	f.rounds.put(&Round{RoundID: "R2", GameType: GameRoulette, Status: state.StatusResolving})
	_, err = f.eng.Settle(context.Background(), "R2")
	assert.ErrorIs(t, err, ErrOutcomeMissing)

	f.rounds.put(&Round{RoundID: "R3", GameType: GameRoulette, Status: state.StatusVoid})
	_, err = f.eng.Settle(context.Background(), "R3")
	assert.ErrorIs(t, err, ErrRoundNotReady)
}

func TestVoidRoundRefundsOnce(t *testing.T) {
	f := newFixture()
	f.rounds.put(&Round{RoundID: "R1", GameType: GameSicbo, Status: state.StatusResolving})
	f.bets.put("R1",
		mkBet("b1", "small", 100, GameSicbo),
		mkBet("b2", "big", 50, GameSicbo),
	)

	require.NoError(t, f.eng.VoidRound(context.Background(), "R1"))
	round, _ := f.rounds.Get(context.Background(), "R1")
	assert.Equal(t, state.StatusVoid, round.Status)
	assert.Equal(t, "100.00", f.wallet.credits["b1"].StringFixed(2))
	assert.Equal(t, "50.00", f.wallet.credits["b2"].StringFixed(2))
	assert.Contains(t, f.pub.topics, "round_voided")

	// 重复作废：无副作用
	require.NoError(t, f.eng.VoidRound(context.Background(), "R1"))
	assert.Equal(t, 1, f.wallet.calls["b1"])
	assert.Equal(t, 1, f.wallet.calls["b2"])
}

func TestVoidRoundRejectsCompleted(t *testing.T) {
	f := newFixture()
	f.seedRoulette("R1", 1)
	f.bets.put("R1", mkBet("b1", "red", 10, GameRoulette))
	_, err := f.eng.Settle(context.Background(), "R1")
	require.NoError(t, err)

	err = f.eng.VoidRound(context.Background(), "R1")
	assert.ErrorIs(t, err, ErrRoundNotReady)
}

// gatedBetStore 让前两个 ListByRound 调用互相等待后同时放行，
// 制造结算与作废同时越过前置检查的交错
type gatedBetStore struct {
	*memBetStore
	gmu     sync.Mutex
	arrived int
	gate    chan struct{}
}

func (s *gatedBetStore) ListByRound(ctx context.Context, roundID string) ([]Bet, error) {
	s.gmu.Lock()
	if s.arrived < 2 {
		s.arrived++
		if s.arrived == 2 {
			close(s.gate)
		}
		s.gmu.Unlock()
		<-s.gate
	} else {
		s.gmu.Unlock()
	}
	return s.memBetStore.ListByRound(ctx, roundID)
}

func TestConcurrentSettleAndVoidCreditsOnce(t *testing.T) {
	f := newFixture()
	gated := &gatedBetStore{memBetStore: f.bets, gate: make(chan struct{})}
	f.eng = NewEngine(f.rounds, gated, f.logs, f.wallet, f.pub)
	f.seedRoulette("R1", 12)
	f.bets.put("R1", mkBet("b1", "straight:12", 10, GameRoulette))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = f.eng.Settle(context.Background(), "R1")
	}()
	go func() {
		defer wg.Done()
		_ = f.eng.VoidRound(context.Background(), "R1")
	}()
	wg.Wait()

	// 同一注单只入账一次：要么派彩要么退本金，绝不双发
	assert.Equal(t, 1, f.wallet.calls["b1"])
	require.Len(t, f.wallet.credits, 1)

	// 入账金额与注单落库的终态一致
	bets, err := f.bets.ListByRound(context.Background(), "R1")
	require.NoError(t, err)
	require.Len(t, bets, 1)
	switch bets[0].Status {
	case BetWon:
		assert.Equal(t, "360.00", f.wallet.credits["b1"].StringFixed(2))
	case BetVoid:
		assert.Equal(t, "10.00", f.wallet.credits["b1"].StringFixed(2))
	default:
		t.Fatalf("unexpected terminal status %q", bets[0].Status)
	}
}

func TestVoidRoundRejectsAfterSettlementLogged(t *testing.T) {
	f := newFixture()
	f.seedRoulette("R1", 5)
	f.bets.put("R1",
		mkBet("b1", "straight:5", 10, GameRoulette),
		mkBet("b2", "odd", 10, GameRoulette),
	)

	// 入账瞬时故障：结算日志已落库，回合停留在 resolving
	f.wallet.failOn["b2"] = true
	_, err := f.eng.Settle(context.Background(), "R1")
	require.Error(t, err)
	round, _ := f.rounds.Get(context.Background(), "R1")
	require.Equal(t, state.StatusResolving, round.Status)

	// 结算流水已在进行的回合禁止作废，只能走结算重试
	err = f.eng.VoidRound(context.Background(), "R1")
	assert.ErrorIs(t, err, ErrRoundNotReady)
}

func TestConcurrentSettleSingleCredit(t *testing.T) {
	f := newFixture()
	f.seedRoulette("R1", 12)
	f.bets.put("R1", mkBet("b1", "straight:12", 10, GameRoulette))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.eng.Settle(context.Background(), "R1")
		}()
	}
	wg.Wait()

	// 并发结算仍只入账一次
	assert.Equal(t, "360.00", f.wallet.credits["b1"].StringFixed(2))
	assert.Len(t, f.wallet.credits, 1)
	round, _ := f.rounds.Get(context.Background(), "R1")
	assert.Equal(t, state.StatusCompleted, round.Status)
}
