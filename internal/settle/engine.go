package settle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"casino-server/common/logger"
	"casino-server/internal/state"
)

var (
	// ErrRoundNotReady 回合尚未进入可结算状态（未封盘或已作废）
	ErrRoundNotReady = errors.New("round not ready for settlement")
	// ErrOutcomeMissing 回合未持久化开奖结果，禁止结算
	ErrOutcomeMissing = errors.New("round has no persisted outcome")
)

// RoundStore 回合存取与原子状态迁移
// ClaimTransition 是全系统唯一的并发协调原语：比较并交换 status 字段，
// 多个并发调用者中只有真正完成翻转的那个得到 true
type RoundStore interface {
	Get(ctx context.Context, roundID string) (*Round, error)
	ClaimTransition(ctx context.Context, roundID, from, to string) (bool, error)
	// SaveOutcome 首写生效：已有结果时返回 false 且不覆盖
	SaveOutcome(ctx context.Context, roundID string, oc *Outcome) (bool, error)
	MarkResolved(ctx context.Context, roundID string, resolvedAtMs int64) error
}

// BetStore 注单存取
// ApplyResult 必须带状态守卫（仅 pending 可变），返回 false 表示早已应用
type BetStore interface {
	ListByRound(ctx context.Context, roundID string) ([]Bet, error)
	ApplyResult(ctx context.Context, roundID string, r BetResult) (bool, error)
}

// LogStore 结算日志：唯一键防重入，同时保存首次结果供重复调用原样回放
type LogStore interface {
	Create(ctx context.Context, res *Result) (bool, error)
	Get(ctx context.Context, roundID string) (*Result, error)
}

// Wallet 钱包协作方。CreditOrRefund 以 key 幂等：重复调用同一 key 不得重复入账
type Wallet interface {
	CreditOrRefund(ctx context.Context, idempotencyKey string, customerID int64, amount decimal.Decimal, reason string) error
}

// Publisher 事件发布（生产实现写事务外盒，由 worker 异步投递）
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Engine 结算引擎：一局只生效一次；重复调用回放首次结果
type Engine struct {
	rounds RoundStore
	bets   BetStore
	logs   LogStore
	wallet Wallet
	pub    Publisher
	now    func() time.Time
}

func NewEngine(rounds RoundStore, bets BetStore, logs LogStore, wallet Wallet, pub Publisher) *Engine {
	return &Engine{rounds: rounds, bets: bets, logs: logs, wallet: wallet, pub: pub, now: time.Now}
}

// Settle 结算一局。前置条件：调用方已赢得 betting->resolving 的状态迁移，
// 且开奖结果已持久化到回合上。
// 幂等层次：
//  1. completed 回合直接回放结算日志（AlreadySettled 不算错误）
//  2. 结算日志唯一键：重试路径沿用首次计算的结果
//  3. 注单状态守卫：pending 才可变，变更至多一次
//  4. 钱包入账以注单号为幂等键，重试不会二次派彩
//
// 钱包瞬时故障返回错误、回合停在 resolving，由下一次调度重试；
// 绝不在入账不完整时标记 completed。
func (e *Engine) Settle(ctx context.Context, roundID string) (*Result, error) {
	round, err := e.rounds.Get(ctx, roundID)
	if err != nil {
		return nil, err
	}
	switch round.Status {
	case state.StatusCompleted:
		// 已结算：原样返回首次结果，零副作用
		return e.logs.Get(ctx, roundID)
	case state.StatusResolving:
	default:
		return nil, fmt.Errorf("%w: round %s is %s", ErrRoundNotReady, roundID, round.Status)
	}
	if round.Outcome == nil {
		return nil, fmt.Errorf("%w: round %s", ErrOutcomeMissing, roundID)
	}

	bets, err := e.bets.ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	results, err := ResolveBets(round.Outcome, bets)
	if err != nil {
		return nil, err
	}

	res := &Result{RoundID: roundID, GameType: round.GameType, Outcome: round.Outcome, Bets: results}
	for _, r := range results {
		res.TotalPayout = res.TotalPayout.Add(r.Payout)
	}

	created, err := e.logs.Create(ctx, res)
	if err != nil {
		return nil, err
	}
	if !created {
		// 重试路径：以首次落库的结果为准
		stored, err := e.logs.Get(ctx, roundID)
		if err != nil {
			return nil, err
		}
		res = stored
		logger.Info("settle: replaying stored settlement", zap.String("round_id", roundID))
	}

	if err := e.applyResults(ctx, roundID, res); err != nil {
		return nil, err
	}

	e.publish("round_completed", res)

	// 迁移输掉竞态说明另一个重试刚好收尾，结果仍一致
	claimed, err := e.rounds.ClaimTransition(ctx, roundID, state.StatusResolving, state.StatusCompleted)
	if err != nil {
		return nil, err
	}
	if claimed {
		if err := e.rounds.MarkResolved(ctx, roundID, e.now().UnixMilli()); err != nil {
			return nil, err
		}
	}
	fmt.Printf("[Settle] 结算完成: round_id=%s, game=%s, bets=%d, total_payout=%s\n",
		roundID, res.GameType, len(res.Bets), res.TotalPayout.StringFixed(2))
	return res, nil
}

// VoidRound 开奖源失败时作废一局：全部待结注单退还本金。
// 先退款后翻状态；部分退款失败时回合停留在 resolving，重试幂等续退。
// 结算日志已落库的回合禁止作废：结算流水已在进行，只能走结算重试
func (e *Engine) VoidRound(ctx context.Context, roundID string) error {
	round, err := e.rounds.Get(ctx, roundID)
	if err != nil {
		return err
	}
	if round.Status == state.StatusVoid {
		return nil
	}
	if round.Status != state.StatusResolving {
		return fmt.Errorf("%w: round %s is %s", ErrRoundNotReady, roundID, round.Status)
	}
	if _, err := e.logs.Get(ctx, roundID); err == nil {
		return fmt.Errorf("%w: round %s already has a settlement log", ErrRoundNotReady, roundID)
	}

	bets, err := e.bets.ListByRound(ctx, roundID)
	if err != nil {
		return err
	}
	res := &Result{RoundID: roundID, GameType: round.GameType}
	for _, b := range bets {
		if b.Status != BetPending {
			continue
		}
		res.Bets = append(res.Bets, voidResult(b))
	}
	for _, r := range res.Bets {
		res.TotalPayout = res.TotalPayout.Add(r.Payout)
	}
	if err := e.applyResults(ctx, roundID, res); err != nil {
		return err
	}

	e.publish("round_voided", res)

	claimed, err := e.rounds.ClaimTransition(ctx, roundID, state.StatusResolving, state.StatusVoid)
	if err != nil {
		return err
	}
	if claimed {
		if err := e.rounds.MarkResolved(ctx, roundID, e.now().UnixMilli()); err != nil {
			return err
		}
		fmt.Printf("[Settle] 回合作废: round_id=%s, refunded=%d\n", roundID, len(res.Bets))
	}
	return nil
}

// applyResults 应用每笔注单的状态变更并入账
// 注单号即幂等键：won 入派彩、void 退本金，重复调用自动跳过。
// 状态早已被应用时回表核对终态：与本路径意图不一致说明输给了并发的
// 结算/作废，入账以先应用的终态为准，本路径对该注单不得入账
func (e *Engine) applyResults(ctx context.Context, roundID string, res *Result) error {
	var stored map[string]string
	for _, r := range res.Bets {
		if r.Status != BetWon && r.Status != BetLost && r.Status != BetVoid {
			continue
		}
		applied, err := e.bets.ApplyResult(ctx, roundID, r)
		if err != nil {
			return fmt.Errorf("apply bet %s: %w", r.BillNo, err)
		}
		if !applied {
			if stored == nil {
				if stored, err = e.storedStatuses(ctx, roundID); err != nil {
					return err
				}
			}
			if stored[r.BillNo] != r.Status {
				logger.Warn("settle: bet already applied with different status, skip credit",
					zap.String("bill_no", r.BillNo),
					zap.String("applied", stored[r.BillNo]),
					zap.String("attempted", r.Status))
				continue
			}
			logger.Debug("settle: bet already applied", zap.String("bill_no", r.BillNo))
		}
		if r.Payout.IsPositive() {
			reason := "settle"
			if r.Status == BetVoid {
				reason = "refund"
			}
			if err := e.wallet.CreditOrRefund(ctx, r.BillNo, r.CustomerID, r.Payout, reason); err != nil {
				return fmt.Errorf("credit bet %s: %w", r.BillNo, err)
			}
		}
	}
	return nil
}

func (e *Engine) storedStatuses(ctx context.Context, roundID string) (map[string]string, error) {
	bets, err := e.bets.ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(bets))
	for _, b := range bets {
		m[b.BillNo] = b.Status
	}
	return m, nil
}

func (e *Engine) publish(topic string, res *Result) {
	if e.pub == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		logger.Warn("settle: marshal event failed", zap.String("round_id", res.RoundID), zap.Error(err))
		return
	}
	if err := e.pub.Publish(topic, b); err != nil {
		logger.Warn("settle: publish failed", zap.String("topic", topic), zap.Error(err))
	}
}
