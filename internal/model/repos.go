package model

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"casino-server/internal/settle"
	"casino-server/internal/state"
)

// 本文件把表模型适配成结算引擎与调度器的协作接口。
// 引擎只看 settle.Round / settle.Bet 等领域快照，不感知表结构。

// RoundRepo 实现 settle.RoundStore 与 sched.RoundSource
type RoundRepo struct {
	DB *sqlx.DB
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func toSettleRound(gr *GameRound) (*settle.Round, error) {
	r := &settle.Round{
		RoundID:    gr.RoundID,
		GameType:   gr.GameType,
		Seq:        gr.Seq,
		Status:     state.FromCode(gr.Status),
		BetCloseAt: gr.BetCloseAt,
	}
	if gr.Outcome != "" {
		var oc settle.Outcome
		if err := json.Unmarshal([]byte(gr.Outcome), &oc); err != nil {
			return nil, fmt.Errorf("round %s: bad outcome json: %w", gr.RoundID, err)
		}
		r.Outcome = &oc
	}
	return r, nil
}

func (r *RoundRepo) Get(ctx context.Context, roundID string) (*settle.Round, error) {
	gr, err := GetRound(ctx, r.DB, roundID)
	if err != nil {
		return nil, err
	}
	return toSettleRound(gr)
}

// ClaimTransition 状态 CAS。封盘迁移额外校验 bet_close_at 已过
func (r *RoundRepo) ClaimTransition(ctx context.Context, roundID, from, to string) (bool, error) {
	if from == state.StatusBetting && to == state.StatusResolving {
		return ClaimCloseDue(ctx, r.DB, roundID, nowMillis())
	}
	return ClaimTransition(ctx, r.DB, roundID, state.ToCode(from), state.ToCode(to))
}

func (r *RoundRepo) SaveOutcome(ctx context.Context, roundID string, oc *settle.Outcome) (bool, error) {
	b, err := json.Marshal(oc)
	if err != nil {
		return false, err
	}
	source := oc.Source
	if source == "" {
		source = "fair"
	}
	return SaveOutcome(ctx, r.DB, roundID, string(b), source)
}

func (r *RoundRepo) MarkResolved(ctx context.Context, roundID string, resolvedAtMs int64) error {
	return MarkResolved(ctx, r.DB, roundID, resolvedAtMs)
}

func (r *RoundRepo) ListDue(ctx context.Context, nowMs int64, limit int) ([]settle.Round, error) {
	grs, err := ListDueRounds(ctx, r.DB, nowMs, limit)
	if err != nil {
		return nil, err
	}
	out := make([]settle.Round, 0, len(grs))
	for i := range grs {
		sr, err := toSettleRound(&grs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *sr)
	}
	return out, nil
}

// BetRepo 实现 settle.BetStore
type BetRepo struct {
	DB *sqlx.DB
}

func (r *BetRepo) ListByRound(ctx context.Context, roundID string) ([]settle.Bet, error) {
	rows, err := ListBetsByRound(ctx, r.DB, roundID)
	if err != nil {
		return nil, err
	}
	out := make([]settle.Bet, 0, len(rows))
	for _, b := range rows {
		out = append(out, settle.Bet{
			BillNo:     b.BillNo,
			CustomerID: b.CustomerID,
			Selection:  b.Selection,
			Stake:      decimal.NewFromFloat(b.Stake),
			Odds:       decimal.NewFromFloat(b.Odds),
			Status:     fromBetStatusCode(b.Status),
		})
	}
	return out, nil
}

func (r *BetRepo) ApplyResult(ctx context.Context, roundID string, res settle.BetResult) (bool, error) {
	return ApplySettlement(ctx, r.DB, res.BillNo, res.Status, res.Payout.InexactFloat64())
}

// LogRepo 实现 settle.LogStore
type LogRepo struct {
	DB       *sqlx.DB
	Operator string // 默认 system，人工触发时由服务层覆写
}

func (r *LogRepo) Create(ctx context.Context, res *settle.Result) (bool, error) {
	ocJSON, err := json.Marshal(res.Outcome)
	if err != nil {
		return false, err
	}
	resJSON, err := json.Marshal(res.Bets)
	if err != nil {
		return false, err
	}
	op := r.Operator
	if op == "" {
		op = "system"
	}
	return CreateSettlementLog(ctx, r.DB, &SettlementLog{
		RoundID:     res.RoundID,
		GameType:    res.GameType,
		Outcome:     string(ocJSON),
		Results:     string(resJSON),
		TotalBets:   len(res.Bets),
		TotalPayout: res.TotalPayout.InexactFloat64(),
		Operator:    op,
	})
}

func (r *LogRepo) Get(ctx context.Context, roundID string) (*settle.Result, error) {
	log, err := GetSettlementLog(ctx, r.DB, roundID)
	if err != nil {
		return nil, err
	}
	res := &settle.Result{
		RoundID:     log.RoundID,
		GameType:    log.GameType,
		TotalPayout: decimal.NewFromFloat(log.TotalPayout),
	}
	if log.Outcome != "" {
		var oc settle.Outcome
		if err := json.Unmarshal([]byte(log.Outcome), &oc); err != nil {
			return nil, err
		}
		res.Outcome = &oc
	}
	if log.Results != "" {
		if err := json.Unmarshal([]byte(log.Results), &res.Bets); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// WalletRepo 实现 settle.Wallet
// 入账三件事在同一事务：幂等键、余额更新、账本追加。
// 幂等键只含注单号不含入账原因：同一注单派彩与退款互斥，
// 并发的结算与作废只有先到者入账。键已存在直接提交空事务返回 nil
type WalletRepo struct {
	DB *sqlx.DB
}

func (w *WalletRepo) CreditOrRefund(ctx context.Context, key string, customerID int64, amount decimal.Decimal, reason string) error {
	if !amount.IsPositive() {
		return nil
	}
	tx, err := w.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	created, err := TryInsertIdemKey(ctx, tx, "wallet:"+key, reason, key)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	before, err := GetBalanceForUpdate(ctx, tx, customerID)
	if err != nil {
		return err
	}
	amt := amount.InexactFloat64()
	after := decimal.NewFromFloat(before).Add(amount).Round(2).InexactFloat64()
	if err := UpdateBalance(ctx, tx, customerID, after); err != nil {
		return err
	}

	// 账本补全注单上下文
	var row struct {
		RoundID  string `db:"round_id"`
		GameType string `db:"game_type"`
		Currency string `db:"currency"`
	}
	if err := sqlx.GetContext(ctx, tx, &row,
		"SELECT round_id, game_type, currency FROM bets WHERE bill_no = ? LIMIT 1", key); err != nil {
		return err
	}
	ledger := &WalletLedger{
		CustomerID:   customerID,
		BizTypeStr:   reason,
		Amount:       amt,
		BeforeAmount: before,
		AfterAmount:  after,
		Currency:     row.Currency,
		BillNo:       key,
		RoundID:      row.RoundID,
		GameType:     row.GameType,
	}
	if err := ledger.Insert(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}
