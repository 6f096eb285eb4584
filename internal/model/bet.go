package model

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/jmoiron/sqlx"
)

var dialect = goqu.Dialect("mysql")

// Bet 对应 bets 表
// 说明：金额为非负；状态采用数值枚举（从1开始）并冗余字符串
// status: 1=pending 2=won 3=lost 4=void
// odds 为受理时刻的赔率快照，结算只认快照不回查赔率表
type Bet struct {
	BillNo         string  `db:"bill_no"` // 注单号(主键)
	RoundID        string  `db:"round_id"`
	GameType       string  `db:"game_type"`
	CustomerID     int64   `db:"customer_id"`
	PlatformID     int8    `db:"platform_id"`
	PlatformUserID string  `db:"platform_user_id"`
	Selection      string  `db:"selection"` // 玩法选择，如 straight:17 / andar / small
	Stake          float64 `db:"stake"`
	Odds           float64 `db:"odds"`
	Status         int8    `db:"status"`
	StatusStr      string  `db:"status_str"`
	Payout         float64 `db:"payout"`
	Currency       string  `db:"currency"`
	IdempotencyKey string  `db:"idempotency_key"`
	BetTime        int64   `db:"bet_time"`
	TraceID        string  `db:"trace_id"`
	CreatedAt      int64   `db:"created_at"`
	UpdatedAt      int64   `db:"updated_at"`
}

// 注单状态映射（与结算层字符串保持一致）
func toBetStatusCode(s string) int8 {
	switch s {
	case "pending":
		return 1
	case "won":
		return 2
	case "lost":
		return 3
	case "void":
		return 4
	default:
		return 0
	}
}

func fromBetStatusCode(c int8) string {
	switch c {
	case 1:
		return "pending"
	case 2:
		return "won"
	case 3:
		return "lost"
	case 4:
		return "void"
	default:
		return ""
	}
}

// Insert 插入一条注单记录
func (b *Bet) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	bt := b.BetTime
	if bt == 0 {
		bt = now
	}
	if b.Status == 0 {
		b.Status = 1
		b.StatusStr = "pending"
	}
	sqlStr := `INSERT INTO bets (bill_no, round_id, game_type, customer_id, platform_id, platform_user_id,
		selection, stake, odds, status, status_str, payout, currency, idempotency_key, bet_time,
		trace_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := exec.ExecContext(ctx, sqlStr, b.BillNo, b.RoundID, b.GameType, b.CustomerID,
		b.PlatformID, b.PlatformUserID, b.Selection, b.Stake, b.Odds, b.Status, b.StatusStr,
		b.Payout, b.Currency, b.IdempotencyKey, bt, b.TraceID, now, now)
	return err
}

// ListBetsByRound 查询一局全部注单（结算引擎输入）
func ListBetsByRound(ctx context.Context, exec sqlx.ExtContext, roundID string) ([]Bet, error) {
	sqlStr := `SELECT bill_no, round_id, game_type, customer_id, selection, stake, odds, status, status_str, payout, currency
		FROM bets WHERE round_id = ?`
	var bs []Bet
	if err := sqlx.SelectContext(ctx, exec, &bs, sqlStr, roundID); err != nil {
		return nil, err
	}
	return bs, nil
}

// ApplySettlement 应用结算结论：仅 pending 注单可变，返回是否真正更新。
// 状态守卫保证每笔注单的结算写入至多生效一次
func ApplySettlement(ctx context.Context, exec sqlx.ExtContext, billNo, newStatus string, payout float64) (bool, error) {
	now := time.Now().UnixMilli()
	code := toBetStatusCode(newStatus)
	sqlStr := "UPDATE bets SET status = ?, status_str = ?, payout = ?, updated_at = ? WHERE bill_no = ? AND status = 1"
	res, err := exec.ExecContext(ctx, sqlStr, code, newStatus, payout, now, billNo)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// BetRecord 投注记录（查询接口投影）
type BetRecord struct {
	BillNo    string  `db:"bill_no" json:"bill_no"`
	RoundID   string  `db:"round_id" json:"round_id"`
	GameType  string  `db:"game_type" json:"game_type"`
	Selection string  `db:"selection" json:"selection"`
	Stake     float64 `db:"stake" json:"stake"`
	Odds      float64 `db:"odds" json:"odds"`
	StatusStr string  `db:"status_str" json:"status"`
	Payout    float64 `db:"payout" json:"payout"`
	BetTime   int64   `db:"bet_time" json:"bet_time"`
}

// ListUserBets 查询用户投注记录，round_id / game_type 为可选过滤条件
// 条件组合多，使用 goqu 构造查询
func ListUserBets(ctx context.Context, db *sqlx.DB, customerID int64, roundID, gameType string, limit int) ([]BetRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	ds := dialect.From("bets").
		Select("bill_no", "round_id", "game_type", "selection", "stake", "odds", "status_str", "payout", "bet_time").
		Where(goqu.C("customer_id").Eq(customerID))
	if roundID != "" {
		ds = ds.Where(goqu.C("round_id").Eq(roundID))
	}
	if gameType != "" {
		ds = ds.Where(goqu.C("game_type").Eq(gameType))
	}
	sqlStr, args, err := ds.Order(goqu.C("bet_time").Desc()).Limit(uint(limit)).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}

	var records []BetRecord
	if err := db.SelectContext(ctx, &records, sqlStr, args...); err != nil {
		return nil, err
	}
	return records, nil
}

// SumPendingStakeByRound 汇总一局待结注单的本金（作废退款对账用）
func SumPendingStakeByRound(ctx context.Context, exec sqlx.ExtContext, roundID string) (float64, error) {
	sqlStr := "SELECT COALESCE(SUM(stake), 0) FROM bets WHERE round_id = ? AND status = 1"
	var total float64
	if err := sqlx.GetContext(ctx, exec, &total, sqlStr, roundID); err != nil {
		return 0, err
	}
	return total, nil
}
