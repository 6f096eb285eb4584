package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// SettlementLog 结算日志表（round_id 唯一键，防止重复结算）
// results 保存首次结算的逐注单结论 JSON，重复结算原样回放
type SettlementLog struct {
	ID          int64   `db:"id"`
	RoundID     string  `db:"round_id"`
	GameType    string  `db:"game_type"`
	Outcome     string  `db:"outcome"` // 开奖结果 JSON
	Results     string  `db:"results"` // 逐注单结算结论 JSON
	TotalBets   int     `db:"total_bets"`
	TotalPayout float64 `db:"total_payout"`
	Operator    string  `db:"operator"`
	TraceID     string  `db:"trace_id"`
	CreatedAt   int64   `db:"created_at"`
}

// CreateSettlementLog 创建结算日志。
// 返回 (true, nil) 表示首次写入；唯一键冲突返回 (false, nil)，调用方应回放已有日志
func CreateSettlementLog(ctx context.Context, exec sqlx.ExtContext, log *SettlementLog) (bool, error) {
	log.CreatedAt = time.Now().UnixMilli()

	sqlStr := `INSERT INTO settlement_log (round_id, game_type, outcome, results, total_bets, total_payout, operator, trace_id, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := exec.ExecContext(ctx, sqlStr,
		log.RoundID, log.GameType, log.Outcome, log.Results, log.TotalBets, log.TotalPayout,
		log.Operator, log.TraceID, log.CreatedAt)
	if err != nil {
		if isMySQLDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}

	id, _ := result.LastInsertId()
	log.ID = id
	return true, nil
}

// GetSettlementLog 查询结算日志
func GetSettlementLog(ctx context.Context, exec sqlx.ExtContext, roundID string) (*SettlementLog, error) {
	sqlStr := `SELECT id, round_id, game_type, outcome, results, total_bets, total_payout, operator, trace_id, created_at
	           FROM settlement_log WHERE round_id = ? LIMIT 1`
	var log SettlementLog
	if err := sqlx.GetContext(ctx, exec, &log, sqlStr, roundID); err != nil {
		return nil, err
	}
	return &log, nil
}
