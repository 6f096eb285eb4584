package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// OutcomeAudit 对应 outcome_audit 表（开奖审计）
// source: fair=本地公平开奖 override=人工干预 external=外部市场
// 人工干预必须留痕：operator 与干预详情写入 payload
type OutcomeAudit struct {
	ID        int64  `db:"id"`
	RoundID   string `db:"round_id"`
	GameType  string `db:"game_type"`
	Source    string `db:"source"`
	Operator  string `db:"operator"`
	Payload   string `db:"payload"` // 开奖结果 + 干预参数 JSON
	TraceID   string `db:"trace_id"`
	CreatedAt int64  `db:"created_at"`
}

// Insert
func (a *OutcomeAudit) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	sqlStr := "INSERT INTO outcome_audit (round_id, game_type, source, operator, payload, trace_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
	_, err := exec.ExecContext(ctx, sqlStr, a.RoundID, a.GameType, a.Source, a.Operator, a.Payload, a.TraceID, now)
	return err
}

// ListOutcomeAudits 按回合ID查询审计记录（时间升序）
func ListOutcomeAudits(ctx context.Context, exec sqlx.ExtContext, roundID string) ([]OutcomeAudit, error) {
	sqlStr := `SELECT id, round_id, game_type, source, operator, payload, trace_id, created_at
		FROM outcome_audit WHERE round_id = ? ORDER BY id ASC`
	var list []OutcomeAudit
	if err := sqlx.SelectContext(ctx, exec, &list, sqlStr, roundID); err != nil {
		return nil, err
	}
	return list, nil
}
