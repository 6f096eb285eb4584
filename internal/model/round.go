package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"casino-server/internal/state"
)

// GameRound 对应 game_rounds 表
// 说明：时间为毫秒时间戳；状态采用"数值码+冗余字符串"双写
// status: 1=pending 2=betting 3=resolving 4=completed 5=void
// outcome 为开奖结果 JSON（结算开始前必须已持久化）
// outcome_source: fair=本地公平开奖 override=人工干预 external=外部市场
type GameRound struct {
	ID            int64  `db:"id"`
	RoundID       string `db:"round_id"`
	GameType      string `db:"game_type"`
	Seq           int64  `db:"seq"` // 同玩法内单调递增局号
	Status        int8   `db:"status"`
	StatusStr     string `db:"status_str"`
	BetOpenAt     int64  `db:"bet_open_at"`
	BetCloseAt    int64  `db:"bet_close_at"`
	Outcome       string `db:"outcome"` // JSON，空串表示未开奖
	OutcomeSource string `db:"outcome_source"`
	ResolvedAt    int64  `db:"resolved_at"`
	TraceID       string `db:"trace_id"`
	CreatedAt     int64  `db:"created_at"`
	UpdatedAt     int64  `db:"updated_at"`
}

// Insert 插入新回合（初始 pending）
func (r *GameRound) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	if r.Status == 0 {
		r.Status = state.CodePending
		r.StatusStr = state.StatusPending
	}
	sqlStr := `INSERT INTO game_rounds (round_id, game_type, seq, status, status_str, bet_open_at, bet_close_at,
		outcome, outcome_source, resolved_at, trace_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := exec.ExecContext(ctx, sqlStr, r.RoundID, r.GameType, r.Seq, r.Status, r.StatusStr,
		r.BetOpenAt, r.BetCloseAt, r.Outcome, r.OutcomeSource, r.ResolvedAt, r.TraceID, now, now)
	return err
}

// NextSeq 取同玩法下一个局号（需在事务中调用，带锁避免并发取号重复）
func NextSeq(ctx context.Context, exec sqlx.ExtContext, gameType string) (int64, error) {
	sqlStr := "SELECT COALESCE(MAX(seq), 0) + 1 FROM game_rounds WHERE game_type = ? FOR UPDATE"
	var seq int64
	if err := sqlx.GetContext(ctx, exec, &seq, sqlStr, gameType); err != nil {
		return 0, err
	}
	return seq, nil
}

// CountOpenRounds 统计同玩法非终态回合数（同玩法同时至多一个开放回合）
func CountOpenRounds(ctx context.Context, exec sqlx.ExtContext, gameType string) (int, error) {
	sqlStr := "SELECT COUNT(1) FROM game_rounds WHERE game_type = ? AND status IN (?, ?, ?)"
	var cnt int
	err := sqlx.GetContext(ctx, exec, &cnt, sqlStr, gameType,
		state.CodePending, state.CodeBetting, state.CodeResolving)
	return cnt, err
}

// GetRound 按回合ID查询（无锁）
func GetRound(ctx context.Context, exec sqlx.ExtContext, roundID string) (*GameRound, error) {
	sqlStr := `SELECT id, round_id, game_type, seq, status, status_str, bet_open_at, bet_close_at,
		outcome, outcome_source, resolved_at, trace_id, created_at, updated_at
		FROM game_rounds WHERE round_id = ?`
	var r GameRound
	if err := sqlx.GetContext(ctx, exec, &r, sqlStr, roundID); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRoundForUpdate 按回合ID加锁查询（下注受理时校验时间窗口用）
func GetRoundForUpdate(ctx context.Context, exec sqlx.ExtContext, roundID string) (*GameRound, error) {
	sqlStr := `SELECT id, round_id, game_type, seq, status, status_str, bet_open_at, bet_close_at,
		outcome, outcome_source, resolved_at, trace_id, created_at, updated_at
		FROM game_rounds WHERE round_id = ? FOR UPDATE`
	var r GameRound
	if err := sqlx.GetContext(ctx, exec, &r, sqlStr, roundID); err != nil {
		return nil, err
	}
	return &r, nil
}

// ClaimTransition 比较并交换状态：status 仍为 from 时翻转为 to，返回是否真正翻转。
// 这是全系统唯一的并发协调手段，多实例竞争下恰好一个调用者得到 true
func ClaimTransition(ctx context.Context, exec sqlx.ExtContext, roundID string, from, to int8) (bool, error) {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE game_rounds SET status = ?, status_str = ?, updated_at = ? WHERE round_id = ? AND status = ?"
	res, err := exec.ExecContext(ctx, sqlStr, to, state.FromCode(to), now, roundID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimCloseDue 封盘专用 CAS：除状态守卫外还要求 bet_close_at 已过，
// 防止时钟漂移的实例提前封盘
func ClaimCloseDue(ctx context.Context, exec sqlx.ExtContext, roundID string, nowMs int64) (bool, error) {
	sqlStr := `UPDATE game_rounds SET status = ?, status_str = ?, updated_at = ?
		WHERE round_id = ? AND status = ? AND bet_close_at <= ?`
	res, err := exec.ExecContext(ctx, sqlStr,
		state.CodeResolving, state.StatusResolving, nowMs, roundID, state.CodeBetting, nowMs)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SaveOutcome 持久化开奖结果与来源。首写生效：已有结果的回合不覆盖，
// 返回 false 表示另一条路径已先落库，调用方应回读落库的结果
func SaveOutcome(ctx context.Context, exec sqlx.ExtContext, roundID, outcomeJSON, source string) (bool, error) {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE game_rounds SET outcome = ?, outcome_source = ?, updated_at = ? WHERE round_id = ? AND outcome = ''"
	res, err := exec.ExecContext(ctx, sqlStr, outcomeJSON, source, now, roundID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkResolved 记录终态时间
func MarkResolved(ctx context.Context, exec sqlx.ExtContext, roundID string, resolvedAtMs int64) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE game_rounds SET resolved_at = ?, updated_at = ? WHERE round_id = ?"
	_, err := exec.ExecContext(ctx, sqlStr, resolvedAtMs, now, roundID)
	return err
}

// ListDueRounds 扫描待处理回合：betting 已到封盘时间，或停留在 resolving。
// 进程重启后调度器靠这条查询续跑（不依赖任何进程内定时器）
func ListDueRounds(ctx context.Context, exec sqlx.ExtContext, nowMs int64, limit int) ([]GameRound, error) {
	if limit <= 0 {
		limit = 50
	}
	sqlStr := `SELECT id, round_id, game_type, seq, status, status_str, bet_open_at, bet_close_at,
		outcome, outcome_source, resolved_at, trace_id, created_at, updated_at
		FROM game_rounds
		WHERE (status = ? AND bet_close_at <= ?) OR status = ?
		ORDER BY bet_close_at ASC LIMIT ?`
	var rs []GameRound
	if err := sqlx.SelectContext(ctx, exec, &rs, sqlStr,
		state.CodeBetting, nowMs, state.CodeResolving, limit); err != nil {
		return nil, err
	}
	return rs, nil
}

// RoundSnapshot 快照查询接口所需的最小字段集合
type RoundSnapshot struct {
	RoundID    string `db:"round_id" json:"round_id"`
	GameType   string `db:"game_type" json:"game_type"`
	Seq        int64  `db:"seq" json:"seq"`
	StatusStr  string `db:"status_str" json:"status"`
	BetOpenAt  int64  `db:"bet_open_at" json:"bet_open_at"`
	BetCloseAt int64  `db:"bet_close_at" json:"bet_close_at"`
	Outcome    string `db:"outcome" json:"outcome,omitempty"`
	ResolvedAt int64  `db:"resolved_at" json:"resolved_at,omitempty"`
}

// GetRoundSnapshot 按回合ID查询快照（无锁）
func GetRoundSnapshot(ctx context.Context, exec sqlx.ExtContext, roundID string) (*RoundSnapshot, error) {
	sqlStr := `SELECT round_id, game_type, seq, status_str, bet_open_at, bet_close_at, outcome, resolved_at
		FROM game_rounds WHERE round_id = ?`
	var rs RoundSnapshot
	if err := sqlx.GetContext(ctx, exec, &rs, sqlStr, roundID); err != nil {
		return nil, err
	}
	return &rs, nil
}
