package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"casino-server/internal/config"
	infmysql "casino-server/internal/infra/mysql"
	infrds "casino-server/internal/infra/redis"
	"casino-server/internal/model"
	"casino-server/internal/settle"
	"casino-server/internal/state"
)

var (
	ErrUnknownGameType = errors.New("unknown game type")
	ErrOpenRoundExists = errors.New("an open round already exists for this game")
)

// RoundService 回合开局与查询
type RoundService interface {
	CreateRound(ctx context.Context, gameType, traceID string) (*model.RoundSnapshot, error)
	GetSnapshot(ctx context.Context, roundID string) (*model.RoundSnapshot, error)
	ListUserBets(ctx context.Context, platformID int8, platformUserID, roundID, gameType string, limit int) ([]model.BetRecord, error)
}

type roundService struct{}

func NewRoundService() RoundService { return &roundService{} }

var knownGames = map[string]bool{
	settle.GameAndarBahar: true,
	settle.GameRoulette:   true,
	settle.GameSicbo:      true,
	settle.GamePoker:      true,
}

// CreateRound 开新局：取号、校验同玩法无进行中回合、落库并立即开盘。
// bet_close_at 持久化入库，封盘判定只依赖它，进程重启不丢窗口。
func (s *roundService) CreateRound(ctx context.Context, gameType, traceID string) (*model.RoundSnapshot, error) {
	if !knownGames[gameType] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGameType, gameType)
	}

	tx, err := infmysql.DB().BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// 同玩法同时至多一个开放回合
	open, err := model.CountOpenRounds(ctx, tx, gameType)
	if err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, ErrOpenRoundExists
	}

	seq, err := model.NextSeq(ctx, tx, gameType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	windowMs := int64(config.Get().BettingWindowSec(gameType)) * 1000
	round := &model.GameRound{
		RoundID:    fmt.Sprintf("%s-%d-%s", gameType, seq, uuid.New().String()[:8]),
		GameType:   gameType,
		Seq:        seq,
		Status:     state.CodeBetting,
		StatusStr:  state.StatusBetting,
		BetOpenAt:  now,
		BetCloseAt: now + windowMs,
		TraceID:    traceID,
	}
	if err := round.Insert(ctx, tx); err != nil {
		return nil, err
	}
	if err := model.CreateOutbox(ctx, tx, "round_opened", round.RoundID, map[string]any{
		"event":        "round_opened",
		"round_id":     round.RoundID,
		"game_type":    gameType,
		"seq":          seq,
		"bet_open_at":  round.BetOpenAt,
		"bet_close_at": round.BetCloseAt,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	fmt.Printf("[Round] 开新局: round_id=%s, game=%s, seq=%d, close_at=%d\n",
		round.RoundID, gameType, seq, round.BetCloseAt)

	snap := &model.RoundSnapshot{
		RoundID:    round.RoundID,
		GameType:   gameType,
		Seq:        seq,
		StatusStr:  state.StatusBetting,
		BetOpenAt:  round.BetOpenAt,
		BetCloseAt: round.BetCloseAt,
	}
	s.cacheSnapshot(ctx, snap)
	return snap, nil
}

// GetSnapshot 查询回合快照。
// 未终局的回合不暴露开奖结果（人工干预的预设结果更不会出现在这里）
func (s *roundService) GetSnapshot(ctx context.Context, roundID string) (*model.RoundSnapshot, error) {
	// Redis 快路径
	if r := infrds.Client(); r != nil {
		if bs, _ := r.Get(ctx, infrds.RoundSnapshotKey(roundID)).Bytes(); len(bs) > 0 {
			var snap model.RoundSnapshot
			if json.Unmarshal(bs, &snap) == nil && !state.IsTerminal(snap.StatusStr) {
				return &snap, nil
			}
		}
	}

	snap, err := model.GetRoundSnapshot(ctx, infmysql.DB(), roundID)
	if err != nil {
		return nil, err
	}
	if !state.IsTerminal(snap.StatusStr) {
		snap.Outcome = ""
		snap.ResolvedAt = 0
	}
	s.cacheSnapshot(ctx, snap)
	return snap, nil
}

func (s *roundService) cacheSnapshot(ctx context.Context, snap *model.RoundSnapshot) {
	r := infrds.Client()
	if r == nil {
		return
	}
	if b, err := json.Marshal(snap); err == nil {
		_ = r.Set(ctx, infrds.RoundSnapshotKey(snap.RoundID), b, 30*time.Second).Err()
	}
}

// ListUserBets 用户注单历史（只能查自己的）
func (s *roundService) ListUserBets(ctx context.Context, platformID int8, platformUserID, roundID, gameType string, limit int) ([]model.BetRecord, error) {
	c, err := model.GetCustomerByPlatformUser(ctx, infmysql.DB(), platformID, platformUserID)
	if err != nil {
		return nil, err
	}
	return model.ListUserBets(ctx, infmysql.DB(), c.CustomerID, roundID, gameType, limit)
}
