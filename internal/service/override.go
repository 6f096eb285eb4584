package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"casino-server/common/logger"
	"casino-server/internal/cache"
	"casino-server/internal/config"
	"casino-server/internal/engine"
	infmysql "casino-server/internal/infra/mysql"
	"casino-server/internal/model"
	"casino-server/internal/settle"
	"casino-server/internal/state"
)

var (
	ErrOverrideDisabled = errors.New("outcome override is disabled")
	ErrOverrideTooLate  = errors.New("round already resolved, override rejected")
)

// OverrideInput 人工干预参数，按玩法填对应字段
type OverrideInput struct {
	RoundID     string
	Operator    string // 必填，审计留痕
	WinningSide string // andar_bahar
	Number      *int   // roulette
	Dice        []int  // sicbo
	TraceID     string
}

// OverrideService 预设开奖结果。
// 结果写入带 TTL 的 Redis 缓存，封盘开奖时消费；无论是否最终被消费都立即留审计。
type OverrideService interface {
	SetOutcome(ctx context.Context, in OverrideInput) error
	ClearOutcome(ctx context.Context, roundID, operator string) error
}

type overrideService struct{}

func NewOverrideService() OverrideService { return &overrideService{} }

func (s *overrideService) SetOutcome(ctx context.Context, in OverrideInput) error {
	cfg := config.Get()
	if cfg == nil || !cfg.Game.Override.Enabled {
		return ErrOverrideDisabled
	}
	if in.Operator == "" {
		return errors.New("operator required")
	}

	round, err := model.GetRound(ctx, infmysql.DB(), in.RoundID)
	if err != nil {
		return err
	}
	if state.IsTerminal(state.FromCode(round.Status)) || round.Status == state.CodeResolving {
		return ErrOverrideTooLate
	}

	oc, err := buildOverrideOutcome(round.GameType, in)
	if err != nil {
		return err
	}

	ttl := 10 * time.Minute
	if cfg.Game.OutcomeCacheTTLSec > 0 {
		ttl = time.Duration(cfg.Game.OutcomeCacheTTLSec) * time.Second
	}
	if err := cache.PutOverride(ctx, in.RoundID, oc, ttl); err != nil {
		return fmt.Errorf("store override: %w", err)
	}

	// 预设即留痕，不等消费
	payload, _ := json.Marshal(map[string]any{"preset": oc, "ttl_sec": int(ttl.Seconds())})
	a := &model.OutcomeAudit{
		RoundID:  in.RoundID,
		GameType: round.GameType,
		Source:   "override",
		Operator: in.Operator,
		Payload:  string(payload),
		TraceID:  in.TraceID,
	}
	if err := a.Insert(ctx, infmysql.DB()); err != nil {
		return err
	}

	logger.Warn("override: outcome preset",
		zap.String("round_id", in.RoundID),
		zap.String("game", round.GameType),
		zap.String("operator", in.Operator),
		logger.TraceField(ctx))
	fmt.Printf("[Override] 预设开奖结果: round_id=%s, operator=%s\n", in.RoundID, in.Operator)
	return nil
}

func (s *overrideService) ClearOutcome(ctx context.Context, roundID, operator string) error {
	if err := cache.DeleteOverride(ctx, roundID); err != nil {
		return err
	}
	a := &model.OutcomeAudit{
		RoundID:  roundID,
		Source:   "override",
		Operator: operator,
		Payload:  `{"action":"cleared"}`,
	}
	return a.Insert(ctx, infmysql.DB())
}

// buildOverrideOutcome 校验干预参数并构造待用结果
func buildOverrideOutcome(gameType string, in OverrideInput) (*settle.Outcome, error) {
	switch gameType {
	case settle.GameAndarBahar:
		if in.WinningSide != engine.SideAndar && in.WinningSide != engine.SideBahar {
			return nil, fmt.Errorf("invalid winning side %q", in.WinningSide)
		}
		// 胜侧在消费时再配合随机洗牌补全牌序
		return &settle.Outcome{GameType: gameType, WinningSide: in.WinningSide}, nil
	case settle.GameRoulette:
		if in.Number == nil || *in.Number < 0 || *in.Number > 36 {
			return nil, errors.New("roulette number must be 0..36")
		}
		return settle.WheelOutcome(*in.Number), nil
	case settle.GameSicbo:
		if len(in.Dice) != 3 {
			return nil, errors.New("sicbo expects 3 dice")
		}
		for _, d := range in.Dice {
			if d < 1 || d > 6 {
				return nil, fmt.Errorf("invalid die value %d", d)
			}
		}
		return settle.DiceOutcome(in.Dice), nil
	case settle.GamePoker:
		return nil, errors.New("poker outcome cannot be overridden")
	default:
		return nil, fmt.Errorf("unknown game type %q", gameType)
	}
}
