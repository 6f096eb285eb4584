package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"casino-server/common/logger"
	"casino-server/internal/cache"
	"casino-server/internal/config"
	"casino-server/internal/engine"
	infmysql "casino-server/internal/infra/mysql"
	"casino-server/internal/metrics"
	"casino-server/internal/model"
	"casino-server/internal/sched"
	"casino-server/internal/settle"
)

// OutcomeSource 开奖结果来源，调度器封盘后调用。
// 优先级：人工干预结果 > 外部市场结果 > 本地公平开奖。
// 每次产出结果都落一条审计（来源、操作人、完整结果）。
type OutcomeSource struct {
	bets settle.BetStore
}

func NewOutcomeSource(bets settle.BetStore) *OutcomeSource {
	return &OutcomeSource{bets: bets}
}

func (o *OutcomeSource) Generate(ctx context.Context, round *settle.Round) (*settle.Outcome, error) {
	cfg := config.Get()

	// 1. 人工干预结果（仅开关打开时消费；总是留痕）
	if cfg != nil && cfg.Game.Override.Enabled {
		oc, err := cache.GetOverride(ctx, round.RoundID)
		if err == nil {
			oc, err = o.materializeOverride(round, oc)
			if err != nil {
				return nil, err
			}
			oc.Source = "override"
			o.audit(ctx, round, oc, "override")
			_ = cache.DeleteOverride(ctx, round.RoundID)
			logger.Warn("outcome: override consumed",
				zap.String("round_id", round.RoundID), zap.String("game", round.GameType))
			metrics.RecordOutcome(round.GameType, "override")
			return oc, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) && !errors.Is(err, cache.ErrCacheDisabled) {
			return nil, err
		}
	}

	// 2. 外部市场玩法：结果未写入缓存前保持等待，不作废
	if cfg.IsExternalGame(round.GameType) {
		oc, err := cache.GetExternal(ctx, round.RoundID)
		if err != nil {
			if errors.Is(err, cache.ErrCacheMiss) || errors.Is(err, cache.ErrCacheDisabled) {
				return nil, sched.ErrUnresolved
			}
			return nil, err
		}
		oc.Source = "external"
		o.audit(ctx, round, oc, "external")
		metrics.RecordOutcome(round.GameType, "external")
		return oc, nil
	}

	// 3. 本地公平开奖
	oc, err := o.generateFair(ctx, round)
	if err != nil {
		return nil, err
	}
	oc.Source = "fair"
	o.audit(ctx, round, oc, "fair")
	metrics.RecordOutcome(round.GameType, "fair")
	return oc, nil
}

// generateFair 按玩法用加密安全随机源产出结果
func (o *OutcomeSource) generateFair(ctx context.Context, round *settle.Round) (*settle.Outcome, error) {
	switch round.GameType {
	case settle.GameAndarBahar:
		return dealAndarBahar("")
	case settle.GameRoulette:
		n, err := engine.SpinWheel(37)
		if err != nil {
			return nil, err
		}
		return settle.WheelOutcome(n), nil
	case settle.GameSicbo:
		dice, err := engine.RollDice(3, 6)
		if err != nil {
			return nil, err
		}
		return settle.DiceOutcome(dice), nil
	case settle.GamePoker:
		return o.dealPoker(ctx, round.RoundID)
	default:
		return nil, fmt.Errorf("outcome: unknown game type %q", round.GameType)
	}
}

// materializeOverride 把干预参数补全成完整结果。
// 轮盘/骰宝的干预结果本身已完整；发牌类只指定胜侧，牌序仍由随机洗牌生成
func (o *OutcomeSource) materializeOverride(round *settle.Round, oc *settle.Outcome) (*settle.Outcome, error) {
	if round.GameType == settle.GameAndarBahar {
		return dealAndarBahar(oc.WinningSide)
	}
	return oc, nil
}

// dealAndarBahar 完整的一局发牌。
// 首张为目标牌；黑色目标从 andar 起手，红色从 bahar 起手。
// forcedSide 非空时胜牌被调度到该侧（其余牌相对顺序不变）
func dealAndarBahar(forcedSide string) (*settle.Outcome, error) {
	deck := engine.NewDeck()
	if err := engine.Shuffle(deck); err != nil {
		return nil, err
	}
	target := deck[0]
	start := engine.SideAndar
	if target.Suit == engine.Hearts || target.Suit == engine.Diamonds {
		start = engine.SideBahar
	}
	deal, err := engine.DealAlternating(deck[1:], target.Rank, start, forcedSide)
	if err != nil {
		return nil, err
	}
	return settle.DealOutcome(target.Rank, deal), nil
}

// dealPoker 给每个持有待结注单的玩家发两张底牌，再发五张公共牌
func (o *OutcomeSource) dealPoker(ctx context.Context, roundID string) (*settle.Outcome, error) {
	bets, err := o.bets.ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	// 同一玩家多笔 ante 只发一手牌
	seen := map[int64]bool{}
	var players []int64
	for _, b := range bets {
		if b.Status != settle.BetPending || seen[b.CustomerID] {
			continue
		}
		seen[b.CustomerID] = true
		players = append(players, b.CustomerID)
	}
	sort.Slice(players, func(i, j int) bool { return players[i] < players[j] })

	if len(players)*2+5 > 52 {
		return nil, fmt.Errorf("outcome: too many poker players: %d", len(players))
	}

	deck := engine.NewDeck()
	if err := engine.Shuffle(deck); err != nil {
		return nil, err
	}
	hands := make(map[string][]string, len(players))
	pos := 0
	for _, p := range players {
		hands[strconv.FormatInt(p, 10)] = engine.EncodeCards(deck[pos : pos+2])
		pos += 2
	}
	board := engine.EncodeCards(deck[pos : pos+5])
	return &settle.Outcome{GameType: settle.GamePoker, Board: board, Hands: hands}, nil
}

// audit 开奖审计（失败只告警，不阻塞开奖）
func (o *OutcomeSource) audit(ctx context.Context, round *settle.Round, oc *settle.Outcome, source string) {
	payload, err := json.Marshal(oc)
	if err != nil {
		logger.Warn("outcome: marshal audit payload failed", zap.Error(err))
		return
	}
	a := &model.OutcomeAudit{
		RoundID:  round.RoundID,
		GameType: round.GameType,
		Source:   source,
		Operator: "system",
		Payload:  string(payload),
	}
	if err := a.Insert(ctx, infmysql.DB()); err != nil {
		logger.Error("outcome: write audit failed",
			zap.String("round_id", round.RoundID), zap.Error(err))
	}
}
