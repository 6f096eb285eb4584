package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"casino-server/common/logger"
	"casino-server/internal/metrics"
	"casino-server/internal/settle"
	"casino-server/internal/state"
)

// ErrUnresolved 外部开奖源尚无结果：回合停留在 resolving，等待下一轮询
var ErrUnresolved = errors.New("outcome not yet available")

// ErrNotDue 回合未到封盘时间，禁止人工提前结算
var ErrNotDue = errors.New("round not due for resolution")

// ErrVoided 本次触发导致回合作废（开奖失败），本金已退还
var ErrVoided = errors.New("round voided")

// RoundSource 调度器的回合视图
// ListDue 返回 betting 且 bet_close_at<=now 的回合，外加停留在 resolving 的回合
// （进程重启后靠它续跑，不依赖任何进程内定时器）
type RoundSource interface {
	settle.RoundStore
	ListDue(ctx context.Context, nowMs int64, limit int) ([]settle.Round, error)
}

// OutcomeSource 开奖结果来源。公平开奖/人工干预/外部市场由实现方内聚，
// 返回 ErrUnresolved 表示结果未就绪（仅外部市场游戏可能出现）
type OutcomeSource interface {
	Generate(ctx context.Context, round *settle.Round) (*settle.Outcome, error)
}

// Settler 结算协作方
type Settler interface {
	Settle(ctx context.Context, roundID string) (*settle.Result, error)
	VoidRound(ctx context.Context, roundID string) error
}

// Scheduler 轮询待封盘回合并驱动 封盘->开奖->结算 流水线。
// 多实例安全：封盘迁移是 CAS，输掉竞争的实例直接跳过该回合。
type Scheduler struct {
	rounds   RoundSource
	source   OutcomeSource
	settler  Settler
	interval time.Duration
	batch    int
	now      func() time.Time
}

func NewScheduler(rounds RoundSource, source OutcomeSource, settler Settler, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		rounds:   rounds,
		source:   source,
		settler:  settler,
		interval: interval,
		batch:    50,
		now:      time.Now,
	}
}

// Run 轮询主循环，ctx 取消后返回
func (s *Scheduler) Run(ctx context.Context) {
	fmt.Printf("[Scheduler] 启动轮询, interval=%s\n", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler: stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick 处理一批到期回合。单个回合失败不影响同批其他回合
func (s *Scheduler) Tick(ctx context.Context) {
	nowMs := s.now().UnixMilli()
	due, err := s.rounds.ListDue(ctx, nowMs, s.batch)
	if err != nil {
		logger.Error("scheduler: list due rounds failed", zap.Error(err))
		return
	}
	for i := range due {
		if err := s.process(ctx, &due[i]); err != nil && !errors.Is(err, ErrUnresolved) {
			logger.Error("scheduler: process round failed",
				zap.String("round_id", due[i].RoundID), zap.Error(err))
		}
	}
}

// TriggerResolve 人工触发结算（管理接口）。封盘时间未到则拒绝；
// 已在 resolving 的回合等价于一次重试。
func (s *Scheduler) TriggerResolve(ctx context.Context, roundID string) (*settle.Result, error) {
	round, err := s.rounds.Get(ctx, roundID)
	if err != nil {
		return nil, err
	}
	switch round.Status {
	case state.StatusBetting:
		if s.now().UnixMilli() < round.BetCloseAt {
			return nil, fmt.Errorf("%w: closes at %d", ErrNotDue, round.BetCloseAt)
		}
	case state.StatusResolving, state.StatusCompleted:
	default:
		return nil, fmt.Errorf("%w: round %s is %s", settle.ErrRoundNotReady, roundID, round.Status)
	}
	if err := s.process(ctx, round); err != nil {
		return nil, err
	}
	round, err = s.rounds.Get(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.Status == state.StatusVoid {
		return nil, ErrVoided
	}
	return s.settler.Settle(ctx, roundID)
}

// process 推进单个回合：封盘、开奖、结算。每步幂等，可从任意断点续跑
func (s *Scheduler) process(ctx context.Context, round *settle.Round) error {
	roundID := round.RoundID
	started := s.now()

	if round.Status == state.StatusBetting {
		if s.now().UnixMilli() < round.BetCloseAt {
			return nil
		}
		claimed, err := s.rounds.ClaimTransition(ctx, roundID, state.StatusBetting, state.StatusResolving)
		if err != nil {
			return fmt.Errorf("close round %s: %w", roundID, err)
		}
		if !claimed {
			// 另一个实例抢到了封盘权
			return nil
		}
		round.Status = state.StatusResolving
		fmt.Printf("[Scheduler] 封盘: round_id=%s, game=%s\n", roundID, round.GameType)
	}
	if round.Status != state.StatusResolving {
		return nil
	}

	if round.Outcome == nil {
		oc, err := s.source.Generate(ctx, round)
		if errors.Is(err, ErrUnresolved) {
			logger.Debug("scheduler: outcome pending", zap.String("round_id", roundID))
			return err
		}
		if err != nil {
			// 开奖失败不可恢复：作废并退还全部本金
			logger.Error("scheduler: outcome generation failed, voiding round",
				zap.String("round_id", roundID), zap.Error(err))
			if verr := s.settler.VoidRound(ctx, roundID); verr != nil {
				return fmt.Errorf("void round %s: %w", roundID, verr)
			}
			metrics.RecordSettle(round.GameType, "void", started)
			return nil
		}
		saved, err := s.rounds.SaveOutcome(ctx, roundID, oc)
		if err != nil {
			return fmt.Errorf("save outcome %s: %w", roundID, err)
		}
		if !saved {
			// 另一条路径已先持久化结果，结算以落库的为准
			fresh, err := s.rounds.Get(ctx, roundID)
			if err != nil {
				return err
			}
			if fresh.Outcome == nil {
				return fmt.Errorf("save outcome %s: zero rows affected and no stored outcome", roundID)
			}
			logger.Warn("scheduler: outcome already persisted, using stored",
				zap.String("round_id", roundID))
			oc = fresh.Outcome
		}
		round.Outcome = oc
	}

	if _, err := s.settler.Settle(ctx, roundID); err != nil {
		metrics.RecordSettle(round.GameType, "fail", started)
		return fmt.Errorf("settle round %s: %w", roundID, err)
	}
	metrics.RecordSettle(round.GameType, "completed", started)
	return nil
}
