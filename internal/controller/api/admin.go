package api

import (
	"database/sql"
	"errors"
	"strings"

	beego "github.com/beego/beego/v2/server/web"

	helper "casino-server/internal/common/helper"
	"casino-server/internal/common/response"
	"casino-server/internal/sched"
	"casino-server/internal/service"
	"casino-server/internal/settle"
)

var newOverrideService = service.NewOverrideService

// 管理接口依赖的调度器与结算器，进程启动时注入
var (
	roundScheduler *sched.Scheduler
	roundSettler   sched.Settler
)

// Wire 注入调度器与结算器（main 启动时调用一次）
func Wire(s *sched.Scheduler, e sched.Settler) {
	roundScheduler = s
	roundSettler = e
}

// AdminController 管理接口：开局、触发结算、人工干预、作废
// 所有路由挂在 /api/admin/* 下，由 AdminAuthFilter 保护
type AdminController struct{ beego.Controller }

// CreateRound 开新局：POST /api/admin/round
func (c *AdminController) CreateRound() {
	traceID := helper.GetTraceID(c.Ctx)
	rp, ok, msg := helper.ParseAndValidateCreateRound(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}

	snap, err := newRoundService().CreateRound(c.Ctx.Request.Context(), rp.GameType, traceID)
	if err != nil {
		if errors.Is(err, service.ErrUnknownGameType) {
			response.BadRequest(&c.Controller, err.Error(), traceID)
			return
		}
		if errors.Is(err, service.ErrOpenRoundExists) {
			response.Conflict(&c.Controller, response.CodeOpenRoundExists, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}
	response.Success(&c.Controller, snap, traceID)
}

// TriggerResolve 人工触发结算：POST /api/admin/round/:round_id/resolve
// 封盘时间未到一律拒绝；对已在 resolving 的回合等价于一次重试
func (c *AdminController) TriggerResolve() {
	traceID := helper.GetTraceID(c.Ctx)
	roundID := strings.TrimSpace(c.Ctx.Input.Param(":round_id"))
	if roundID == "" {
		response.BadRequest(&c.Controller, "round_id is required", traceID)
		return
	}
	if roundScheduler == nil {
		response.InternalError(&c.Controller, traceID)
		return
	}

	res, err := roundScheduler.TriggerResolve(c.Ctx.Request.Context(), roundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			response.NotFound(&c.Controller, "游戏回合不存在", traceID)
			return
		}
		if errors.Is(err, sched.ErrNotDue) {
			response.Conflict(&c.Controller, response.CodeRoundNotDue, traceID)
			return
		}
		if errors.Is(err, sched.ErrVoided) {
			response.Conflict(&c.Controller, response.CodeRoundVoided, traceID)
			return
		}
		if errors.Is(err, sched.ErrUnresolved) {
			response.Accepted(&c.Controller, "外部开奖结果未就绪，请稍后重试", traceID)
			return
		}
		if errors.Is(err, settle.ErrRoundNotReady) {
			response.Conflict(&c.Controller, response.CodeInvalidState, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}
	response.Success(&c.Controller, res, traceID)
}

// SetOverride 预设开奖结果：POST /api/admin/override
// 仅当配置开关打开时可用；干预总是留审计
func (c *AdminController) SetOverride() {
	traceID := helper.GetTraceID(c.Ctx)
	op, ok, msg := helper.ParseAndValidateOverride(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}

	err := newOverrideService().SetOutcome(c.Ctx.Request.Context(), service.OverrideInput{
		RoundID:     op.RoundID,
		Operator:    op.Operator,
		WinningSide: op.WinningSide,
		Number:      op.Number,
		Dice:        op.Dice,
		TraceID:     traceID,
	})
	if err != nil {
		if errors.Is(err, service.ErrOverrideDisabled) {
			response.Error(&c.Controller, 403, response.CodeOverrideDisabled, traceID)
			return
		}
		if errors.Is(err, sql.ErrNoRows) {
			response.NotFound(&c.Controller, "游戏回合不存在", traceID)
			return
		}
		if errors.Is(err, service.ErrOverrideTooLate) {
			response.Conflict(&c.Controller, response.CodeInvalidState, traceID)
			return
		}
		// 参数类错误直接回显
		errMsg := err.Error()
		if strings.Contains(errMsg, "invalid") ||
			strings.Contains(errMsg, "required") ||
			strings.Contains(errMsg, "cannot be overridden") ||
			strings.Contains(errMsg, "must be") ||
			strings.Contains(errMsg, "expects") {
			response.BadRequest(&c.Controller, errMsg, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}
	response.Success(&c.Controller, nil, traceID)
}

// VoidRound 作废回合并退还本金：POST /api/admin/round/:round_id/void
func (c *AdminController) VoidRound() {
	traceID := helper.GetTraceID(c.Ctx)
	roundID := strings.TrimSpace(c.Ctx.Input.Param(":round_id"))
	if roundID == "" {
		response.BadRequest(&c.Controller, "round_id is required", traceID)
		return
	}
	if roundSettler == nil {
		response.InternalError(&c.Controller, traceID)
		return
	}

	if err := roundSettler.VoidRound(c.Ctx.Request.Context(), roundID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			response.NotFound(&c.Controller, "游戏回合不存在", traceID)
			return
		}
		if errors.Is(err, settle.ErrRoundNotReady) {
			response.Conflict(&c.Controller, response.CodeInvalidState, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}
	response.Success(&c.Controller, nil, traceID)
}
