package api

import (
	"database/sql"
	"errors"
	"strings"

	beego "github.com/beego/beego/v2/server/web"
	mysqlerr "github.com/go-sql-driver/mysql"

	helper "casino-server/internal/common/helper"
	"casino-server/internal/common/response"
	"casino-server/internal/service"
)

var newBetService = service.NewBetService

type BetController struct{ beego.Controller }

// Bet 投注接口：POST /api/bet
// 平台身份由认证中间件注入；幂等键客户端生成，同一次下注的所有重试必须复用同一个 key。
// 服务端幂等三层：Redis 进行中锁（并发重复返回 202）、idempotency_keys 唯一键、结果缓存。
func (c *BetController) Bet() {
	// 入参严格校验，service 层不再重复校验格式
	bp, ok, msg := helper.ParseAndValidateBet(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, helper.GetTraceID(c.Ctx))
		return
	}

	svc := newBetService()
	traceID := helper.GetTraceID(c.Ctx)

	// 从 context 提取平台信息（由认证中间件注入）
	platformID := int8(0)
	platformUserID := ""
	platformUserName := ""
	if v := c.Ctx.Input.GetData("platform_id"); v != nil {
		if pid, ok := v.(int8); ok {
			platformID = pid
		}
	}
	if v := c.Ctx.Input.GetData("platform_user_id"); v != nil {
		if puid, ok := v.(string); ok {
			platformUserID = puid
		}
	}
	if v := c.Ctx.Input.GetData("username"); v != nil {
		if pname, ok := v.(string); ok {
			platformUserName = pname
		}
	}
	if platformUserID == "" {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	out, err := svc.PlaceBet(c.Ctx.Request.Context(), service.BetInput{
		RoundID:          bp.RoundID,
		PlatformID:       platformID,
		PlatformUserID:   platformUserID,
		PlatformUserName: platformUserName,
		Stake:            bp.Stake,
		Selection:        bp.Selection,
		IdempotencyKey:   bp.IdempotencyKey,
		TraceID:          traceID,
	})
	if err != nil {
		var me *mysqlerr.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			response.Conflict(&c.Controller, response.CodeDuplicateKey, traceID)
			return
		}
		if errors.Is(err, service.ErrDuplicateInFlight) {
			response.Accepted(&c.Controller, "重复请求进行中，请稍后重试", traceID)
			return
		}
		if errors.Is(err, sql.ErrNoRows) {
			response.NotFound(&c.Controller, "游戏回合不存在", traceID)
			return
		}
		if errors.Is(err, service.ErrRoundNotBetting) {
			response.Conflict(&c.Controller, response.CodeInvalidState, traceID)
			return
		}
		if errors.Is(err, service.ErrBetWindowNotStart) {
			response.Conflict(&c.Controller, response.CodeBetWindowNotStart, traceID)
			return
		}
		// 晚注一律拒单，即使调度器尚未封盘
		if errors.Is(err, service.ErrLateBet) {
			response.Conflict(&c.Controller, response.CodeBetWindowClosed, traceID)
			return
		}
		if errors.Is(err, service.ErrInvalidSelection) {
			response.ErrorWithMessage(&c.Controller, 400, response.CodeInvalidSelection, err.Error(), traceID)
			return
		}
		if errors.Is(err, service.ErrConflictingSelection) {
			response.Conflict(&c.Controller, response.CodeConflictingBet, traceID)
			return
		}
		if errors.Is(err, service.ErrInsufficientBalance) {
			response.ErrorWithMessage(&c.Controller, 400, response.CodeInsufficientBalance, "余额不足", traceID)
			return
		}
		// 投注金额验证失败
		errMsg := err.Error()
		if strings.Contains(errMsg, "invalid stake") ||
			strings.Contains(errMsg, "stake must be positive") ||
			strings.Contains(errMsg, "below minimum limit") ||
			strings.Contains(errMsg, "exceeds maximum limit") {
			response.BadRequest(&c.Controller, errMsg, traceID)
			return
		}
		if strings.Contains(errMsg, "customer disabled") {
			response.BadRequest(&c.Controller, "用户状态异常", traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, out, traceID)
}
