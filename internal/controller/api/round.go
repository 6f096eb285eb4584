package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	beego "github.com/beego/beego/v2/server/web"
	goredis "github.com/redis/go-redis/v9"

	"casino-server/internal/cache"
	helper "casino-server/internal/common/helper"
	"casino-server/internal/common/response"
	infmysql "casino-server/internal/infra/mysql"
	infrds "casino-server/internal/infra/redis"
	"casino-server/internal/model"
	"casino-server/internal/service"
)

var newRoundService = service.NewRoundService

// RoundController 回合快照、结算结果与注单历史查询
type RoundController struct{ beego.Controller }

// GetRound 回合快照：GET /api/round/:round_id
// 未终局的回合不会返回开奖结果字段
func (c *RoundController) GetRound() {
	traceID := helper.GetTraceID(c.Ctx)
	roundID := strings.TrimSpace(c.Ctx.Input.Param(":round_id"))
	if roundID == "" {
		response.BadRequest(&c.Controller, "round_id is required", traceID)
		return
	}

	snap, err := newRoundService().GetSnapshot(c.Ctx.Request.Context(), roundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			response.NotFound(&c.Controller, "游戏回合不存在", traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}
	response.Success(&c.Controller, snap, traceID)
}

// GetResult 结算结果：GET /api/round/:round_id/result
// Redis 快路径，DB 回源（settlement_log 为结算的权威记录）
func (c *RoundController) GetResult() {
	traceID := helper.GetTraceID(c.Ctx)
	roundID := strings.TrimSpace(c.Ctx.Input.Param(":round_id"))
	if roundID == "" {
		response.BadRequest(&c.Controller, "round_id is required", traceID)
		return
	}

	ctx := c.Ctx.Request.Context()
	if res, err := cache.GetResult(ctx, roundID); err == nil {
		response.Success(&c.Controller, res, traceID)
		return
	} else if !errors.Is(err, cache.ErrCacheMiss) && !errors.Is(err, cache.ErrCacheDisabled) && !errors.Is(err, goredis.Nil) {
		response.InternalError(&c.Controller, traceID)
		return
	}

	log, err := model.GetSettlementLog(ctx, infmysql.DB(), roundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			response.NotFound(&c.Controller, "回合尚未结算", traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	var outcome, results any
	_ = json.Unmarshal([]byte(log.Outcome), &outcome)
	_ = json.Unmarshal([]byte(log.Results), &results)
	data := map[string]any{
		"round_id":     log.RoundID,
		"game_type":    log.GameType,
		"outcome":      outcome,
		"results":      results,
		"total_bets":   log.TotalBets,
		"total_payout": log.TotalPayout,
		"settled_at":   log.CreatedAt,
	}

	// 回填 Redis
	if r := infrds.Client(); r != nil {
		if b, e := json.Marshal(data); e == nil {
			_ = r.Set(ctx, infrds.RoundResultKey(roundID), b, 2*time.Minute).Err()
		}
	}
	response.Success(&c.Controller, data, traceID)
}

// ListMyBets 注单历史：GET /api/bets?round_id=&game_type=&limit=
// 只返回认证用户自己的注单
func (c *RoundController) ListMyBets() {
	traceID := helper.GetTraceID(c.Ctx)

	platformID := int8(0)
	platformUserID := ""
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
	if platformUserID == "" {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	roundID := strings.TrimSpace(c.Ctx.Input.Query("round_id"))
	gameType := strings.TrimSpace(c.Ctx.Input.Query("game_type"))
	limit := 50
	if ls := strings.TrimSpace(c.Ctx.Input.Query("limit")); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	recs, err := newRoundService().ListUserBets(c.Ctx.Request.Context(), platformID, platformUserID, roundID, gameType, limit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// 用户从未下过注
			response.Success(&c.Controller, []any{}, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}
	response.Success(&c.Controller, recs, traceID)
}
