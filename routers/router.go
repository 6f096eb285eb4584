package routers

import (
	beego "github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"casino-server/internal/config"
	"casino-server/internal/controller/api"
	"casino-server/internal/metrics"
	"casino-server/internal/middleware"
)

// Setup 注册HTTP路由与全局过滤器（main 在配置加载后调用）
func Setup() {
	cfg := config.Get()

	// 全局过滤器（按执行顺序）
	// 1. Panic Recovery（最先执行，捕获所有 panic）
	beego.InsertFilter("/*", beego.BeforeRouter, middleware.RecoveryFilter)

	// 2. 请求ID注入
	beego.InsertFilter("/*", beego.BeforeRouter, middleware.RequestIDFilter)

	// 3. CORS 处理（如果启用）
	if cfg != nil && cfg.CORS.Enabled {
		beego.InsertFilter("/*", beego.BeforeExec, middleware.CORSFilter)
	}

	// 4. HTTP 指标收集
	beego.InsertFilter("/*", beego.BeforeExec, metrics.HTTPMetricsFilter)
	beego.InsertFilter("/*", beego.FinishRouter, metrics.HTTPMetricsAfter)

	// 健康检查（无需认证）
	beego.Router("/healthz", &api.HealthController{}, "get:Healthz")
	beego.Router("/readyz", &api.HealthController{}, "get:Readyz")

	// Prometheus 指标端点
	if cfg != nil && cfg.Observability.EnableProm {
		beego.Handler("/metrics", promhttp.Handler())
	}

	// ========== 业务 API（需要认证） ==========

	// 投注接口：平台认证 + 限流
	beego.InsertFilter("/api/bet", beego.BeforeExec, middleware.PlatformAuthFilter)
	if cfg != nil && cfg.RateLimit.Enabled {
		beego.InsertFilter("/api/bet", beego.BeforeExec, middleware.RateLimitFilter)
	}
	beego.Router("/api/bet", &api.BetController{}, "post:Bet")

	// 注单历史：平台认证（用户只能查询自己的数据）
	beego.InsertFilter("/api/bets", beego.BeforeExec, middleware.PlatformAuthFilter)
	beego.Router("/api/bets", &api.RoundController{}, "get:ListMyBets")

	// 回合查询：公开只读接口
	beego.Router("/api/round/:round_id", &api.RoundController{}, "get:GetRound")
	beego.Router("/api/round/:round_id/result", &api.RoundController{}, "get:GetResult")

	// ========== 管理 API（需要管理员认证） ==========

	beego.InsertFilter("/api/admin/*", beego.BeforeExec, middleware.AdminAuthFilter)
	beego.Router("/api/admin/round", &api.AdminController{}, "post:CreateRound")
	beego.Router("/api/admin/round/:round_id/resolve", &api.AdminController{}, "post:TriggerResolve")
	beego.Router("/api/admin/round/:round_id/void", &api.AdminController{}, "post:VoidRound")
	beego.Router("/api/admin/override", &api.AdminController{}, "post:SetOverride")
}
