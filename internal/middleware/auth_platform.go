package middleware

import (
	"strconv"
	"strings"
	"time"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"

	"casino-server/common/logger"
	"casino-server/internal/common/helper"
	"casino-server/internal/common/response"
	"casino-server/internal/config"
)

// PlatformAuthFilter 平台用户认证过滤器。
// 演示模式下直接信任 Header（X-Platform-Id / X-Platform-User-Id），
// 生产接入需替换为平台签名校验，这里只保留身份注入的骨架。
func PlatformAuthFilter(ctx *beegocontext.Context) {
	cfg := config.Get()
	traceID := helper.GetTraceID(ctx)

	returnAuthError := func(message string) {
		ctx.Output.SetStatus(401)
		ctx.Output.JSON(response.APIResponse{
			Code:      response.CodeUnauthorized,
			Message:   message,
			Data:      nil,
			TraceID:   traceID,
			Timestamp: time.Now().UnixMilli(),
		}, false, false)
	}

	if cfg == nil || !cfg.Auth.DemoMode {
		logger.Warn("platform auth rejected: demo_mode disabled and no signature auth configured",
			zap.String("trace_id", traceID))
		returnAuthError("平台认证未配置")
		return
	}

	pidStr := strings.TrimSpace(ctx.Input.Header("X-Platform-Id"))
	userID := strings.TrimSpace(ctx.Input.Header("X-Platform-User-Id"))
	if pidStr == "" || userID == "" {
		returnAuthError("缺少平台身份头：X-Platform-Id / X-Platform-User-Id")
		return
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 || pid >= 128 {
		returnAuthError("无效的平台ID")
		return
	}

	username := strings.TrimSpace(ctx.Input.Header("X-Platform-User-Name"))
	if username == "" {
		username = userID
	}

	ctx.Input.SetData("platform_id", int8(pid))
	ctx.Input.SetData("platform_user_id", userID)
	ctx.Input.SetData("username", username)

	logger.Debug("platform authentication successful",
		zap.String("trace_id", traceID),
		zap.Int("platform_id", pid),
		zap.String("platform_user_id", userID))
}
