package middleware

import (
	"github.com/beego/beego/v2/server/web/context"
	"github.com/google/uuid"

	"casino-server/common/logger"
)

// RequestIDFilter 为每个请求注入链路ID：沿用调用方带来的 X-Request-Id
// 或 X-Trace-ID，都没有则生成。写入 beego data 与请求 context 两处，
// 控制器与服务层各取所需，响应头原样回显
func RequestIDFilter(ctx *context.Context) {
	id := ctx.Input.Header("X-Request-Id")
	if id == "" {
		id = ctx.Input.Header("X-Trace-ID")
	}
	if id == "" {
		id = uuid.NewString()
	}
	ctx.Input.SetData("trace_id", id)
	ctx.Request = ctx.Request.WithContext(logger.WithTraceID(ctx.Request.Context(), id))
	ctx.Output.Header("X-Request-Id", id)
}
