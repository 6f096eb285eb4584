package logger

import (
	"context"

	"go.uber.org/zap"
)

type traceIDKey struct{}

// WithTraceID 把链路ID挂到请求上下文，跨服务层传递
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// GetTraceID 取出链路ID，取不到返回空串
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}

// TraceField 以 zap 字段形式输出上下文里的链路ID
func TraceField(ctx context.Context) zap.Field {
	return zap.String("trace_id", GetTraceID(ctx))
}
