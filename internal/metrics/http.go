package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/beego/beego/v2/server/web/context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpReqTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpReqDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "HTTP request duration in ms",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"path", "method"},
	)
)

// HTTPMetricsFilter 记录 HTTP 请求指标
func HTTPMetricsFilter(ctx *context.Context) {
	start := time.Now()
	// 让后续处理继续
	ctx.Input.SetData("_metrics_start", start)
}

// HTTPMetricsAfter 用于在响应完成后记录耗时与状态码
func HTTPMetricsAfter(ctx *context.Context) {
	v := ctx.Input.GetData("_metrics_start")
	start, _ := v.(time.Time)
	if !start.IsZero() {
		dur := time.Since(start).Milliseconds()
		path := routeLabel(ctx.Input.URL())
		method := ctx.Input.Method()
		status := ctx.ResponseWriter.Status
		httpReqDuration.WithLabelValues(path, method).Observe(float64(dur))
		httpReqTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	}
}

// routeLabel 把带回合ID的路径折叠成路由模板，控制 path 标签基数
func routeLabel(path string) string {
	switch path {
	case "/api/bet", "/api/bets", "/api/admin/round", "/api/admin/override",
		"/healthz", "/readyz", "/metrics":
		return path
	}
	if strings.HasPrefix(path, "/api/admin/round/") {
		if strings.HasSuffix(path, "/resolve") {
			return "/api/admin/round/:round_id/resolve"
		}
		if strings.HasSuffix(path, "/void") {
			return "/api/admin/round/:round_id/void"
		}
		return "other"
	}
	if strings.HasPrefix(path, "/api/round/") {
		if strings.HasSuffix(path, "/result") {
			return "/api/round/:round_id/result"
		}
		return "/api/round/:round_id"
	}
	return "other"
}
