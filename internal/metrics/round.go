package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outcomes_generated_total",
			Help: "Total outcomes generated by game and source",
		},
		[]string{"game", "source"},
	)

	settleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rounds_settled_total",
			Help: "Total rounds settled by game and result",
		},
		[]string{"game", "result"},
	)

	settleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "round_settle_duration_ms",
			Help:    "Round settlement duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"game", "result"},
	)
)

// RecordOutcome 记录开奖结果来源
// source: "fair" | "override" | "external"
func RecordOutcome(game, source string) {
	outcomeTotal.WithLabelValues(strings.ToLower(game), source).Inc()
}

// RecordSettle 记录一次结算的业务指标
// result: "completed" | "void" | "fail"
func RecordSettle(game, result string, started time.Time) {
	g := strings.ToLower(game)
	settleTotal.WithLabelValues(g, result).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	settleDuration.WithLabelValues(g, result).Observe(durMs)
}
