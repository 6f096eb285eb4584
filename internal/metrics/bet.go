package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	betTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bet_requests_total",
			Help: "Total bet requests by result and selection",
		},
		[]string{"result", "selection"},
	)

	betDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bet_request_duration_ms",
			Help:    "Bet request duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result", "selection"},
	)
)

// RecordBet records business metrics for a bet call.
// result should be "success" or "fail"; selection is normalized to lower-case.
func RecordBet(result, selection string, started time.Time) {
	res := result
	if res != "success" {
		res = "fail"
	}
	sel := strings.ToLower(strings.TrimSpace(selection))
	if sel == "" {
		sel = "unknown"
	}
	betTotal.WithLabelValues(res, sel).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	betDuration.WithLabelValues(res, sel).Observe(durMs)
}
