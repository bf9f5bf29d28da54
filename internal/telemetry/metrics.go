package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	MovesApplied      = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_moves_applied_total", Help: "Optimistic status transitions applied to the board"})
	MovesBlocked      = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_moves_blocked_total", Help: "Drag gestures refused by an active retry lock"})
	MovesRolledBack   = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_moves_rolled_back_total", Help: "Optimistic transitions rolled back after persistence failure"})
	PushApplied       = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_push_events_applied_total", Help: "Push events merged into a cache"})
	PushDropped       = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_push_events_dropped_total", Help: "Push events dropped (absent, stale, or terminal record)"})
	ListFetches       = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_list_fetches_total", Help: "Failed-order page fetches issued"})
	ListStaleDiscards = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_list_stale_discards_total", Help: "Fetch responses discarded by the generation guard"})
	RetryTriggers     = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_retry_triggers_total", Help: "Manual retry requests forwarded upstream"})
	RetryRateLimited  = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_retry_rate_limited_total", Help: "Manual retry requests rejected by the rate limiter"})
	LockedOrdersGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "board_locked_orders", Help: "Orders currently under a retry cool-down"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			MovesApplied,
			MovesBlocked,
			MovesRolledBack,
			PushApplied,
			PushDropped,
			ListFetches,
			ListStaleDiscards,
			RetryTriggers,
			RetryRateLimited,
			LockedOrdersGauge,
		)
	})
	return promhttp.Handler()
}
