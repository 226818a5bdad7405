// Package metrics provides Prometheus metrics for the execution bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "execbot"

var (
	// OrdersSubmitted counts orders accepted by the gateway.
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_submitted_total",
		Help:      "Orders submitted to the exchange.",
	}, []string{"symbol", "side", "type"})

	// OrdersCanceled counts cancel requests by outcome.
	OrdersCanceled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_canceled_total",
		Help:      "Cancel requests by outcome.",
	}, []string{"symbol", "outcome"})

	// ValidationFailures counts intents rejected before submission.
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "validation_failures_total",
		Help:      "Order intents rejected by validation.",
	}, []string{"field"})

	// GatewayRequests counts gateway calls by operation and outcome.
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_requests_total",
		Help:      "Gateway calls by operation and outcome.",
	}, []string{"op", "outcome"})

	// GatewayLatency measures gateway call latency.
	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_latency_seconds",
		Help:      "Gateway call latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"op"})

	// StrategyRuns counts strategy runs by outcome.
	StrategyRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "strategy_runs_total",
		Help:      "Strategy runs by outcome.",
	}, []string{"strategy", "outcome"})

	// StrategiesActive tracks running supervisors.
	StrategiesActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "strategies_active",
		Help:      "Strategy supervisors currently running.",
	}, []string{"strategy"})

	// GridActiveOrders tracks the size of each grid's active set.
	GridActiveOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "grid_active_orders",
		Help:      "Orders currently tracked by grid supervisors.",
	}, []string{"symbol"})

	// GridReplacements counts replacement orders placed after fills.
	GridReplacements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grid_replacements_total",
		Help:      "Grid replacement orders by side.",
	}, []string{"symbol", "side"})

	// TWAPChunks counts executed TWAP slices.
	TWAPChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "twap_chunks_total",
		Help:      "TWAP chunks executed.",
	}, []string{"symbol"})

	// OCOResolutions counts OCO outcomes.
	OCOResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oco_resolutions_total",
		Help:      "OCO runs by resolution.",
	}, []string{"resolution"})

	// JournalErrors counts failed journal appends.
	JournalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "journal_errors_total",
		Help:      "Event journal append failures.",
	})

	// BuildInfo exposes version labels.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version", "commit", "build_time"})
)

// SetBuildInfo records build labels.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
