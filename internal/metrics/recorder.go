package metrics

import (
	"time"
)

// Recorder provides methods for recording metrics.
// A nil *Recorder is valid and records nothing.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordOrderSubmitted records an accepted order.
func (r *Recorder) RecordOrderSubmitted(symbol, side, orderType string) {
	if r == nil {
		return
	}
	OrdersSubmitted.WithLabelValues(symbol, side, orderType).Inc()
}

// RecordCancel records a cancel request outcome.
func (r *Recorder) RecordCancel(symbol string, ok bool) {
	if r == nil {
		return
	}
	OrdersCanceled.WithLabelValues(symbol, outcome(ok)).Inc()
}

// RecordValidationFailure records a rejected intent.
func (r *Recorder) RecordValidationFailure(field string) {
	if r == nil {
		return
	}
	ValidationFailures.WithLabelValues(field).Inc()
}

// RecordGatewayCall records a gateway call and its latency.
func (r *Recorder) RecordGatewayCall(op string, d time.Duration, err error) {
	if r == nil {
		return
	}
	GatewayRequests.WithLabelValues(op, outcome(err == nil)).Inc()
	GatewayLatency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordStrategyStarted marks a strategy supervisor as running.
func (r *Recorder) RecordStrategyStarted(strategy string) {
	if r == nil {
		return
	}
	StrategiesActive.WithLabelValues(strategy).Inc()
}

// RecordStrategyFinished records how a strategy run ended.
func (r *Recorder) RecordStrategyFinished(strategy, result string) {
	if r == nil {
		return
	}
	StrategiesActive.WithLabelValues(strategy).Dec()
	StrategyRuns.WithLabelValues(strategy, result).Inc()
}

// RecordStrategyOutcome records a run outcome without touching the gauge.
func (r *Recorder) RecordStrategyOutcome(strategy, result string) {
	if r == nil {
		return
	}
	StrategyRuns.WithLabelValues(strategy, result).Inc()
}

// RecordGridActive records the size of a grid's active set.
func (r *Recorder) RecordGridActive(symbol string, n int) {
	if r == nil {
		return
	}
	GridActiveOrders.WithLabelValues(symbol).Set(float64(n))
}

// RecordGridReplacement records a replacement order.
func (r *Recorder) RecordGridReplacement(symbol, side string) {
	if r == nil {
		return
	}
	GridReplacements.WithLabelValues(symbol, side).Inc()
}

// RecordTWAPChunk records an executed TWAP slice.
func (r *Recorder) RecordTWAPChunk(symbol string) {
	if r == nil {
		return
	}
	TWAPChunks.WithLabelValues(symbol).Inc()
}

// RecordOCOResolution records how an OCO run resolved.
func (r *Recorder) RecordOCOResolution(resolution string) {
	if r == nil {
		return
	}
	OCOResolutions.WithLabelValues(resolution).Inc()
}

// RecordJournalError records a failed journal append.
func (r *Recorder) RecordJournalError() {
	if r == nil {
		return
	}
	JournalErrors.Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Timer is a helper for measuring latency.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
