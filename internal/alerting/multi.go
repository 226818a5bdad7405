package alerting

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// route is a channel with the lowest severity it accepts.
type route struct {
	alerter Alerter
	min     Severity
}

// MultiAlerter fans alerts out to several channels, each filtered by its
// own minimum severity.
type MultiAlerter struct {
	mu     sync.RWMutex
	routes []route
	logger *zap.Logger
}

// NewMultiAlerter creates a fan-out over alerters, all accepting every
// severity.
func NewMultiAlerter(logger *zap.Logger, alerters ...Alerter) *MultiAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MultiAlerter{logger: logger}
	for _, a := range alerters {
		m.routes = append(m.routes, route{alerter: a, min: SeverityInfo})
	}
	return m
}

// Name returns the name of the alerter.
func (m *MultiAlerter) Name() string {
	return "multi"
}

// AddAlerter adds a channel that receives every severity.
func (m *MultiAlerter) AddAlerter(alerter Alerter) {
	m.Route(alerter, SeverityInfo)
}

// Route adds a channel that only receives alerts at or above min.
func (m *MultiAlerter) Route(alerter Alerter, min Severity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, route{alerter: alerter, min: min})
}

// Len returns the number of channels.
func (m *MultiAlerter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.routes)
}

// Alert delivers to every channel accepting severity, concurrently, and
// joins their errors. A failing channel does not block the others.
func (m *MultiAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	m.mu.RLock()
	var targets []Alerter
	for _, r := range m.routes {
		if severity >= r.min {
			targets = append(targets, r.alerter)
		}
	}
	m.mu.RUnlock()

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, a := range targets {
		i, a := i, a
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Alert(ctx, severity, message, fields...); err != nil {
				m.logger.Error("alerter failed",
					zap.String("alerter", a.Name()),
					zap.String("severity", severity.String()),
					zap.Error(err),
				)
				errs[i] = err
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
