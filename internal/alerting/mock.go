package alerting

import (
	"context"
	"strings"
	"sync"
)

// MockAlerter captures alerts for tests.
type MockAlerter struct {
	mu     sync.Mutex
	alerts []MockAlert
	err    error
}

// MockAlert is a captured alert.
type MockAlert struct {
	Severity Severity
	Message  string
	Fields   []any
}

// Event returns the event tag added by Send, if any.
func (a MockAlert) Event() Event {
	for i := 0; i+1 < len(a.Fields); i += 2 {
		if k, ok := a.Fields[i].(string); ok && k == "event" {
			if v, ok := a.Fields[i+1].(string); ok {
				return Event(v)
			}
		}
	}
	return ""
}

// NewMockAlerter creates a new mock alerter.
func NewMockAlerter() *MockAlerter {
	return &MockAlerter{}
}

// Name returns the name of the alerter.
func (m *MockAlerter) Name() string {
	return "mock"
}

// FailWith makes subsequent alerts return err after capturing them.
func (m *MockAlerter) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Alert captures the alert.
func (m *MockAlerter) Alert(_ context.Context, severity Severity, message string, fields ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, MockAlert{
		Severity: severity,
		Message:  message,
		Fields:   fields,
	})
	return m.err
}

// Alerts returns all captured alerts.
func (m *MockAlerter) Alerts() []MockAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockAlert, len(m.alerts))
	copy(result, m.alerts)
	return result
}

// Count returns the number of captured alerts.
func (m *MockAlerter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

// HasEvent reports whether an alert tagged with event was sent.
func (m *MockAlerter) HasEvent(event Event) bool {
	for _, a := range m.Alerts() {
		if a.Event() == event {
			return true
		}
	}
	return false
}

// HasAlertContaining reports whether an alert message contains substr.
func (m *MockAlerter) HasAlertContaining(substr string) bool {
	for _, a := range m.Alerts() {
		if strings.Contains(a.Message, substr) {
			return true
		}
	}
	return false
}
