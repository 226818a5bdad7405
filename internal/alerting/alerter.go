// Package alerting provides notification channels for strategy events.
package alerting

import (
	"context"
	"fmt"
	"strings"
)

// Severity represents the alert severity level.
type Severity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is for warning messages.
	SeverityWarning
	// SeverityHigh is for high priority alerts.
	SeverityHigh
	// SeverityCritical is for critical alerts requiring immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	for _, sev := range []Severity{SeverityInfo, SeverityWarning, SeverityHigh, SeverityCritical} {
		if strings.EqualFold(s, sev.String()) {
			return sev, nil
		}
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", s)
}

// Emoji returns an emoji for the severity level.
func (s Severity) Emoji() string {
	switch s {
	case SeverityInfo:
		return "ℹ️"
	case SeverityWarning:
		return "⚠️"
	case SeverityHigh:
		return "🔴"
	case SeverityCritical:
		return "🚨"
	default:
		return "❓"
	}
}

// Alerter defines the interface for sending alerts.
type Alerter interface {
	// Alert sends an alert with the given severity and message.
	Alert(ctx context.Context, severity Severity, message string, fields ...any) error
	// Name returns the name of the alerter.
	Name() string
}

// FormatFields renders key/value pairs one per line. A trailing key
// without a value is dropped.
func FormatFields(fields ...any) string {
	var b strings.Builder
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "• %s: %v", key, fields[i+1])
	}
	return b.String()
}

// Event is a pre-defined alert event type.
type Event string

const (
	EventOrderRejected     Event = "order_rejected"
	EventOCOTakeProfit     Event = "oco_take_profit"
	EventOCOStopLoss       Event = "oco_stop_loss"
	EventOCOMonitorFailed  Event = "oco_monitor_failed"
	EventTWAPCompleted     Event = "twap_completed"
	EventTWAPStopped       Event = "twap_stopped"
	EventGridStarted       Event = "grid_started"
	EventGridFill          Event = "grid_fill"
	EventGridStopped       Event = "grid_stopped"
	EventStrategyAborted   Event = "strategy_aborted"
	EventCancelFailed      Event = "cancel_failed"
	EventCredentialFailure Event = "credential_failure"
)

// EventSeverity returns the default severity for an event.
func EventSeverity(event Event) Severity {
	switch event {
	case EventStrategyAborted, EventCredentialFailure:
		return SeverityCritical
	case EventOCOMonitorFailed, EventCancelFailed:
		return SeverityHigh
	case EventOrderRejected, EventOCOStopLoss, EventTWAPStopped:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Send delivers an event through a, tagging it with the event name.
// A nil alerter is a no-op.
func Send(ctx context.Context, a Alerter, event Event, message string, fields ...any) error {
	if a == nil {
		return nil
	}
	fields = append([]any{"event", string(event)}, fields...)
	return a.Alert(ctx, EventSeverity(event), message, fields...)
}
