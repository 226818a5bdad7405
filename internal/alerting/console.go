package alerting

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleAlerter writes alerts to the structured log.
type ConsoleAlerter struct {
	logger *zap.SugaredLogger
}

// NewConsoleAlerter creates a new console alerter.
func NewConsoleAlerter(logger *zap.Logger) *ConsoleAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleAlerter{logger: logger.Named("alert").Sugar()}
}

// Name returns the name of the alerter.
func (c *ConsoleAlerter) Name() string {
	return "console"
}

// Alert logs an alert at a level matching its severity.
func (c *ConsoleAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	kv := make([]any, 0, len(fields)+2)
	kv = append(kv, "severity", severity.String())
	kv = append(kv, fields...)

	switch severity {
	case SeverityCritical:
		c.logger.Errorw("[ALERT] "+message, kv...)
	case SeverityHigh, SeverityWarning:
		c.logger.Warnw("[ALERT] "+message, kv...)
	default:
		c.logger.Infow("[ALERT] "+message, kv...)
	}

	return nil
}
