// Package journal records an append-only log of execution events.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Kind identifies an event type.
type Kind string

const (
	KindValidationFailed  Kind = "validation_failed"
	KindOrderSubmitted    Kind = "order_submitted"
	KindOrderRejected     Kind = "order_rejected"
	KindOrderStatus       Kind = "order_status"
	KindOrderCanceled     Kind = "order_canceled"
	KindCancelFailed      Kind = "cancel_failed"
	KindStrategyStarted   Kind = "strategy_started"
	KindStrategyCompleted Kind = "strategy_completed"
	KindStrategyAborted   Kind = "strategy_aborted"
	KindGridReplaced      Kind = "grid_replaced"
	KindOCOResolved       Kind = "oco_resolved"
)

// Event is a single journal entry. ID is assigned by the backend.
type Event struct {
	ID        int64           `json:"id"`
	Time      time.Time       `json:"time"`
	Kind      Kind            `json:"kind"`
	RunID     string          `json:"run_id,omitempty"`
	Strategy  string          `json:"strategy,omitempty"`
	Symbol    string          `json:"symbol,omitempty"`
	OrderID   string          `json:"order_id,omitempty"`
	Side      string          `json:"side,omitempty"`
	OrderType string          `json:"order_type,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Status    string          `json:"status,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Journal stores events. Implementations must be safe for concurrent use.
type Journal interface {
	Append(ctx context.Context, e Event) error
	// Recent returns up to n events, newest first.
	Recent(ctx context.Context, n int) ([]Event, error)
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Append(context.Context, Event) error { return nil }

func (Nop) Recent(context.Context, int) ([]Event, error) { return nil, nil }

func (Nop) Close() error { return nil }

// Config selects and configures a backend.
type Config struct {
	Type     string // none | memory | sqlite | postgres | redis
	Path     string // sqlite file
	DSN      string // postgres
	RedisURL string
	Stream   string // redis stream key
	Capacity int    // memory ring size, redis stream max length
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Type {
	case "none":
		return Nop{}, nil
	case "", "memory":
		return NewMemory(cfg.Capacity), nil
	case "sqlite":
		return NewSQLite(ctx, cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DSN, logger)
	case "redis":
		return NewRedis(ctx, cfg.RedisURL, cfg.Stream, int64(cfg.Capacity))
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
}

func stamp(e Event) Event {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	return e
}
