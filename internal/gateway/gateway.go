// Package gateway defines the exchange capability used by the execution core.
package gateway

import (
	"context"
	"time"

	"github.com/tathienbao/futures-exec/internal/metrics"
	"github.com/tathienbao/futures-exec/internal/types"
)

// Gateway is the minimal exchange surface the execution core needs.
// Implementations must be safe for concurrent use: strategy supervisors
// poll from their own goroutines.
type Gateway interface {
	// GetInstrumentRules returns the current rules for symbol.
	// Unknown symbols return an error wrapping types.ErrUnknownInstrument.
	GetInstrumentRules(ctx context.Context, symbol string) (types.InstrumentRules, error)

	// SubmitOrder places a validated order.
	SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.PlacedOrder, error)

	// GetOrderStatus returns the exchange's current view of an order.
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*types.PlacedOrder, error)

	// CancelOrder cancels a resting order.
	CancelOrder(ctx context.Context, symbol, orderID string) (*types.PlacedOrder, error)

	// GetAccountBalances returns per-asset balances.
	GetAccountBalances(ctx context.Context) ([]types.Balance, error)
}

// Instrumented wraps a Gateway and records latency and outcome per call.
type Instrumented struct {
	next     Gateway
	recorder *metrics.Recorder
}

// WithMetrics returns gw wrapped with metrics recording.
func WithMetrics(gw Gateway, recorder *metrics.Recorder) *Instrumented {
	return &Instrumented{next: gw, recorder: recorder}
}

func (g *Instrumented) observe(op string, start time.Time, err error) {
	g.recorder.RecordGatewayCall(op, time.Since(start), err)
}

// GetInstrumentRules implements Gateway.
func (g *Instrumented) GetInstrumentRules(ctx context.Context, symbol string) (types.InstrumentRules, error) {
	start := time.Now()
	rules, err := g.next.GetInstrumentRules(ctx, symbol)
	g.observe("get_rules", start, err)
	return rules, err
}

// SubmitOrder implements Gateway.
func (g *Instrumented) SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.PlacedOrder, error) {
	start := time.Now()
	order, err := g.next.SubmitOrder(ctx, req)
	g.observe("submit_order", start, err)
	if err == nil {
		g.recorder.RecordOrderSubmitted(req.Symbol, req.Side.String(), string(req.Type))
	}
	return order, err
}

// GetOrderStatus implements Gateway.
func (g *Instrumented) GetOrderStatus(ctx context.Context, symbol, orderID string) (*types.PlacedOrder, error) {
	start := time.Now()
	order, err := g.next.GetOrderStatus(ctx, symbol, orderID)
	g.observe("get_order", start, err)
	return order, err
}

// CancelOrder implements Gateway.
func (g *Instrumented) CancelOrder(ctx context.Context, symbol, orderID string) (*types.PlacedOrder, error) {
	start := time.Now()
	order, err := g.next.CancelOrder(ctx, symbol, orderID)
	g.observe("cancel_order", start, err)
	g.recorder.RecordCancel(symbol, err == nil)
	return order, err
}

// GetAccountBalances implements Gateway.
func (g *Instrumented) GetAccountBalances(ctx context.Context) ([]types.Balance, error) {
	start := time.Now()
	balances, err := g.next.GetAccountBalances(ctx)
	g.observe("get_balances", start, err)
	return balances, err
}

var _ Gateway = (*Instrumented)(nil)
