// Package strategy decomposes multi-order intents (OCO, TWAP, grid) into
// primitive orders and supervises them against exchange state.
package strategy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tathienbao/futures-exec/internal/alerting"
	"github.com/tathienbao/futures-exec/internal/execution"
	"github.com/tathienbao/futures-exec/internal/journal"
	"github.com/tathienbao/futures-exec/internal/types"
)

// Strategy names used in logs, metrics and the journal.
const (
	NameOCO  = "oco"
	NameTWAP = "twap"
	NameGrid = "grid"
)

// Run outcomes reported to metrics.
const (
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeAborted   = "aborted"
	OutcomeFailed    = "failed"
)

// run carries per-run identity shared by the strategy engines.
type run struct {
	tag      execution.Tag
	composer *execution.Composer
	logger   *zap.Logger
}

func newRun(c *execution.Composer, name string, logger *zap.Logger) run {
	id := uuid.NewString()
	return run{
		tag:      execution.Tag{RunID: id, Strategy: name},
		composer: c,
		logger:   logger.With(zap.String("run_id", id)),
	}
}

// submit sends a validated request attributed to this run.
func (r run) submit(ctx context.Context, req types.OrderRequest) (*types.PlacedOrder, error) {
	return r.composer.Submit(ctx, req, r.tag)
}

func (r run) cancel(ctx context.Context, symbol, orderID string) error {
	_, err := r.composer.Cancel(ctx, symbol, orderID, r.tag)
	return err
}

func (r run) record(ctx context.Context, kind journal.Kind, symbol, msg string) {
	r.composer.Record(ctx, journal.Event{
		Kind:     kind,
		RunID:    r.tag.RunID,
		Strategy: r.tag.Strategy,
		Symbol:   symbol,
		Message:  msg,
	})
}

func (r run) recordStatus(ctx context.Context, o *types.PlacedOrder) {
	r.composer.Record(ctx, journal.Event{
		Kind:      journal.KindOrderStatus,
		RunID:     r.tag.RunID,
		Strategy:  r.tag.Strategy,
		Symbol:    o.Symbol,
		OrderID:   o.OrderID,
		Side:      o.Side.String(),
		OrderType: string(o.Type),
		Quantity:  o.Quantity,
		Price:     o.Price,
		Status:    string(o.Status),
	})
}

// abort builds the run's abort error and reports it.
func (r run) abort(ctx context.Context, symbol, phase string, placed []*types.PlacedOrder, err error) error {
	ctx = context.WithoutCancel(ctx)
	ids := make([]string, 0, len(placed))
	for _, o := range placed {
		ids = append(ids, o.OrderID)
	}
	aerr := &types.StrategyAbortError{Strategy: r.tag.Strategy, Phase: phase, Placed: ids, Err: err}

	r.logger.Error("strategy aborted",
		zap.String("symbol", symbol),
		zap.String("phase", phase),
		zap.Strings("placed", ids),
		zap.Error(err),
	)
	r.record(ctx, journal.KindStrategyAborted, symbol, aerr.Error())
	r.composer.Recorder().RecordStrategyOutcome(r.tag.Strategy, OutcomeAborted)
	r.composer.Alert(ctx, alerting.EventStrategyAborted, "strategy aborted",
		"strategy", r.tag.Strategy, "symbol", symbol, "phase", phase, "error", err.Error())
	return aerr
}

// sleep waits for d. It returns false if stop or ctx ends the wait first.
func sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
