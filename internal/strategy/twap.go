package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tathienbao/futures-exec/internal/alerting"
	"github.com/tathienbao/futures-exec/internal/execution"
	"github.com/tathienbao/futures-exec/internal/journal"
	"github.com/tathienbao/futures-exec/internal/types"
	"github.com/tathienbao/futures-exec/pkg/quant"
)

// TWAPParams describes a time-sliced order.
type TWAPParams struct {
	Symbol   string
	Side     string
	Total    decimal.Decimal
	Chunks   int
	Duration time.Duration
	// UseLimit submits GTC limit chunks at LimitPrice instead of market chunks.
	UseLimit   bool
	LimitPrice decimal.Decimal
}

// TWAP splits a quantity into equal chunks submitted at a fixed cadence.
// A TWAP runs once; Stop may be called from any goroutine.
type TWAP struct {
	composer *execution.Composer
	logger   *zap.Logger

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

// NewTWAP creates a TWAP engine.
func NewTWAP(c *execution.Composer, logger *zap.Logger) *TWAP {
	return &TWAP{
		composer: c,
		logger:   nopIfNil(logger).Named(NameTWAP),
		stop:     make(chan struct{}),
	}
}

// Stop ends the run before its next chunk. A sleeping run wakes immediately.
func (t *TWAP) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *TWAP) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

// Plan is a validated TWAP schedule.
type Plan struct {
	Symbol     string
	Side       types.Side
	Chunk      decimal.Decimal
	Chunks     int
	Interval   time.Duration
	LimitPrice decimal.Decimal
	UseLimit   bool
}

func (t *TWAP) plan(ctx context.Context, r run, p TWAPParams) (Plan, error) {
	side, err := execution.ParseIntentSide(p.Side, p.Total)
	if err == nil && p.Chunks < 2 {
		err = &types.ValidationError{Field: "chunks", Value: fmt.Sprint(p.Chunks), Err: types.ErrInvalidStrategyParams, Hint: "at least 2 chunks"}
	}
	if err == nil && p.Duration <= 0 {
		err = &types.ValidationError{Field: "duration", Value: p.Duration.String(), Err: types.ErrInvalidStrategyParams, Hint: "duration must be positive"}
	}
	if err == nil && p.UseLimit {
		if p.LimitPrice.IsZero() {
			err = &types.ValidationError{Field: "limit_price", Err: types.ErrMissingLimitPrice}
		} else {
			err = execution.RequirePrice("limit_price", p.LimitPrice)
		}
	}
	if err != nil {
		return Plan{}, r.composer.Reject(ctx, p.Symbol, r.tag, err)
	}

	rules, err := r.composer.Rules(ctx, p.Symbol, r.tag)
	if err != nil {
		return Plan{}, err
	}

	chunk := quant.Quantize(p.Total.Div(decimal.NewFromInt(int64(p.Chunks))), rules.QuantityStep)
	if chunk.LessThan(rules.QuantityMin) || !chunk.IsPositive() {
		return Plan{}, r.composer.Reject(ctx, p.Symbol, r.tag, &types.ValidationError{
			Field: "chunk_size",
			Value: chunk.String(),
			Err:   types.ErrChunkTooSmall,
			Hint:  fmt.Sprintf("minimum is %s. Try fewer chunks or larger total quantity.", rules.QuantityMin),
		})
	}
	if chunk, err = execution.CheckQuantity(rules, chunk); err != nil {
		return Plan{}, r.composer.Reject(ctx, p.Symbol, r.tag, err)
	}

	pl := Plan{
		Symbol:   rules.Symbol,
		Side:     side,
		Chunk:    chunk,
		Chunks:   p.Chunks,
		Interval: p.Duration / time.Duration(p.Chunks),
		UseLimit: p.UseLimit,
	}
	if p.UseLimit {
		if pl.LimitPrice, err = execution.CheckPrice(rules, "limit_price", p.LimitPrice); err != nil {
			return Plan{}, r.composer.Reject(ctx, p.Symbol, r.tag, err)
		}
	}
	return pl, nil
}

func (pl Plan) request() types.OrderRequest {
	req := types.OrderRequest{
		Symbol:   pl.Symbol,
		Side:     pl.Side,
		Type:     types.OrderTypeMarket,
		Quantity: pl.Chunk,
	}
	if pl.UseLimit {
		req.Type = types.OrderTypeLimit
		req.Price = pl.LimitPrice
		req.TimeInForce = types.TIFGoodTillCancel
	}
	return req
}

// Execute runs the schedule on the calling goroutine and returns the orders
// it submitted. A failed chunk ends the run with a StrategyAbortError; the
// chunks already submitted are returned alongside it and left in place.
// A second call returns an error without submitting anything.
func (t *TWAP) Execute(ctx context.Context, p TWAPParams) ([]*types.PlacedOrder, error) {
	if !t.started.CompareAndSwap(false, true) {
		return nil, errors.New("twap already executed")
	}
	r := newRun(t.composer, NameTWAP, t.logger)

	pl, err := t.plan(ctx, r, p)
	if err != nil {
		return nil, err
	}

	r.logger.Info("starting twap",
		zap.String("symbol", pl.Symbol),
		zap.String("side", pl.Side.String()),
		zap.String("total", p.Total.String()),
		zap.String("chunk", pl.Chunk.String()),
		zap.Int("chunks", pl.Chunks),
		zap.Duration("interval", pl.Interval),
	)
	r.record(ctx, journal.KindStrategyStarted, pl.Symbol,
		fmt.Sprintf("%s %s in %d chunks of %s every %s", pl.Side, p.Total, pl.Chunks, pl.Chunk, pl.Interval))

	rec := t.composer.Recorder()
	rec.RecordStrategyStarted(NameTWAP)

	orders := make([]*types.PlacedOrder, 0, pl.Chunks)
	for i := 0; i < pl.Chunks; i++ {
		if t.stopped() || ctx.Err() != nil {
			break
		}

		start := time.Now()
		order, err := r.submit(ctx, pl.request())
		if err != nil {
			rec.RecordStrategyFinished(NameTWAP, OutcomeAborted)
			return orders, r.abort(ctx, pl.Symbol, fmt.Sprintf("chunk %d/%d", i+1, pl.Chunks), orders, err)
		}
		orders = append(orders, order)
		rec.RecordTWAPChunk(pl.Symbol)
		r.logger.Info("twap chunk executed",
			zap.Int("chunk", i+1),
			zap.Int("of", pl.Chunks),
			zap.String("order_id", order.OrderID),
		)

		if i < pl.Chunks-1 {
			sleep(ctx, t.stop, pl.Interval-time.Since(start))
		}
	}

	ctx = context.WithoutCancel(ctx)
	executed := pl.Chunk.Mul(decimal.NewFromInt(int64(len(orders))))
	if len(orders) < pl.Chunks {
		r.logger.Info("twap stopped by user", zap.Int("executed", len(orders)), zap.String("quantity", executed.String()))
		rec.RecordStrategyFinished(NameTWAP, OutcomeStopped)
		r.record(ctx, journal.KindStrategyCompleted, pl.Symbol, fmt.Sprintf("stopped after %d/%d chunks", len(orders), pl.Chunks))
		t.composer.Alert(ctx, alerting.EventTWAPStopped, "twap stopped",
			"symbol", pl.Symbol, "executed", len(orders), "chunks", pl.Chunks)
		return orders, nil
	}

	r.logger.Info("twap completed", zap.Int("executed", len(orders)), zap.String("quantity", executed.String()))
	rec.RecordStrategyFinished(NameTWAP, OutcomeCompleted)
	r.record(ctx, journal.KindStrategyCompleted, pl.Symbol, fmt.Sprintf("completed %d chunks", pl.Chunks))
	t.composer.Alert(ctx, alerting.EventTWAPCompleted, "twap completed",
		"symbol", pl.Symbol, "quantity", executed.String())
	return orders, nil
}
