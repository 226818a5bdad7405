package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tathienbao/futures-exec/internal/alerting"
	"github.com/tathienbao/futures-exec/internal/execution"
	"github.com/tathienbao/futures-exec/internal/journal"
	"github.com/tathienbao/futures-exec/internal/types"
	"github.com/tathienbao/futures-exec/pkg/quant"
)

// GridConfig holds grid supervision settings.
type GridConfig struct {
	PollInterval time.Duration // between supervision passes
	ErrorBackoff time.Duration // after a pass that hit a status error

	// ReplaceOffset moves a replacement away from the filled price: up for
	// sells, down for buys (0.01 = 1%).
	ReplaceOffset decimal.Decimal
}

// DefaultGridConfig returns the default supervision settings.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		PollInterval:  5 * time.Second,
		ErrorBackoff:  10 * time.Second,
		ReplaceOffset: decimal.RequireFromString("0.01"),
	}
}

// GridParams describes a grid between two prices.
type GridParams struct {
	Symbol   string
	Upper    decimal.Decimal
	Lower    decimal.Decimal
	Levels   int
	Quantity decimal.Decimal
}

// Grid places buy/sell limit pairs on evenly spaced levels and keeps the
// grid populated by replacing each fill with an order on the opposite side.
// A Grid runs once.
type Grid struct {
	composer *execution.Composer
	cfg      GridConfig
	logger   *zap.Logger

	mu          sync.Mutex
	started     bool
	supervising bool
	canceled    bool
	r           run
	symbol      string

	// active is the supervisor's working set, republished after each pass.
	active []types.PlacedOrder

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewGrid creates a grid engine.
func NewGrid(c *execution.Composer, cfg GridConfig, logger *zap.Logger) *Grid {
	def := DefaultGridConfig()
	cfg.PollInterval = orDefault(cfg.PollInterval, def.PollInterval)
	cfg.ErrorBackoff = orDefault(cfg.ErrorBackoff, def.ErrorBackoff)
	if !cfg.ReplaceOffset.IsPositive() {
		cfg.ReplaceOffset = def.ReplaceOffset
	}

	return &Grid{
		composer: c,
		cfg:      cfg,
		logger:   nopIfNil(logger).Named(NameGrid),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Levels returns n prices from lower to upper inclusive, evenly spaced and
// rounded down to tick.
func Levels(lower, upper decimal.Decimal, n int, tick decimal.Decimal) []decimal.Decimal {
	if n < 2 {
		return nil
	}
	span := upper.Sub(lower)
	gaps := decimal.NewFromInt(int64(n - 1))
	out := make([]decimal.Decimal, n)
	for i := range out {
		offset := span.Mul(decimal.NewFromInt(int64(i))).Div(gaps)
		out[i] = quant.Quantize(lower.Add(offset), tick)
	}
	return out
}

type gridPlan struct {
	symbol string
	qty    decimal.Decimal
	levels []decimal.Decimal
}

func (g *Grid) plan(ctx context.Context, r run, p GridParams) (gridPlan, error) {
	var err error
	switch {
	case !p.Upper.GreaterThan(p.Lower):
		err = &types.ValidationError{Field: "upper_price", Value: p.Upper.String(), Err: types.ErrInvalidStrategyParams, Hint: "must be above lower price " + p.Lower.String()}
	case p.Levels < 2:
		err = &types.ValidationError{Field: "levels", Value: fmt.Sprint(p.Levels), Err: types.ErrInvalidStrategyParams, Hint: "at least 2 levels"}
	default:
		err = execution.RequireQuantity("quantity", p.Quantity)
	}
	if err == nil {
		err = execution.RequirePrice("lower_price", p.Lower)
	}
	if err != nil {
		return gridPlan{}, r.composer.Reject(ctx, p.Symbol, r.tag, err)
	}

	rules, err := r.composer.Rules(ctx, p.Symbol, r.tag)
	if err != nil {
		return gridPlan{}, err
	}

	qty, err := execution.CheckQuantity(rules, p.Quantity)
	if err != nil {
		return gridPlan{}, r.composer.Reject(ctx, p.Symbol, r.tag, err)
	}
	if _, err := execution.CheckPrice(rules, "lower_price", p.Lower); err != nil {
		return gridPlan{}, r.composer.Reject(ctx, p.Symbol, r.tag, err)
	}
	if _, err := execution.CheckPrice(rules, "upper_price", p.Upper); err != nil {
		return gridPlan{}, r.composer.Reject(ctx, p.Symbol, r.tag, err)
	}

	return gridPlan{
		symbol: rules.Symbol,
		qty:    qty,
		levels: Levels(p.Lower, p.Upper, p.Levels, rules.PriceTick),
	}, nil
}

func limitRequest(symbol string, side types.Side, qty, price decimal.Decimal) types.OrderRequest {
	return types.OrderRequest{
		Symbol:      symbol,
		Side:        side,
		Type:        types.OrderTypeLimit,
		Quantity:    qty,
		Price:       price,
		TimeInForce: types.TIFGoodTillCancel,
	}
}

// Start places a buy at each level and a sell at the level above it, then
// starts supervising the placed orders in the background. If any placement
// fails, every order placed so far is cancelled and a StrategyAbortError is
// returned. Supervision ends on Stop or when ctx ends. A Stop during
// placement ends it early; the orders placed so far are returned and Stop
// cancels them.
func (g *Grid) Start(ctx context.Context, p GridParams) ([]*types.PlacedOrder, error) {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return nil, errors.New("grid already started")
	}
	g.started = true
	if g.stopped() {
		g.mu.Unlock()
		close(g.done)
		return nil, errors.New("grid stopped before start")
	}
	g.r = newRun(g.composer, NameGrid, g.logger)
	r := g.r
	g.mu.Unlock()

	pl, err := g.plan(ctx, r, p)
	if err != nil {
		close(g.done)
		return nil, err
	}
	g.symbol = pl.symbol

	r.logger.Info("starting grid",
		zap.String("symbol", pl.symbol),
		zap.String("lower", pl.levels[0].String()),
		zap.String("upper", pl.levels[len(pl.levels)-1].String()),
		zap.Int("levels", len(pl.levels)),
		zap.String("quantity", pl.qty.String()),
	)
	r.record(ctx, journal.KindStrategyStarted, pl.symbol,
		fmt.Sprintf("%d levels %s..%s qty %s", len(pl.levels), pl.levels[0], pl.levels[len(pl.levels)-1], pl.qty))

	placed := make([]*types.PlacedOrder, 0, 2*(len(pl.levels)-1))
placement:
	for i := 0; i < len(pl.levels)-1; i++ {
		for _, leg := range []types.OrderRequest{
			limitRequest(pl.symbol, types.SideBuy, pl.qty, pl.levels[i]),
			limitRequest(pl.symbol, types.SideSell, pl.qty, pl.levels[i+1]),
		} {
			if g.stopped() {
				r.logger.Warn("grid stopped during placement", zap.Int("placed", len(placed)))
				break placement
			}
			order, err := r.submit(ctx, leg)
			if err != nil {
				g.unwind(context.WithoutCancel(ctx), placed)
				close(g.done)
				return nil, r.abort(ctx, pl.symbol, fmt.Sprintf("placement level %d", i), placed, err)
			}
			placed = append(placed, order)
		}
	}

	active := make([]types.PlacedOrder, len(placed))
	for i, o := range placed {
		active[i] = *o
	}

	g.composer.Recorder().RecordStrategyStarted(NameGrid)
	g.composer.Recorder().RecordGridActive(pl.symbol, len(active))
	g.composer.Alert(ctx, alerting.EventGridStarted, "grid started",
		"symbol", pl.symbol, "orders", len(placed))

	g.mu.Lock()
	g.supervising = true
	g.active = active
	g.mu.Unlock()
	go g.supervise(ctx, active)

	return placed, nil
}

// unwind cancels orders placed before a placement failure.
func (g *Grid) unwind(ctx context.Context, placed []*types.PlacedOrder) {
	for _, o := range placed {
		_ = g.r.cancel(ctx, o.Symbol, o.OrderID)
	}
}

// supervise owns the active set until Stop or ctx ends it.
func (g *Grid) supervise(ctx context.Context, active []types.PlacedOrder) {
	defer close(g.done)
	r := g.r

	for {
		select {
		case <-g.stop:
			return
		case <-ctx.Done():
			r.logger.Warn("grid supervision ended by context", zap.Error(ctx.Err()))
			return
		default:
		}

		var err error
		active, err = g.pass(ctx, active)
		g.publish(active)

		wait := g.cfg.PollInterval
		if err != nil {
			r.logger.Error("grid pass failed", zap.Error(err), zap.Duration("retry_in", g.cfg.ErrorBackoff))
			wait = g.cfg.ErrorBackoff
		}

		if !g.idle(ctx, wait) {
			return
		}
	}
}

func (g *Grid) publish(active []types.PlacedOrder) {
	g.mu.Lock()
	g.active = active
	g.mu.Unlock()
	g.composer.Recorder().RecordGridActive(g.symbol, len(active))
}

// idle waits between passes. It returns false when supervision should end.
func (g *Grid) idle(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-g.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (g *Grid) stopped() bool {
	select {
	case <-g.stop:
		return true
	default:
		return false
	}
}

// pass reads every active order once, in placement order, and replaces
// fills. A status error ends the pass early; unread orders stay active.
func (g *Grid) pass(ctx context.Context, active []types.PlacedOrder) ([]types.PlacedOrder, error) {
	kept := make([]types.PlacedOrder, 0, len(active))
	var added []types.PlacedOrder

	for i, o := range active {
		st, err := g.composer.Status(ctx, o.Symbol, o.OrderID)
		if err != nil {
			kept = append(kept, active[i:]...)
			return append(kept, added...), fmt.Errorf("order %s: %w", o.OrderID, err)
		}
		if st.Status != types.OrderStatusFilled {
			kept = append(kept, o)
			continue
		}

		g.r.recordStatus(ctx, st)
		if repl, ok := g.replace(ctx, o); ok {
			added = append(added, *repl)
		}
	}
	return append(kept, added...), nil
}

// replace places the opposite side of a filled order at the offset price.
func (g *Grid) replace(ctx context.Context, filled types.PlacedOrder) (*types.PlacedOrder, bool) {
	r := g.r
	side := filled.Side.Opposite()
	price := filled.Price.Mul(decimal.NewFromInt(1).Sub(g.cfg.ReplaceOffset))
	if side == types.SideSell {
		price = filled.Price.Mul(decimal.NewFromInt(1).Add(g.cfg.ReplaceOffset))
	}

	r.logger.Info("grid order filled",
		zap.String("order_id", filled.OrderID),
		zap.String("side", filled.Side.String()),
		zap.String("price", filled.Price.String()),
	)

	req, err := g.composer.PrepareLimit(ctx, filled.Symbol, side.String(), filled.Quantity, price, string(types.TIFGoodTillCancel))
	if err != nil {
		r.logger.Error("replacement rejected", zap.String("filled_id", filled.OrderID), zap.Error(err))
		return nil, false
	}
	order, err := r.submit(ctx, req)
	if err != nil {
		r.logger.Error("replacement failed", zap.String("filled_id", filled.OrderID), zap.Error(err))
		return nil, false
	}

	g.composer.Recorder().RecordGridReplacement(order.Symbol, side.String())
	r.record(ctx, journal.KindGridReplaced, order.Symbol,
		fmt.Sprintf("%s filled at %s, %s %s at %s", filled.OrderID, filled.Price, order.OrderID, side, order.Price))
	g.composer.Alert(ctx, alerting.EventGridFill, "grid order replaced",
		"symbol", order.Symbol, "filled", filled.OrderID, "replacement", order.OrderID, "side", side.String(), "price", order.Price.String())
	return order, true
}

// ActiveOrders returns a copy of the orders the grid is tracking as of the
// last completed pass. It does not wait for a running pass.
func (g *Grid) ActiveOrders() []types.PlacedOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.PlacedOrder(nil), g.active...)
}

// Done is closed when supervision has ended.
func (g *Grid) Done() <-chan struct{} {
	return g.done
}

// Stop ends supervision, waits for placement or an in-flight pass to
// finish, then cancels every active order once. Cancel failures are logged.
// Calling Stop again is a no-op.
func (g *Grid) Stop(ctx context.Context) error {
	g.stopOnce.Do(func() { close(g.stop) })

	g.mu.Lock()
	started := g.started
	g.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-g.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	g.mu.Lock()
	if !g.supervising || g.canceled {
		g.mu.Unlock()
		return nil
	}
	g.canceled = true
	active := g.active
	g.active = nil
	g.mu.Unlock()

	r := g.r
	failed := 0
	for _, o := range active {
		if err := r.cancel(ctx, o.Symbol, o.OrderID); err != nil {
			failed++
		}
	}

	if failed > 0 {
		g.composer.Alert(ctx, alerting.EventCancelFailed, "grid cancel failures",
			"symbol", g.symbol, "failed", failed, "of", len(active))
	}

	r.logger.Info("grid stopped", zap.Int("canceled", len(active)-failed), zap.Int("failed", failed))
	g.composer.Recorder().RecordGridActive(g.symbol, 0)
	g.composer.Recorder().RecordStrategyFinished(NameGrid, OutcomeStopped)
	r.record(ctx, journal.KindStrategyCompleted, g.symbol,
		fmt.Sprintf("stopped, canceled %d of %d", len(active)-failed, len(active)))
	g.composer.Alert(ctx, alerting.EventGridStopped, "grid stopped",
		"symbol", g.symbol, "canceled", len(active)-failed)
	return nil
}
