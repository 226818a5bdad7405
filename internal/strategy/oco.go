package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tathienbao/futures-exec/internal/alerting"
	"github.com/tathienbao/futures-exec/internal/execution"
	"github.com/tathienbao/futures-exec/internal/journal"
	"github.com/tathienbao/futures-exec/internal/types"
)

// OCOConfig holds OCO timing.
type OCOConfig struct {
	PollInterval time.Duration
	// EntryTimeout bounds the wait for a limit entry to fill. Zero waits
	// until the entry fills or the context ends.
	EntryTimeout time.Duration
}

// DefaultOCOConfig returns the default OCO timing.
func DefaultOCOConfig() OCOConfig {
	return OCOConfig{
		PollInterval: 2 * time.Second,
	}
}

// OCOParams describes an entry with a take-profit and a stop-loss exit.
type OCOParams struct {
	Symbol     string
	Side       string
	Quantity   decimal.Decimal
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
	// EntryPrice selects a GTC limit entry when valid, a market entry otherwise.
	EntryPrice decimal.NullDecimal
}

// Resolution says how OCO monitoring ended.
type Resolution int

const (
	// Unresolved means monitoring is still running.
	Unresolved Resolution = iota
	// ResolvedByFill means one exit filled and the other was cancelled.
	ResolvedByFill
	// ResolvedByError means a status query failed; the surviving exit may
	// still be live on the exchange.
	ResolvedByError
	// ResolvedByCancel means the context ended before either exit filled.
	ResolvedByCancel
)

func (r Resolution) String() string {
	switch r {
	case ResolvedByFill:
		return "filled"
	case ResolvedByError:
		return "error"
	case ResolvedByCancel:
		return "canceled"
	default:
		return "unresolved"
	}
}

// Leg names an OCO exit order.
type Leg string

const (
	LegTakeProfit Leg = "take_profit"
	LegStopLoss   Leg = "stop_loss"
)

// OCOResult is the outcome of a monitored OCO run.
type OCOResult struct {
	Resolution Resolution
	// Winner is the exit that filled, set for ResolvedByFill.
	Winner Leg
	// Err is the polling error or context error.
	Err error
	// CancelErr is set when the losing exit could not be cancelled.
	CancelErr error
}

// OCORun is a placed OCO. Monitoring continues in the background after
// Place returns.
type OCORun struct {
	ID         string
	Symbol     string
	Entry      *types.PlacedOrder
	TakeProfit *types.PlacedOrder
	StopLoss   *types.PlacedOrder

	done   chan struct{}
	result OCOResult
}

// Done is closed when monitoring ends.
func (r *OCORun) Done() <-chan struct{} {
	return r.done
}

// Result returns the outcome, or an Unresolved result while monitoring runs.
func (r *OCORun) Result() OCOResult {
	select {
	case <-r.done:
		return r.result
	default:
		return OCOResult{Resolution: Unresolved}
	}
}

// Wait blocks until monitoring ends or ctx is done.
func (r *OCORun) Wait(ctx context.Context) (OCOResult, error) {
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return OCOResult{Resolution: Unresolved}, ctx.Err()
	}
}

// OCO places an entry plus reduce-only take-profit and stop-loss exits and
// cancels the remaining exit once one of them fills.
type OCO struct {
	composer *execution.Composer
	cfg      OCOConfig
	logger   *zap.Logger
}

// NewOCO creates an OCO composer.
func NewOCO(c *execution.Composer, cfg OCOConfig, logger *zap.Logger) *OCO {
	cfg.PollInterval = orDefault(cfg.PollInterval, DefaultOCOConfig().PollInterval)
	return &OCO{
		composer: c,
		cfg:      cfg,
		logger:   nopIfNil(logger).Named(NameOCO),
	}
}

type ocoOrders struct {
	side  types.Side
	qty   decimal.Decimal
	tp    decimal.Decimal
	sl    decimal.Decimal
	entry decimal.NullDecimal
	rules types.InstrumentRules
}

func (o *OCO) validate(ctx context.Context, r run, p OCOParams) (ocoOrders, error) {
	side, err := execution.ParseIntentSide(p.Side, p.Quantity)
	if err == nil {
		err = execution.RequirePrice("take_profit", p.TakeProfit)
	}
	if err == nil {
		err = execution.RequirePrice("stop_loss", p.StopLoss)
	}
	if err == nil && p.EntryPrice.Valid {
		err = execution.RequirePrice("entry_price", p.EntryPrice.Decimal)
	}
	if err != nil {
		return ocoOrders{}, r.composer.Reject(ctx, p.Symbol, r.tag, err)
	}

	rules, err := r.composer.Rules(ctx, p.Symbol, r.tag)
	if err != nil {
		return ocoOrders{}, err
	}

	out := ocoOrders{side: side, rules: rules, entry: p.EntryPrice}
	if out.qty, err = execution.CheckQuantity(rules, p.Quantity); err != nil {
		return ocoOrders{}, r.composer.Reject(ctx, p.Symbol, r.tag, err)
	}
	if out.tp, err = execution.CheckPrice(rules, "take_profit", p.TakeProfit); err != nil {
		return ocoOrders{}, r.composer.Reject(ctx, p.Symbol, r.tag, err)
	}
	if out.sl, err = execution.CheckPrice(rules, "stop_loss", p.StopLoss); err != nil {
		return ocoOrders{}, r.composer.Reject(ctx, p.Symbol, r.tag, err)
	}
	if p.EntryPrice.Valid {
		if out.entry.Decimal, err = execution.CheckPrice(rules, "entry_price", p.EntryPrice.Decimal); err != nil {
			return ocoOrders{}, r.composer.Reject(ctx, p.Symbol, r.tag, err)
		}
	}
	return out, nil
}

// Place validates the intent, submits the entry, waits for a limit entry to
// fill, submits both exits and starts monitoring them. Monitoring runs until
// an exit fills, a status query fails or ctx ends.
func (o *OCO) Place(ctx context.Context, p OCOParams) (*OCORun, error) {
	r := newRun(o.composer, NameOCO, o.logger)

	v, err := o.validate(ctx, r, p)
	if err != nil {
		return nil, err
	}
	symbol := v.rules.Symbol

	entryReq := types.OrderRequest{
		Symbol:   symbol,
		Side:     v.side,
		Type:     types.OrderTypeMarket,
		Quantity: v.qty,
	}
	if v.entry.Valid {
		entryReq.Type = types.OrderTypeLimit
		entryReq.Price = v.entry.Decimal
		entryReq.TimeInForce = types.TIFGoodTillCancel
	}

	r.logger.Info("placing oco",
		zap.String("symbol", symbol),
		zap.String("side", v.side.String()),
		zap.String("quantity", v.qty.String()),
		zap.String("take_profit", v.tp.String()),
		zap.String("stop_loss", v.sl.String()),
		zap.String("entry", string(entryReq.Type)),
	)
	r.record(ctx, journal.KindStrategyStarted, symbol, fmt.Sprintf("%s %s tp=%s sl=%s", v.side, v.qty, v.tp, v.sl))

	entry, err := r.submit(ctx, entryReq)
	if err != nil {
		return nil, r.abort(ctx, symbol, "entry", nil, err)
	}

	if v.entry.Valid {
		if err := o.awaitEntry(ctx, r, entry); err != nil {
			return nil, r.abort(ctx, symbol, "entry_wait", []*types.PlacedOrder{entry}, err)
		}
	}

	exit := v.side.Opposite()
	tp, err := r.submit(ctx, types.OrderRequest{
		Symbol:      symbol,
		Side:        exit,
		Type:        types.OrderTypeLimit,
		Quantity:    v.qty,
		Price:       v.tp,
		TimeInForce: types.TIFGoodTillCancel,
		ReduceOnly:  true,
	})
	if err != nil {
		return nil, r.abort(ctx, symbol, "take_profit", []*types.PlacedOrder{entry}, err)
	}

	sl, err := r.submit(ctx, types.OrderRequest{
		Symbol:     symbol,
		Side:       exit,
		Type:       types.OrderTypeStopMarket,
		Quantity:   v.qty,
		StopPrice:  v.sl,
		ReduceOnly: true,
	})
	if err != nil {
		return nil, r.abort(ctx, symbol, "stop_loss", []*types.PlacedOrder{entry, tp}, err)
	}

	oc := &OCORun{
		ID:         r.tag.RunID,
		Symbol:     symbol,
		Entry:      entry,
		TakeProfit: tp,
		StopLoss:   sl,
		done:       make(chan struct{}),
	}

	o.composer.Recorder().RecordStrategyStarted(NameOCO)
	go o.monitor(ctx, r, oc)

	return oc, nil
}

// awaitEntry polls the entry until it fills.
func (o *OCO) awaitEntry(ctx context.Context, r run, entry *types.PlacedOrder) error {
	if o.cfg.EntryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.EntryTimeout)
		defer cancel()
	}

	r.logger.Info("waiting for entry fill", zap.String("order_id", entry.OrderID))
	for {
		st, err := r.composer.Status(ctx, entry.Symbol, entry.OrderID)
		if err != nil {
			return err
		}
		if st.Status == types.OrderStatusFilled {
			r.recordStatus(ctx, st)
			return nil
		}
		if st.Status.IsFinal() {
			return fmt.Errorf("entry order %s ended %s", entry.OrderID, st.Status)
		}
		if !sleep(ctx, nil, o.cfg.PollInterval) {
			return fmt.Errorf("waiting for entry %s: %w", entry.OrderID, ctx.Err())
		}
	}
}

func (o *OCO) monitor(ctx context.Context, r run, oc *OCORun) {
	defer close(oc.done)

	for {
		res, ok := o.check(ctx, r, oc)
		if ok {
			oc.result = res
			break
		}
		if !sleep(ctx, nil, o.cfg.PollInterval) {
			oc.result = OCOResult{Resolution: ResolvedByCancel, Err: ctx.Err()}
			break
		}
	}

	o.report(context.WithoutCancel(ctx), r, oc)
}

// check polls both exits once. It reports true when monitoring should end.
func (o *OCO) check(ctx context.Context, r run, oc *OCORun) (OCOResult, bool) {
	tp, err := r.composer.Status(ctx, oc.Symbol, oc.TakeProfit.OrderID)
	if err != nil {
		return o.pollFailed(ctx, err), true
	}
	sl, err := r.composer.Status(ctx, oc.Symbol, oc.StopLoss.OrderID)
	if err != nil {
		return o.pollFailed(ctx, err), true
	}

	var winner Leg
	var filled *types.PlacedOrder
	var survivor string
	switch {
	case tp.Status == types.OrderStatusFilled:
		winner, filled, survivor = LegTakeProfit, tp, oc.StopLoss.OrderID
	case sl.Status == types.OrderStatusFilled:
		winner, filled, survivor = LegStopLoss, sl, oc.TakeProfit.OrderID
	default:
		return OCOResult{}, false
	}

	r.recordStatus(ctx, filled)
	res := OCOResult{Resolution: ResolvedByFill, Winner: winner}
	if err := r.cancel(ctx, oc.Symbol, survivor); err != nil {
		res.CancelErr = err
	}
	return res, true
}

func (o *OCO) pollFailed(ctx context.Context, err error) OCOResult {
	if ctx.Err() != nil {
		return OCOResult{Resolution: ResolvedByCancel, Err: ctx.Err()}
	}
	return OCOResult{Resolution: ResolvedByError, Err: err}
}

func (o *OCO) report(ctx context.Context, r run, oc *OCORun) {
	res := oc.result
	fields := []zap.Field{
		zap.String("symbol", oc.Symbol),
		zap.String("resolution", res.Resolution.String()),
		zap.String("take_profit_id", oc.TakeProfit.OrderID),
		zap.String("stop_loss_id", oc.StopLoss.OrderID),
	}

	rec := o.composer.Recorder()
	rec.RecordOCOResolution(res.Resolution.String())

	switch res.Resolution {
	case ResolvedByFill:
		r.logger.Info("oco resolved", append(fields, zap.String("winner", string(res.Winner)))...)
		event := alerting.EventOCOTakeProfit
		if res.Winner == LegStopLoss {
			event = alerting.EventOCOStopLoss
		}
		o.composer.Alert(ctx, event, "oco exit filled", "symbol", oc.Symbol, "winner", string(res.Winner))
		if res.CancelErr != nil {
			r.logger.Error("oco survivor cancel failed", append(fields, zap.Error(res.CancelErr))...)
			o.composer.Alert(ctx, alerting.EventCancelFailed, "oco survivor cancel failed",
				"symbol", oc.Symbol, "error", res.CancelErr.Error())
		}
		rec.RecordStrategyFinished(NameOCO, OutcomeCompleted)
		r.record(ctx, journal.KindOCOResolved, oc.Symbol, "winner="+string(res.Winner))
	case ResolvedByError:
		r.logger.Error("oco monitoring failed", append(fields, zap.Error(res.Err))...)
		o.composer.Alert(ctx, alerting.EventOCOMonitorFailed, "oco monitoring failed",
			"symbol", oc.Symbol, "error", res.Err.Error())
		rec.RecordStrategyFinished(NameOCO, OutcomeFailed)
		r.record(ctx, journal.KindOCOResolved, oc.Symbol, "error: "+res.Err.Error())
	default:
		r.logger.Warn("oco monitoring stopped", fields...)
		rec.RecordStrategyFinished(NameOCO, OutcomeStopped)
		r.record(ctx, journal.KindOCOResolved, oc.Symbol, "canceled")
	}
}
