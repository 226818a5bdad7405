// Package execution validates order intents and submits primitive orders.
package execution

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tathienbao/futures-exec/internal/alerting"
	"github.com/tathienbao/futures-exec/internal/gateway"
	"github.com/tathienbao/futures-exec/internal/journal"
	"github.com/tathienbao/futures-exec/internal/metrics"
	"github.com/tathienbao/futures-exec/internal/types"
)

// Options holds the composer's collaborators. All fields are optional.
type Options struct {
	Logger   *zap.Logger
	Journal  journal.Journal
	Recorder *metrics.Recorder
	Alerter  alerting.Alerter
}

// Tag attributes an order to a strategy run in logs and the journal.
type Tag struct {
	RunID    string
	Strategy string
}

// Composer turns intents into exchange orders. Every validation step that
// does not need the exchange runs before the rules lookup, and every
// validation step runs before submission.
type Composer struct {
	gw       gateway.Gateway
	resolver *Resolver
	logger   *zap.Logger
	journal  journal.Journal
	recorder *metrics.Recorder
	alerter  alerting.Alerter
}

// NewComposer creates a composer over gw.
func NewComposer(gw gateway.Gateway, opts Options) *Composer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}

	return &Composer{
		gw:       gw,
		resolver: NewResolver(gw),
		logger:   opts.Logger.Named("execution"),
		journal:  opts.Journal,
		recorder: opts.Recorder,
		alerter:  opts.Alerter,
	}
}

// Logger returns the composer's logger.
func (c *Composer) Logger() *zap.Logger {
	return c.logger
}

// Recorder returns the metrics recorder, which may be nil.
func (c *Composer) Recorder() *metrics.Recorder {
	return c.recorder
}

// Alerter returns the alert channel, which may be nil.
func (c *Composer) Alerter() alerting.Alerter {
	return c.alerter
}

// Rules resolves instrument rules, recording unknown symbols as
// validation failures.
func (c *Composer) Rules(ctx context.Context, symbol string, tag Tag) (types.InstrumentRules, error) {
	rules, err := c.resolver.Resolve(ctx, symbol)
	if err != nil {
		return types.InstrumentRules{}, c.Reject(ctx, symbol, tag, err)
	}
	return rules, nil
}

// PrepareMarket validates a market order.
func (c *Composer) PrepareMarket(ctx context.Context, symbol, side string, qty decimal.Decimal) (types.OrderRequest, error) {
	s, err := ParseIntentSide(side, qty)
	if err != nil {
		return types.OrderRequest{}, c.Reject(ctx, symbol, Tag{}, err)
	}

	rules, err := c.Rules(ctx, symbol, Tag{})
	if err != nil {
		return types.OrderRequest{}, err
	}

	q, err := CheckQuantity(rules, qty)
	if err != nil {
		return types.OrderRequest{}, c.Reject(ctx, symbol, Tag{}, err)
	}

	return types.OrderRequest{
		Symbol:   rules.Symbol,
		Side:     s,
		Type:     types.OrderTypeMarket,
		Quantity: q,
	}, nil
}

// PrepareLimit validates a limit order.
func (c *Composer) PrepareLimit(ctx context.Context, symbol, side string, qty, price decimal.Decimal, tif string) (types.OrderRequest, error) {
	s, err := ParseIntentSide(side, qty)
	if err == nil {
		err = RequirePrice("price", price)
	}
	var t types.TimeInForce
	if err == nil {
		t, err = types.ParseTimeInForce(tif)
	}
	if err != nil {
		return types.OrderRequest{}, c.Reject(ctx, symbol, Tag{}, err)
	}

	rules, err := c.Rules(ctx, symbol, Tag{})
	if err != nil {
		return types.OrderRequest{}, err
	}

	q, err := CheckQuantity(rules, qty)
	if err != nil {
		return types.OrderRequest{}, c.Reject(ctx, symbol, Tag{}, err)
	}
	p, err := CheckPrice(rules, "price", price)
	if err != nil {
		return types.OrderRequest{}, c.Reject(ctx, symbol, Tag{}, err)
	}

	return types.OrderRequest{
		Symbol:      rules.Symbol,
		Side:        s,
		Type:        types.OrderTypeLimit,
		Quantity:    q,
		Price:       p,
		TimeInForce: t,
	}, nil
}

// PrepareStopLimit validates a stop-limit order. The stop triggers on the
// mark price.
func (c *Composer) PrepareStopLimit(ctx context.Context, symbol, side string, qty, price, stop decimal.Decimal, tif string) (types.OrderRequest, error) {
	s, err := ParseIntentSide(side, qty)
	if err == nil {
		err = RequirePrice("price", price)
	}
	if err == nil {
		err = RequirePrice("stop_price", stop)
	}
	var t types.TimeInForce
	if err == nil {
		t, err = types.ParseTimeInForce(tif)
	}
	if err != nil {
		return types.OrderRequest{}, c.Reject(ctx, symbol, Tag{}, err)
	}

	rules, err := c.Rules(ctx, symbol, Tag{})
	if err != nil {
		return types.OrderRequest{}, err
	}

	q, err := CheckQuantity(rules, qty)
	if err != nil {
		return types.OrderRequest{}, c.Reject(ctx, symbol, Tag{}, err)
	}
	p, err := CheckPrice(rules, "price", price)
	if err != nil {
		return types.OrderRequest{}, c.Reject(ctx, symbol, Tag{}, err)
	}
	sp, err := CheckPrice(rules, "stop_price", stop)
	if err != nil {
		return types.OrderRequest{}, c.Reject(ctx, symbol, Tag{}, err)
	}

	return types.OrderRequest{
		Symbol:      rules.Symbol,
		Side:        s,
		Type:        types.OrderTypeStop,
		Quantity:    q,
		Price:       p,
		StopPrice:   sp,
		TimeInForce: t,
		WorkingType: types.WorkingTypeMarkPrice,
	}, nil
}

// PlaceMarket validates and submits a market order.
func (c *Composer) PlaceMarket(ctx context.Context, symbol, side string, qty decimal.Decimal) (*types.PlacedOrder, error) {
	req, err := c.PrepareMarket(ctx, symbol, side, qty)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, req, Tag{})
}

// PlaceLimit validates and submits a limit order.
func (c *Composer) PlaceLimit(ctx context.Context, symbol, side string, qty, price decimal.Decimal, tif string) (*types.PlacedOrder, error) {
	req, err := c.PrepareLimit(ctx, symbol, side, qty, price, tif)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, req, Tag{})
}

// PlaceStopLimit validates and submits a stop-limit order.
func (c *Composer) PlaceStopLimit(ctx context.Context, symbol, side string, qty, price, stop decimal.Decimal, tif string) (*types.PlacedOrder, error) {
	req, err := c.PrepareStopLimit(ctx, symbol, side, qty, price, stop, tif)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, req, Tag{})
}

// Submit sends an already validated request. Gateway errors are returned
// unchanged and never retried.
func (c *Composer) Submit(ctx context.Context, req types.OrderRequest, tag Tag) (*types.PlacedOrder, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	fields := []zap.Field{
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side.String()),
		zap.String("type", string(req.Type)),
		zap.String("quantity", req.Quantity.String()),
		zap.String("price", req.Price.String()),
		zap.String("stop_price", req.StopPrice.String()),
		zap.String("client_order_id", req.ClientOrderID),
	}
	if tag.Strategy != "" {
		fields = append(fields, zap.String("strategy", tag.Strategy), zap.String("run_id", tag.RunID))
	}

	order, err := c.gw.SubmitOrder(ctx, req)
	if err != nil {
		c.logger.Error("order submission failed", append(fields, zap.Error(err))...)
		c.Record(ctx, journal.Event{
			Kind:      journal.KindOrderRejected,
			RunID:     tag.RunID,
			Strategy:  tag.Strategy,
			Symbol:    req.Symbol,
			Side:      req.Side.String(),
			OrderType: string(req.Type),
			Quantity:  req.Quantity,
			Price:     req.Price,
			Message:   err.Error(),
		})
		c.Alert(ctx, alerting.EventOrderRejected, "order rejected",
			"symbol", req.Symbol, "side", req.Side.String(), "type", string(req.Type), "error", err.Error())
		return nil, err
	}

	c.recorder.RecordOrderSubmitted(req.Symbol, req.Side.String(), string(req.Type))
	c.logger.Info("order submitted", append(fields,
		zap.String("order_id", order.OrderID),
		zap.String("status", string(order.Status)),
	)...)
	c.Record(ctx, journal.Event{
		Kind:      journal.KindOrderSubmitted,
		RunID:     tag.RunID,
		Strategy:  tag.Strategy,
		Symbol:    req.Symbol,
		OrderID:   order.OrderID,
		Side:      req.Side.String(),
		OrderType: string(req.Type),
		Quantity:  req.Quantity,
		Price:     firstPositive(req.Price, req.StopPrice),
		Status:    string(order.Status),
	})

	return order, nil
}

// Status reads the current state of an order.
func (c *Composer) Status(ctx context.Context, symbol, orderID string) (*types.PlacedOrder, error) {
	return c.gw.GetOrderStatus(ctx, symbol, orderID)
}

// Cancel cancels an order and records the outcome.
func (c *Composer) Cancel(ctx context.Context, symbol, orderID string, tag Tag) (*types.PlacedOrder, error) {
	order, err := c.gw.CancelOrder(ctx, symbol, orderID)
	c.recorder.RecordCancel(symbol, err == nil)
	if err != nil {
		c.logger.Error("cancel failed",
			zap.String("symbol", symbol),
			zap.String("order_id", orderID),
			zap.String("strategy", tag.Strategy),
			zap.Error(err),
		)
		c.Record(ctx, journal.Event{
			Kind: journal.KindCancelFailed, RunID: tag.RunID, Strategy: tag.Strategy,
			Symbol: symbol, OrderID: orderID, Message: err.Error(),
		})
		return nil, err
	}

	c.logger.Info("order canceled",
		zap.String("symbol", symbol),
		zap.String("order_id", orderID),
		zap.String("strategy", tag.Strategy),
	)
	c.Record(ctx, journal.Event{
		Kind: journal.KindOrderCanceled, RunID: tag.RunID, Strategy: tag.Strategy,
		Symbol: symbol, OrderID: orderID, Status: string(order.Status),
	})
	return order, nil
}

// Balances returns account balances.
func (c *Composer) Balances(ctx context.Context) ([]types.Balance, error) {
	return c.gw.GetAccountBalances(ctx)
}

// Reject logs, counts and journals a validation failure, then returns err.
// Errors that are not validation errors pass through untouched.
func (c *Composer) Reject(ctx context.Context, symbol string, tag Tag, err error) error {
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		return err
	}

	c.logger.Warn("validation failed",
		zap.String("symbol", symbol),
		zap.String("field", verr.Field),
		zap.String("value", verr.Value),
		zap.String("strategy", tag.Strategy),
		zap.Error(err),
	)
	c.recorder.RecordValidationFailure(verr.Field)
	c.Record(ctx, journal.Event{
		Kind:     journal.KindValidationFailed,
		RunID:    tag.RunID,
		Strategy: tag.Strategy,
		Symbol:   symbol,
		Message:  err.Error(),
	})
	return err
}

// Record appends to the journal. Failures are logged, never returned.
func (c *Composer) Record(ctx context.Context, e journal.Event) {
	if err := c.journal.Append(ctx, e); err != nil {
		c.recorder.RecordJournalError()
		c.logger.Warn("journal append failed", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}

// Alert delivers an event to the alert channel. Delivery failures are logged.
func (c *Composer) Alert(ctx context.Context, event alerting.Event, msg string, fields ...any) {
	if err := alerting.Send(ctx, c.alerter, event, msg, fields...); err != nil {
		c.logger.Warn("alert failed", zap.String("event", string(event)), zap.Error(err))
	}
}

// ParseIntentSide checks side and quantity, the two checks shared by every
// order kind.
func ParseIntentSide(side string, qty decimal.Decimal) (types.Side, error) {
	s, err := types.ParseSide(side)
	if err != nil {
		return "", err
	}
	if err := RequireQuantity("quantity", qty); err != nil {
		return "", err
	}
	return s, nil
}

func firstPositive(vals ...decimal.Decimal) decimal.Decimal {
	for _, v := range vals {
		if v.IsPositive() {
			return v
		}
	}
	return decimal.Zero
}
