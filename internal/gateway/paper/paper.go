// Package paper provides a simulated exchange for dry runs.
package paper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tathienbao/futures-exec/internal/gateway"
	"github.com/tathienbao/futures-exec/internal/types"
)

// Config holds simulation settings.
type Config struct {
	Rules        []types.InstrumentRules
	Balances     []types.Balance
	FirstOrderID int64
}

// DefaultConfig returns a single BTCUSDT market with a 1000 USDT balance.
func DefaultConfig() Config {
	return Config{
		Rules: []types.InstrumentRules{{
			Symbol:       "BTCUSDT",
			PriceTick:    decimal.RequireFromString("0.01"),
			PriceMin:     decimal.RequireFromString("0.01"),
			PriceMax:     decimal.RequireFromString("1000000"),
			QuantityStep: decimal.RequireFromString("0.0001"),
			QuantityMin:  decimal.RequireFromString("0.0001"),
			QuantityMax:  decimal.RequireFromString("1000"),
		}},
		Balances: []types.Balance{{
			Asset:     "USDT",
			Balance:   decimal.RequireFromString("1000.00"),
			Available: decimal.RequireFromString("1000.00"),
		}},
		FirstOrderID: 100001,
	}
}

// Gateway implements gateway.Gateway without touching an exchange.
// Every status query reports FILLED and every cancel reports CANCELED.
type Gateway struct {
	cfg    Config
	logger *zap.Logger

	rules map[string]types.InstrumentRules

	ordersMu    sync.RWMutex
	orders      map[string]*types.PlacedOrder
	nextOrderID atomic.Int64
}

// New creates a simulated gateway.
func New(cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gateway{
		cfg:    cfg,
		logger: logger.Named("paper"),
		rules:  make(map[string]types.InstrumentRules, len(cfg.Rules)),
		orders: make(map[string]*types.PlacedOrder),
	}
	for _, r := range cfg.Rules {
		g.rules[strings.ToUpper(r.Symbol)] = r
	}

	first := cfg.FirstOrderID
	if first <= 0 {
		first = 1
	}
	g.nextOrderID.Store(first - 1)

	return g
}

// GetInstrumentRules returns the configured rules.
func (g *Gateway) GetInstrumentRules(ctx context.Context, symbol string) (types.InstrumentRules, error) {
	rules, ok := g.rules[strings.ToUpper(symbol)]
	if !ok {
		return types.InstrumentRules{}, fmt.Errorf("%s: %w", symbol, types.ErrUnknownInstrument)
	}
	return rules, nil
}

// SubmitOrder records the order as NEW and returns it.
func (g *Gateway) SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.PlacedOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := g.rules[strings.ToUpper(req.Symbol)]; !ok {
		return nil, fmt.Errorf("%s: %w", req.Symbol, types.ErrUnknownInstrument)
	}

	orderID := strconv.FormatInt(g.nextOrderID.Add(1), 10)
	order := &types.PlacedOrder{
		OrderID:       orderID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		TimeInForce:   req.TimeInForce,
		Status:        types.OrderStatusNew,
		ReduceOnly:    req.ReduceOnly,
		UpdatedAt:     time.Now(),
	}

	g.ordersMu.Lock()
	g.orders[orderID] = order
	g.ordersMu.Unlock()

	g.logger.Info("paper order placed",
		zap.String("order_id", orderID),
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side.String()),
		zap.String("type", string(req.Type)),
		zap.String("quantity", req.Quantity.String()),
		zap.String("price", req.Price.String()),
	)

	out := *order
	return &out, nil
}

// GetOrderStatus reports the order as FILLED.
func (g *Gateway) GetOrderStatus(ctx context.Context, symbol, orderID string) (*types.PlacedOrder, error) {
	g.ordersMu.Lock()
	defer g.ordersMu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, types.ErrOrderNotFound)
	}
	if order.Status != types.OrderStatusCanceled {
		order.Status = types.OrderStatusFilled
		order.UpdatedAt = time.Now()
	}

	out := *order
	return &out, nil
}

// CancelOrder reports the order as CANCELED.
func (g *Gateway) CancelOrder(ctx context.Context, symbol, orderID string) (*types.PlacedOrder, error) {
	g.ordersMu.Lock()
	defer g.ordersMu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, types.ErrOrderNotFound)
	}
	order.Status = types.OrderStatusCanceled
	order.UpdatedAt = time.Now()

	g.logger.Info("paper order canceled", zap.String("order_id", orderID), zap.String("symbol", symbol))

	out := *order
	return &out, nil
}

// GetAccountBalances returns the configured balances.
func (g *Gateway) GetAccountBalances(ctx context.Context) ([]types.Balance, error) {
	out := make([]types.Balance, len(g.cfg.Balances))
	copy(out, g.cfg.Balances)
	return out, nil
}

// OrderCount returns the number of simulated orders.
func (g *Gateway) OrderCount() int {
	g.ordersMu.RLock()
	defer g.ordersMu.RUnlock()
	return len(g.orders)
}

var _ gateway.Gateway = (*Gateway)(nil)
