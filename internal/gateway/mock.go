package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/futures-exec/internal/types"
)

// SubmitHook can fail the n-th submission (1-based).
type SubmitHook func(n int, req types.OrderRequest) error

// StatusHook decides the status reported on the n-th query (1-based) for an order.
type StatusHook func(orderID string, n int) (types.OrderStatus, error)

// CancelHook can fail a cancel request.
type CancelHook func(orderID string) error

// Mock is a scriptable in-memory Gateway for tests.
type Mock struct {
	mu sync.Mutex

	rules    map[string]types.InstrumentRules
	rulesErr error
	balances []types.Balance

	nextID    int64
	orders    map[string]*types.PlacedOrder
	submitted []types.OrderRequest
	canceled  []string
	queries   map[string]int

	rulesCalls  int
	statusCalls int

	onSubmit SubmitHook
	onStatus StatusHook
	onCancel CancelHook
}

// DefaultRules returns BTCUSDT-like rules used by tests and dry runs.
func DefaultRules(symbol string) types.InstrumentRules {
	return types.InstrumentRules{
		Symbol:       symbol,
		PriceTick:    decimal.RequireFromString("0.01"),
		PriceMin:     decimal.RequireFromString("0.01"),
		PriceMax:     decimal.RequireFromString("1000000"),
		QuantityStep: decimal.RequireFromString("0.0001"),
		QuantityMin:  decimal.RequireFromString("0.0001"),
		QuantityMax:  decimal.RequireFromString("1000"),
	}
}

// NewMock creates a mock exchange that knows BTCUSDT.
func NewMock() *Mock {
	return &Mock{
		rules:    map[string]types.InstrumentRules{"BTCUSDT": DefaultRules("BTCUSDT")},
		orders:   make(map[string]*types.PlacedOrder),
		queries:  make(map[string]int),
		balances: []types.Balance{{Asset: "USDT", Balance: decimal.NewFromInt(1000), Available: decimal.NewFromInt(1000)}},
	}
}

// SetRules registers or replaces rules for a symbol.
func (m *Mock) SetRules(rules types.InstrumentRules) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rules.Symbol] = rules
}

// FailRules makes every rules lookup fail with err.
func (m *Mock) FailRules(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rulesErr = err
}

// OnSubmit installs a submit hook.
func (m *Mock) OnSubmit(h SubmitHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSubmit = h
}

// OnStatus installs a status hook.
func (m *Mock) OnStatus(h StatusHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = h
}

// OnCancel installs a cancel hook.
func (m *Mock) OnCancel(h CancelHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCancel = h
}

// SetStatus forces the stored status of an order.
func (m *Mock) SetStatus(orderID string, status types.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.Status = status
	}
}

// GetInstrumentRules implements Gateway.
func (m *Mock) GetInstrumentRules(_ context.Context, symbol string) (types.InstrumentRules, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rulesCalls++

	if m.rulesErr != nil {
		return types.InstrumentRules{}, m.rulesErr
	}
	rules, ok := m.rules[strings.ToUpper(symbol)]
	if !ok {
		return types.InstrumentRules{}, fmt.Errorf("%s: %w", symbol, types.ErrUnknownInstrument)
	}
	return rules, nil
}

// SubmitOrder implements Gateway.
func (m *Mock) SubmitOrder(_ context.Context, req types.OrderRequest) (*types.PlacedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submitted = append(m.submitted, req)
	if m.onSubmit != nil {
		if err := m.onSubmit(len(m.submitted), req); err != nil {
			return nil, err
		}
	}

	m.nextID++
	order := &types.PlacedOrder{
		OrderID:       strconv.FormatInt(m.nextID, 10),
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
	m.orders[order.OrderID] = order

	out := *order
	return &out, nil
}

// GetOrderStatus implements Gateway.
func (m *Mock) GetOrderStatus(_ context.Context, symbol, orderID string) (*types.PlacedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++

	order, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, types.ErrOrderNotFound)
	}

	m.queries[orderID]++
	if m.onStatus != nil {
		status, err := m.onStatus(orderID, m.queries[orderID])
		if err != nil {
			return nil, err
		}
		if status != "" {
			order.Status = status
		}
	}

	out := *order
	return &out, nil
}

// CancelOrder implements Gateway.
func (m *Mock) CancelOrder(_ context.Context, symbol, orderID string) (*types.PlacedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.canceled = append(m.canceled, orderID)
	if m.onCancel != nil {
		if err := m.onCancel(orderID); err != nil {
			return nil, err
		}
	}

	order, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, types.ErrOrderNotFound)
	}
	order.Status = types.OrderStatusCanceled
	order.UpdatedAt = time.Now()

	out := *order
	return &out, nil
}

// GetAccountBalances implements Gateway.
func (m *Mock) GetAccountBalances(_ context.Context) ([]types.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Balance, len(m.balances))
	copy(out, m.balances)
	return out, nil
}

// Submitted returns every request passed to SubmitOrder, including failed ones.
func (m *Mock) Submitted() []types.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.OrderRequest, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// SubmitCount returns the number of SubmitOrder calls.
func (m *Mock) SubmitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submitted)
}

// Canceled returns every order id passed to CancelOrder, in call order.
func (m *Mock) Canceled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.canceled))
	copy(out, m.canceled)
	return out
}

// CancelCount returns how many times orderID was cancelled.
func (m *Mock) CancelCount(orderID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.canceled {
		if id == orderID {
			n++
		}
	}
	return n
}

// RulesCalls returns the number of rules lookups.
func (m *Mock) RulesCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rulesCalls
}

// StatusCalls returns the number of status queries.
func (m *Mock) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

// Order returns the stored order, if any.
func (m *Mock) Order(orderID string) (types.PlacedOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return types.PlacedOrder{}, false
	}
	return *o, true
}

var _ Gateway = (*Mock)(nil)
