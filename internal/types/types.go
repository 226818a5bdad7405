// Package types defines core domain types for order execution.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the order direction.
type Side string

const (
	// SideBuy opens or adds to a long position.
	SideBuy Side = "BUY"
	// SideSell opens or adds to a short position.
	SideSell Side = "SELL"
)

// ParseSide normalizes a caller-supplied side. Only "buy" and "sell" are
// accepted, in any letter case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SideBuy):
		return SideBuy, nil
	case string(SideSell):
		return SideSell, nil
	default:
		return "", &ValidationError{Field: "side", Value: s, Err: ErrInvalidSide}
	}
}

// String returns the wire representation.
func (s Side) String() string {
	return string(s)
}

// Opposite returns the exit side for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the exchange order type.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStop       OrderType = "STOP"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

// TimeInForce controls how long a resting order stays live.
type TimeInForce string

const (
	// TIFGoodTillCancel rests until filled or cancelled.
	TIFGoodTillCancel TimeInForce = "GTC"
	// TIFImmediateOrCancel fills what it can and cancels the rest.
	TIFImmediateOrCancel TimeInForce = "IOC"
	// TIFFillOrKill fills completely or not at all.
	TIFFillOrKill TimeInForce = "FOK"
)

// ParseTimeInForce normalizes a time-in-force string. Empty means GTC.
func ParseTimeInForce(s string) (TimeInForce, error) {
	switch tif := TimeInForce(strings.ToUpper(strings.TrimSpace(s))); tif {
	case "":
		return TIFGoodTillCancel, nil
	case TIFGoodTillCancel, TIFImmediateOrCancel, TIFFillOrKill:
		return tif, nil
	default:
		return "", &ValidationError{Field: "time_in_force", Value: s, Err: ErrInvalidTimeInForce}
	}
}

// WorkingType selects the price stop orders trigger against.
type WorkingType string

const (
	WorkingTypeMarkPrice     WorkingType = "MARK_PRICE"
	WorkingTypeContractPrice WorkingType = "CONTRACT_PRICE"
)

// OrderStatus is the exchange-reported order state. Exchanges may report
// values outside the known set; those are carried through verbatim.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsFinal returns true if the order can no longer change.
func (s OrderStatus) IsFinal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// InstrumentRules holds the exchange quantization and bounds for a symbol.
// A zero max means the exchange publishes no upper bound.
type InstrumentRules struct {
	Symbol       string
	PriceTick    decimal.Decimal
	PriceMin     decimal.Decimal
	PriceMax     decimal.Decimal
	QuantityStep decimal.Decimal
	QuantityMin  decimal.Decimal
	QuantityMax  decimal.Decimal
}

// OrderRequest is a fully validated order ready for submission.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	Price         decimal.Decimal // zero for market orders
	StopPrice     decimal.Decimal // zero unless stop order
	TimeInForce   TimeInForce     // empty for market and stop-market
	ReduceOnly    bool
	WorkingType   WorkingType
}

// HasPrice returns true if the request carries a limit price.
func (r OrderRequest) HasPrice() bool {
	return r.Price.IsPositive()
}

// HasStopPrice returns true if the request carries a trigger price.
func (r OrderRequest) HasStopPrice() bool {
	return r.StopPrice.IsPositive()
}

// PlacedOrder is the exchange's view of a submitted order.
type PlacedOrder struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	StopPrice     decimal.Decimal
	TimeInForce   TimeInForce
	Status        OrderStatus
	ReduceOnly    bool
	UpdatedAt     time.Time
}

// String renders a one-line summary.
func (o *PlacedOrder) String() string {
	if o == nil {
		return "<nil>"
	}
	s := fmt.Sprintf("%s %s %s %s qty=%s status=%s", o.OrderID, o.Symbol, o.Side, o.Type, o.Quantity, o.Status)
	if o.Price.IsPositive() {
		s += " price=" + o.Price.String()
	}
	if o.StopPrice.IsPositive() {
		s += " stop=" + o.StopPrice.String()
	}
	return s
}

// Balance is a single asset balance.
type Balance struct {
	Asset     string
	Balance   decimal.Decimal
	Available decimal.Decimal
}
