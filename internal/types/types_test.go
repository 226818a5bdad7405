package types

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

// TestParseSide tests side normalization.
func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"buy", SideBuy, false},
		{"BUY", SideBuy, false},
		{"Sell", SideSell, false},
		{" sell ", SideSell, false},
		{"long", "", true},
		{"b", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSide(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSide) {
				t.Errorf("ParseSide(%q) err = %v, want ErrInvalidSide", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSide(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSide(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// TestSide_Opposite tests direction flip.
func TestSide_Opposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell {
		t.Errorf("BUY.Opposite() = %s, want SELL", SideBuy.Opposite())
	}
	if SideSell.Opposite() != SideBuy {
		t.Errorf("SELL.Opposite() = %s, want BUY", SideSell.Opposite())
	}
}

// TestParseTimeInForce tests time-in-force normalization.
func TestParseTimeInForce(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeInForce
		wantErr bool
	}{
		{"", TIFGoodTillCancel, false},
		{"gtc", TIFGoodTillCancel, false},
		{"IOC", TIFImmediateOrCancel, false},
		{"fok", TIFFillOrKill, false},
		{"GTD", "", true},
		{"DAY", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTimeInForce(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidTimeInForce) {
				t.Errorf("ParseTimeInForce(%q) err = %v, want ErrInvalidTimeInForce", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseTimeInForce(%q) = %s, %v, want %s", tt.in, got, err, tt.want)
		}
	}
}

// TestOrderStatus_IsFinal tests terminal state check.
func TestOrderStatus_IsFinal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderStatusNew, false},
		{OrderStatusPartiallyFilled, false},
		{OrderStatusFilled, true},
		{OrderStatusCanceled, true},
		{OrderStatusRejected, true},
		{OrderStatusExpired, true},
		{OrderStatus("EXPIRED_IN_MATCH"), false},
	}

	for _, tt := range tests {
		if got := tt.status.IsFinal(); got != tt.want {
			t.Errorf("OrderStatus(%s).IsFinal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

// TestPlacedOrder_String tests the summary line.
func TestPlacedOrder_String(t *testing.T) {
	o := &PlacedOrder{
		OrderID:  "100001",
		Symbol:   "BTCUSDT",
		Side:     SideBuy,
		Type:     OrderTypeLimit,
		Quantity: decimal.RequireFromString("0.01"),
		Price:    decimal.RequireFromString("25000"),
		Status:   OrderStatusNew,
	}

	s := o.String()
	for _, want := range []string{"100001", "BTCUSDT", "BUY", "LIMIT", "qty=0.01", "price=25000"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
	if strings.Contains(s, "stop=") {
		t.Errorf("String() = %q, should not include stop", s)
	}

	var nilOrder *PlacedOrder
	if nilOrder.String() != "<nil>" {
		t.Errorf("nil String() = %q", nilOrder.String())
	}
}

// TestErrorTypes tests wrapping of the error taxonomy.
func TestErrorTypes(t *testing.T) {
	verr := &ValidationError{Field: "quantity", Value: "0", Err: ErrInvalidQuantity}
	if !errors.Is(verr, ErrInvalidQuantity) {
		t.Error("ValidationError should unwrap to its sentinel")
	}

	hinted := &ValidationError{Field: "chunk", Value: "0.00001", Err: ErrChunkTooSmall, Hint: "Try fewer chunks"}
	if !strings.Contains(hinted.Error(), "Try fewer chunks") {
		t.Errorf("Error() = %q, want hint", hinted.Error())
	}

	gerr := &GatewayError{Op: "submit order", Code: -2015, Message: "Invalid API-key, IP, or permissions for action."}
	if !gerr.IsAuthFailure() {
		t.Error("code -2015 should be an auth failure")
	}
	if !strings.Contains(gerr.Error(), "-2015") {
		t.Errorf("Error() = %q, want code", gerr.Error())
	}

	abort := &StrategyAbortError{Strategy: "grid", Phase: "placement", Placed: []string{"1", "2"}, Err: gerr}
	var target *GatewayError
	if !errors.As(abort, &target) {
		t.Fatal("StrategyAbortError should unwrap to GatewayError")
	}
	if target.Code != -2015 {
		t.Errorf("unwrapped code = %d, want -2015", target.Code)
	}
}
