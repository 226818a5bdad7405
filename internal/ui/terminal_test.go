package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tathienbao/futures-exec/internal/types"
)

func order(id string, side types.Side, price, qty string) types.PlacedOrder {
	return types.PlacedOrder{
		OrderID:  id,
		Side:     side,
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

// TestLadder tests ordering and coloring of the price ladder.
func TestLadder(t *testing.T) {
	orders := []types.PlacedOrder{
		order("1", types.SideBuy, "100", "0.01"),
		order("2", types.SideSell, "102", "0.01"),
		order("3", types.SideBuy, "99", "0.02"),
	}

	lines := Ladder(orders, 80)
	if len(lines) != 3 {
		t.Fatalf("Ladder() = %d lines, want 3", len(lines))
	}
	wantIDs := []string{"#2", "#1", "#3"}
	for i, id := range wantIDs {
		if !strings.Contains(lines[i], id) {
			t.Errorf("line %d = %q, want %s", i, lines[i], id)
		}
	}
	if !strings.HasPrefix(lines[0], ColorRed) {
		t.Error("sell row should be red")
	}
	if !strings.HasPrefix(lines[1], ColorGreen) {
		t.Error("buy row should be green")
	}

	// The input is not reordered.
	if orders[0].OrderID != "1" {
		t.Error("Ladder() modified its input")
	}
}

// TestLadder_Empty tests the empty placeholder.
func TestLadder_Empty(t *testing.T) {
	lines := Ladder(nil, 80)
	if len(lines) != 1 || !strings.Contains(lines[0], "no resting orders") {
		t.Errorf("Ladder(nil) = %v", lines)
	}
}

// TestLadder_Truncates tests the row cap.
func TestLadder_Truncates(t *testing.T) {
	var orders []types.PlacedOrder
	for i := 0; i < maxRows+5; i++ {
		orders = append(orders, order("x", types.SideBuy, decimal.NewFromInt(int64(100+i)).String(), "1"))
	}
	lines := Ladder(orders, 80)
	if len(lines) != maxRows+1 {
		t.Fatalf("Ladder() = %d lines, want %d", len(lines), maxRows+1)
	}
	if !strings.Contains(lines[maxRows], "5 more") {
		t.Errorf("last line = %q, want overflow note", lines[maxRows])
	}
}

// TestGridView_NonTerminal tests that plain output only reports changes.
func TestGridView_NonTerminal(t *testing.T) {
	var buf bytes.Buffer
	v := NewGridView(&buf, "BTCUSDT")
	v.Start()

	orders := []types.PlacedOrder{
		order("1", types.SideBuy, "100", "1"),
		order("2", types.SideSell, "101", "1"),
	}
	v.Render(orders)
	v.Render(orders)
	v.Render(orders[:1])
	v.Stop()

	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"BTCUSDT grid: 2 orders (1 buy, 1 sell)",
		"BTCUSDT grid: 1 orders (1 buy, 0 sell)",
	}
	if len(got) != len(want) {
		t.Fatalf("output = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
	if strings.Contains(buf.String(), "\033[") {
		t.Error("non-terminal output should carry no escape codes")
	}
}
