// Package ui renders live strategy state in the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"github.com/tathienbao/futures-exec/internal/types"
)

// ANSI escape codes
const (
	ClearLine  = "\033[2K"
	MoveUp     = "\033[%dA"
	HideCursor = "\033[?25l"
	ShowCursor = "\033[?25h"
	ColorReset = "\033[0m"
	ColorGreen = "\033[32m"
	ColorRed   = "\033[31m"
	ColorDim   = "\033[2m"
	ColorBold  = "\033[1m"
)

// maxRows caps the ladder so a wide grid still fits on screen.
const maxRows = 40

// GridView draws a running grid's resting orders as a price ladder.
// On a terminal each Render redraws in place; otherwise a summary line is
// written whenever the order set changes.
type GridView struct {
	out    io.Writer
	symbol string
	tty    bool
	width  int
	start  time.Time

	linesPrinted int
	last         string
}

// NewGridView creates a view writing to out.
func NewGridView(out io.Writer, symbol string) *GridView {
	v := &GridView{
		out:    out,
		symbol: symbol,
		width:  80,
		start:  time.Now(),
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		v.tty = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			v.width = w
		}
	}
	return v
}

// Start hides the cursor on a terminal.
func (v *GridView) Start() {
	if v.tty {
		fmt.Fprint(v.out, HideCursor)
	}
}

// Stop restores the cursor.
func (v *GridView) Stop() {
	if v.tty {
		fmt.Fprint(v.out, ShowCursor)
		fmt.Fprintln(v.out)
	}
}

// Render draws the current active set.
func (v *GridView) Render(orders []types.PlacedOrder) {
	if !v.tty {
		summary := Summary(v.symbol, orders)
		if summary != v.last {
			fmt.Fprintln(v.out, summary)
			v.last = summary
		}
		return
	}

	// Move cursor up to overwrite previous frame
	if v.linesPrinted > 0 {
		fmt.Fprintf(v.out, MoveUp, v.linesPrinted)
	}

	lines := []string{fmt.Sprintf("%s%s grid%s │ %d orders │ up %s",
		ColorBold, v.symbol, ColorReset, len(orders), time.Since(v.start).Truncate(time.Second))}
	lines = append(lines, Ladder(orders, v.width)...)

	for _, line := range lines {
		fmt.Fprint(v.out, ClearLine)
		fmt.Fprintln(v.out, line)
	}
	// Clear rows left over from a taller previous frame.
	for i := len(lines); i < v.linesPrinted; i++ {
		fmt.Fprint(v.out, ClearLine)
		fmt.Fprintln(v.out)
	}
	if len(lines) > v.linesPrinted {
		v.linesPrinted = len(lines)
	}
}

// Ladder renders orders highest price first, sells in red and buys in
// green, with a bar proportional to quantity.
func Ladder(orders []types.PlacedOrder, width int) []string {
	if len(orders) == 0 {
		return []string{ColorDim + "  no resting orders" + ColorReset}
	}

	sorted := make([]types.PlacedOrder, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price.GreaterThan(sorted[j].Price)
	})

	maxQty := sorted[0].Quantity
	for _, o := range sorted[1:] {
		if o.Quantity.GreaterThan(maxQty) {
			maxQty = o.Quantity
		}
	}

	barWidth := width - 50
	if barWidth < 10 {
		barWidth = 10
	}

	var lines []string
	for i, o := range sorted {
		if i == maxRows {
			lines = append(lines, fmt.Sprintf("%s  ... %d more%s", ColorDim, len(sorted)-maxRows, ColorReset))
			break
		}
		color := ColorGreen
		if o.Side == types.SideSell {
			color = ColorRed
		}
		filled := barWidth
		if maxQty.IsPositive() {
			filled = int(o.Quantity.Div(maxQty).Mul(decimal.NewFromInt(int64(barWidth))).IntPart())
		}
		if filled < 1 {
			filled = 1
		}
		lines = append(lines, fmt.Sprintf("%s%-4s %14s %10s %s%s %s#%s%s",
			color, o.Side, o.Price, o.Quantity, strings.Repeat("█", filled), ColorReset,
			ColorDim, o.OrderID, ColorReset))
	}
	return lines
}

// Summary returns a one-line description of the active set.
func Summary(symbol string, orders []types.PlacedOrder) string {
	var buys, sells int
	for _, o := range orders {
		if o.Side == types.SideSell {
			sells++
		} else {
			buys++
		}
	}
	return fmt.Sprintf("%s grid: %d orders (%d buy, %d sell)", symbol, len(orders), buys, sells)
}
