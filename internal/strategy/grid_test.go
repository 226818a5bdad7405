package strategy

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tathienbao/futures-exec/internal/alerting"
	"github.com/tathienbao/futures-exec/internal/execution"
	"github.com/tathienbao/futures-exec/internal/gateway/paper"
	"github.com/tathienbao/futures-exec/internal/journal"
	"github.com/tathienbao/futures-exec/internal/types"
)

func fastGrid(f *fixture) *Grid {
	return NewGrid(f.composer, GridConfig{PollInterval: time.Millisecond, ErrorBackoff: time.Millisecond}, nil)
}

func gridParams() GridParams {
	return GridParams{
		Symbol:   "BTCUSDT",
		Lower:    d("100"),
		Upper:    d("110"),
		Levels:   6,
		Quantity: d("0.01"),
	}
}

func stopGrid(t *testing.T, g *Grid) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

// TestLevels tests level spacing and rounding.
func TestLevels(t *testing.T) {
	tests := []struct {
		name  string
		lower string
		upper string
		n     int
		tick  string
		want  []string
	}{
		{"even", "100", "110", 6, "0.01", []string{"100", "102", "104", "106", "108", "110"}},
		{"two levels", "100", "101", 2, "0.01", []string{"100", "101"}},
		{"rounded down", "100", "101", 4, "0.01", []string{"100", "100.33", "100.66", "101"}},
		{"coarse tick", "100", "110", 4, "5", []string{"100", "100", "105", "110"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Levels(d(tt.lower), d(tt.upper), tt.n, d(tt.tick))
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, w := range tt.want {
				if !got[i].Equal(d(w)) {
					t.Errorf("level[%d] = %s, want %s", i, got[i], w)
				}
			}
		})
	}

	if Levels(d("1"), d("2"), 1, d("0.01")) != nil {
		t.Error("Levels() with n < 2 should be nil")
	}
}

// TestGrid_Placement tests the buy/sell pairs and their order.
func TestGrid_Placement(t *testing.T) {
	f := newFixture()
	g := fastGrid(f)

	placed, err := g.Start(context.Background(), gridParams())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stopGrid(t, g)

	if len(placed) != 10 {
		t.Fatalf("placed = %d, want 10", len(placed))
	}

	want := []struct {
		side  types.Side
		price string
	}{
		{types.SideBuy, "100"}, {types.SideSell, "102"},
		{types.SideBuy, "102"}, {types.SideSell, "104"},
		{types.SideBuy, "104"}, {types.SideSell, "106"},
		{types.SideBuy, "106"}, {types.SideSell, "108"},
		{types.SideBuy, "108"}, {types.SideSell, "110"},
	}
	for i, req := range f.gw.Submitted() {
		if req.Side != want[i].side || !req.Price.Equal(d(want[i].price)) {
			t.Errorf("order %d = %s @ %s, want %s @ %s", i, req.Side, req.Price, want[i].side, want[i].price)
		}
		if req.Type != types.OrderTypeLimit || req.TimeInForce != types.TIFGoodTillCancel {
			t.Errorf("order %d = %s %s, want LIMIT GTC", i, req.Type, req.TimeInForce)
		}
		if !req.Quantity.Equal(d("0.01")) {
			t.Errorf("order %d quantity = %s", i, req.Quantity)
		}
	}

	if got := len(g.ActiveOrders()); got != 10 {
		t.Errorf("ActiveOrders() = %d, want 10", got)
	}
	if !f.alerts.HasEvent(alerting.EventGridStarted) {
		t.Error("expected grid_started alert")
	}
}

// TestGrid_PlacementFailureUnwinds tests rollback of a partial grid.
func TestGrid_PlacementFailureUnwinds(t *testing.T) {
	f := newFixture()
	gwErr := &types.GatewayError{Op: "submit order", Code: -2019, Message: "Margin is insufficient."}
	f.gw.OnSubmit(func(n int, _ types.OrderRequest) error {
		if n == 4 {
			return gwErr
		}
		return nil
	})

	g := fastGrid(f)
	placed, err := g.Start(context.Background(), gridParams())

	var abort *types.StrategyAbortError
	if !errors.As(err, &abort) {
		t.Fatalf("err = %v, want StrategyAbortError", err)
	}
	if placed != nil {
		t.Errorf("placed = %v, want nil", placed)
	}
	if !errors.Is(err, gwErr) {
		t.Error("abort should wrap the gateway error")
	}
	if len(abort.Placed) != 3 {
		t.Errorf("abort.Placed = %v, want 3 ids", abort.Placed)
	}
	for _, id := range []string{"1", "2", "3"} {
		if n := f.gw.CancelCount(id); n != 1 {
			t.Errorf("CancelCount(%s) = %d, want 1", id, n)
		}
	}

	select {
	case <-g.Done():
	default:
		t.Error("Done() should be closed after a failed start")
	}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop() after failed start = %v", err)
	}
	if len(f.gw.Canceled()) != 3 {
		t.Errorf("canceled = %v, want 3", f.gw.Canceled())
	}
}

// TestGrid_ReplacesFills tests opposite-side replacements at the offset.
func TestGrid_ReplacesFills(t *testing.T) {
	f := newFixture()
	f.gw.OnStatus(func(id string, _ int) (types.OrderStatus, error) {
		if id == "1" || id == "2" {
			return types.OrderStatusFilled, nil
		}
		return "", nil
	})

	g := fastGrid(f)
	if _, err := g.Start(context.Background(), gridParams()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, "two replacements", func() bool { return f.gw.SubmitCount() >= 12 })

	reqs := f.gw.Submitted()
	// Buy at 100 filled: sell 1% above.
	if reqs[10].Side != types.SideSell || !reqs[10].Price.Equal(d("101")) {
		t.Errorf("replacement 1 = %s @ %s, want SELL @ 101", reqs[10].Side, reqs[10].Price)
	}
	// Sell at 102 filled: buy 1% below.
	if reqs[11].Side != types.SideBuy || !reqs[11].Price.Equal(d("100.98")) {
		t.Errorf("replacement 2 = %s @ %s, want BUY @ 100.98", reqs[11].Side, reqs[11].Price)
	}
	if !reqs[10].Quantity.Equal(d("0.01")) {
		t.Errorf("replacement quantity = %s, want 0.01", reqs[10].Quantity)
	}

	var active []types.PlacedOrder
	waitFor(t, "pass to publish", func() bool {
		active = g.ActiveOrders()
		return len(active) == 10 && active[9].OrderID == "12"
	})
	ids := make(map[string]bool)
	for _, o := range active {
		ids[o.OrderID] = true
	}
	if ids["1"] || ids["2"] || !ids["11"] || !ids["12"] {
		t.Errorf("active ids = %v", ids)
	}

	stopGrid(t, g)

	if f.gw.CancelCount("1") != 0 || f.gw.CancelCount("2") != 0 {
		t.Error("filled orders must not be cancelled")
	}
	if f.gw.CancelCount("11") != 1 || f.gw.CancelCount("12") != 1 {
		t.Error("replacements should be cancelled once")
	}
	if f.kinds()[journal.KindGridReplaced] != 2 {
		t.Errorf("grid_replaced events = %d, want 2", f.kinds()[journal.KindGridReplaced])
	}
	if !f.alerts.HasEvent(alerting.EventGridFill) {
		t.Error("expected grid_fill alert")
	}
}

// TestGrid_ReplacementFailureDropsOrder tests that a failed replacement is
// skipped and supervision continues.
func TestGrid_ReplacementFailureDropsOrder(t *testing.T) {
	f := newFixture()
	f.gw.OnStatus(statusOf("1", types.OrderStatusFilled))
	f.gw.OnSubmit(func(n int, _ types.OrderRequest) error {
		if n == 11 {
			return errors.New("connection reset")
		}
		return nil
	})

	g := fastGrid(f)
	if _, err := g.Start(context.Background(), gridParams()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, "failed replacement", func() bool { return f.gw.SubmitCount() >= 11 })
	waitFor(t, "next pass", func() bool { return len(g.ActiveOrders()) == 9 })

	stopGrid(t, g)
	if n := len(f.gw.Canceled()); n != 9 {
		t.Errorf("canceled = %d, want 9", n)
	}
}

// TestGrid_StopCancelsEachOrderOnce tests stop semantics.
func TestGrid_StopCancelsEachOrderOnce(t *testing.T) {
	f := newFixture()
	f.gw.OnCancel(func(id string) error {
		if id == "4" {
			return errors.New("unknown order sent")
		}
		return nil
	})

	g := fastGrid(f)
	if _, err := g.Start(context.Background(), gridParams()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	stopGrid(t, g)
	stopGrid(t, g)

	for i := 1; i <= 10; i++ {
		id := strconv.Itoa(i)
		if n := f.gw.CancelCount(id); n != 1 {
			t.Errorf("CancelCount(%s) = %d, want 1", id, n)
		}
	}
	if !f.alerts.HasEvent(alerting.EventCancelFailed) {
		t.Error("expected cancel_failed alert")
	}
	if !f.alerts.HasEvent(alerting.EventGridStopped) {
		t.Error("expected grid_stopped alert")
	}
	if g.ActiveOrders() != nil {
		t.Error("ActiveOrders() after stop should be empty")
	}

	// No further polling after stop.
	calls := f.gw.StatusCalls()
	time.Sleep(10 * time.Millisecond)
	if f.gw.StatusCalls() != calls {
		t.Error("supervisor kept polling after Stop")
	}
}

// TestGrid_StopDuringPlacement tests that orders placed before a concurrent
// Stop are cancelled.
func TestGrid_StopDuringPlacement(t *testing.T) {
	f := newFixture()
	entered := make(chan struct{})
	release := make(chan struct{})
	f.gw.OnSubmit(func(n int, _ types.OrderRequest) error {
		if n == 3 {
			close(entered)
			<-release
		}
		return nil
	})

	g := fastGrid(f)
	type startResult struct {
		placed []*types.PlacedOrder
		err    error
	}
	started := make(chan startResult, 1)
	go func() {
		placed, err := g.Start(context.Background(), gridParams())
		started <- startResult{placed, err}
	}()
	<-entered

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		stopped <- g.Stop(ctx)
	}()
	waitFor(t, "stop signal", g.stopped)
	close(release)

	res := <-started
	if res.err != nil {
		t.Fatalf("Start() error = %v", res.err)
	}
	if err := <-stopped; err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if len(res.placed) != 3 || f.gw.SubmitCount() != 3 {
		t.Errorf("placed = %d, submitted = %d, want 3", len(res.placed), f.gw.SubmitCount())
	}
	for _, o := range res.placed {
		if n := f.gw.CancelCount(o.OrderID); n != 1 {
			t.Errorf("CancelCount(%s) = %d, want 1", o.OrderID, n)
		}
	}
	if got := len(g.ActiveOrders()); got != 0 {
		t.Errorf("ActiveOrders() after stop = %d, want 0", got)
	}
}

// TestGrid_StopBeforeStart tests that a stopped grid places nothing.
func TestGrid_StopBeforeStart(t *testing.T) {
	f := newFixture()
	g := fastGrid(f)
	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if _, err := g.Start(context.Background(), gridParams()); err == nil {
		t.Error("Start() after Stop should fail")
	}
	if f.gw.SubmitCount() != 0 {
		t.Errorf("SubmitCount() = %d, want 0", f.gw.SubmitCount())
	}
	select {
	case <-g.Done():
	default:
		t.Error("Done() should be closed")
	}
}

// TestGrid_ActiveOrdersDuringPass tests that snapshots do not wait for a
// slow pass.
func TestGrid_ActiveOrdersDuringPass(t *testing.T) {
	f := newFixture()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.gw.OnStatus(func(string, int) (types.OrderStatus, error) {
		once.Do(func() { close(entered) })
		<-release
		return "", nil
	})

	g := fastGrid(f)
	if _, err := g.Start(context.Background(), gridParams()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-entered

	got := make(chan int, 1)
	go func() { got <- len(g.ActiveOrders()) }()
	select {
	case n := <-got:
		if n != 10 {
			t.Errorf("ActiveOrders() = %d, want 10", n)
		}
	case <-time.After(time.Second):
		t.Error("ActiveOrders() blocked on a running pass")
	}

	close(release)
	stopGrid(t, g)
}

// TestGrid_ErrorBackoff tests the longer wait after a failed pass.
func TestGrid_ErrorBackoff(t *testing.T) {
	f := newFixture()
	f.gw.OnStatus(func(id string, _ int) (types.OrderStatus, error) {
		if id == "1" {
			return "", errors.New("timeout")
		}
		return "", nil
	})

	g := NewGrid(f.composer, GridConfig{PollInterval: time.Millisecond, ErrorBackoff: time.Hour}, nil)
	if _, err := g.Start(context.Background(), gridParams()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, "first pass", func() bool { return f.gw.StatusCalls() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if n := f.gw.StatusCalls(); n != 1 {
		t.Errorf("StatusCalls() = %d, want 1 during backoff", n)
	}
	if got := len(g.ActiveOrders()); got != 10 {
		t.Errorf("ActiveOrders() = %d, want 10", got)
	}

	start := time.Now()
	stopGrid(t, g)
	if time.Since(start) > time.Second {
		t.Error("Stop did not interrupt the backoff")
	}
	if len(f.gw.Canceled()) != 10 {
		t.Errorf("canceled = %d, want 10", len(f.gw.Canceled()))
	}
}

// TestGrid_Validation tests parameter checks.
func TestGrid_Validation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(p *GridParams)
		wantErr     error
		wantLookups int
	}{
		{"upper equals lower", func(p *GridParams) { p.Upper = p.Lower }, types.ErrInvalidStrategyParams, 0},
		{"upper below lower", func(p *GridParams) { p.Upper = d("90") }, types.ErrInvalidStrategyParams, 0},
		{"one level", func(p *GridParams) { p.Levels = 1 }, types.ErrInvalidStrategyParams, 0},
		{"zero quantity", func(p *GridParams) { p.Quantity = d("0") }, types.ErrInvalidQuantity, 0},
		{"negative lower", func(p *GridParams) { p.Lower = d("-5") }, types.ErrInvalidPrice, 0},
		{"unknown symbol", func(p *GridParams) { p.Symbol = "FOO" }, types.ErrUnknownInstrument, 1},
		{"upper out of range", func(p *GridParams) { p.Upper = d("2000000") }, types.ErrOutOfRange, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			p := gridParams()
			tt.mutate(&p)

			_, err := fastGrid(f).Start(context.Background(), p)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if f.gw.SubmitCount() != 0 {
				t.Errorf("SubmitCount() = %d, want 0", f.gw.SubmitCount())
			}
			if f.gw.RulesCalls() != tt.wantLookups {
				t.Errorf("RulesCalls() = %d, want %d", f.gw.RulesCalls(), tt.wantLookups)
			}
		})
	}
}

// TestGrid_StartTwice tests that a grid runs once.
func TestGrid_StartTwice(t *testing.T) {
	f := newFixture()
	g := fastGrid(f)
	if _, err := g.Start(context.Background(), gridParams()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stopGrid(t, g)

	if _, err := g.Start(context.Background(), gridParams()); err == nil {
		t.Error("second Start() should fail")
	}
}

// TestGrid_PaperGateway runs a grid against the simulation gateway, where
// every order fills on its first status query.
func TestGrid_PaperGateway(t *testing.T) {
	gw := paper.New(paper.DefaultConfig(), nil)
	c := execution.NewComposer(gw, execution.Options{})
	g := NewGrid(c, GridConfig{PollInterval: time.Millisecond}, nil)

	placed, err := g.Start(context.Background(), gridParams())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if placed[0].OrderID != "100001" {
		t.Errorf("first order id = %s, want 100001", placed[0].OrderID)
	}

	waitFor(t, "replacements", func() bool { return gw.OrderCount() > 20 })
	stopGrid(t, g)

	if got := len(g.ActiveOrders()); got != 0 {
		t.Errorf("ActiveOrders() after stop = %d", got)
	}
}
