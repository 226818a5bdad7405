package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tathienbao/futures-exec/internal/strategy"
	"github.com/tathienbao/futures-exec/internal/types"
	"github.com/tathienbao/futures-exec/internal/ui"
)

const shutdownTimeout = 30 * time.Second

func cmdOCO(g *globals, args []string) error {
	fs := flag.NewFlagSet("oco", flag.ExitOnError)
	detach := fs.Bool("detach", false, "Exit after placing the orders instead of waiting for resolution")
	pos := g.parse(fs, args)
	if len(pos) != 5 && len(pos) != 6 {
		return usageError(fs, "<symbol> <side> <qty> <tp> <sl> [entryPrice]")
	}
	vals, err := parseDecimals([]string{"quantity", "take-profit price", "stop-loss price"}, pos[2:5])
	if err != nil {
		return err
	}
	params := strategy.OCOParams{
		Symbol:     pos[0],
		Side:       pos[1],
		Quantity:   vals[0],
		TakeProfit: vals[1],
		StopLoss:   vals[2],
	}
	if len(pos) == 6 {
		entry, err := parseDecimal("entry price", pos[5])
		if err != nil {
			return err
		}
		params.EntryPrice = decimal.NewNullDecimal(entry)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if params.EntryPrice.Valid {
		fmt.Printf("Waiting for limit entry at %s to fill...\n", params.EntryPrice.Decimal)
	}
	run, err := s.bot.NewOCO().Place(ctx, params)
	if err != nil {
		s.logFailure("oco failed", err,
			zap.String("symbol", pos[0]), zap.String("side", pos[1]), zap.String("quantity", pos[2]),
			zap.String("take_profit", pos[3]), zap.String("stop_loss", pos[4]))
		return err
	}

	fmt.Println("\nOCO Order Details:")
	fmt.Println(strings.Repeat("-", 40))
	for _, leg := range []struct {
		name  string
		order *types.PlacedOrder
	}{{"ENTRY", run.Entry}, {"TAKE_PROFIT", run.TakeProfit}, {"STOP_LOSS", run.StopLoss}} {
		fmt.Printf("\n%s:", leg.name)
		printOrder(leg.order)
	}

	if *detach {
		fmt.Println("\nDetached: the exit orders stay on the exchange unmonitored.")
		return nil
	}

	fmt.Println("\nMonitoring exit orders (Ctrl+C to stop monitoring)...")
	<-run.Done()
	res := run.Result()
	switch res.Resolution {
	case strategy.ResolvedByFill:
		fmt.Printf("%s filled; the other leg was canceled.\n", res.Winner)
		if res.CancelErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: cancel of the other leg failed: %v\n", res.CancelErr)
		}
	case strategy.ResolvedByCancel:
		fmt.Println("Monitoring stopped; both exit orders remain on the exchange.")
	case strategy.ResolvedByError:
		return fmt.Errorf("oco monitoring failed: %w", res.Err)
	}
	return nil
}

func cmdTWAP(g *globals, args []string) error {
	fs := flag.NewFlagSet("twap", flag.ExitOnError)
	useLimit := fs.Bool("use-limit", false, "Use limit orders instead of market")
	limitPrice := fs.String("limit-price", "", "Limit price (required with --use-limit)")
	pos := g.parse(fs, args)
	if len(pos) != 5 {
		return usageError(fs, "<symbol> <side> <total> <chunks> <minutes> [--use-limit --limit-price P]")
	}
	total, err := parseDecimal("total quantity", pos[2])
	if err != nil {
		return err
	}
	chunks, err := parseInt("chunks", pos[3])
	if err != nil {
		return err
	}
	minutes, err := parseDecimal("duration", pos[4])
	if err != nil {
		return err
	}
	params := strategy.TWAPParams{
		Symbol:   pos[0],
		Side:     pos[1],
		Total:    total,
		Chunks:   chunks,
		Duration: time.Duration(minutes.Mul(decimal.NewFromInt(int64(time.Minute))).IntPart()),
		UseLimit: *useLimit,
	}
	if *useLimit {
		if *limitPrice == "" {
			return fmt.Errorf("--limit-price is required when using --use-limit")
		}
		if params.LimitPrice, err = parseDecimal("limit price", *limitPrice); err != nil {
			return err
		}
	}

	ctx := context.Background()
	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	tw := s.bot.NewTWAP()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		if _, ok := <-sig; ok {
			tw.Stop()
		}
	}()

	orders, err := tw.Execute(ctx, params)

	fmt.Println("\nTWAP Execution Details:")
	fmt.Println(strings.Repeat("-", 40))
	for i, o := range orders {
		fmt.Printf("\nChunk %d:", i+1)
		printOrder(o)
	}
	if err != nil {
		s.logFailure("twap failed", err,
			zap.String("symbol", pos[0]), zap.String("side", pos[1]), zap.String("total", pos[2]),
			zap.Int("chunks", chunks), zap.Int("executed", len(orders)))
		return err
	}
	if len(orders) < chunks {
		fmt.Printf("\nStopped after %d of %d chunks.\n", len(orders), chunks)
	}
	return nil
}

func cmdGrid(g *globals, args []string) error {
	fs := flag.NewFlagSet("grid", flag.ExitOnError)
	pos := g.parse(fs, args)
	if len(pos) != 5 {
		return usageError(fs, "<symbol> <upper> <lower> <levels> <qtyPerLevel>")
	}
	bounds, err := parseDecimals([]string{"upper price", "lower price"}, pos[1:3])
	if err != nil {
		return err
	}
	levels, err := parseInt("levels", pos[3])
	if err != nil {
		return err
	}
	qty, err := parseDecimal("quantity per level", pos[4])
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	grid := s.bot.NewGrid()
	placed, err := grid.Start(ctx, strategy.GridParams{
		Symbol:   pos[0],
		Upper:    bounds[0],
		Lower:    bounds[1],
		Levels:   levels,
		Quantity: qty,
	})
	if err != nil {
		s.logFailure("grid failed", err,
			zap.String("symbol", pos[0]), zap.String("upper", pos[1]), zap.String("lower", pos[2]),
			zap.Int("levels", levels), zap.String("quantity", pos[4]))
		return err
	}

	fmt.Println("\nGrid Strategy Details:")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Total Orders Placed: %d\n", len(placed))
	for i, o := range placed {
		fmt.Printf("\nGrid Order %d:", i+1)
		printOrder(o)
	}

	server, err := s.bot.ServeMetrics()
	if err != nil {
		s.logger.Warn("metrics server unavailable", zap.Error(err))
	} else if server != nil {
		server.RegisterStatus("grid", func() any { return grid.ActiveOrders() })
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("\nGrid running (Ctrl+C to stop and cancel all grid orders)...")
	view := ui.NewGridView(os.Stdout, placed[0].Symbol)
	view.Start()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
watch:
	for {
		view.Render(grid.ActiveOrders())
		select {
		case <-sigCtx.Done():
			break watch
		case <-grid.Done():
			break watch
		case <-ticker.C:
		}
	}
	view.Stop()

	fmt.Println("Stopping grid...")
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := grid.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop grid: %w", err)
	}
	fmt.Println("Grid stopped.")
	return nil
}
