package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tathienbao/futures-exec/internal/types"
)

// usageError reports wrong positional arguments for a command.
func usageError(fs *flag.FlagSet, want string) error {
	fs.Usage()
	return fmt.Errorf("usage: execbot %s %s", fs.Name(), want)
}

func parseDecimal(name, s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}

func parseDecimals(names []string, values []string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(names))
	for i, name := range names {
		v, err := parseDecimal(name, values[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseInt(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}

func printOrder(o *types.PlacedOrder) {
	fmt.Println("\nOrder Details:")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Order ID: %s\n", o.OrderID)
	fmt.Printf("Symbol: %s\n", o.Symbol)
	fmt.Printf("Side: %s\n", o.Side)
	fmt.Printf("Type: %s\n", o.Type)
	fmt.Printf("Quantity: %s\n", o.Quantity)
	if o.Price.IsPositive() {
		fmt.Printf("Price: %s\n", o.Price)
	}
	if o.StopPrice.IsPositive() {
		fmt.Printf("Stop Price: %s\n", o.StopPrice)
	}
	fmt.Printf("Status: %s\n", o.Status)
	fmt.Println(strings.Repeat("-", 40))
}

// logFailure records a failed command with the requested values.
func (s *session) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	var gerr *types.GatewayError
	if errors.As(err, &gerr) && gerr.Code != 0 {
		fields = append(fields, zap.Int("code", gerr.Code), zap.String("exchange_message", gerr.Message))
	}
	s.logger.Error(msg, fields...)
}

func cmdBalance(g *globals, args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	g.parse(fs, args)

	ctx := context.Background()
	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	balances, err := s.bot.Composer().Balances(ctx)
	if err != nil {
		s.logFailure("failed to get balance", err)
		return fmt.Errorf("failed to get account balance: %w", err)
	}

	fmt.Println("\nAccount Balances:")
	fmt.Println(strings.Repeat("-", 40))
	for _, b := range balances {
		if b.Balance.IsPositive() {
			fmt.Printf("%s: %s\n", b.Asset, b.Balance)
		}
	}
	fmt.Println(strings.Repeat("-", 40))
	return nil
}

func cmdMarket(g *globals, args []string) error {
	fs := flag.NewFlagSet("market", flag.ExitOnError)
	pos := g.parse(fs, args)
	if len(pos) != 3 {
		return usageError(fs, "<symbol> <side> <qty>")
	}
	qty, err := parseDecimal("quantity", pos[2])
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	order, err := s.bot.Composer().PlaceMarket(ctx, pos[0], pos[1], qty)
	if err != nil {
		s.logFailure("market order failed", err,
			zap.String("symbol", pos[0]), zap.String("side", pos[1]), zap.String("quantity", pos[2]))
		return err
	}
	printOrder(order)
	return nil
}

func cmdLimit(g *globals, args []string) error {
	fs := flag.NewFlagSet("limit", flag.ExitOnError)
	tif := fs.String("time-in-force", "GTC", "Time in force: GTC, IOC, FOK")
	pos := g.parse(fs, args)
	if len(pos) != 4 {
		return usageError(fs, "<symbol> <side> <qty> <price> [--time-in-force GTC|IOC|FOK]")
	}
	vals, err := parseDecimals([]string{"quantity", "price"}, pos[2:])
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	order, err := s.bot.Composer().PlaceLimit(ctx, pos[0], pos[1], vals[0], vals[1], *tif)
	if err != nil {
		s.logFailure("limit order failed", err,
			zap.String("symbol", pos[0]), zap.String("side", pos[1]),
			zap.String("quantity", pos[2]), zap.String("price", pos[3]), zap.String("time_in_force", *tif))
		return err
	}
	printOrder(order)
	return nil
}

func cmdStopLimit(g *globals, args []string) error {
	fs := flag.NewFlagSet("stop-limit", flag.ExitOnError)
	tif := fs.String("time-in-force", "GTC", "Time in force: GTC, IOC, FOK")
	pos := g.parse(fs, args)
	if len(pos) != 5 {
		return usageError(fs, "<symbol> <side> <qty> <price> <stop> [--time-in-force GTC|IOC|FOK]")
	}
	vals, err := parseDecimals([]string{"quantity", "price", "stop price"}, pos[2:])
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	order, err := s.bot.Composer().PlaceStopLimit(ctx, pos[0], pos[1], vals[0], vals[1], vals[2], *tif)
	if err != nil {
		s.logFailure("stop-limit order failed", err,
			zap.String("symbol", pos[0]), zap.String("side", pos[1]), zap.String("quantity", pos[2]),
			zap.String("price", pos[3]), zap.String("stop_price", pos[4]), zap.String("time_in_force", *tif))
		return err
	}
	printOrder(order)
	return nil
}

func cmdEvents(g *globals, args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of events to show")
	g.parse(fs, args)

	// Reading the journal never needs the exchange.
	g.dryRun = true

	ctx := context.Background()
	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	events, err := s.bot.Journal().Recent(ctx, *limit)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}

	for _, e := range events {
		line := fmt.Sprintf("%s  %-18s %-6s %-10s", e.Time.Local().Format("2006-01-02 15:04:05"), e.Kind, e.Strategy, e.Symbol)
		if e.OrderID != "" {
			line += " order=" + e.OrderID
		}
		if e.Side != "" {
			line += " " + e.Side
		}
		if e.Quantity.IsPositive() {
			line += " qty=" + e.Quantity.String()
		}
		if e.Price.IsPositive() {
			line += " price=" + e.Price.String()
		}
		if e.Status != "" {
			line += " status=" + e.Status
		}
		if e.Message != "" {
			line += "  " + e.Message
		}
		fmt.Println(line)
	}
	return nil
}
