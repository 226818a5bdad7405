package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/tathienbao/futures-exec/internal/types"
)

var authTips = []string{
	"You created API keys on mainnet instead of the Futures Testnet.\n     -> Generate testnet keys at https://testnet.binancefuture.com",
	"Your API key has IP restrictions enabled. Remove them or add your current public IP.",
	"Your API key does not have futures trading permission enabled.",
	"Both the API key and secret must be set (environment or .env) and the terminal session restarted.",
	"The configured network must match the keys (exchange.network: testnet or mainnet).",
}

func cmdCheckKeys(g *globals, args []string) error {
	fs := flag.NewFlagSet("check-keys", flag.ExitOnError)
	g.parse(fs, args)

	// Credentials can only be checked against the exchange.
	g.dryRun = false

	ctx := context.Background()
	s, err := g.open(ctx)
	if err != nil {
		fmt.Println("Error while verifying keys:")
		fmt.Println(err)
		if isAuthFailure(err) {
			fmt.Println("\nDetected exchange error -2015 (Invalid API-key, IP, or permissions).")
			fmt.Println("Common causes and fixes:")
			for i, tip := range authTips {
				fmt.Printf("  %d) %s\n", i+1, tip)
			}
		}
		return errors.New("key check failed")
	}
	defer s.close()

	balances, err := s.bot.Composer().Balances(ctx)
	if err != nil {
		return fmt.Errorf("fetch balances: %w", err)
	}

	fmt.Println("Success: fetched futures account balance:")
	for _, b := range balances {
		fmt.Printf("  %s: %s\n", b.Asset, b.Balance)
	}
	return nil
}

func isAuthFailure(err error) bool {
	var gerr *types.GatewayError
	if errors.As(err, &gerr) && gerr.IsAuthFailure() {
		return true
	}
	return strings.Contains(err.Error(), "Invalid API-key")
}
