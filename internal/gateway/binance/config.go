// Package binance provides USDⓈ-M futures REST connectivity.
package binance

import (
	"time"
)

const (
	// TestnetBaseURL is the futures testnet endpoint.
	TestnetBaseURL = "https://testnet.binancefuture.com"
	// MainnetBaseURL is the production futures endpoint.
	MainnetBaseURL = "https://fapi.binance.com"
)

// Config holds exchange connection configuration.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string

	// Timeouts
	RequestTimeout time.Duration
	RecvWindow     time.Duration

	// Rate limiting
	MaxRequestsPerSecond int

	// Startup connectivity check
	ConnectRetries uint64
}

// DefaultConfig returns testnet configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:              TestnetBaseURL,
		RequestTimeout:       10 * time.Second,
		RecvWindow:           5 * time.Second,
		MaxRequestsPerSecond: 10,
		ConnectRetries:       3,
	}
}

// LiveConfig returns configuration for production trading.
func LiveConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseURL = MainnetBaseURL
	return cfg
}
