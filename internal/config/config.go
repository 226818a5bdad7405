// Package config handles configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/tathienbao/futures-exec/internal/alerting"
	"github.com/tathienbao/futures-exec/internal/gateway/binance"
	"github.com/tathienbao/futures-exec/internal/journal"
	"github.com/tathienbao/futures-exec/internal/logging"
	"github.com/tathienbao/futures-exec/internal/metrics"
	"github.com/tathienbao/futures-exec/internal/strategy"
	"github.com/tathienbao/futures-exec/internal/types"
)

// Environment variables that supply exchange credentials.
const (
	EnvAPIKey    = "BINANCE_API_KEY"
	EnvAPISecret = "BINANCE_API_SECRET"
)

// Config represents the full application configuration.
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Strategy StrategyConfig `yaml:"strategy"`
	Logging  LoggingConfig  `yaml:"logging"`
	Journal  JournalConfig  `yaml:"journal"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Alerting AlertingConfig `yaml:"alerting"`
}

// ExchangeConfig holds exchange connectivity settings.
type ExchangeConfig struct {
	Network            string `yaml:"network"`  // testnet | mainnet
	BaseURL            string `yaml:"base_url"` // overrides network
	APIKey             string `yaml:"api_key"`
	APISecret          string `yaml:"api_secret"`
	RequestTimeoutSec  int    `yaml:"request_timeout_sec"`
	RecvWindowMs       int    `yaml:"recv_window_ms"`
	RateLimitPerSecond int    `yaml:"rate_limit_per_second"`
	ConnectRetries     int    `yaml:"connect_retries"`
	DryRun             bool   `yaml:"dry_run"`
}

// StrategyConfig holds strategy timing settings.
type StrategyConfig struct {
	OCO  OCOConfig  `yaml:"oco"`
	Grid GridConfig `yaml:"grid"`
}

// OCOConfig holds OCO settings.
type OCOConfig struct {
	PollIntervalMs  int `yaml:"poll_interval_ms"`
	EntryTimeoutSec int `yaml:"entry_timeout_sec"` // 0 waits indefinitely
}

// GridConfig holds grid settings.
type GridConfig struct {
	PollIntervalSec  int     `yaml:"poll_interval_sec"`
	ErrorBackoffSec  int     `yaml:"error_backoff_sec"`
	ReplaceOffsetPct float64 `yaml:"replace_offset_pct"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// JournalConfig holds event journal settings.
type JournalConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Type     string `yaml:"type"` // memory | sqlite | postgres | redis
	Path     string `yaml:"path"` // for sqlite
	DSN      string `yaml:"dsn"`  // for postgres
	RedisURL string `yaml:"redis_url"`
	Stream   string `yaml:"stream"`
	Capacity int    `yaml:"capacity"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// AlertingConfig holds alerting settings.
type AlertingConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfig holds a single alert channel configuration.
type ChannelConfig struct {
	Type              string `yaml:"type"` // console | telegram
	BotToken          string `yaml:"bot_token"`
	ChatID            string `yaml:"chat_id"`
	MinSeverity       string `yaml:"min_severity"` // info | warning | high | critical
	MessagesPerMinute int    `yaml:"messages_per_minute"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			Network:            "testnet",
			RequestTimeoutSec:  10,
			RecvWindowMs:       5000,
			RateLimitPerSecond: 10,
			ConnectRetries:     3,
		},
		Strategy: StrategyConfig{
			OCO: OCOConfig{PollIntervalMs: 2000},
			Grid: GridConfig{
				PollIntervalSec:  5,
				ErrorBackoffSec:  10,
				ReplaceOffsetPct: 0.01,
			},
		},
		Logging: LoggingConfig{Level: "info", File: "bot.log"},
		Journal: JournalConfig{
			Enabled:  true,
			Type:     "sqlite",
			Path:     "execbot.db",
			Stream:   journal.DefaultStream,
			Capacity: 10000,
		},
		Metrics: MetricsConfig{Port: 9090, Path: "/metrics"},
	}
}

// Load loads configuration from a YAML file on top of the defaults. A
// missing file yields the defaults. A .env file in the working directory,
// if present, is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		cfg.applyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.Exchange.APIKey == "" {
		c.Exchange.APIKey = os.Getenv(EnvAPIKey)
	}
	if c.Exchange.APISecret == "" {
		c.Exchange.APISecret = os.Getenv(EnvAPISecret)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Exchange
	if c.Exchange.BaseURL == "" && c.Exchange.Network != "testnet" && c.Exchange.Network != "mainnet" {
		errs = append(errs, "exchange.network must be 'testnet' or 'mainnet'")
	}
	if c.Exchange.RequestTimeoutSec <= 0 {
		errs = append(errs, "exchange.request_timeout_sec must be positive")
	}
	if c.Exchange.RecvWindowMs <= 0 || c.Exchange.RecvWindowMs > 60000 {
		errs = append(errs, "exchange.recv_window_ms must be between 1 and 60000")
	}
	if c.Exchange.RateLimitPerSecond <= 0 {
		errs = append(errs, "exchange.rate_limit_per_second must be positive")
	}
	if c.Exchange.ConnectRetries < 0 {
		errs = append(errs, "exchange.connect_retries must not be negative")
	}

	// Strategy
	if c.Strategy.OCO.PollIntervalMs <= 0 {
		errs = append(errs, "strategy.oco.poll_interval_ms must be positive")
	}
	if c.Strategy.OCO.EntryTimeoutSec < 0 {
		errs = append(errs, "strategy.oco.entry_timeout_sec must not be negative")
	}
	if c.Strategy.Grid.PollIntervalSec <= 0 {
		errs = append(errs, "strategy.grid.poll_interval_sec must be positive")
	}
	if c.Strategy.Grid.ErrorBackoffSec <= 0 {
		errs = append(errs, "strategy.grid.error_backoff_sec must be positive")
	}
	if c.Strategy.Grid.ReplaceOffsetPct <= 0 || c.Strategy.Grid.ReplaceOffsetPct >= 1 {
		errs = append(errs, "strategy.grid.replace_offset_pct must be between 0 and 1")
	}

	// Logging
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			errs = append(errs, fmt.Sprintf("logging.level '%s' is not a valid level", c.Logging.Level))
		}
	}

	// Journal
	if c.Journal.Enabled {
		switch c.Journal.Type {
		case "", "memory":
		case "sqlite":
			if c.Journal.Path == "" {
				errs = append(errs, "journal.path is required for sqlite")
			}
		case "postgres":
			if c.Journal.DSN == "" {
				errs = append(errs, "journal.dsn is required for postgres")
			}
		case "redis":
			if c.Journal.RedisURL == "" {
				errs = append(errs, "journal.redis_url is required for redis")
			}
		default:
			errs = append(errs, "journal.type must be 'memory', 'sqlite', 'postgres' or 'redis'")
		}
	}

	// Metrics
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, "metrics.port must be between 1 and 65535")
	}

	// Alerting
	if c.Alerting.Enabled {
		for i, ch := range c.Alerting.Channels {
			switch ch.Type {
			case "console":
			case "telegram":
				if ch.BotToken == "" || ch.ChatID == "" {
					errs = append(errs, fmt.Sprintf("alerting.channels[%d]: telegram requires bot_token and chat_id", i))
				}
			default:
				errs = append(errs, fmt.Sprintf("alerting.channels[%d]: unknown type '%s'", i, ch.Type))
			}
			if ch.MinSeverity != "" {
				if _, err := alerting.ParseSeverity(ch.MinSeverity); err != nil {
					errs = append(errs, fmt.Sprintf("alerting.channels[%d]: %v", i, err))
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// ToBinanceConfig converts to binance.Config.
func (c *Config) ToBinanceConfig() binance.Config {
	cfg := binance.DefaultConfig()
	if c.Exchange.Network == "mainnet" {
		cfg = binance.LiveConfig()
	}
	if c.Exchange.BaseURL != "" {
		cfg.BaseURL = c.Exchange.BaseURL
	}
	cfg.APIKey = c.Exchange.APIKey
	cfg.APISecret = c.Exchange.APISecret
	cfg.RequestTimeout = time.Duration(c.Exchange.RequestTimeoutSec) * time.Second
	cfg.RecvWindow = time.Duration(c.Exchange.RecvWindowMs) * time.Millisecond
	cfg.MaxRequestsPerSecond = c.Exchange.RateLimitPerSecond
	cfg.ConnectRetries = uint64(c.Exchange.ConnectRetries)
	return cfg
}

// ToJournalConfig converts to journal.Config. A disabled journal maps to
// type "none".
func (c *Config) ToJournalConfig() journal.Config {
	if !c.Journal.Enabled {
		return journal.Config{Type: "none"}
	}
	return journal.Config{
		Type:     c.Journal.Type,
		Path:     c.Journal.Path,
		DSN:      c.Journal.DSN,
		RedisURL: c.Journal.RedisURL,
		Stream:   c.Journal.Stream,
		Capacity: c.Journal.Capacity,
	}
}

// ToLoggingConfig converts to logging.Config.
func (c *Config) ToLoggingConfig() logging.Config {
	return logging.Config{
		Level:   c.Logging.Level,
		File:    c.Logging.File,
		Console: c.Logging.Console,
	}
}

// ToServerConfig converts to metrics.ServerConfig.
func (c *Config) ToServerConfig() metrics.ServerConfig {
	cfg := metrics.DefaultServerConfig()
	cfg.Port = c.Metrics.Port
	if c.Metrics.Path != "" {
		cfg.MetricsPath = c.Metrics.Path
	}
	return cfg
}

// ToOCOConfig converts to strategy.OCOConfig.
func (c *Config) ToOCOConfig() strategy.OCOConfig {
	return strategy.OCOConfig{
		PollInterval: time.Duration(c.Strategy.OCO.PollIntervalMs) * time.Millisecond,
		EntryTimeout: time.Duration(c.Strategy.OCO.EntryTimeoutSec) * time.Second,
	}
}

// ToGridConfig converts to strategy.GridConfig.
func (c *Config) ToGridConfig() strategy.GridConfig {
	return strategy.GridConfig{
		PollInterval:  time.Duration(c.Strategy.Grid.PollIntervalSec) * time.Second,
		ErrorBackoff:  time.Duration(c.Strategy.Grid.ErrorBackoffSec) * time.Second,
		ReplaceOffset: decimal.NewFromFloat(c.Strategy.Grid.ReplaceOffsetPct),
	}
}

// Severity returns the lowest severity the channel receives. An unset
// or invalid value means every severity.
func (ch ChannelConfig) Severity() alerting.Severity {
	if ch.MinSeverity == "" {
		return alerting.SeverityInfo
	}
	sev, err := alerting.ParseSeverity(ch.MinSeverity)
	if err != nil {
		return alerting.SeverityInfo
	}
	return sev
}

// ToTelegramConfig converts a telegram channel to alerting.TelegramConfig.
func (ch ChannelConfig) ToTelegramConfig() alerting.TelegramConfig {
	return alerting.TelegramConfig{
		BotToken:          ch.BotToken,
		ChatID:            ch.ChatID,
		MessagesPerMinute: ch.MessagesPerMinute,
	}
}

// HasAPIKeys reports whether exchange credentials are configured.
func (c *Config) HasAPIKeys() bool {
	return c.Exchange.APIKey != "" && c.Exchange.APISecret != ""
}
