// Package main is the entry point for the futures execution bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tathienbao/futures-exec/internal/bot"
	"github.com/tathienbao/futures-exec/internal/config"
	"github.com/tathienbao/futures-exec/internal/logging"
	"github.com/tathienbao/futures-exec/internal/metrics"
	"github.com/tathienbao/futures-exec/internal/types"
)

// Version information (set by build flags).
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		cmdVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	}

	// Global flags may precede the command.
	g := &globals{configPath: "config.yaml"}
	root := flag.NewFlagSet("execbot", flag.ExitOnError)
	g.register(root)
	root.Usage = printUsage
	root.Parse(os.Args[1:])
	if root.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	cmd, args := root.Arg(0), root.Args()[1:]
	commands := map[string]func(*globals, []string) error{
		"balance":    cmdBalance,
		"market":     cmdMarket,
		"limit":      cmdLimit,
		"stop-limit": cmdStopLimit,
		"oco":        cmdOCO,
		"twap":       cmdTWAP,
		"grid":       cmdGrid,
		"check-keys": cmdCheckKeys,
		"events":     cmdEvents,
		"validate":   cmdValidate,
	}

	run, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err := run(g, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Futures Execution Bot - USDⓈ-M order execution with OCO, TWAP and grid strategies

Usage:
  execbot [global options] <command> [arguments] [options]

Commands:
  balance                                          Show account balances
  market     <symbol> <side> <qty>                 Place a market order
  limit      <symbol> <side> <qty> <price>         Place a limit order
  stop-limit <symbol> <side> <qty> <price> <stop>  Place a stop-limit order
  oco        <symbol> <side> <qty> <tp> <sl> [entry]
                                                   Place an entry with take-profit and stop-loss
  twap       <symbol> <side> <total> <chunks> <minutes>
                                                   Split an order over time
  grid       <symbol> <upper> <lower> <levels> <qty>
                                                   Run a grid until interrupted
  check-keys                                       Verify API credentials
  events                                           Show recent journal events
  validate                                         Validate configuration file
  version                                          Show version information
  help                                             Show this help message

Global options:
  --config     Path to configuration file (default: config.yaml)
  --dry-run    Simulate orders without contacting the exchange
  --log-level  Override the configured log level

Examples:
  execbot --dry-run market BTCUSDT buy 0.01
  execbot limit BTCUSDT sell 0.01 65000 --time-in-force IOC
  execbot oco BTCUSDT buy 0.01 66000 62000 64000
  execbot twap BTCUSDT buy 0.1 10 30 --use-limit --limit-price 64000
  execbot grid BTCUSDT 66000 62000 5 0.002

Use "execbot <command> --help" for more information about a command.`)
}

func cmdVersion() {
	fmt.Printf("execbot version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
}

// globals holds options accepted by every command.
type globals struct {
	configPath string
	dryRun     bool
	logLevel   string
}

// register adds the global flags to fs, defaulting to the values already
// parsed so flags given before the command survive.
func (g *globals) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configPath, "config", g.configPath, "Path to configuration file")
	fs.BoolVar(&g.dryRun, "dry-run", g.dryRun, "Simulate orders without contacting the exchange")
	fs.StringVar(&g.logLevel, "log-level", g.logLevel, "Override the configured log level")
}

// parse parses fs allowing flags before, between and after positionals.
func (g *globals) parse(fs *flag.FlagSet, args []string) []string {
	g.register(fs)

	var positional []string
	for {
		fs.Parse(args)
		args = fs.Args()
		if len(args) == 0 {
			return positional
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// session is an assembled stack for one command invocation.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	bot    *bot.Bot
}

func (g *globals) open(ctx context.Context) (*session, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.ToLoggingConfig())
	if err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		metrics.SetBuildInfo(Version, GitCommit, BuildTime)
	}

	b, err := bot.New(ctx, cfg, bot.Options{DryRun: g.dryRun, Logger: logger})
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		logger.Sync()
		if errors.Is(err, types.ErrMissingAPIKeys) {
			return nil, fmt.Errorf("%w: set %s and %s in the environment or .env, or use --dry-run",
				err, config.EnvAPIKey, config.EnvAPISecret)
		}
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, bot: b}, nil
}

func (s *session) close() {
	if err := s.bot.Close(context.Background()); err != nil {
		s.logger.Warn("shutdown error", zap.Error(err))
	}
	s.logger.Sync()
}

func cmdValidate(g *globals, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	g.parse(fs, args)

	cfg, err := g.loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	fmt.Println("Configuration is valid!")
	fmt.Printf("  Network: %s\n", cfg.Exchange.Network)
	fmt.Printf("  API keys: %t\n", cfg.HasAPIKeys())
	fmt.Printf("  Journal: %s\n", cfg.ToJournalConfig().Type)
	fmt.Printf("  Log file: %s (level %s)\n", cfg.Logging.File, cfg.Logging.Level)
	fmt.Printf("  Metrics: %t\n", cfg.Metrics.Enabled)
	return nil
}
