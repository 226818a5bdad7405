// Package bot assembles the execution stack from configuration.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tathienbao/futures-exec/internal/alerting"
	"github.com/tathienbao/futures-exec/internal/config"
	"github.com/tathienbao/futures-exec/internal/execution"
	"github.com/tathienbao/futures-exec/internal/gateway"
	"github.com/tathienbao/futures-exec/internal/gateway/binance"
	"github.com/tathienbao/futures-exec/internal/gateway/paper"
	"github.com/tathienbao/futures-exec/internal/journal"
	"github.com/tathienbao/futures-exec/internal/metrics"
	"github.com/tathienbao/futures-exec/internal/strategy"
	"github.com/tathienbao/futures-exec/internal/types"
)

// Options controls how the stack is assembled.
type Options struct {
	// DryRun routes orders to the paper gateway instead of the exchange.
	DryRun bool
	// Paper overrides the simulated market used in dry runs.
	Paper  *paper.Config
	Logger *zap.Logger
}

// Bot owns the gateway, journal, alerter and composer for one process.
type Bot struct {
	cfg      *config.Config
	logger   *zap.Logger
	recorder *metrics.Recorder
	journal  journal.Journal
	alerter  alerting.Alerter
	composer *execution.Composer
	server   *metrics.Server
	dryRun   bool
}

// New builds the stack. In live mode it verifies connectivity and
// credentials before returning.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Bot, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bot{
		cfg:    cfg,
		logger: logger,
		dryRun: opts.DryRun || cfg.Exchange.DryRun,
	}
	if cfg.Metrics.Enabled {
		b.recorder = metrics.NewRecorder()
	}
	b.alerter = b.buildAlerter()

	gw, err := b.buildGateway(ctx, opts.Paper)
	if err != nil {
		return nil, err
	}

	j, err := journal.Open(ctx, cfg.ToJournalConfig(), logger.Named("journal"))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	b.journal = j

	b.composer = execution.NewComposer(gateway.WithMetrics(gw, b.recorder), execution.Options{
		Logger:   logger,
		Journal:  j,
		Recorder: b.recorder,
		Alerter:  b.alerter,
	})

	logger.Info("execution stack ready",
		zap.Bool("dry_run", b.dryRun),
		zap.String("journal", cfg.ToJournalConfig().Type),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)

	return b, nil
}

func (b *Bot) buildAlerter() alerting.Alerter {
	multi := alerting.NewMultiAlerter(b.logger.Named("alerts"))
	if !b.cfg.Alerting.Enabled {
		return multi
	}
	for _, ch := range b.cfg.Alerting.Channels {
		switch ch.Type {
		case "console":
			multi.Route(alerting.NewConsoleAlerter(b.logger), ch.Severity())
		case "telegram":
			multi.Route(alerting.NewTelegramAlerter(ch.ToTelegramConfig()), ch.Severity())
		}
	}
	return multi
}

func (b *Bot) buildGateway(ctx context.Context, paperCfg *paper.Config) (gateway.Gateway, error) {
	if b.dryRun {
		cfg := paper.DefaultConfig()
		if paperCfg != nil {
			cfg = *paperCfg
		}
		b.logger.Info("dry run: orders go to the paper gateway")
		return paper.New(cfg, b.logger), nil
	}

	client, err := binance.NewClient(b.cfg.ToBinanceConfig(), b.logger)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		var gerr *types.GatewayError
		if errors.As(err, &gerr) && gerr.IsAuthFailure() {
			_ = alerting.Send(ctx, b.alerter, alerting.EventCredentialFailure, "exchange rejected API credentials",
				"code", gerr.Code,
				"message", gerr.Message,
			)
		}
		return nil, err
	}
	return client, nil
}

// DryRun reports whether orders go to the paper gateway.
func (b *Bot) DryRun() bool {
	return b.dryRun
}

// Composer returns the order composer.
func (b *Bot) Composer() *execution.Composer {
	return b.composer
}

// Journal returns the event journal.
func (b *Bot) Journal() journal.Journal {
	return b.journal
}

// NewOCO returns an OCO runner configured from the strategy settings.
func (b *Bot) NewOCO() *strategy.OCO {
	return strategy.NewOCO(b.composer, b.cfg.ToOCOConfig(), b.logger)
}

// NewTWAP returns a TWAP runner.
func (b *Bot) NewTWAP() *strategy.TWAP {
	return strategy.NewTWAP(b.composer, b.logger)
}

// NewGrid returns a grid runner configured from the strategy settings.
func (b *Bot) NewGrid() *strategy.Grid {
	return strategy.NewGrid(b.composer, b.cfg.ToGridConfig(), b.logger)
}

// ServeMetrics starts the metrics server when enabled. It returns nil
// when metrics are disabled.
func (b *Bot) ServeMetrics() (*metrics.Server, error) {
	if !b.cfg.Metrics.Enabled {
		return nil, nil
	}
	s := metrics.NewServer(b.cfg.ToServerConfig(), b.logger.Named("metrics"))
	s.RegisterHealthCheck("journal", func() metrics.Check {
		if _, err := b.journal.Recent(context.Background(), 1); err != nil {
			return metrics.Check{Status: "unhealthy", Message: err.Error()}
		}
		return metrics.Check{Status: "healthy"}
	})
	if err := s.Start(); err != nil {
		return nil, err
	}
	b.server = s
	return s, nil
}

// Close shuts down the metrics server and closes the journal.
func (b *Bot) Close(ctx context.Context) error {
	var errs []error
	if b.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown metrics: %w", err))
		}
	}
	if err := b.journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close journal: %w", err))
	}
	return errors.Join(errs...)
}
