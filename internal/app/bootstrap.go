package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"virtual_market/internal/catalog"
	"virtual_market/internal/domain"
	"virtual_market/internal/infra"
	"virtual_market/internal/infra/events"
	"virtual_market/internal/infra/storage"
	"virtual_market/internal/ledger"
	"virtual_market/internal/market"
	"virtual_market/internal/service"
)

// DefaultConfigPath is used when no -config flag is given
const DefaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Logger    *slog.Logger
	Metrics   *infra.Metrics
	Store     domain.HashStore
	Catalog   *catalog.Catalog
	Engine    *market.Engine
	Ledger    *ledger.Ledger
	Publisher domain.EventPublisher
	Trading   *service.TradingService
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{Metrics: &infra.Metrics{}}
}

// Initialize loads config, opens the store and wires every component.
// Log records are mirrored to console.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string, console io.Writer) error {
	// 1. Load Config
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg, console)
	slog.SetDefault(b.Logger)
	b.Logger.Info("Bootstrapping virtual market", slog.String("version", cfg.App.Version))

	// 3. Stock catalog
	b.Catalog, err = catalog.LoadFirst(cfg.Market.CatalogPaths...)
	if err != nil {
		return err
	}
	b.Logger.Info("Catalog loaded", slog.Int("symbols", b.Catalog.Len()))

	// 4. Initialize Storage
	b.Store, err = storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	b.Logger.Info("Store ready", slog.String("driver", cfg.Store.Driver))

	// 5. Trade notifications
	b.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		b.Publisher = events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, b.Logger)
		b.Logger.Info("Execution notifications enabled", slog.String("topic", cfg.Events.Topic))
	}

	// 6. Core components
	clock := market.SystemClock{}
	b.Engine = market.NewEngine(market.Config{
		Table:                 cfg.Store.Tables.Prices,
		MinUpdateInterval:     cfg.MinUpdateInterval(),
		MaxIntervalsPerUpdate: cfg.Market.MaxIntervalsPerUpdate,
		Location:              cfg.Location(),
	}, b.Catalog, b.Store, clock, market.SystemRand{}, b.Logger).WithObserver(b.Metrics)

	b.Ledger = ledger.New(ledger.Config{
		BalanceTable:   cfg.Store.Tables.Balances,
		PortfolioTable: cfg.Store.Tables.Portfolios,
		CheckInTable:   cfg.Store.Tables.CheckIns,
		StarterGrant:   cfg.Wallet.StarterGrant,
		DailyReward:    cfg.Wallet.DailyReward,
		Location:       cfg.Location(),
	}, b.Store, clock, b.Logger)

	b.Trading = service.NewTradingService(b.Engine, b.Ledger, b.Publisher, b.Metrics, clock, b.Logger)
	return nil
}

// Close releases the publisher and the store
func (b *Bootstrap) Close() error {
	var errs []error
	if b.Publisher != nil {
		errs = append(errs, b.Publisher.Close())
	}
	if b.Store != nil {
		errs = append(errs, b.Store.Close())
	}
	return errors.Join(errs...)
}
