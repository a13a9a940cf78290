package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"bidflow/auction"
	"bidflow/bidding"
	"bidflow/catalog"
	"bidflow/config"
	"bidflow/db"
	"bidflow/identity"
	"bidflow/outbox"
	"bidflow/school"
	"bidflow/settlement"
)

// Engine bundles the wired services. Callers embedding the engine attach
// their own transport on top of it.
type Engine struct {
	Accounts  *identity.Service
	Schools   *school.Service
	Catalog   *catalog.Service
	Auctions  *auction.CRUDService
	Lifecycle *auction.LifecycleService
	Ledger    *bidding.Ledger
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		logger.Error("bootstrap database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	gateway, err := settlement.NewGateway(cfg.Settlement.Gateway, logger)
	if err != nil {
		logger.Error("bootstrap settlement gateway", slog.String("error", err.Error()))
		os.Exit(1)
	}

	accounts := identity.NewService(identity.NewRepository(pool), cfg.Identity.JWTSecret, cfg.Identity.TokenTTL())
	schools := school.NewService(school.NewRepository(pool))
	engine := &Engine{
		Accounts:  accounts,
		Schools:   schools,
		Catalog:   catalog.NewService(catalog.NewRepository(pool)),
		Auctions:  auction.NewCRUDService(pool, schools),
		Lifecycle: auction.NewLifecycleService(pool, auction.NewRepository(), settlement.NewResolver(), gateway, logger),
		Ledger: bidding.NewLedger(pool, accounts, bidding.Rules{
			MinIncrement:       cfg.Bidding.MinIncrement,
			MaxAmount:          cfg.Bidding.MaxAmount,
			RejectBelowReserve: cfg.Bidding.RejectBelowReserve,
			WithdrawProtection: cfg.Bidding.WithdrawProtection(),
		}),
	}

	worker := outbox.NewWorker(
		pool,
		outbox.LogBroadcaster{Logger: logger},
		logger,
		cfg.Outbox.PollInterval(),
		cfg.Outbox.BatchSize,
		cfg.Outbox.MaxAttempts,
	)

	logger.Info("bidflow engine ready",
		slog.Bool("ledger", engine.Ledger != nil),
		slog.String("gateway", cfg.Settlement.Gateway),
		slog.Int64("min_increment", cfg.Bidding.MinIncrement),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("worker stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
