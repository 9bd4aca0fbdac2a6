package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/updownlabs/dipcatcher/internal/gateway"
	"github.com/updownlabs/dipcatcher/internal/journal"
	"github.com/updownlabs/dipcatcher/internal/market"
	"github.com/updownlabs/dipcatcher/internal/metrics"
	"github.com/updownlabs/dipcatcher/internal/polymarket/gamma"
	"github.com/updownlabs/dipcatcher/internal/price"
	"github.com/updownlabs/dipcatcher/internal/strategy"
)

func main() {
	configPath := flag.String("config", "configs/trader/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := readConfig(configPath)
	if err != nil {
		log.Fatalf("Couldn't read config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr)
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	var jnl *journal.Journal
	if db := cfg.Database; db != nil {
		pool, err := journal.NewPool(ctx, journal.PoolConfig{
			Host:     db.Host,
			Port:     db.Port,
			User:     db.User,
			Password: db.Password,
			Database: db.Database,
			PoolSize: db.PoolSize,
			SSLMode:  db.SSLMode,
		})
		if err != nil {
			log.Fatalf("Couldn't connect to database: %v", err)
		}
		defer pool.Close()

		jnl = journal.New(pool)
		if err := jnl.EnsureSchema(ctx); err != nil {
			log.Fatalf("Couldn't prepare journal schema: %v", err)
		}
		logger.Info("journal enabled", "database", db.Database)
	}

	source := market.NewGammaSource(gamma.New(cfg.Polymarket.GammaURL))
	resolver := market.NewResolver(source, cfg.Market.WindowLength.Duration(), logger)

	sessionCfg := market.SessionConfig{
		Asset:          cfg.Market.Asset,
		WebsocketURL:   cfg.Polymarket.WebsocketURL,
		PingInterval:   cfg.Market.PingInterval.Duration(),
		ReconnectDelay: cfg.Market.ReconnectDelay.Duration(),
	}

	strat := strategy.New(strategy.Config{
		Lookback:     cfg.Strategy.Lookback.Duration(),
		Threshold:    price.FromFloat64(cfg.Strategy.DropThreshold),
		Notional:     cfg.Strategy.Notional,
		Slippage:     price.FromFloat64(cfg.Strategy.Slippage),
		Cooldown:     cfg.Strategy.Cooldown.Duration(),
		TickInterval: cfg.Strategy.TickInterval.Duration(),
		WarmupWait:   cfg.Strategy.WarmupWait.Duration(),
	}, sessionCfg, resolver, gateway.NewLogGateway(logger), jnl, logger)

	logger.Info("starting", "asset", cfg.Market.Asset, "window", cfg.Market.WindowLength)

	if err := strat.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("strategy stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
