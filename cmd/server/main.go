// R.index Exchange — a simulated perpetual futures exchange for the single
// synthetic instrument R.index.
//
// Architecture:
//
//	main.go               — entry point: loads config, wires everything, waits for SIGINT/SIGTERM
//	engine/               — matching engine: order book, fills, positions, market data
//	book/                 — price-time priority order book on B-trees
//	position/             — position arithmetic: entry averaging, PnL, liquidation prices
//	liquidation/          — insurance fund and the background liquidation monitor
//	db/                   — SQLite persistence, replayed into memory on startup
//	ws/                   — websocket hub streaming engine events to clients
//	api/                  — HTTP surface: traders, orders, market data, websocket upgrade
//
// There is no real money. Every trader starts with the same paper balance,
// margin is tracked per position, and liquidation shortfalls are absorbed by
// a simulated insurance fund.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"rindex-exchange/internal/api"
	"rindex-exchange/internal/config"
	"rindex-exchange/internal/db"
	"rindex-exchange/internal/engine"
	"rindex-exchange/internal/liquidation"
	"rindex-exchange/internal/ws"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("RINDEX_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg := config.LoadOrDefault(cfgPath)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err, "path", cfgPath)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.Database.Path)
		os.Exit(1)
	}
	defer store.Close()

	fund := liquidation.NewInsuranceFund(cfg.Liquidation.InsuranceFundInitial)
	eng := engine.New(cfg, store, fund, logger)
	if err := eng.Recover(); err != nil {
		logger.Error("failed to recover state", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub(logger)
	monitor := liquidation.NewMonitor(eng, cfg.Liquidation.CheckInterval, logger)
	server := api.NewServer(eng, hub, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return ws.RunBridge(ctx, eng.Events(), hub) })
	g.Go(func() error { return monitor.Run(ctx) })
	g.Go(func() error { return server.Serve(ctx) })

	logger.Info("r.index exchange started",
		"port", cfg.Server.Port,
		"db", cfg.Database.Path,
		"starting_price", cfg.Instrument.StartingPrice,
		"max_leverage", cfg.Instrument.MaxLeverage,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
