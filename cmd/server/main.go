package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gw/kalshi-pnl/internal/analytics"
	"github.com/gw/kalshi-pnl/internal/config"
	"github.com/gw/kalshi-pnl/internal/kalshi"
	"github.com/gw/kalshi-pnl/internal/ledger"
	"github.com/gw/kalshi-pnl/internal/server"
)

func main() {
	addr := flag.String("addr", "", "listen address (overrides LISTEN_ADDR)")
	noFeed := flag.Bool("no-feed", false, "disable the live websocket feed")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	slog.Info("dashboard server starting", "env", cfg.KalshiEnv, "addr", cfg.ListenAddr)

	client, err := kalshi.NewClient(cfg)
	if err != nil {
		slog.Error("kalshi client init failed", "err", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("creating db directory", "err", err)
			os.Exit(1)
		}
	}
	store, err := ledger.Open(cfg.DBPath)
	if err != nil {
		slog.Error("opening ledger db", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var feed *kalshi.Feed
	if !*noFeed {
		feed = kalshi.NewFeed(cfg, client.PrivateKey())
		go func() {
			if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("feed stopped", "err", err)
			}
		}()
		go refreshSubscriptions(ctx, client, feed)
	}

	srv := server.New(server.Config{
		Addr:        cfg.ListenAddr,
		Exchange:    client,
		Analytics:   analytics.NewService(client),
		Ledger:      store,
		Feed:        feed,
		CORSOrigins: cfg.CORSOrigins,
	})

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// refreshSubscriptions keeps the live feed subscribed to the markets
// the trader currently holds.
func refreshSubscriptions(ctx context.Context, client *kalshi.Client, feed *kalshi.Feed) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		positions, err := client.AllPositions(ctx)
		if err != nil {
			slog.Warn("position refresh failed", "err", err)
		} else {
			tickers := make([]string, 0, len(positions))
			for _, p := range positions {
				if p.Position != 0 {
					tickers = append(tickers, p.Ticker)
				}
			}
			feed.UpdateSubscriptions(tickers)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
