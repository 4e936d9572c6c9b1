package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"zkbadge/internal/platform/config"
	"zkbadge/internal/platform/logger"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// main loads configuration, wires the services and keeps the server lifecycle
// small. Business logic lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	if err := app.run(ctx); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("zkbadge stopped cleanly")
}
