// Command server runs the meme board API.
//
// Configuration comes from the environment (see internal/config); a .env or
// .env.local file in the working directory is loaded first if present.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/memeboard/internal/config"
	"github.com/sakif/memeboard/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Validate already checked the level.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := server.OpenStore(ctx, cfg)
	cancel()
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	provider, err := server.NewProvider(cfg, logger)
	if err != nil {
		store.Close()
		logger.Error("failed to create identity provider", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(cfg, store, provider, logger)
	if err != nil {
		store.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
