// ikuai-middle is an authenticated caching proxy in front of an iKuai
// router's management API. It exposes read-only monitoring endpoints,
// caches responses briefly, and renews the upstream session on a schedule.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lemonylab/ikuai-middle/pkg/api"
	"github.com/lemonylab/ikuai-middle/pkg/config"
	"github.com/lemonylab/ikuai-middle/pkg/ikuai"
	"github.com/lemonylab/ikuai-middle/pkg/metrics"
	"github.com/lemonylab/ikuai-middle/pkg/syncutil"
	"github.com/lemonylab/ikuai-middle/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupLogger configures the process-wide slog default. LOG_FORMAT=json
// switches to JSON output; LOG_LEVEL accepts debug/info/warn/error.
func setupLogger() {
	level := slog.LevelInfo
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			level = slog.LevelInfo
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	configFile := flag.String("config",
		getEnv("CONFIG_FILE", config.DefaultConfigFile),
		"Path to configuration file")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}
	setupLogger()

	slog.Info("Starting "+version.AppName, "version", version.Full(), "config", *configFile)

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	session, err := ikuai.NewSession(cfg.BaseURL, cfg.Username, cfg.Password)
	if err != nil {
		slog.Error("Failed to create upstream session", "error", err)
		os.Exit(1)
	}
	client := ikuai.NewClient(session)

	ctx := context.Background()

	// An unreachable or rejecting router at startup is not fatal: the
	// scheduler keeps retrying and callers see the upstream's errors.
	if err := client.Login(ctx); err != nil {
		slog.Warn("Initial login failed, will retry on schedule", "error", err)
	}

	relogin := syncutil.NewScheduler("relogin", cfg.ReloginInterval, func() error {
		return client.Login(context.Background())
	})
	relogin.Start(ctx)

	server := api.NewServer(cfg, client, metrics.New())

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.ListenAddr)
		if err := server.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	relogin.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
