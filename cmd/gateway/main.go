// Command gateway is the RED AI design assistant backend.
//
// It reads configuration from environment variables (or a .env file and
// config.yaml) and serves the dashboard, AI assistant and image generation
// API on the configured port.
//
// Quick-start (seeded in-memory store, mock AI payloads, no credentials):
//
//	./gateway
//
// See .env.example for all available configuration variables.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/redai/design-gateway/internal/app"
	"github.com/redai/design-gateway/internal/config"
	"github.com/redai/design-gateway/internal/proxy"
)

// version is overridden at build time via -ldflags="-X main.version=x.y.z".
var version = proxy.Version

func main() {
	if err := run(); err != nil {
		slog.Error("gateway exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, closeLog := buildLogger(cfg.LogLevel, cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger, version)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}

// buildLogger returns the shared JSON logger. Unknown levels mean info. When
// lc.File is set records are also written to a size-rotated file; the
// returned func closes it.
func buildLogger(level string, lc config.LogConfig) (*slog.Logger, func()) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if lc.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() { _ = rotator.Close() }
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	})), closeFn
}
