// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra     - Redis when any subsystem needs it
//  2. initStorage   - dashboard store, cache, studio history
//  3. initProviders - Azure, OpenAI and the Stable Diffusion backends
//  4. initServices  - assistant, studio, metrics, generation event log
//  5. initGateway   - HTTP gateway
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/redai/design-gateway/internal/assistant"
	rdCache "github.com/redai/design-gateway/internal/cache"
	"github.com/redai/design-gateway/internal/config"
	"github.com/redai/design-gateway/internal/logger"
	"github.com/redai/design-gateway/internal/metrics"
	"github.com/redai/design-gateway/internal/providers"
	azureprov "github.com/redai/design-gateway/internal/providers/azure"
	openaiprov "github.com/redai/design-gateway/internal/providers/openai"
	"github.com/redai/design-gateway/internal/proxy"
	"github.com/redai/design-gateway/internal/store"
	"github.com/redai/design-gateway/internal/studio"
)

const shutdownTimeout = 10 * time.Second

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections, nil when not configured.
	rdb *redis.Client

	store     store.Store
	cache     rdCache.Cache
	cachePing proxy.PingFunc
	memCache  *rdCache.MemoryCache
	history   studio.HistoryStore

	azure       *azureprov.Client
	dalle       *openaiprov.Provider
	sd          map[string]providers.ImageProvider
	sdAvailable []string
	localSD     string

	assistant *assistant.Assistant
	studio    *studio.Service
	events    *logger.Logger
	prom      *metrics.Registry

	gw *proxy.Gateway
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("app: config must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"storage", a.initStorage},
		{"providers", a.initProviders},
		{"services", a.initServices},
		{"gateway", a.initGateway},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails. In-flight requests are drained before it returns.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Addr()

	a.log.Info("starting gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("store_mode", a.cfg.Store.Mode),
		slog.String("cache_mode", a.cfg.Cache.Mode),
		slog.String("history_mode", a.cfg.History.Mode),
		slog.Bool("ai_configured", a.cfg.AIConfigured()),
		slog.Any("sd_available", a.sdAvailable),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.gw.Start(addr); err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		done := make(chan error, 1)
		go func() { done <- a.gw.Shutdown() }()

		select {
		case err := <-done:
			if err != nil {
				a.log.Error("shutdown error", slog.String("error", err.Error()))
			}
		case <-time.After(shutdownTimeout):
			a.log.Warn("shutdown timed out", slog.Duration("timeout", shutdownTimeout))
		}
		a.log.Info("gateway stopped")
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times.
func (a *App) Close() {
	if a.gw != nil {
		a.gw.Close()
		a.gw = nil
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Error("event log close error", slog.String("error", err.Error()))
		}
		a.events = nil
	}
	if a.memCache != nil {
		a.memCache.Close()
		a.memCache = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("store close error", slog.String("error", err.Error()))
		}
		a.store = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// needsRedis reports whether any configured subsystem is backed by Redis.
// A configured RPM limit uses Redis opportunistically when REDIS_URL is set.
func needsRedis(cfg *config.Config) bool {
	if cfg.Cache.Mode == "redis" || cfg.History.Mode == "redis" {
		return true
	}
	return cfg.RateLimit.RPMLimit > 0 && cfg.Redis.URL != ""
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
