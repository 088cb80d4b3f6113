package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redai/design-gateway/internal/assistant"
	rdCache "github.com/redai/design-gateway/internal/cache"
	"github.com/redai/design-gateway/internal/imageprep"
	"github.com/redai/design-gateway/internal/logger"
	"github.com/redai/design-gateway/internal/metrics"
	"github.com/redai/design-gateway/internal/providers"
	azureprov "github.com/redai/design-gateway/internal/providers/azure"
	hfprov "github.com/redai/design-gateway/internal/providers/huggingface"
	localsdprov "github.com/redai/design-gateway/internal/providers/localsd"
	openaiprov "github.com/redai/design-gateway/internal/providers/openai"
	replicateprov "github.com/redai/design-gateway/internal/providers/replicate"
	"github.com/redai/design-gateway/internal/proxy"
	"github.com/redai/design-gateway/internal/ratelimit"
	"github.com/redai/design-gateway/internal/store"
	"github.com/redai/design-gateway/internal/studio"
)

// initInfra establishes optional external connections.
func (a *App) initInfra(ctx context.Context) error {
	if !needsRedis(a.cfg) {
		return nil
	}

	a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

	rdb, err := rdCache.Connect(ctx, a.cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	a.rdb = rdb
	a.log.Info("redis connected")

	return nil
}

// initStorage opens the dashboard store and picks the cache and history
// backends.
func (a *App) initStorage(ctx context.Context) error {
	switch a.cfg.Store.Mode {
	case "sqlite":
		s, err := store.OpenSQLite(ctx, a.cfg.Store.DatabasePath)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		a.store = s
		a.log.Info("store backend: sqlite", slog.String("path", a.cfg.Store.DatabasePath))
	case "memory":
		a.store = store.NewMemoryStore()
		a.log.Info("store backend: memory (seeded)")
	default:
		return fmt.Errorf("unknown store mode: %s", a.cfg.Store.Mode)
	}

	switch a.cfg.Cache.Mode {
	case "redis":
		rc := rdCache.NewRedisCache(a.rdb)
		a.cache, a.cachePing = rc, rc.Ping
		a.log.Info("cache backend: redis")
	case "memory":
		a.memCache = rdCache.NewMemoryCache(ctx, rdCache.WithMaxEntries(a.cfg.Cache.MaxEntries))
		a.cache, a.cachePing = a.memCache, a.memCache.Ping
		a.log.Info("cache backend: memory (in-process)")
	case "none":
		a.log.Info("cache backend: disabled")
	default:
		return fmt.Errorf("unknown cache mode: %s", a.cfg.Cache.Mode)
	}

	switch a.cfg.History.Mode {
	case "redis":
		a.history = studio.NewRedisHistory(a.rdb, a.cfg.History.Limit)
	default:
		a.history = studio.NewMemoryHistory(a.cfg.History.Limit)
	}
	a.log.Info("studio history backend", slog.String("mode", a.cfg.History.Mode), slog.Int("limit", a.cfg.History.Limit))

	return nil
}

// newAzureClient is replaced in tests to simulate credential failures.
var newAzureClient = azureprov.New

// initProviders builds the upstream clients from whatever credentials are
// present. None are required; missing ones degrade to mock payloads or 503s.
func (a *App) initProviders(ctx context.Context) error {
	az := a.cfg.Azure.Validate()
	if az.ConfigValid {
		c, err := newAzureClient(azureprov.Config{
			Endpoint:        a.cfg.Azure.Endpoint,
			APIKey:          a.cfg.Azure.APIKey,
			BackupKey:       a.cfg.Azure.BackupKey,
			APIVersion:      a.cfg.Azure.APIVersion,
			Deployment:      a.cfg.Azure.Deployment,
			DalleDeployment: a.cfg.Azure.DalleDeployment,
			UseAzureAD:      a.cfg.Azure.UseAzureAD,
		}, azureprov.WithLogger(a.log))
		if err != nil {
			// No AI credential is mandatory: serve mock payloads instead.
			a.log.Error("azure openai client unavailable; assistant routes serve mock payloads",
				slog.String("error", err.Error()),
				slog.Bool("use_azure_ad", az.UseAzureAD),
			)
		} else {
			a.azure = c
		}
	} else {
		a.log.Warn("azure openai not configured; assistant routes serve mock payloads",
			slog.Bool("has_api_key", az.HasAPIKey),
			slog.Bool("has_endpoint", az.HasEndpoint),
			slog.Bool("use_azure_ad", az.UseAzureAD),
		)
	}

	if a.cfg.OpenAI.APIKey != "" {
		opts := []openaiprov.Option{openaiprov.WithTimeout(a.cfg.ProviderTimeout)}
		if a.cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openaiprov.WithBaseURL(a.cfg.OpenAI.BaseURL))
		}
		a.dalle = openaiprov.New(a.cfg.OpenAI.APIKey, opts...)
	}

	sd, err := buildImageProviders(a.cfg.HuggingFace.APIKey, a.cfg.HuggingFace.BaseURL,
		a.cfg.Replicate.APIKey, a.cfg.Replicate.BaseURL, a.cfg.LocalSD.Endpoint)
	if err != nil {
		return err
	}
	a.sd = sd
	a.localSD = a.cfg.LocalSD.Endpoint
	a.sdAvailable = proxy.ProbeAvailability(ctx, a.sd, providers.ProbeTimeout, a.log)

	return nil
}

// buildImageProviders creates a Stable Diffusion backend for every non-empty
// credential. The local server is always registered; the availability probe
// decides whether it is used.
func buildImageProviders(hfKey, hfURL, repToken, repURL, localEndpoint string) (map[string]providers.ImageProvider, error) {
	provs := make(map[string]providers.ImageProvider)

	if hfKey != "" {
		var opts []hfprov.Option
		if hfURL != "" {
			opts = append(opts, hfprov.WithBaseURL(hfURL))
		}
		provs[providers.HuggingFace] = hfprov.New(hfKey, opts...)
	}
	if repToken != "" {
		var opts []replicateprov.Option
		if repURL != "" {
			opts = append(opts, replicateprov.WithBaseURL(repURL))
		}
		rp, err := replicateprov.New(repToken, opts...)
		if err != nil {
			return nil, err
		}
		provs[providers.Replicate] = rp
	}
	if localEndpoint != "" {
		provs[providers.Local] = localsdprov.New(localEndpoint)
	}

	return provs, nil
}

// initServices builds the assistant, the studio, the metrics registry and the
// generation event log.
func (a *App) initServices(_ context.Context) error {
	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	opts := []assistant.Option{
		assistant.WithMetrics(a.prom),
		assistant.WithLogger(a.log),
		assistant.WithFetchTimeout(a.cfg.ProviderTimeout),
		assistant.WithImageOptions(imageprep.Options{
			MaxBytes:     a.cfg.Upload.MaxFileSize,
			AllowedTypes: a.cfg.Upload.AllowedFileTypes,
		}),
	}
	if a.cache != nil {
		opts = append(opts, assistant.WithCache(a.cache, a.cfg.Cache.TTL))
	}

	// Typed nils must not leak into the interfaces below.
	var chat assistant.ChatClient
	if a.azure != nil {
		chat = a.azure
	}
	a.assistant = assistant.New(chat, opts...)

	var gen studio.Generator
	if a.dalle != nil {
		gen = a.dalle
	}
	a.studio = studio.New(gen, a.history, a.log)

	events, err := logger.New(a.baseCtx, a.log)
	if err != nil {
		return fmt.Errorf("event log: %w", err)
	}
	a.events = events

	return nil
}

// initGateway wires together the Gateway with all configured subsystems.
func (a *App) initGateway(_ context.Context) error {
	checkers := make(map[string]proxy.Checker, len(a.sd)+2)
	for name, p := range a.sd {
		checkers[name] = p
	}

	var azureImager proxy.AzureImager
	if a.azure != nil {
		azureImager = a.azure
		checkers[providers.Azure] = a.azure
	}
	if a.dalle != nil {
		checkers[providers.OpenAI] = a.dalle
	}

	var limiter ratelimit.Limiter
	if rpm := a.cfg.RateLimit.RPMLimit; rpm > 0 {
		if a.rdb != nil {
			limiter = ratelimit.NewRPMLimiter(a.rdb, rpm)
			a.log.Info("rate limiting enabled", slog.String("backend", "redis"), slog.Int("rpm_limit", rpm))
		} else {
			limiter = ratelimit.NewLocalLimiter(rpm)
			a.log.Info("rate limiting enabled", slog.String("backend", "local"), slog.Int("rpm_limit", rpm))
		}
	}

	gw, err := proxy.New(a.baseCtx, proxy.Options{
		Logger:          a.log,
		Metrics:         a.prom,
		ImageProviders:  a.sd,
		SDAvailable:     a.sdAvailable,
		LocalEndpoint:   a.localSD,
		Checkers:        checkers,
		CachePing:       a.cachePing,
		Azure:           azureImager,
		AzureStatus:     a.cfg.Azure.Validate(),
		Store:           a.store,
		Studio:          a.studio,
		Assistant:       a.assistant,
		Limiter:         limiter,
		Events:          a.events,
		CORSOrigins:     a.cfg.CORSOrigins,
		AIConfigured:    a.cfg.AIConfigured(),
		ProviderTimeout: a.cfg.ProviderTimeout,
		CBConfig: proxy.CBConfig{
			ErrorThreshold:  a.cfg.CircuitBreaker.ErrorThreshold,
			TimeWindow:      a.cfg.CircuitBreaker.TimeWindow,
			HalfOpenTimeout: a.cfg.CircuitBreaker.HalfOpenTimeout,
		},
	})
	if err != nil {
		return err
	}
	a.gw = gw

	return nil
}
