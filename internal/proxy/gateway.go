// Package proxy is the HTTP surface of the design gateway.
//
// The Gateway owns the Stable Diffusion failover walk and routes every other
// request to the service that handles it: the dashboard store, the design
// assistant, the DALL-E studio and the Azure image deployment.
//
// Key design constraints:
//   - Every dependency except the store is optional and nil-safe.
//   - All I/O uses context.Context derived from the server base context.
//   - Upstream failures are mapped to the {"detail", "error"} envelope.
package proxy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/redai/design-gateway/internal/assistant"
	"github.com/redai/design-gateway/internal/config"
	"github.com/redai/design-gateway/internal/logger"
	"github.com/redai/design-gateway/internal/metrics"
	"github.com/redai/design-gateway/internal/providers"
	"github.com/redai/design-gateway/internal/ratelimit"
	"github.com/redai/design-gateway/internal/store"
	"github.com/redai/design-gateway/internal/studio"
	"github.com/redai/design-gateway/pkg/apierr"
)

// Version is reported by /health and /api/features.
const Version = "2.0.0"

// AzureImager is the slice of the Azure OpenAI client the gateway calls
// directly. *azure.Client satisfies it.
type AzureImager interface {
	GenerateImage(ctx context.Context, req providers.DalleRequest) (*providers.GeneratedImage, error)
	ServiceInfo() map[string]any
}

// Options holds the gateway dependencies. Store is required; everything
// else may be left zero.
type Options struct {
	// Logger defaults to slog.Default when nil.
	Logger  *slog.Logger
	Metrics *metrics.Registry

	// ImageProviders holds every Stable Diffusion backend with credentials;
	// SDAvailable is the probed subset in fallback order.
	ImageProviders map[string]providers.ImageProvider
	SDAvailable    []string
	LocalEndpoint  string

	// Checkers are probed by the health checker, keyed by provider name.
	Checkers  map[string]Checker
	CachePing PingFunc

	// Azure is nil when the Azure configuration is incomplete; AzureStatus
	// then explains what is missing.
	Azure       AzureImager
	AzureStatus config.AzureValidation

	Store     store.Store
	Studio    *studio.Service
	Assistant *assistant.Assistant

	Limiter ratelimit.Limiter
	Events  *logger.Logger

	CORSOrigins     []string
	AIConfigured    bool
	ProviderTimeout time.Duration
	CBConfig        CBConfig
}

// Gateway serves the HTTP API. All dependencies are injected via Options so
// they can be replaced with doubles in unit tests.
type Gateway struct {
	imageProviders map[string]providers.ImageProvider
	sdAvailable    []string
	localEndpoint  string

	cb      *CircuitBreaker
	health  *HealthChecker
	baseCtx context.Context
	log     *slog.Logger
	metrics *metrics.Registry

	providerTimeout time.Duration

	azure       AzureImager
	azureStatus config.AzureValidation

	store     store.Store
	studio    *studio.Service
	assistant *assistant.Assistant

	// Optional dependencies; nil-safe when not configured.
	limiter ratelimit.Limiter
	events  *logger.Logger

	// CORS allowed origins. ["*"] means allow all.
	corsOrigins  []string
	aiConfigured bool

	srv *fasthttp.Server
}

// New creates a Gateway and starts its health checker, which stops when
// baseCtx is cancelled or Close is called.
func New(baseCtx context.Context, opts Options) (*Gateway, error) {
	if baseCtx == nil {
		return nil, errors.New("gateway: context must not be nil")
	}
	if opts.Store == nil {
		return nil, errors.New("gateway: store is required")
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	providerTimeout := opts.ProviderTimeout
	if providerTimeout <= 0 {
		providerTimeout = providers.ProviderTimeout
	}

	if opts.Studio == nil {
		opts.Studio = studio.New(nil, nil, log)
	}
	if opts.Assistant == nil {
		opts.Assistant = assistant.New(nil, assistant.WithLogger(log), assistant.WithMetrics(opts.Metrics))
	}

	gw := &Gateway{
		imageProviders:  opts.ImageProviders,
		sdAvailable:     opts.SDAvailable,
		localEndpoint:   opts.LocalEndpoint,
		cb:              NewCircuitBreakerWithConfig(opts.CBConfig),
		baseCtx:         baseCtx,
		log:             log,
		metrics:         opts.Metrics,
		providerTimeout: providerTimeout,
		azure:           opts.Azure,
		azureStatus:     opts.AzureStatus,
		store:           opts.Store,
		studio:          opts.Studio,
		assistant:       opts.Assistant,
		limiter:         opts.Limiter,
		events:          opts.Events,
		corsOrigins:     opts.CORSOrigins,
		aiConfigured:    opts.AIConfigured,
	}
	if gw.imageProviders == nil {
		gw.imageProviders = map[string]providers.ImageProvider{}
	}

	// Initialise circuit breaker gauges (closed) for known providers.
	if gw.metrics != nil {
		for _, name := range providers.DefaultFallbackOrder {
			gw.metrics.SetCircuitBreaker(name, int64(gw.cb.State(name)))
		}
	}

	gw.health = NewHealthChecker(baseCtx, opts.Checkers, opts.CachePing, opts.Store.Ping, gw.metrics)
	gw.srv = gw.newServer()

	return gw, nil
}

// Close stops the health checker. The HTTP server is stopped by Shutdown.
func (g *Gateway) Close() {
	if g.health != nil {
		g.health.Close()
	}
}

// logEvent enqueues a GenerationEvent to the async logger. Never blocks.
func (g *Gateway) logEvent(ctx *fasthttp.RequestCtx, route, service, model string, promptChars int, start time.Time, fallback bool) {
	if g.events == nil {
		return
	}

	id, err := uuid.Parse(requestIDFrom(ctx))
	if err != nil {
		id = uuid.New()
	}

	g.events.Log(logger.GenerationEvent{
		ID:          id,
		Service:     service,
		Model:       model,
		Route:       route,
		PromptChars: promptChars,
		LatencyMs:   time.Since(start).Milliseconds(),
		Status:      ctx.Response.StatusCode(),
		Fallback:    fallback,
		CreatedAt:   time.Now(),
	})
}

// requestContext derives the context for upstream calls. It ends when the
// server shuts down or the handler returns.
func (g *Gateway) requestContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(g.baseCtx)
}

func requestIDFrom(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue("request_id").(string)
	return id
}

// handleProviderError maps provider errors to the appropriate HTTP response.
//
//	StatusCoder (providers that return HTTP codes) → passed through with remapping
//	context.DeadlineExceeded                       → 504 Gateway Timeout
//	all other errors                               → 502 Bad Gateway
func handleProviderError(ctx *fasthttp.RequestCtx, err error) {
	var sc providers.StatusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() > 0 {
		apierr.WriteProviderError(ctx, sc.HTTPStatus(), err.Error())
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		apierr.WriteTimeout(ctx)
		return
	}

	apierr.BadGateway(ctx, err.Error())
}
