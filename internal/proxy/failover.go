package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redai/design-gateway/internal/providers"
)

var (
	ErrNoImageProviders   = errors.New("sd: no provider available")
	ErrAllProvidersFailed = errors.New("sd: all providers failed")
)

// Client-facing messages for the two errors above.
const (
	msgNoImageProviders   = "No Stable Diffusion service configured. Set HUGGINGFACE_API_KEY, REPLICATE_API_TOKEN or run a local server at LOCAL_SD_ENDPOINT"
	msgAllProvidersFailed = "All Stable Diffusion services failed"
)

// generateWithFailover walks the available Stable Diffusion backends in
// fallback order and returns the first success along with the provider name.
//
// Every failure moves on to the next backend, since each one has its own
// credentials and capacity. Only client cancellation stops the walk early.
// Backends with an open circuit breaker are skipped.
func (g *Gateway) generateWithFailover(ctx context.Context, req *providers.ImageRequest) (*providers.ImageResponse, string, error) {
	if len(g.sdAvailable) == 0 {
		return nil, "", ErrNoImageProviders
	}

	var (
		lastErr  error
		prevName string
		attempts int
	)

	for _, name := range g.sdAvailable {
		prov, ok := g.imageProviders[name]
		if !ok {
			continue
		}

		if !g.cb.Allow(name) {
			g.log.WarnContext(ctx, "circuit_breaker_open",
				slog.String("request_id", req.RequestID),
				slog.String("provider", name),
			)
			if g.metrics != nil {
				g.metrics.RecordCircuitBreakerRejection(name, g.cb.StateLabel(name))
				g.metrics.SetCircuitBreaker(name, int64(g.cb.State(name)))
			}
			continue
		}

		if prevName != "" && g.metrics != nil {
			g.metrics.RecordFailover(prevName, name)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, g.providerTimeout)
		start := time.Now()
		resp, err := prov.Generate(attemptCtx, req)
		dur := time.Since(start)
		cancel()
		attempts++

		if err == nil {
			g.cb.RecordSuccess(name)
			if g.metrics != nil {
				g.metrics.ObserveSDAttempt(name, "success", dur)
				g.metrics.SetCircuitBreaker(name, int64(g.cb.State(name)))
			}
			if attempts > 1 || name != g.sdAvailable[0] {
				g.log.InfoContext(ctx, "failover_success",
					slog.String("request_id", req.RequestID),
					slog.String("to", name),
					slog.Int("attempts", attempts),
					slog.Int64("latency_ms", dur.Milliseconds()),
				)
				if g.metrics != nil {
					g.metrics.RecordFailoverSuccess(name)
				}
			}
			return resp, name, nil
		}

		// The caller went away; further attempts would be wasted.
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			g.cb.Abandon(name)
			return nil, "", fmt.Errorf("sd: %s: %w", name, err)
		}

		g.cb.RecordFailure(name)
		reason := classifyError(err)
		if g.metrics != nil {
			g.metrics.ObserveSDAttempt(name, reason, dur)
			g.metrics.SetCircuitBreaker(name, int64(g.cb.State(name)))
		}
		g.log.WarnContext(ctx, "provider_attempt_failed",
			slog.String("request_id", req.RequestID),
			slog.String("provider", name),
			slog.String("reason", reason),
			slog.Int64("latency_ms", dur.Milliseconds()),
			slog.String("error", err.Error()),
		)

		lastErr = err
		prevName = name
	}

	if g.metrics != nil {
		g.metrics.RecordFailoverExhausted()
	}
	if lastErr == nil {
		lastErr = errors.New("every available provider is circuit-broken")
	}
	return nil, "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
}

// classifyError converts an error into a short label for logs and metrics.
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var sc providers.StatusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() > 0 {
		return fmt.Sprintf("http_%d", sc.HTTPStatus())
	}
	return "error"
}
