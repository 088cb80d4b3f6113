package proxy

import (
	"context"
	"log/slog"
	"time"

	"github.com/redai/design-gateway/internal/providers"
)

// Pinger is implemented by backends that need a liveness probe before they
// count as available (the local Stable Diffusion server).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeAvailability returns the usable Stable Diffusion backends in fallback
// order. A provider is in provs only because its credentials are configured,
// so presence is enough; a Pinger must also answer within timeout.
func ProbeAvailability(ctx context.Context, provs map[string]providers.ImageProvider, timeout time.Duration, log *slog.Logger) []string {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = providers.ProbeTimeout
	}

	available := make([]string, 0, len(provs))
	for _, name := range providers.DefaultFallbackOrder {
		prov, ok := provs[name]
		if !ok {
			continue
		}

		if p, ok := prov.(Pinger); ok {
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			err := p.Ping(pingCtx)
			cancel()
			if err != nil {
				log.WarnContext(ctx, "sd_provider_unreachable",
					slog.String("provider", name),
					slog.String("error", err.Error()),
				)
				continue
			}
		}

		available = append(available, name)
	}

	if len(available) == 0 {
		log.WarnContext(ctx, "sd_no_providers_available")
	} else {
		log.InfoContext(ctx, "sd_providers_available", slog.Any("providers", available))
	}
	return available
}
