package proxy

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/redai/design-gateway/internal/providers"
	"github.com/redai/design-gateway/internal/studio"
	"github.com/redai/design-gateway/pkg/apierr"
)

const (
	msgStudioNotConfigured = "OpenAI client not configured"
	msgRecordNotFound      = "Generation record not found"
	msgNoImages            = "Failed to generate any images"
)

type dalleRequest struct {
	Prompt         string `json:"prompt"`
	ImageCount     int    `json:"imageCount"`
	Quality        string `json:"quality"`
	Style          string `json:"style"`
	ReferenceImage string `json:"referenceImage"`
}

func (g *Gateway) handleDalleGenerate(ctx *fasthttp.RequestCtx) {
	start := time.Now()

	req := dalleRequest{ImageCount: 1}
	if len(ctx.PostBody()) == 0 {
		apierr.BadRequest(ctx, "No JSON data provided")
		return
	}
	if err := decodeBody(ctx, &req); err != nil {
		apierr.BadRequest(ctx, "invalid JSON: "+err.Error())
		return
	}

	reqCtx, cancel := g.requestContext()
	defer cancel()

	res, err := g.studio.Generate(reqCtx, studio.GenerateRequest{
		Prompt:         req.Prompt,
		ImageCount:     req.ImageCount,
		Quality:        req.Quality,
		Style:          req.Style,
		ReferenceImage: req.ReferenceImage,
	})
	if err != nil {
		g.studioError(ctx, "dalle_generate", err)
		g.logEvent(ctx, "dalle_generate", providers.OpenAI, "dall-e-3", len(req.Prompt), start, false)
		return
	}

	if g.metrics != nil {
		g.metrics.RecordImages(providers.OpenAI, len(res.Images))
	}
	writeJSON(ctx, res)
	g.logEvent(ctx, "dalle_generate", providers.OpenAI, "dall-e-3", len(req.Prompt), start, false)
}

func (g *Gateway) handleDalleHistory(ctx *fasthttp.RequestCtx) {
	limit := 0
	if raw := ctx.QueryArgs().Peek("limit"); len(raw) > 0 {
		n, err := strconv.Atoi(string(raw))
		if err != nil {
			apierr.BadRequest(ctx, "limit must be an integer")
			return
		}
		// Explicit zero still means one record; only a missing limit uses the default.
		limit = max(n, 1)
	}

	history, total, err := g.studio.History(ctx, limit)
	if err != nil {
		g.studioError(ctx, "dalle_history", err)
		return
	}
	if history == nil {
		history = []studio.Record{}
	}

	writeJSON(ctx, map[string]any{
		"success": true,
		"history": history,
		"total":   total,
	})
}

func (g *Gateway) handleDalleRegenerate(ctx *fasthttp.RequestCtx) {
	start := time.Now()

	reqCtx, cancel := g.requestContext()
	defer cancel()

	res, err := g.studio.Regenerate(reqCtx, pathParam(ctx, "id"))
	if err != nil {
		g.studioError(ctx, "dalle_regenerate", err)
		return
	}

	if g.metrics != nil {
		g.metrics.RecordImages(providers.OpenAI, len(res.Images))
	}
	writeJSON(ctx, res)
	g.logEvent(ctx, "dalle_regenerate", providers.OpenAI, "dall-e-3", len(res.Metadata.OriginalPrompt), start, false)
}

func (g *Gateway) handleDalleStats(ctx *fasthttp.RequestCtx) {
	st, err := g.studio.Stats(ctx)
	if err != nil {
		g.studioError(ctx, "dalle_stats", err)
		return
	}
	writeJSON(ctx, map[string]any{
		"success": true,
		"stats":   st,
	})
}

// studioError maps studio failures to HTTP responses.
func (g *Gateway) studioError(ctx *fasthttp.RequestCtx, op string, err error) {
	var verr *studio.ValidationError
	switch {
	case errors.As(err, &verr):
		apierr.BadRequest(ctx, verr.Msg)
	case errors.Is(err, studio.ErrRecordNotFound):
		apierr.NotFound(ctx, msgRecordNotFound)
	case errors.Is(err, studio.ErrNotConfigured):
		apierr.NotConfigured(ctx, msgStudioNotConfigured)
	case errors.Is(err, studio.ErrNoImages):
		g.log.WarnContext(ctx, "studio_generation_failed",
			slog.String("request_id", requestIDFrom(ctx)),
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		apierr.BadGateway(ctx, msgNoImages)
	default:
		g.log.ErrorContext(ctx, "studio_error",
			slog.String("request_id", requestIDFrom(ctx)),
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		apierr.Internal(ctx, "internal server error")
	}
}
