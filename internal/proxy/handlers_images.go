package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/redai/design-gateway/internal/providers"
	"github.com/redai/design-gateway/pkg/apierr"
)

const msgEmptyPrompt = "Prompt cannot be empty."

// Stable Diffusion request defaults.
const (
	defaultSDSize     = 1024
	defaultSDSteps    = 20
	defaultSDGuidance = 7.5
	defaultSDStyle    = "realistic"
)

type azureImageRequest struct {
	Prompt  string `json:"prompt"`
	Style   string `json:"style,omitempty"`
	Quality string `json:"quality,omitempty"`
}

func (g *Gateway) handleGenerateImageAzure(ctx *fasthttp.RequestCtx) {
	start := time.Now()

	var req azureImageRequest
	if err := decodeBody(ctx, &req); err != nil {
		apierr.BadRequest(ctx, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		apierr.BadRequest(ctx, msgEmptyPrompt)
		return
	}

	if g.azure == nil {
		status, _ := json.Marshal(g.azureStatus)
		g.log.WarnContext(ctx, "azure_not_configured",
			slog.String("request_id", requestIDFrom(ctx)),
			slog.String("config_status", string(status)),
		)
		apierr.NotConfigured(ctx, "Azure OpenAI service not configured. Missing configuration: "+string(status))
		return
	}

	if req.Style == "" {
		req.Style = "vivid"
	}
	if req.Quality == "" {
		req.Quality = "standard"
	}

	reqCtx, cancel := context.WithTimeout(g.baseCtx, g.providerTimeout)
	defer cancel()

	img, err := g.azure.GenerateImage(reqCtx, providers.DalleRequest{
		Prompt:  req.Prompt,
		Style:   req.Style,
		Quality: req.Quality,
	})
	if err != nil {
		g.log.WarnContext(ctx, "azure_image_failed",
			slog.String("request_id", requestIDFrom(ctx)),
			slog.String("reason", classifyError(err)),
			slog.String("error", err.Error()),
		)
		handleProviderError(ctx, err)
		g.logEvent(ctx, "generate_image_azure", providers.Azure, "dall-e", len(req.Prompt), start, false)
		return
	}

	if g.metrics != nil {
		g.metrics.RecordImages(providers.Azure, 1)
	}
	writeJSON(ctx, map[string]any{
		"success":        true,
		"image_url":      img.URL,
		"revised_prompt": img.RevisedPrompt,
		"model":          img.Model,
		"style":          req.Style,
		"quality":        req.Quality,
	})
	g.logEvent(ctx, "generate_image_azure", providers.Azure, img.Model, len(req.Prompt), start, false)
}

type sdImageRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	GuidanceScale  float64 `json:"guidance_scale"`
	Style          string  `json:"style"`
}

func (r *sdImageRequest) applyDefaults() {
	if r.Width <= 0 {
		r.Width = defaultSDSize
	}
	if r.Height <= 0 {
		r.Height = defaultSDSize
	}
	if r.Steps <= 0 {
		r.Steps = defaultSDSteps
	}
	if r.GuidanceScale <= 0 {
		r.GuidanceScale = defaultSDGuidance
	}
	if r.Style == "" {
		r.Style = defaultSDStyle
	}
}

func (g *Gateway) handleGenerateImageSD(ctx *fasthttp.RequestCtx) {
	start := time.Now()

	var req sdImageRequest
	if err := decodeBody(ctx, &req); err != nil {
		apierr.BadRequest(ctx, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		apierr.BadRequest(ctx, msgEmptyPrompt)
		return
	}
	req.applyDefaults()

	reqCtx, cancel := g.requestContext()
	defer cancel()

	resp, name, err := g.generateWithFailover(reqCtx, &providers.ImageRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		GuidanceScale:  req.GuidanceScale,
		Style:          req.Style,
		RequestID:      requestIDFrom(ctx),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNoImageProviders):
			apierr.WriteUnavailable(ctx, msgNoImageProviders)
		case errors.Is(err, ErrAllProvidersFailed):
			g.log.ErrorContext(ctx, "sd_all_providers_failed",
				slog.String("request_id", requestIDFrom(ctx)),
				slog.String("error", err.Error()),
			)
			apierr.BadGateway(ctx, msgAllProvidersFailed)
		default:
			handleProviderError(ctx, err)
		}
		g.logEvent(ctx, "generate_image_sd", "stable_diffusion", providers.ModelStableDiffusionXL, len(req.Prompt), start, false)
		return
	}

	if g.metrics != nil {
		g.metrics.RecordImages(name, 1)
	}
	writeJSON(ctx, map[string]any{
		"success":   true,
		"image_url": resp.URL,
		"model":     resp.Model,
		"service":   resp.Service,
		"prompt":    req.Prompt,
		"parameters": map[string]any{
			"negative_prompt": req.NegativePrompt,
			"width":           req.Width,
			"height":          req.Height,
			"steps":           req.Steps,
			"guidance_scale":  req.GuidanceScale,
			"style":           req.Style,
		},
	})
	g.logEvent(ctx, "generate_image_sd", name, resp.Model, len(req.Prompt), start, len(g.sdAvailable) > 0 && name != g.sdAvailable[0])
}
