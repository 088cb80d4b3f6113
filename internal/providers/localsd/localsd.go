// Package localsd talks to a self-hosted AUTOMATIC1111-compatible Stable
// Diffusion server.
package localsd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/redai/design-gateway/internal/providers"
)

const DefaultEndpoint = "http://localhost:7860"

type Provider struct {
	endpoint string
	client   *http.Client
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

func New(endpoint string, opts ...Option) *Provider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	p := &Provider{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: providers.ProviderTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return providers.Local }

// Endpoint returns the normalized server address.
func (p *Provider) Endpoint() string { return p.endpoint }

// Ping reports whether the server answers its liveness endpoint before ctx expires.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/v1/ping", nil)
	if err != nil {
		return fmt.Errorf("localsd: build ping request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("localsd: ping: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("localsd: ping: %w", providers.ReadError(providers.Local, resp))
	}
	return nil
}

func (p *Provider) HealthCheck(ctx context.Context) error { return p.Ping(ctx) }

type (
	txt2imgRequest struct {
		Prompt         string  `json:"prompt"`
		NegativePrompt string  `json:"negative_prompt"`
		Width          int     `json:"width"`
		Height         int     `json:"height"`
		Steps          int     `json:"steps"`
		CFGScale       float64 `json:"cfg_scale"`
		SamplerName    string  `json:"sampler_name"`
		BatchSize      int     `json:"batch_size"`
		NIter          int     `json:"n_iter"`
	}
	txt2imgResponse struct {
		Images []string `json:"images"`
	}
)

func (p *Provider) Generate(ctx context.Context, req *providers.ImageRequest) (*providers.ImageResponse, error) {
	body, err := json.Marshal(txt2imgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		CFGScale:       req.GuidanceScale,
		SamplerName:    "Euler",
		BatchSize:      1,
		NIter:          1,
	})
	if err != nil {
		return nil, fmt.Errorf("localsd: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/sdapi/v1/txt2img", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("localsd: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("localsd: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, providers.ReadError(providers.Local, resp)
	}

	var out txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("localsd: decode response: %w", err)
	}
	if len(out.Images) == 0 || out.Images[0] == "" {
		return nil, &providers.ProviderError{Provider: providers.Local, StatusCode: resp.StatusCode, Message: "no images in response"}
	}

	return &providers.ImageResponse{
		URL:     "data:image/png;base64," + out.Images[0],
		Service: providers.DisplayName[providers.Local],
		Model:   providers.ModelStableDiffusionXL,
	}, nil
}
