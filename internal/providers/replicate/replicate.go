// Package replicate generates Stable Diffusion XL images through the
// Replicate predictions API.
//
// A prediction is created against the pinned SDXL version and, unless it is
// already terminal, waited on until it succeeds, fails or ctx expires.
package replicate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	r8 "github.com/replicate/replicate-go"

	"github.com/redai/design-gateway/internal/providers"
)

const (
	defaultPollInterval = time.Second

	// SDXLVersion pins stability-ai/sdxl.
	SDXLVersion = "39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b"

	scheduler = "K_EULER"
)

type Provider struct {
	client       *r8.Client
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

type Option func(*Provider)

// WithBaseURL points the client at another API root, e.g. a local mock.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// New builds a provider for the given API token.
func New(token string, opts ...Option) (*Provider, error) {
	p := &Provider{
		httpClient:   &http.Client{Timeout: providers.ProviderTimeout},
		pollInterval: defaultPollInterval,
	}
	for _, o := range opts {
		o(p)
	}

	clientOpts := []r8.ClientOption{
		r8.WithToken(token),
		r8.WithHTTPClient(p.httpClient),
	}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, r8.WithBaseURL(p.baseURL))
	}

	c, err := r8.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("replicate: %w", err)
	}
	p.client = c
	return p, nil
}

func (p *Provider) Name() string { return providers.Replicate }

func (p *Provider) Generate(ctx context.Context, req *providers.ImageRequest) (*providers.ImageResponse, error) {
	input := r8.PredictionInput{
		"prompt":              req.Prompt,
		"negative_prompt":     req.NegativePrompt,
		"width":               req.Width,
		"height":              req.Height,
		"num_inference_steps": req.Steps,
		"guidance_scale":      req.GuidanceScale,
		"scheduler":           scheduler,
	}

	pred, err := p.client.CreatePrediction(ctx, SDXLVersion, input, nil, false)
	if err != nil {
		return nil, p.wrap(ctx, "create prediction", err)
	}

	if !pred.Status.Terminated() {
		if err := p.client.Wait(ctx, pred, r8.WithPollingInterval(p.pollInterval)); err != nil {
			return nil, p.wrap(ctx, "wait for prediction "+pred.ID, err)
		}
	}

	if pred.Status != r8.Succeeded {
		return nil, &providers.ProviderError{
			Provider: providers.Replicate,
			Message:  fmt.Sprintf("prediction %s %s: %v", pred.ID, pred.Status, pred.Error),
		}
	}

	imageURL, err := firstOutput(pred.Output)
	if err != nil {
		return nil, err
	}

	return &providers.ImageResponse{
		URL:     imageURL,
		Service: providers.DisplayName[providers.Replicate],
		Model:   providers.ModelStableDiffusionXL,
	}, nil
}

// HealthCheck verifies the token against the account endpoint.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.GetCurrentAccount(ctx); err != nil {
		return fmt.Errorf("replicate: health check: %w", toProviderError(err))
	}
	return nil
}

// wrap reports ctx expiry as such so the fallback loop can tell a caller
// cancellation from an upstream failure.
func (p *Provider) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("replicate: %s: %w", op, ctxErr)
	}
	return toProviderError(err)
}

func toProviderError(err error) error {
	var apiErr *r8.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Detail
		if msg == "" {
			msg = apiErr.Error()
		}
		return &providers.ProviderError{
			Provider:   providers.Replicate,
			StatusCode: apiErr.Status,
			Message:    msg,
		}
	}
	return fmt.Errorf("replicate: %w", err)
}

// firstOutput accepts either a list of URLs or a single URL string.
func firstOutput(out r8.PredictionOutput) (string, error) {
	switch v := any(out).(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok && s != "" {
				return s, nil
			}
		}
		return "", &providers.ProviderError{Provider: providers.Replicate, Message: "prediction returned no output"}
	case []string:
		if len(v) > 0 && v[0] != "" {
			return v[0], nil
		}
		return "", &providers.ProviderError{Provider: providers.Replicate, Message: "prediction returned no output"}
	}
	return "", &providers.ProviderError{Provider: providers.Replicate, Message: "unexpected prediction output"}
}
