// Package openai wraps the OpenAI images API for the DALL-E generation studio.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/redai/design-gateway/internal/providers"
)

const (
	defaultModel = "dall-e-3"
	defaultSize  = "1024x1024"
)

// Provider generates studio images through the official SDK. It is safe for
// concurrent use.
type Provider struct {
	model   string
	baseURL string
	timeout time.Duration
	retries int
	client  openaiSDK.Client
}

type Option func(*Provider)

// WithBaseURL points the client at a different host, e.g. a local mock.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") + "/" }
}

// WithModel overrides the image model. Default: dall-e-3.
func WithModel(m string) Option {
	return func(p *Provider) { p.model = m }
}

// WithTimeout bounds each request, retries included.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithMaxRetries sets how often the SDK retries 429 and 5xx responses.
func WithMaxRetries(n int) Option {
	return func(p *Provider) { p.retries = n }
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		model:   defaultModel,
		timeout: providers.ProviderTimeout,
		retries: 1,
	}
	for _, o := range opts {
		o(p)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(p.timeout),
		option.WithMaxRetries(p.retries),
	}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = openaiSDK.NewClient(reqOpts...)

	return p
}

func (p *Provider) Name() string { return providers.OpenAI }

// HealthCheck lists models; any authenticated answer counts as healthy.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai: health check: %w", toProviderError(err))
	}
	return nil
}

// GenerateImage requests a single image and returns its URL and the prompt
// the model actually used.
func (p *Provider) GenerateImage(ctx context.Context, req providers.DalleRequest) (*providers.GeneratedImage, error) {
	params := openaiSDK.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openaiSDK.ImageModel(p.model),
		N:              openaiSDK.Int(1),
		Size:           openaiSDK.ImageGenerateParamsSize(orDefault(req.Size, defaultSize)),
		ResponseFormat: openaiSDK.ImageGenerateParamsResponseFormatURL,
	}
	if req.Quality != "" {
		params.Quality = openaiSDK.ImageGenerateParamsQuality(req.Quality)
	}
	if req.Style != "" {
		params.Style = openaiSDK.ImageGenerateParamsStyle(req.Style)
	}

	resp, err := p.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, toProviderError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, &providers.ProviderError{Provider: providers.OpenAI, Message: "no image data in response"}
	}

	return &providers.GeneratedImage{
		URL:           resp.Data[0].URL,
		RevisedPrompt: resp.Data[0].RevisedPrompt,
		Model:         p.model,
	}, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// toProviderError keeps the upstream status so handlers can map it. Context
// errors pass through untouched for the timeout path.
func toProviderError(err error) error {
	var sdkErr *openaiSDK.Error
	if errors.As(err, &sdkErr) {
		return &providers.ProviderError{
			Provider:   providers.OpenAI,
			StatusCode: sdkErr.StatusCode,
			Message:    sdkErr.Error(),
		}
	}
	return err
}
