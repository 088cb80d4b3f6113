// Package huggingface generates Stable Diffusion XL images through the
// Hugging Face Inference API.
package huggingface

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/redai/design-gateway/internal/providers"
)

const (
	defaultBaseURL = "https://api-inference.huggingface.co"
	modelPath      = "/models/stabilityai/stable-diffusion-xl-base-1.0"

	// maxImageBytes guards against a misbehaving upstream streaming forever.
	maxImageBytes = 32 << 20
)

type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type Option func(*Provider)

func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: providers.ProviderTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return providers.HuggingFace }

type (
	parameters struct {
		NegativePrompt    string  `json:"negative_prompt"`
		Width             int     `json:"width"`
		Height            int     `json:"height"`
		NumInferenceSteps int     `json:"num_inference_steps"`
		GuidanceScale     float64 `json:"guidance_scale"`
		Seed              int     `json:"seed"`
	}
	payload struct {
		Inputs     string     `json:"inputs"`
		Parameters parameters `json:"parameters"`
	}
)

// Generate posts the prompt and returns the image as a data: URI.
func (p *Provider) Generate(ctx context.Context, req *providers.ImageRequest) (*providers.ImageResponse, error) {
	body, err := json.Marshal(payload{
		Inputs: req.Prompt,
		Parameters: parameters{
			NegativePrompt:    req.NegativePrompt,
			Width:             req.Width,
			Height:            req.Height,
			NumInferenceSteps: req.Steps,
			GuidanceScale:     req.GuidanceScale,
			Seed:              -1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("huggingface: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+modelPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("huggingface: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("huggingface: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, providers.ReadError(providers.HuggingFace, resp)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	// The API answers 200 with a JSON body while a model is loading or when
	// the request was rejected.
	if mediaType == "application/json" {
		return nil, providers.ReadError(providers.HuggingFace, resp)
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("huggingface: read image: %w", err)
	}
	if len(img) == 0 {
		return nil, &providers.ProviderError{Provider: providers.HuggingFace, StatusCode: resp.StatusCode, Message: "empty image body"}
	}

	if mediaType == "" || !strings.HasPrefix(mediaType, "image/") {
		mediaType = "image/png"
	}

	return &providers.ImageResponse{
		URL:     "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(img),
		Service: providers.DisplayName[providers.HuggingFace],
		Model:   providers.ModelStableDiffusionXL,
	}, nil
}

// HealthCheck fetches the model status endpoint.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+modelPath, nil)
	if err != nil {
		return fmt.Errorf("huggingface: build health request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("huggingface: health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("huggingface: health check: %w", providers.ReadError(providers.HuggingFace, resp))
	}
	return nil
}
