// Package providers defines the common interfaces and types used by all image
// and language-model upstreams (Hugging Face, Replicate, a local Stable
// Diffusion server, Azure OpenAI and OpenAI).
//
// Each Stable Diffusion backend lives in its own sub-package and implements
// ImageProvider. The Azure and OpenAI clients expose richer, provider-specific
// methods and are consumed directly by the assistant and studio packages.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type (
	// ImageRequest is a normalized Stable Diffusion request.
	ImageRequest struct {
		Prompt         string
		NegativePrompt string
		Width          int
		Height         int
		Steps          int
		GuidanceScale  float64
		Style          string
		RequestID      string
	}

	// ImageResponse is a normalized provider result. URL is either a remote
	// https URL or a data: URI holding the encoded image.
	ImageResponse struct {
		URL     string
		Service string
		Model   string
	}

	// Message is a single turn in a conversation (role + text content).
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	// DalleRequest is a single DALL-E image request.
	DalleRequest struct {
		Prompt  string
		Style   string
		Quality string
		Size    string
	}

	// GeneratedImage is a DALL-E result.
	GeneratedImage struct {
		URL           string
		RevisedPrompt string
		Model         string
	}
)

// ImageProvider is a Stable Diffusion backend.
type ImageProvider interface {
	Name() string
	Generate(ctx context.Context, req *ImageRequest) (*ImageResponse, error)
	HealthCheck(ctx context.Context) error
}

// Provider names used as map keys, metric labels and log values.
const (
	HuggingFace = "huggingface"
	Replicate   = "replicate"
	Local       = "local"
	Azure       = "azure"
	OpenAI      = "openai"
)

// DefaultFallbackOrder is the fixed Stable Diffusion priority order. The
// gateway walks the available subset of this list until one succeeds.
var DefaultFallbackOrder = []string{
	HuggingFace,
	Replicate,
	Local,
}

// DisplayName maps provider names to the label reported in API responses.
var DisplayName = map[string]string{
	HuggingFace: "Hugging Face",
	Replicate:   "Replicate",
	Local:       "Local",
}

// ModelStableDiffusionXL is the model label reported for every SD backend.
const ModelStableDiffusionXL = "Stable Diffusion XL"

// Default circuit breaker and timeout constants.
const (
	CBErrorThreshold  = 5
	CBTimeWindow      = 60 * time.Second
	CBHalfOpenTimeout = 30 * time.Second
	ProviderTimeout   = 60 * time.Second
	ProbeTimeout      = 2 * time.Second
)

type StatusCoder interface {
	HTTPStatus() int
}

// ProviderError is an upstream failure carrying the upstream HTTP status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

// maxErrorBody caps how much of an upstream error body ends up in a message.
const maxErrorBody = 512

// ReadError builds a ProviderError from a non-success upstream response.
// JSON bodies of the shape {"error": "..."} or {"detail": "..."} are unwrapped.
func ReadError(provider string, resp *http.Response) *ProviderError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))

	var parsed struct {
		Error  any    `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		switch e := parsed.Error.(type) {
		case string:
			if e != "" {
				msg = e
			}
		case map[string]any:
			if m, ok := e["message"].(string); ok && m != "" {
				msg = m
			}
		}
		if parsed.Detail != "" {
			msg = parsed.Detail
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Message: msg}
}
