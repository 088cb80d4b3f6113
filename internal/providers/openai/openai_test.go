package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/redai/design-gateway/internal/providers"
)

func TestProvider_Name(t *testing.T) {
	p := New("key")
	if p.Name() != "openai" {
		t.Fatalf("expected 'openai', got %q", p.Name())
	}
}

func TestProvider_GenerateImage_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/images/generations") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer mock-api-key" {
			t.Errorf("missing or wrong Authorization header: %s", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 0,
			"data": []any{
				map[string]any{"url": "https://img.example/1.png", "revised_prompt": "a cozy loft, revised"},
			},
		})
	}))
	defer srv.Close()

	p := New("mock-api-key", WithBaseURL(srv.URL))
	img, err := p.GenerateImage(context.Background(), providers.DalleRequest{
		Prompt:  "a cozy loft",
		Quality: "hd",
		Style:   "natural",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.URL != "https://img.example/1.png" || img.RevisedPrompt != "a cozy loft, revised" {
		t.Errorf("unexpected image: %+v", img)
	}
	if img.Model != "dall-e-3" {
		t.Errorf("model = %q", img.Model)
	}

	if got["model"] != "dall-e-3" || got["size"] != "1024x1024" || got["quality"] != "hd" || got["style"] != "natural" {
		t.Errorf("unexpected request body: %v", got)
	}
	if n, _ := got["n"].(float64); n != 1 {
		t.Errorf("n = %v", got["n"])
	}
}

func TestProvider_GenerateImage_EmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":0,"data":[]}`))
	}))
	defer srv.Close()

	p := New("k", WithBaseURL(srv.URL))
	if _, err := p.GenerateImage(context.Background(), providers.DalleRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestProvider_GenerateImage_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"content policy violation","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := New("k", WithBaseURL(srv.URL))
	_, err := p.GenerateImage(context.Background(), providers.DalleRequest{Prompt: "x"})

	var perr *providers.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *providers.ProviderError, got %T: %v", err, err)
	}
	if perr.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("status = %d", perr.HTTPStatus())
	}
}

func TestProvider_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer srv.Close()

	if err := New("k", WithBaseURL(srv.URL)).HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
