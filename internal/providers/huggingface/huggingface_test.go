package huggingface

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/redai/design-gateway/internal/providers"
)

func baseRequest() *providers.ImageRequest {
	return &providers.ImageRequest{
		Prompt:         "a bright scandinavian kitchen",
		NegativePrompt: "blurry",
		Width:          1024,
		Height:         1024,
		Steps:          20,
		GuidanceScale:  7.5,
	}
}

func TestProvider_Generate_Success(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/stabilityai/stable-diffusion-xl-base-1.0" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer hf-key" {
			t.Errorf("wrong Authorization header: %q", r.Header.Get("Authorization"))
		}

		var body payload
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Inputs != "a bright scandinavian kitchen" || body.Parameters.Seed != -1 {
			t.Errorf("unexpected payload: %+v", body)
		}
		if body.Parameters.NumInferenceSteps != 20 || body.Parameters.GuidanceScale != 7.5 {
			t.Errorf("unexpected parameters: %+v", body.Parameters)
		}

		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	p := New("hf-key", WithBaseURL(srv.URL))
	resp, err := p.Generate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(png)
	if resp.URL != want {
		t.Errorf("url = %q, want %q", resp.URL, want)
	}
	if resp.Service != "Hugging Face" || resp.Model != providers.ModelStableDiffusionXL {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestProvider_Generate_DefaultsToPNG(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{1, 2, 3})
	}))
	defer srv.Close()

	resp, err := New("k", WithBaseURL(srv.URL)).Generate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(resp.URL, "data:image/png;base64,") {
		t.Errorf("url = %q", resp.URL)
	}
}

func TestProvider_Generate_JSONBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"Model stabilityai/stable-diffusion-xl-base-1.0 is currently loading"}`))
	}))
	defer srv.Close()

	_, err := New("k", WithBaseURL(srv.URL)).Generate(context.Background(), baseRequest())

	var perr *providers.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !strings.Contains(perr.Message, "currently loading") {
		t.Errorf("message = %q", perr.Message)
	}
}

func TestProvider_Generate_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	_, err := New("k", WithBaseURL(srv.URL)).Generate(context.Background(), baseRequest())

	var perr *providers.ProviderError
	if !errors.As(err, &perr) || perr.HTTPStatus() != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 ProviderError, got %v", err)
	}
}

func TestProvider_HealthCheck(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	p := New("k", WithBaseURL(srv.URL))
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status.Store(http.StatusUnauthorized)
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error on 401")
	}
}
