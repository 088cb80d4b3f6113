package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redai/design-gateway/internal/providers"
)

func baseRequest() *providers.ImageRequest {
	return &providers.ImageRequest{Prompt: "industrial loft", Width: 1024, Height: 1024, Steps: 20, GuidanceScale: 7.5}
}

func newTestProvider(t *testing.T, srv *httptest.Server) *Provider {
	t.Helper()
	p, err := New("r8-token", WithBaseURL(srv.URL), WithPollInterval(5*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_RequiresToken(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected an error without a token")
	}
}

func TestProvider_Generate_ImmediateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predictions" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if !strings.Contains(r.Header.Get("Authorization"), "r8-token") {
			t.Errorf("wrong Authorization header: %q", r.Header.Get("Authorization"))
		}

		var body struct {
			Version string         `json:"version"`
			Input   map[string]any `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Version != SDXLVersion || body.Input["scheduler"] != "K_EULER" || body.Input["prompt"] != "industrial loft" {
			t.Errorf("unexpected body: %+v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":["https://replicate.delivery/out-0.png"]}`))
	}))
	defer srv.Close()

	resp, err := newTestProvider(t, srv).Generate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.URL != "https://replicate.delivery/out-0.png" || resp.Service != "Replicate" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestProvider_Generate_PollsUntilDone(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/predictions":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"p2","status":"starting"}`))
		case "/predictions/p2":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"id":"p2","status":"processing"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"p2","status":"succeeded","output":"https://replicate.delivery/single.png"}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	resp, err := newTestProvider(t, srv).Generate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.URL != "https://replicate.delivery/single.png" {
		t.Errorf("url = %q", resp.URL)
	}
	if polls.Load() != 3 {
		t.Errorf("expected 3 polls, got %d", polls.Load())
	}
}

func TestProvider_Generate_Failed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p3","status":"failed","error":"NSFW content detected"}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(t, srv).Generate(context.Background(), baseRequest())

	var perr *providers.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !strings.Contains(perr.Message, "NSFW content detected") {
		t.Errorf("message = %q", perr.Message)
	}
}

func TestProvider_Generate_DeadlineWhileWaiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
		}
		_, _ = w.Write([]byte(`{"id":"p4","status":"processing"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestProvider(t, srv).Generate(ctx, baseRequest())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestProvider_Generate_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"title":"Unauthenticated","detail":"Invalid token.","status":401}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(t, srv).Generate(context.Background(), baseRequest())

	var perr *providers.ProviderError
	if !errors.As(err, &perr) || perr.HTTPStatus() != http.StatusUnauthorized || perr.Message != "Invalid token." {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFirstOutput(t *testing.T) {
	cases := []struct {
		out     any
		want    string
		wantErr bool
	}{
		{[]any{"a", "b"}, "a", false},
		{"single", "single", false},
		{[]any{}, "", true},
		{nil, "", true},
		{map[string]any{"x": 1}, "", true},
	}
	for _, c := range cases {
		got, err := firstOutput(c.out)
		if (err != nil) != c.wantErr || got != c.want {
			t.Errorf("firstOutput(%v) = %q, %v", c.out, got, err)
		}
	}
}

func TestProvider_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"organization","username":"redai","name":"RED AI"}`))
	}))
	defer srv.Close()

	if err := newTestProvider(t, srv).HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
