package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/redai/design-gateway/internal/providers"
	"github.com/redai/design-gateway/internal/store"
)

// funcProvider is an ImageProvider backed by a function.
type funcProvider struct {
	name       string
	generateFn func(ctx context.Context, req *providers.ImageRequest) (*providers.ImageResponse, error)
	healthErr  error
}

func (p *funcProvider) Name() string { return p.name }

func (p *funcProvider) Generate(ctx context.Context, req *providers.ImageRequest) (*providers.ImageResponse, error) {
	return p.generateFn(ctx, req)
}

func (p *funcProvider) HealthCheck(context.Context) error { return p.healthErr }

// okProvider always returns an image URL naming the provider.
func okProvider(name string) *funcProvider {
	return &funcProvider{
		name: name,
		generateFn: func(_ context.Context, req *providers.ImageRequest) (*providers.ImageResponse, error) {
			return &providers.ImageResponse{
				URL:     "https://img.test/" + name + ".png",
				Service: providers.DisplayName[name],
				Model:   providers.ModelStableDiffusionXL,
			}, nil
		},
	}
}

// failProvider always fails with the given upstream status.
func failProvider(name string, status int) *funcProvider {
	return &funcProvider{
		name: name,
		generateFn: func(context.Context, *providers.ImageRequest) (*providers.ImageResponse, error) {
			return nil, &providers.ProviderError{Provider: name, StatusCode: status, Message: "upstream failure"}
		},
		healthErr: &providers.ProviderError{Provider: name, StatusCode: status, Message: "down"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestGateway builds a Gateway over a seeded memory store. mutate may
// adjust the options before construction.
func newTestGateway(t *testing.T, mutate func(*Options)) *Gateway {
	t.Helper()

	opts := Options{
		Logger: quietLogger(),
		Store:  store.NewMemoryStore(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	gw, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(gw.Close)
	return gw
}

// withSD registers provs as configured and available, in fallback order.
func withSD(provs ...*funcProvider) func(*Options) {
	return func(o *Options) {
		o.ImageProviders = map[string]providers.ImageProvider{}
		for _, p := range provs {
			o.ImageProviders[p.name] = p
		}
		for _, name := range providers.DefaultFallbackOrder {
			if _, ok := o.ImageProviders[name]; ok {
				o.SDAvailable = append(o.SDAvailable, name)
			}
		}
	}
}

// serveGateway starts the gateway's full handler on an in-memory listener and
// returns an HTTP client that routes to it.
func serveGateway(t *testing.T, gw *Gateway) *http.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()

	go func() {
		_ = fasthttp.Serve(ln, gw.Handler())
	}()
	t.Cleanup(func() { _ = ln.Close() })

	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}
}

// do sends a request with an optional JSON body and decodes the JSON reply
// into out when out is non-nil.
func do(t *testing.T, client *http.Client, method, path string, body any, out any) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, "http://test"+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("%s %s: invalid JSON %q: %v", method, path, raw, err)
		}
	}
	return resp
}

// errorBody is the {"detail", "error"} envelope.
type errorBody struct {
	Detail string `json:"detail"`
	Error  struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
