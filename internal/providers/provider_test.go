package providers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestReadError(t *testing.T) {
	cases := []struct {
		name string
		resp *http.Response
		want string
	}{
		{"plain text", response(500, "boom"), "boom"},
		{"string error", response(503, `{"error":"Model is currently loading"}`), "Model is currently loading"},
		{"object error", response(400, `{"error":{"message":"bad prompt"}}`), "bad prompt"},
		{"detail", response(401, `{"detail":"Invalid token"}`), "Invalid token"},
		{"empty body", response(502, ""), "Bad Gateway"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			perr := ReadError("replicate", c.resp)
			if perr.Message != c.want {
				t.Errorf("message = %q, want %q", perr.Message, c.want)
			}
			if perr.StatusCode != c.resp.StatusCode || perr.Provider != "replicate" {
				t.Errorf("unexpected error: %+v", perr)
			}
		})
	}
}

func TestProviderError_StatusCoder(t *testing.T) {
	var err error = &ProviderError{Provider: "huggingface", StatusCode: 429, Message: "slow down"}

	var sc StatusCoder
	if !errors.As(err, &sc) || sc.HTTPStatus() != 429 {
		t.Fatal("expected ProviderError to expose HTTPStatus 429")
	}
	if !strings.Contains(err.Error(), "status 429") {
		t.Errorf("error string = %q", err.Error())
	}
}

func TestDefaultFallbackOrder(t *testing.T) {
	want := []string{HuggingFace, Replicate, Local}
	if len(DefaultFallbackOrder) != len(want) {
		t.Fatalf("order = %v", DefaultFallbackOrder)
	}
	for i := range want {
		if DefaultFallbackOrder[i] != want[i] {
			t.Fatalf("order = %v, want %v", DefaultFallbackOrder, want)
		}
		if DisplayName[want[i]] == "" {
			t.Errorf("missing display name for %s", want[i])
		}
	}
}
