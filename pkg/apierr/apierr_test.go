package apierr

import (
	"encoding/json"
	"testing"

	"github.com/valyala/fasthttp"
)

func decode(t *testing.T, ctx *fasthttp.RequestCtx) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(ctx.Response.Body(), &env); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	return env
}

func TestWrite_DetailMirrorsMessage(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	NotFound(ctx, "Task not found")

	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("expected 404, got %d", ctx.Response.StatusCode())
	}
	env := decode(t, ctx)
	if env.Detail != "Task not found" {
		t.Errorf("detail = %q", env.Detail)
	}
	if env.Error.Type != TypeNotFound || env.Error.Code != CodeNotFound {
		t.Errorf("unexpected error object: %+v", env.Error)
	}
}

func TestWriteProviderError_StatusMapping(t *testing.T) {
	cases := []struct {
		upstream   int
		want       int
		retryAfter bool
	}{
		{429, fasthttp.StatusTooManyRequests, true},
		{401, fasthttp.StatusBadGateway, false},
		{403, fasthttp.StatusBadGateway, false},
		{500, fasthttp.StatusBadGateway, false},
		{503, fasthttp.StatusBadGateway, false},
		{400, fasthttp.StatusBadGateway, false},
	}
	for _, c := range cases {
		ctx := &fasthttp.RequestCtx{}
		WriteProviderError(ctx, c.upstream, "upstream failed")
		if ctx.Response.StatusCode() != c.want {
			t.Errorf("upstream %d: expected %d, got %d", c.upstream, c.want, ctx.Response.StatusCode())
		}
		hasRA := len(ctx.Response.Header.Peek("Retry-After")) > 0
		if hasRA != c.retryAfter {
			t.Errorf("upstream %d: Retry-After present=%v, want %v", c.upstream, hasRA, c.retryAfter)
		}
	}
}

func TestWriteTimeout(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	WriteTimeout(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", ctx.Response.StatusCode())
	}
	if decode(t, ctx).Error.Code != CodeRequestTimeout {
		t.Error("expected request_timeout code")
	}
}

func TestHelpers_StatusAndCode(t *testing.T) {
	cases := []struct {
		name   string
		write  func(*fasthttp.RequestCtx, string)
		status int
		code   string
	}{
		{"not configured", NotConfigured, fasthttp.StatusInternalServerError, CodeNotConfigured},
		{"bad gateway", BadGateway, fasthttp.StatusBadGateway, CodeProviderError},
		{"unavailable", WriteUnavailable, fasthttp.StatusServiceUnavailable, CodeNotConfigured},
		{"bad request", BadRequest, fasthttp.StatusBadRequest, CodeInvalidRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ctx := &fasthttp.RequestCtx{}
			c.write(ctx, "boom")

			if ctx.Response.StatusCode() != c.status {
				t.Errorf("status = %d, want %d", ctx.Response.StatusCode(), c.status)
			}
			env := decode(t, ctx)
			if env.Detail != "boom" || env.Error.Code != c.code {
				t.Errorf("unexpected envelope: %+v", env)
			}
			if string(ctx.Response.Header.ContentType()) != "application/json" {
				t.Errorf("content type = %q", ctx.Response.Header.ContentType())
			}
		})
	}
}
