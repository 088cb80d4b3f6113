// Package apierr writes the gateway's JSON error bodies.
//
// Every body carries a top-level "detail" string, which the web frontend
// shows, and a typed "error" object for programmatic clients:
//
//	{"detail": "...", "error": {"message": "...", "type": "...", "code": "..."}}
package apierr

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// Error types.
const (
	TypeProviderError     = "provider_error"
	TypeRateLimitError    = "rate_limit_error"
	TypeInvalidRequest    = "invalid_request_error"
	TypeNotFound          = "not_found_error"
	TypeAuthenticationErr = "authentication_error"
	TypeServerError       = "server_error"
	TypeUnavailable       = "service_unavailable"
)

// Error codes.
const (
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeInternalError     = "internal_error"
	CodeProviderError     = "provider_error"
	CodeRequestTimeout    = "request_timeout"
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeNotConfigured     = "not_configured"
)

type (
	// APIError is the structured error returned to clients.
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Detail string   `json:"detail"`
		Error  APIError `json:"error"`
	}
)

// Write sets status and replaces the response body with the error envelope.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	body, err := json.Marshal(envelope{
		Detail: message,
		Error:  APIError{Message: message, Type: errType, Code: code},
	})
	if err != nil {
		// Only strings are marshalled, so this is unreachable in practice.
		body = []byte(`{"detail":"internal error"}`)
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// BadRequest writes a 400 invalid_request error.
func BadRequest(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusBadRequest, message, TypeInvalidRequest, CodeInvalidRequest)
}

// NotFound writes a 404, e.g. "Task not found".
func NotFound(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusNotFound, message, TypeNotFound, CodeNotFound)
}

func Internal(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusInternalServerError, message, TypeServerError, CodeInternalError)
}

// NotConfigured writes a 500 for an upstream whose credentials are missing.
func NotConfigured(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusInternalServerError, message, TypeServerError, CodeNotConfigured)
}

// BadGateway writes a 502 for an upstream failure that carries no status of
// its own.
func BadGateway(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusBadGateway, message, TypeProviderError, CodeProviderError)
}

// WriteProviderError maps an upstream status onto the response. A 429 is
// passed through with Retry-After; anything else becomes 502, and a 401 or
// 403 is typed as an authentication problem with the gateway's own keys.
func WriteProviderError(ctx *fasthttp.RequestCtx, providerStatus int, msg string) {
	switch {
	case providerStatus == fasthttp.StatusTooManyRequests:
		ctx.Response.Header.Set("Retry-After", "60")
		Write(ctx, fasthttp.StatusTooManyRequests, msg, TypeRateLimitError, CodeRateLimitExceeded)
	case providerStatus == fasthttp.StatusUnauthorized, providerStatus == fasthttp.StatusForbidden:
		Write(ctx, fasthttp.StatusBadGateway, msg, TypeAuthenticationErr, CodeProviderError)
	default:
		Write(ctx, fasthttp.StatusBadGateway, msg, TypeProviderError, CodeProviderError)
	}
}

func WriteTimeout(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusGatewayTimeout, "provider request timed out", TypeProviderError, CodeRequestTimeout)
}

// WriteRateLimit rejects a caller over the RPM budget.
func WriteRateLimit(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Retry-After", "60")
	Write(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded", TypeRateLimitError, CodeRateLimitExceeded)
}

// WriteUnavailable writes a 503 for a subsystem that is not configured.
func WriteUnavailable(ctx *fasthttp.RequestCtx, msg string) {
	Write(ctx, fasthttp.StatusServiceUnavailable, msg, TypeUnavailable, CodeNotConfigured)
}
