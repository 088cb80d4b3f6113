package proxy

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/redai/design-gateway/pkg/apierr"
)

// maxRequestIDLen bounds client supplied X-Request-ID values; longer or
// non-printable ids are replaced.
const maxRequestIDLen = 128

// recovery catches panics in any handler and returns a 500 without crashing
// the server process.
func (g *Gateway) recovery(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		defer func() {
			if r := recover(); r != nil {
				g.log.ErrorContext(ctx, "handler_panic",
					slog.Any("panic", r),
					slog.String("request_id", requestIDFrom(ctx)),
					slog.String("path", string(ctx.Path())),
					slog.String("method", string(ctx.Method())),
				)
				ctx.ResetBody()
				apierr.Internal(ctx, "internal server error")
			}
		}()
		next(ctx)
	}
}

// requestID ensures every request has an X-Request-ID. A usable client value
// is echoed back; otherwise a UUID v4 is generated. The id is stored under
// the "request_id" user value.
func requestID(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := string(ctx.Request.Header.Peek("X-Request-ID"))
		if !validRequestID(id) {
			id = uuid.New().String()
		}
		ctx.Response.Header.Set("X-Request-ID", id)
		ctx.SetUserValue("request_id", id)
		next(ctx)
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// timing records the total handler duration in the X-Response-Time header.
func timing(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		ctx.Response.Header.Set("X-Response-Time", time.Since(start).String())
	}
}

// securityHeaders hardens every JSON response. The API never serves HTML,
// so the CSP denies everything and framing is refused.
func securityHeaders(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		next(ctx)
		h := &ctx.Response.Header
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if len(h.Peek("Cache-Control")) == 0 {
			h.Set("Cache-Control", "no-store")
		}
	}
}

// rateLimit rejects AI requests once the shared per-minute budget is spent.
// Limiter errors fail open so a Redis outage never blocks traffic.
func (g *Gateway) rateLimit(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if g.limiter == nil {
			next(ctx)
			return
		}

		allowed, err := g.limiter.Allow(ctx)
		switch {
		case err != nil:
			g.log.WarnContext(ctx, "rate_limit_error",
				slog.String("request_id", requestIDFrom(ctx)),
				slog.String("error", err.Error()),
			)
			g.recordRateLimit("error")
		case !allowed:
			g.log.WarnContext(ctx, "rate_limit_exceeded",
				slog.String("request_id", requestIDFrom(ctx)),
				slog.String("path", string(ctx.Path())),
			)
			g.recordRateLimit("blocked")
			apierr.WriteRateLimit(ctx)
			return
		default:
			g.recordRateLimit("allowed")
		}

		next(ctx)
	}
}

func (g *Gateway) recordRateLimit(result string) {
	if g.metrics != nil {
		g.metrics.RecordRateLimit(result)
	}
}

// corsHandler returns a CORS middleware for the given allowed origins.
//
//   - nil or []string{"*"} → Access-Control-Allow-Origin: * without credentials
//   - specific origins      → the request Origin is echoed when listed, with
//     credentials allowed and Vary: Origin
//
// OPTIONS preflight requests are answered with 204 No Content and no body.
func corsHandler(origins []string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	open := len(origins) == 0 || slices.Contains(origins, "*")
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			h := &ctx.Response.Header
			if open {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Add("Vary", "Origin")
				if origin := string(ctx.Request.Header.Peek("Origin")); origin != "" {
					if _, ok := allowed[origin]; ok {
						h.Set("Access-Control-Allow-Origin", origin)
						h.Set("Access-Control-Allow-Credentials", "true")
					}
				}
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Response-Time, Retry-After")

			if string(ctx.Method()) == fasthttp.MethodOptions {
				h.Set("Access-Control-Max-Age", "600")
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}
			next(ctx)
		}
	}
}

// applyMiddleware wraps h with the given middleware chain. The first middleware
// in the slice becomes the outermost wrapper:
//
//	applyMiddleware(h, mw1, mw2) → mw1(mw2(h))
func applyMiddleware(h fasthttp.RequestHandler, mws ...func(fasthttp.RequestHandler) fasthttp.RequestHandler) fasthttp.RequestHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
