// Package metrics exports the gateway's Prometheus series: HTTP traffic,
// Stable Diffusion attempts and failovers, assistant token usage, cache and
// breaker activity. Everything lives on a private registry served by Handler.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120}

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// design_inflight_requests
	inFlight prometheus.Gauge

	// design_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// design_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// design_sd_attempts_total{provider,outcome}
	sdAttempts *prometheus.CounterVec

	// design_sd_attempt_duration_seconds{provider,outcome}
	sdAttemptDuration *prometheus.HistogramVec

	// design_sd_failover_total{from,to}
	sdFailover *prometheus.CounterVec

	// design_sd_failover_success_total{to}
	sdFailoverSuccess *prometheus.CounterVec

	// design_sd_exhausted_total
	sdExhausted prometheus.Counter

	// design_images_generated_total{service}
	imagesGenerated *prometheus.CounterVec

	// design_ai_tokens_total{operation}
	aiTokens *prometheus.CounterVec

	// design_mock_fallbacks_total{operation}
	mockFallbacks *prometheus.CounterVec

	// design_azure_key_switches_total
	keySwitches prometheus.Counter

	// design_cache_operations_total{op,result}
	cacheOps *prometheus.CounterVec

	// design_circuit_breaker_state{provider} - 0=closed, 1=open, 2=half-open
	circuitBreakerState *prometheus.GaugeVec

	// design_circuit_breaker_transitions_total{provider,to_state}
	cbTransitions *prometheus.CounterVec

	// design_circuit_breaker_rejections_total{provider,state}
	cbRejections *prometheus.CounterVec

	// design_ratelimit_total{result}
	rateLimitTotal *prometheus.CounterVec

	// design_provider_health{provider}
	providerHealth *prometheus.GaugeVec

	// design_build_info{version}
	buildInfo *prometheus.GaugeVec

	cbMu        sync.Mutex
	lastCBState map[string]float64

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		reg:         reg,
		lastCBState: make(map[string]float64),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "design_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "design_http_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "design_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (end-to-end, includes upstream calls)",
				Buckets: latencyBuckets,
			},
			[]string{"route"},
		),

		sdAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "design_sd_attempts_total",
				Help: "Stable Diffusion provider attempts (includes failovers)",
			},
			[]string{"provider", "outcome"},
		),

		sdAttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "design_sd_attempt_duration_seconds",
				Help:    "Stable Diffusion provider attempt duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"provider", "outcome"},
		),

		sdFailover: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "design_sd_failover_total",
				Help: "Failover events between Stable Diffusion providers",
			},
			[]string{"from", "to"},
		),

		sdFailoverSuccess: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "design_sd_failover_success_total",
				Help: "Requests served by a provider other than the first available one",
			},
			[]string{"to"},
		),

		sdExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "design_sd_exhausted_total",
			Help: "Stable Diffusion requests where every provider failed",
		}),

		imagesGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "design_images_generated_total",
				Help: "Images generated, by upstream service",
			},
			[]string{"service"},
		),

		aiTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "design_ai_tokens_total",
				Help: "Tokens reported by the chat/vision deployment",
			},
			[]string{"operation"},
		),

		mockFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "design_mock_fallbacks_total",
				Help: "Responses served from deterministic mock payloads",
			},
			[]string{"operation"},
		),

		keySwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "design_azure_key_switches_total",
			Help: "Switches from the primary to the backup Azure OpenAI key",
		}),

		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "design_cache_operations_total",
				Help: "Suggestion cache lookups and writes by result",
			},
			[]string{"op", "result"},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "design_circuit_breaker_state",
				Help: "Image backend breaker state: 0 closed, 1 open, 2 half-open",
			},
			[]string{"provider"},
		),

		cbTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "design_circuit_breaker_transitions_total",
				Help: "Image backend breaker state changes",
			},
			[]string{"provider", "to_state"},
		),

		cbRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "design_circuit_breaker_rejections_total",
				Help: "Attempts skipped due to circuit breaker state",
			},
			[]string{"provider", "state"},
		),

		rateLimitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "design_ratelimit_total",
				Help: "AI route rate limiter decisions (allowed, blocked, error)",
			},
			[]string{"result"},
		),

		providerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "design_provider_health",
				Help: "Last health probe per upstream: 1 ok, 0 failing",
			},
			[]string{"provider"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "design_build_info",
				Help: "Gateway version; always 1",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.sdAttempts,
		r.sdAttemptDuration,
		r.sdFailover,
		r.sdFailoverSuccess,
		r.sdExhausted,
		r.imagesGenerated,
		r.aiTokens,
		r.mockFallbacks,
		r.keySwitches,
		r.cacheOps,
		r.circuitBreakerState,
		r.cbTransitions,
		r.cbRejections,
		r.rateLimitTotal,
		r.providerHealth,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records end-to-end HTTP metrics.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration) {
	r.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// ObserveSDAttempt records one Stable Diffusion provider attempt.
func (r *Registry) ObserveSDAttempt(provider, outcome string, dur time.Duration) {
	r.sdAttempts.WithLabelValues(provider, outcome).Inc()
	r.sdAttemptDuration.WithLabelValues(provider, outcome).Observe(dur.Seconds())
}

func (r *Registry) RecordFailover(from, to string) {
	r.sdFailover.WithLabelValues(from, to).Inc()
}

func (r *Registry) RecordFailoverSuccess(to string) {
	r.sdFailoverSuccess.WithLabelValues(to).Inc()
}

func (r *Registry) RecordFailoverExhausted() {
	r.sdExhausted.Inc()
}

func (r *Registry) RecordImages(service string, n int) {
	if n > 0 {
		r.imagesGenerated.WithLabelValues(service).Add(float64(n))
	}
}

func (r *Registry) AddTokens(operation string, n int) {
	if n > 0 {
		r.aiTokens.WithLabelValues(operation).Add(float64(n))
	}
}

func (r *Registry) RecordMockFallback(operation string) {
	r.mockFallbacks.WithLabelValues(operation).Inc()
}

func (r *Registry) RecordKeySwitch() {
	r.keySwitches.Inc()
}

func (r *Registry) RecordRateLimit(result string) {
	r.rateLimitTotal.WithLabelValues(result).Inc()
}

func (r *Registry) CacheGetHit()  { r.cacheOps.WithLabelValues("get", "hit").Inc() }
func (r *Registry) CacheGetMiss() { r.cacheOps.WithLabelValues("get", "miss").Inc() }
func (r *Registry) CacheSetOK()   { r.cacheOps.WithLabelValues("set", "ok").Inc() }

func (r *Registry) SetProviderHealth(provider string, ok bool) {
	if ok {
		r.providerHealth.WithLabelValues(provider).Set(1)
		return
	}
	r.providerHealth.WithLabelValues(provider).Set(0)
}

func (r *Registry) SetBuildInfo(version string) {
	r.buildInfo.WithLabelValues(version).Set(1)
}

// SetCircuitBreaker publishes a backend's breaker state. The transition
// counter only moves when the state differs from the last one published.
func (r *Registry) SetCircuitBreaker(provider string, state int64) {
	v := float64(state)
	r.circuitBreakerState.WithLabelValues(provider).Set(v)

	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	if prev, seen := r.lastCBState[provider]; seen && prev == v {
		return
	}
	r.lastCBState[provider] = v
	r.cbTransitions.WithLabelValues(provider, strconv.FormatInt(state, 10)).Inc()
}

func (r *Registry) RecordCircuitBreakerRejection(provider, state string) {
	r.cbRejections.WithLabelValues(provider, state).Inc()
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
