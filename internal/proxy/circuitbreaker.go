package proxy

import (
	"sync"
	"time"

	"github.com/redai/design-gateway/internal/providers"
)

// cbState is the operational state of one provider's breaker. The numeric
// values are exported as the design_circuit_breaker_state gauge.
type cbState int

const (
	cbClosed   cbState = 0
	cbOpen     cbState = 1
	cbHalfOpen cbState = 2
)

func (s cbState) String() string {
	switch s {
	case cbOpen:
		return "open"
	case cbHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CBConfig holds circuit breaker tuning. Zero fields use the defaults in the
// providers package.
type CBConfig struct {
	ErrorThreshold  int
	TimeWindow      time.Duration
	HalfOpenTimeout time.Duration
}

func (c CBConfig) withDefaults() CBConfig {
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = providers.CBErrorThreshold
	}
	if c.TimeWindow <= 0 {
		c.TimeWindow = providers.CBTimeWindow
	}
	if c.HalfOpenTimeout <= 0 {
		c.HalfOpenTimeout = providers.CBHalfOpenTimeout
	}
	return c
}

// breaker tracks one Stable Diffusion backend.
type breaker struct {
	mu sync.Mutex

	state     cbState
	failures  int
	since     time.Time // start of the failure-counting window
	trippedAt time.Time
	probing   bool
}

func (b *breaker) allow(now time.Time, cfg CBConfig) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case cbOpen:
		if now.Sub(b.trippedAt) < cfg.HalfOpenTimeout {
			return false
		}
		b.state = cbHalfOpen
	case cbHalfOpen:
		if b.probing {
			return false
		}
	default:
		return true
	}
	b.probing = true
	return true
}

func (b *breaker) success(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = cbClosed
	b.failures = 0
	b.probing = false
	b.since = now
}

func (b *breaker) failure(now time.Time, cfg CBConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false

	// A failed probe sends the breaker straight back to open.
	if b.state == cbHalfOpen {
		b.trip(now)
		return
	}

	if now.Sub(b.since) > cfg.TimeWindow {
		b.failures = 0
		b.since = now
	}
	b.failures++
	if b.failures >= cfg.ErrorThreshold {
		b.trip(now)
	}
}

// abandon gives back a trial slot whose attempt ended without a verdict.
// trippedAt is kept, so the next caller may take the trial right away.
func (b *breaker) abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if b.state == cbHalfOpen {
		b.state = cbOpen
	}
}

func (b *breaker) trip(now time.Time) {
	b.state = cbOpen
	b.trippedAt = now
}

func (b *breaker) current() cbState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CircuitBreaker keeps one breaker per provider name, created on first use.
// Safe for concurrent use.
type CircuitBreaker struct {
	cfg CBConfig
	now func() time.Time

	mu       sync.RWMutex
	breakers map[string]*breaker
}

func NewCircuitBreaker() *CircuitBreaker {
	return NewCircuitBreakerWithConfig(CBConfig{})
}

func NewCircuitBreakerWithConfig(cfg CBConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		breakers: make(map[string]*breaker),
	}
}

// Allow reports whether provider may take the next attempt. An open breaker
// admits a single probe once HalfOpenTimeout has passed.
func (cb *CircuitBreaker) Allow(provider string) bool {
	return cb.breaker(provider).allow(cb.now(), cb.cfg)
}

// RecordSuccess closes the breaker and resets its failure window.
func (cb *CircuitBreaker) RecordSuccess(provider string) {
	cb.breaker(provider).success(cb.now())
}

// RecordFailure counts a failed attempt. ErrorThreshold failures inside
// TimeWindow open the breaker.
func (cb *CircuitBreaker) RecordFailure(provider string) {
	cb.breaker(provider).failure(cb.now(), cb.cfg)
}

// Abandon releases an admitted attempt that was cancelled by the caller.
// It counts as neither success nor failure.
func (cb *CircuitBreaker) Abandon(provider string) {
	cb.breaker(provider).abandon()
}

func (cb *CircuitBreaker) State(provider string) cbState {
	return cb.breaker(provider).current()
}

// StateLabel returns "closed", "open" or "half_open".
func (cb *CircuitBreaker) StateLabel(provider string) string {
	return cb.State(provider).String()
}

func (cb *CircuitBreaker) breaker(provider string) *breaker {
	cb.mu.RLock()
	b, ok := cb.breakers[provider]
	cb.mu.RUnlock()
	if ok {
		return b
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if b, ok = cb.breakers[provider]; !ok {
		b = &breaker{since: cb.now()}
		cb.breakers[provider] = b
	}
	return b
}
