package proxy

import (
	"context"
	"sync"
	"time"

	"github.com/redai/design-gateway/internal/metrics"
)

const (
	healthProbeInterval = 30 * time.Second
	healthProbeTimeout  = 5 * time.Second
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusDown     = "down"
	statusUnknown  = "unknown"
)

// Checker is anything with a liveness probe: image providers, the Azure and
// OpenAI clients.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// PingFunc probes a backing store. A nil PingFunc means not configured.
type PingFunc func(ctx context.Context) error

// HealthChecker probes upstreams, the cache and the dashboard store every 30s
// and keeps the latest result of each.
type HealthChecker struct {
	checkers  map[string]Checker
	cachePing PingFunc
	storePing PingFunc
	baseCtx   context.Context
	metrics   *metrics.Registry

	mu        sync.RWMutex
	providers map[string]string
	cache     string
	store     string
	lastProbe time.Time

	started  time.Time
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHealthChecker runs one probe synchronously, then keeps probing in the
// background until Close or ctx cancellation.
func NewHealthChecker(
	ctx context.Context,
	checkers map[string]Checker,
	cachePing, storePing PingFunc,
	met *metrics.Registry,
) *HealthChecker {
	if ctx == nil {
		panic("healthchecker: context must not be nil")
	}
	hc := &HealthChecker{
		checkers:  checkers,
		cachePing: cachePing,
		storePing: storePing,
		baseCtx:   ctx,
		metrics:   met,
		providers: make(map[string]string, len(checkers)),
		started:   time.Now(),
		stop:      make(chan struct{}),
	}

	hc.probe()

	hc.wg.Add(1)
	go hc.loop()

	return hc
}

type HealthSnapshot struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	LastProbe     time.Time         `json:"last_probe"`
	Providers     map[string]string `json:"providers"`
	Cache         string            `json:"cache"`
	Store         string            `json:"store"`
}

// Snapshot reports the last probe results. Any component that is not "ok"
// degrades the overall status.
func (hc *HealthChecker) Snapshot() HealthSnapshot {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	snap := HealthSnapshot{
		Status:        statusOK,
		UptimeSeconds: int64(time.Since(hc.started).Seconds()),
		LastProbe:     hc.lastProbe,
		Providers:     make(map[string]string, len(hc.providers)),
		Cache:         orUnknown(hc.cache),
		Store:         orUnknown(hc.store),
	}
	for name, st := range hc.providers {
		snap.Providers[name] = st
		if st != statusOK {
			snap.Status = statusDegraded
		}
	}
	if snap.Cache != statusOK || snap.Store != statusOK {
		snap.Status = statusDegraded
	}
	return snap
}

// ReadinessOK reports whether the dashboard store answered the last probe.
func (hc *HealthChecker) ReadinessOK() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.store == statusOK
}

func (hc *HealthChecker) Close() {
	hc.stopOnce.Do(func() { close(hc.stop) })
	hc.wg.Wait()
}

func (hc *HealthChecker) loop() {
	defer hc.wg.Done()

	t := time.NewTicker(healthProbeInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			hc.probe()
		case <-hc.stop:
			return
		case <-hc.baseCtx.Done():
			return
		}
	}
}

// probe checks every component concurrently and publishes the results in one
// step so Snapshot never sees a half-finished round.
func (hc *HealthChecker) probe() {
	ctx, cancel := context.WithTimeout(hc.baseCtx, healthProbeTimeout)
	defer cancel()

	var (
		wg    sync.WaitGroup
		resMu sync.Mutex
		provs = make(map[string]string, len(hc.checkers))
		cache string
		store string
	)

	for name, c := range hc.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := c.HealthCheck(ctx) == nil
			if hc.metrics != nil {
				hc.metrics.SetProviderHealth(name, ok)
			}
			resMu.Lock()
			provs[name] = pick(ok, statusDegraded)
			resMu.Unlock()
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		cache = pick(hc.cachePing == nil || hc.cachePing(ctx) == nil, statusDegraded)
	}()
	go func() {
		defer wg.Done()
		store = pick(hc.storePing == nil || hc.storePing(ctx) == nil, statusDown)
	}()

	wg.Wait()

	hc.mu.Lock()
	hc.providers = provs
	hc.cache = cache
	hc.store = store
	hc.lastProbe = time.Now()
	hc.mu.Unlock()
}

func pick(ok bool, failed string) string {
	if ok {
		return statusOK
	}
	return failed
}

func orUnknown(s string) string {
	if s == "" {
		return statusUnknown
	}
	return s
}
