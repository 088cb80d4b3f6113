// Package logger records generation events (image and assistant calls)
// without blocking request handlers.
//
// Events go through a buffered channel and are written in batches by one
// background goroutine. When the buffer is full new events are dropped and
// counted in DroppedEvents.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBuffer   = 10_000
	defaultBatch    = 100
	defaultInterval = time.Second
)

// GenerationEvent describes one AI call served by the gateway.
type GenerationEvent struct {
	ID          uuid.UUID
	Service     string
	Model       string
	Route       string
	PromptChars int
	LatencyMs   int64
	Status      int
	// Fallback is set when the response came from a mock payload or a
	// non-primary provider.
	Fallback  bool
	CreatedAt time.Time
}

func (e GenerationEvent) attrs() []slog.Attr {
	at := e.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return []slog.Attr{
		slog.String("id", e.ID.String()),
		slog.String("service", e.Service),
		slog.String("model", e.Model),
		slog.String("route", e.Route),
		slog.Int("prompt_chars", e.PromptChars),
		slog.Int64("latency_ms", e.LatencyMs),
		slog.Int("status", e.Status),
		slog.Bool("fallback", e.Fallback),
		slog.Time("created_at", at.UTC()),
	}
}

// ServiceCount aggregates written events for one service.
type ServiceCount struct {
	Events    int64 `json:"events"`
	Failures  int64 `json:"failures"`
	Fallbacks int64 `json:"fallbacks"`
}

// Option tunes a Logger.
type Option func(*Logger)

// WithBuffer sets the channel capacity.
func WithBuffer(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.bufSize = n
		}
	}
}

// WithBatch sets how many events are written per flush and the longest an
// event waits in a partial batch.
func WithBatch(size int, every time.Duration) Option {
	return func(l *Logger) {
		if size > 0 {
			l.batchSize = size
		}
		if every > 0 {
			l.interval = every
		}
	}
}

type Logger struct {
	ch      chan GenerationEvent
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup

	bufSize   int
	batchSize int
	interval  time.Duration

	dropped atomic.Int64

	countsMu sync.Mutex
	counts   map[string]ServiceCount

	baseCtx context.Context
	log     *slog.Logger
}

func New(ctx context.Context, slogger *slog.Logger, opts ...Option) (*Logger, error) {
	if ctx == nil {
		return nil, fmt.Errorf("logger: context must not be nil")
	}
	if slogger == nil {
		slogger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	l := &Logger{
		stop:      make(chan struct{}),
		bufSize:   defaultBuffer,
		batchSize: defaultBatch,
		interval:  defaultInterval,
		counts:    make(map[string]ServiceCount),
		baseCtx:   ctx,
		log:       slogger,
	}
	for _, o := range opts {
		o(l)
	}
	l.ch = make(chan GenerationEvent, l.bufSize)

	l.wg.Add(1)
	go l.run()

	return l, nil
}

// Log enqueues an event. It never blocks; a full buffer drops the event.
func (l *Logger) Log(e GenerationEvent) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	select {
	case l.ch <- e:
	default:
		l.dropped.Add(1)
	}
}

func (l *Logger) DroppedEvents() int64 {
	return l.dropped.Load()
}

// Counts returns per-service totals of the events written so far.
func (l *Logger) Counts() map[string]ServiceCount {
	l.countsMu.Lock()
	defer l.countsMu.Unlock()

	out := make(map[string]ServiceCount, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// Close drains the buffer and stops the flusher. Safe to call more than once.
func (l *Logger) Close() error {
	l.stopped.Do(func() { close(l.stop) })
	l.wg.Wait()
	return nil
}

func (l *Logger) run() {
	defer l.wg.Done()

	t := time.NewTicker(l.interval)
	defer t.Stop()

	batch := make([]GenerationEvent, 0, l.batchSize)

	for {
		select {
		case e := <-l.ch:
			if batch = append(batch, e); len(batch) >= l.batchSize {
				batch = l.write(batch)
			}
		case <-t.C:
			batch = l.write(batch)
		case <-l.stop:
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
				default:
					l.write(batch)
					return
				}
			}
		}
	}
}

// write emits every event in batch and returns it emptied.
func (l *Logger) write(batch []GenerationEvent) []GenerationEvent {
	if len(batch) == 0 {
		return batch
	}

	l.countsMu.Lock()
	for _, e := range batch {
		c := l.counts[e.Service]
		c.Events++
		if e.Status >= 400 {
			c.Failures++
		}
		if e.Fallback {
			c.Fallbacks++
		}
		l.counts[e.Service] = c
	}
	l.countsMu.Unlock()

	for _, e := range batch {
		l.log.LogAttrs(l.baseCtx, slog.LevelInfo, "generation", e.attrs()...)
	}
	return batch[:0]
}
