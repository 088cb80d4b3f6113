package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultHistoryCap is the number of generation records kept.
const DefaultHistoryCap = 100

// HistoryStore is an append-only log of generation records that drops the
// oldest entry once its cap is reached.
type HistoryStore interface {
	Append(ctx context.Context, rec Record) error
	// Recent returns the last n records, oldest first, plus the total stored.
	Recent(ctx context.Context, n int) ([]Record, int, error)
	Find(ctx context.Context, id string) (*Record, error)
	All(ctx context.Context) ([]Record, error)
}

type MemoryHistory struct {
	mu      sync.RWMutex
	cap     int
	records []Record
}

func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &MemoryHistory{cap: capacity}
}

func (h *MemoryHistory) Append(_ context.Context, rec Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, rec)
	if over := len(h.records) - h.cap; over > 0 {
		h.records = slices.Delete(h.records, 0, over)
	}
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, n int) ([]Record, int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := len(h.records)
	start := max(total-n, 0)
	return slices.Clone(h.records[start:]), total, nil
}

func (h *MemoryHistory) Find(_ context.Context, id string) (*Record, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := range h.records {
		if h.records[i].ID == id {
			rec := h.records[i]
			return &rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (h *MemoryHistory) All(context.Context) ([]Record, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.records), nil
}

const (
	defaultHistoryKey   = "design:studio:history"
	historyQueryTimeout = 2 * time.Second
)

// RedisHistory keeps records as JSON in a Redis list, so history survives
// restarts and is shared between replicas.
type RedisHistory struct {
	client *redis.Client
	key    string
	cap    int64
}

func NewRedisHistory(client *redis.Client, capacity int) *RedisHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &RedisHistory{client: client, key: defaultHistoryKey, cap: int64(capacity)}
}

func (h *RedisHistory) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("studio: encode record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, historyQueryTimeout)
	defer cancel()

	_, err = h.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, h.key, data)
		p.LTrim(ctx, h.key, -h.cap, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("studio: append history: %w", err)
	}
	return nil
}

func (h *RedisHistory) Recent(ctx context.Context, n int) ([]Record, int, error) {
	ctx, cancel := context.WithTimeout(ctx, historyQueryTimeout)
	defer cancel()

	var (
		lenCmd   *redis.IntCmd
		rangeCmd *redis.StringSliceCmd
	)
	_, err := h.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		lenCmd = p.LLen(ctx, h.key)
		rangeCmd = p.LRange(ctx, h.key, -int64(n), -1)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("studio: read history: %w", err)
	}

	records, err := decodeRecords(rangeCmd.Val())
	if err != nil {
		return nil, 0, err
	}
	return records, int(lenCmd.Val()), nil
}

func (h *RedisHistory) Find(ctx context.Context, id string) (*Record, error) {
	records, err := h.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, ErrRecordNotFound
}

func (h *RedisHistory) All(ctx context.Context) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, historyQueryTimeout)
	defer cancel()

	vals, err := h.client.LRange(ctx, h.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("studio: read history: %w", err)
	}
	return decodeRecords(vals)
}

func decodeRecords(vals []string) ([]Record, error) {
	out := make([]Record, 0, len(vals))
	for _, v := range vals {
		var rec Record
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("studio: decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
