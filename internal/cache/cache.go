// Package cache provides the response cache used for design suggestions.
//
// Two backends are available:
//   - RedisCache  - shared across replicas.
//   - MemoryCache - in-process TTL cache with no external dependencies.
//
// Both implement Cache so they are fully interchangeable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key derives a stable cache key from its parts: hex(SHA-256(parts joined by NUL)).
// Parts are lower-cased and trimmed so "Modern" and " modern" share an entry.
func Key(parts ...string) string {
	norm := make([]string, len(parts))
	for i, p := range parts {
		norm[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(norm, "\x00")))
	return hex.EncodeToString(sum[:])
}
