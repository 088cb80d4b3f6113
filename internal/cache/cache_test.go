package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	cli, err := Connect(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	return NewRedisCache(cli), mr
}

func TestKey(t *testing.T) {
	a := Key("living", "Modern", "50000")
	b := Key(" Living ", "modern", "50000")
	if a != b {
		t.Error("expected normalized parts to produce the same key")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if Key("living", "modern50000") == Key("livingmodern", "50000") {
		t.Error("part boundaries must affect the key")
	}
}

func TestRedisCache_MissAndHit(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss")
	}

	want := []byte(`{"total_estimate":450000}`)
	if err := c.Set(ctx, "k", want, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get(ctx, "k")
	if !ok || string(got) != string(want) {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	if !mr.Exists(defaultKeyPrefix + "k") {
		t.Error("expected key to be stored under the prefix")
	}
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "ttl", []byte("v"), time.Minute)
	mr.FastForward(2 * time.Minute)

	if _, ok := c.Get(ctx, "ttl"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestRedisCache_Delete(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "d", []byte("v"), time.Hour)
	if err := c.Delete(ctx, "d"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Get(ctx, "d"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestRedisCache_DegradesWhenRedisDown(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	mr.Close()

	if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set must not fail when Redis is down, got %v", err)
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss when Redis is down")
	}
	if c.Ping(ctx) == nil {
		t.Fatal("expected Ping to report the outage")
	}
}

func TestMemoryCache_SetGetExpire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewMemoryCache(ctx)
	defer c.Close()

	_ = c.Set(ctx, "a", []byte("1"), time.Hour)
	if v, ok := c.Get(ctx, "a"); !ok || string(v) != "1" {
		t.Fatalf("Get = %q, %v", v, ok)
	}

	_ = c.Set(ctx, "short", []byte("2"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get(ctx, "short"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Len() != 1 {
		t.Errorf("expected lazy eviction to leave 1 entry, got %d", c.Len())
	}
}

func TestMemoryCache_BackgroundEviction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewMemoryCache(ctx, WithSweepInterval(5*time.Millisecond))
	defer c.Close()

	_ = c.Set(ctx, "x", []byte("v"), time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected cleanup loop to evict the entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemoryCache_DropsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(ctx, WithMaxEntries(2))
	defer c.Close()

	_ = c.Set(ctx, "first", []byte("1"), time.Hour)
	time.Sleep(time.Millisecond)
	_ = c.Set(ctx, "second", []byte("2"), time.Hour)
	time.Sleep(time.Millisecond)
	_ = c.Set(ctx, "third", []byte("3"), time.Hour)

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Get(ctx, "first"); ok {
		t.Error("oldest entry should have been dropped")
	}
	if _, ok := c.Get(ctx, "third"); !ok {
		t.Error("newest entry missing")
	}

	// Overwriting an existing key never evicts.
	_ = c.Set(ctx, "second", []byte("2b"), time.Hour)
	if v, ok := c.Get(ctx, "second"); !ok || string(v) != "2b" {
		t.Errorf("second = %q, %v", v, ok)
	}
	if _, ok := c.Get(ctx, "third"); !ok {
		t.Error("overwrite evicted another entry")
	}
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	c := NewMemoryCache(context.Background())
	c.Close()
	c.Close()
}
