package studio

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func historyBackends(t *testing.T, capacity int) map[string]HistoryStore {
	t.Helper()

	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })

	return map[string]HistoryStore{
		"memory": NewMemoryHistory(capacity),
		"redis":  NewRedisHistory(cli, capacity),
	}
}

func TestHistory_CapEvictsOldest(t *testing.T) {
	for name, h := range historyBackends(t, 5) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 8; i++ {
				if err := h.Append(ctx, Record{ID: fmt.Sprint(i), Style: "vivid"}); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}

			all, err := h.All(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 5 || all[0].ID != "3" || all[4].ID != "7" {
				t.Fatalf("expected ids 3..7, got %+v", all)
			}

			recent, total, err := h.Recent(ctx, 2)
			if err != nil || total != 5 || len(recent) != 2 || recent[0].ID != "6" || recent[1].ID != "7" {
				t.Fatalf("Recent(2) = %+v, total %d, err %v", recent, total, err)
			}

			if _, err := h.Find(ctx, "0"); !errors.Is(err, ErrRecordNotFound) {
				t.Errorf("evicted record should be gone, got %v", err)
			}
			rec, err := h.Find(ctx, "5")
			if err != nil || rec.ID != "5" {
				t.Errorf("Find(5) = %+v, %v", rec, err)
			}
		})
	}
}

func TestHistory_RecentMoreThanStored(t *testing.T) {
	for name, h := range historyBackends(t, 100) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = h.Append(ctx, Record{ID: "only"})

			recent, total, err := h.Recent(ctx, 50)
			if err != nil || total != 1 || len(recent) != 1 {
				t.Fatalf("Recent(50) = %+v, total %d, err %v", recent, total, err)
			}
		})
	}
}

func TestRedisHistory_Outage(t *testing.T) {
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = cli.Close() })
	h := NewRedisHistory(cli, 10)

	mr.Close()

	if err := h.Append(context.Background(), Record{ID: "x"}); err == nil {
		t.Fatal("expected an error when Redis is down")
	}
}
