// Package history tracks recently scanned articles in Redis so daily runs
// skip titles checked within the TTL window.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "deadref:scanned:"

// History answers "was this article scanned recently?". A lost Redis never
// blocks a scan: lookup failures fall back to scanning the article again.
type History struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*History, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("history: failed to reach redis: %w", err)
	}
	return &History{rdb: rdb, ttl: ttl}, nil
}

// FilterFresh returns the titles not scanned within the TTL window,
// preserving order.
func (h *History) FilterFresh(ctx context.Context, titles []string) []string {
	fresh := make([]string, 0, len(titles))
	for _, title := range titles {
		n, err := h.rdb.Exists(ctx, keyPrefix+title).Result()
		if err != nil {
			slog.Warn("Scan history lookup failed. Keeping article.", "article", title, "error", err)
			fresh = append(fresh, title)
			continue
		}
		if n > 0 {
			slog.Debug("Skipping recently scanned article", "article", title)
			continue
		}
		fresh = append(fresh, title)
	}
	return fresh
}

// MarkScanned stamps each title with the scan time. Failures are logged and
// ignored: worst case the article is scanned again next run.
func (h *History) MarkScanned(ctx context.Context, titles []string) {
	if len(titles) == 0 {
		return
	}
	pipe := h.rdb.Pipeline()
	now := time.Now().UTC().Format(time.RFC3339)
	for _, title := range titles {
		pipe.Set(ctx, keyPrefix+title, now, h.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("Failed to record scan history", "titles", len(titles), "error", err)
	}
}

func (h *History) Close() error {
	return h.rdb.Close()
}
