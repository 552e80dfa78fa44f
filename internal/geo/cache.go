package geo

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SharedStore is the optional cross-instance cache tier (redis in production).
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// TieredCache is a bounded in-process LRU with TTL in front of an optional
// shared store. Shared-tier failures degrade to a local miss.
type TieredCache[V any] struct {
	local  *expirable.LRU[string, V]
	shared SharedStore
	ttl    time.Duration
}

func NewTieredCache[V any](size int, ttl time.Duration, shared SharedStore) *TieredCache[V] {
	if size <= 0 {
		size = 1
	}
	return &TieredCache[V]{
		local:  expirable.NewLRU[string, V](size, nil, ttl),
		shared: shared,
		ttl:    ttl,
	}
}

func (c *TieredCache[V]) Get(ctx context.Context, key string) (V, bool) {
	if v, ok := c.local.Get(key); ok {
		return v, true
	}

	var zero V
	if c.shared == nil {
		return zero, false
	}

	raw, found, err := c.shared.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "shared cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		return zero, false
	}
	if !found {
		return zero, false
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.WarnContext(ctx, "shared cache entry undecodable", slog.String("key", key), slog.String("error", err.Error()))
		return zero, false
	}
	c.local.Add(key, v)
	return v, true
}

func (c *TieredCache[V]) Set(ctx context.Context, key string, v V) {
	c.local.Add(key, v)
	if c.shared == nil {
		return
	}

	raw, err := json.Marshal(v)
	if err != nil {
		slog.WarnContext(ctx, "shared cache encode failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := c.shared.Set(ctx, key, raw, c.ttl); err != nil {
		slog.WarnContext(ctx, "shared cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Len reports the number of entries held locally.
func (c *TieredCache[V]) Len() int {
	return c.local.Len()
}
