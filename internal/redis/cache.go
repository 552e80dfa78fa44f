package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// SharedCache is the cross-instance tier behind the in-process caches in
// internal/geo. Values are opaque bytes, callers own the encoding.
type SharedCache struct {
	client    *goredis.Client
	namespace string
}

func NewSharedCache(client *goredis.Client, namespace string) *SharedCache {
	return &SharedCache{client: client, namespace: namespace}
}

func (c *SharedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	bytes, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s cache entry: %w", c.namespace, err)
	}
	return bytes, true, nil
}

func (c *SharedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s cache entry: %w", c.namespace, err)
	}
	return nil
}

func (c *SharedCache) key(k string) string {
	return fmt.Sprintf("cache:%s:%s", c.namespace, k)
}
