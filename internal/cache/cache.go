package cache

import (
	"context"
	"time"
)

// Cache is the read-through cache used on hot lookups, most notably the
// enabled-trigger set consulted on every final transcript segment. A miss
// is not an error: callers fall back to the backing store.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
