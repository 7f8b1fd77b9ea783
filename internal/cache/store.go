package cache

import (
	"context"
	"time"
)

// Store is the external key-value store behind the tiered cache.
// Get and Put are individually atomic; last writer wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
