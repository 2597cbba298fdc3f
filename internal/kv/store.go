// Package kv provides the TTL key-value store backing conversation state and
// the service's caches.
package kv

import (
	"context"
	"strings"
	"time"
)

// Store is a byte-oriented key-value store with per-key expiry. Get returns
// (nil, nil) when the key is absent or expired; errors are reserved for
// backend failures.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key joins namespace parts into a store key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
