// Package cache provides the expiring key-value store used for login
// throttling and other short-lived counters.
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrMiss = errors.New("cache: key not found")

type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// IncrBelow atomically increments key and resets its expiry to ttl,
	// but only while the stored count is below limit. It returns the count
	// after the call and whether the increment happened. A limit of zero
	// or less means no limit.
	IncrBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error)
	// TTL returns the time left on key, zero for keys without expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
