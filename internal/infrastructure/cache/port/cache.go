package port

import (
	"context"
	"errors"
	"time"
)

// Cache is the key-value cache used for read-through lookups (push endpoints).
// Implementations must be safe for concurrent use. Values are opaque strings;
// callers own their encoding.
type Cache interface {
	// Get returns ErrMiss when key is absent or expired; other errors are transport failures.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key. ttl <= 0 keeps the entry until it is deleted.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Del removes keys and reports how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// ErrMiss signals a cache miss.
var ErrMiss = errors.New("cache: miss")

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool { return errors.Is(err, ErrMiss) }
