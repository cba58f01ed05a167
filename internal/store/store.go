// Package store provides bounded, expiring key/value stores that back the
// response cache and its tag index.
package store

import (
	"fmt"
	"time"
)

// Backend names accepted by New.
const (
	BackendLRU     = "lru"
	BackendTinyLFU = "tinylfu"
)

// DefaultMaxEntries is used when Options.MaxEntries is not positive.
const DefaultMaxEntries = 10_000

// Store is a bounded key/value store with per-entry expiry.
// All methods are safe for concurrent use.
type Store[V any] interface {
	// Set inserts or replaces key with an entry that expires after ttl.
	// A non-positive ttl stores an entry that never expires.
	Set(key string, val V, ttl time.Duration)
	// Get returns the live value for key and marks it recently used.
	// Expired entries are removed and reported absent.
	Get(key string) (V, bool)
	// Peek is Get without touching recency.
	Peek(key string) (V, bool)
	// Delete removes key and reports whether a live entry existed.
	Delete(key string) bool
	// Update atomically replaces the value under key with fn(old, found),
	// resetting its expiry to ttl.
	Update(key string, ttl time.Duration, fn func(old V, found bool) V)
	// Len returns the number of stored entries, including expired entries
	// that have not been reclaimed yet.
	Len() int
	// Sweep removes expired entries and returns how many were removed.
	Sweep() int
	// Purge removes every entry.
	Purge()
}

// Options configures a store.
type Options struct {
	MaxEntries int
	// Shards splits the LRU backend into independently locked segments.
	// Recency is tracked per shard; Shards == 1 gives exact global LRU order.
	Shards int
	// MaxTTL caps every entry's ttl when positive.
	MaxTTL time.Duration
	// Clock returns the current time; time.Now when nil.
	Clock func() time.Time
	// OnEvict is called, outside any lock, with the key of each entry
	// dropped to make room for another.
	OnEvict func(key string)
}

func (o Options) withDefaults() Options {
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.Shards <= 0 {
		o.Shards = 1
	}
	if o.Shards > o.MaxEntries {
		o.Shards = o.MaxEntries
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

func (o Options) clampTTL(ttl time.Duration) time.Duration {
	if o.MaxTTL > 0 && (ttl <= 0 || ttl > o.MaxTTL) {
		return o.MaxTTL
	}
	return ttl
}

// New creates a store using the named backend ("lru" when empty).
func New[V any](backend string, opts Options) (Store[V], error) {
	switch backend {
	case "", BackendLRU:
		return NewLRU[V](opts)
	case BackendTinyLFU:
		return NewTinyLFU[V](opts)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// entry wraps a stored value with its expiration time.
type entry[V any] struct {
	val       V
	expiresAt time.Time // zero = never
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
