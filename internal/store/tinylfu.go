package store

import (
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// TinyLFU is a W-TinyLFU store backed by otter. Admission and eviction are
// frequency-based; Peek reads quietly so it never raises a key's frequency.
// OnEvict is not called.
type TinyLFU[V any] struct {
	cache *otter.Cache[string, entry[V]]
	opts  Options
}

// NewTinyLFU creates an otter-backed store.
func NewTinyLFU[V any](opts Options) (*TinyLFU[V], error) {
	opts = opts.withDefaults()
	o := &otter.Options[string, entry[V]]{MaximumSize: opts.MaxEntries}
	if opts.MaxTTL > 0 {
		o.ExpiryCalculator = otter.ExpiryWriting[string, entry[V]](opts.MaxTTL)
	}
	c, err := otter.New[string, entry[V]](o)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &TinyLFU[V]{cache: c, opts: opts}, nil
}

// Set stores val with per-entry TTL.
func (t *TinyLFU[V]) Set(key string, val V, ttl time.Duration) {
	t.cache.Set(key, entry[V]{
		val:       val,
		expiresAt: expiry(t.opts.Clock(), t.opts.clampTTL(ttl)),
	})
}

// Get retrieves a value if present and not expired.
func (t *TinyLFU[V]) Get(key string) (V, bool) {
	e, ok := t.cache.GetIfPresent(key)
	return t.live(key, e, ok)
}

// Peek retrieves a value without feeding otter's frequency sketch or stats.
func (t *TinyLFU[V]) Peek(key string) (V, bool) {
	e, ok := t.cache.GetEntryQuietly(key)
	return t.live(key, e.Value, ok)
}

// live returns e's value, dropping it from the cache when it has expired.
func (t *TinyLFU[V]) live(key string, e entry[V], ok bool) (V, bool) {
	var zero V
	if !ok {
		return zero, false
	}
	now := t.opts.Clock()
	if e.expired(now) {
		t.removeExpired(key, now)
		return zero, false
	}
	return e.val, true
}

// removeExpired invalidates key only if the entry stored under it is still
// expired, so a concurrent Set of a fresh value survives.
func (t *TinyLFU[V]) removeExpired(key string, now time.Time) {
	t.cache.ComputeIfPresent(key, func(cur entry[V]) (entry[V], otter.ComputeOp) {
		if cur.expired(now) {
			return cur, otter.InvalidateOp
		}
		return cur, otter.CancelOp
	})
}

// Delete removes key and reports whether a live value was removed.
func (t *TinyLFU[V]) Delete(key string) bool {
	e, ok := t.cache.Invalidate(key)
	return ok && !e.expired(t.opts.Clock())
}

// Update rewrites key atomically under otter's bucket lock. fn must not
// call back into the store.
func (t *TinyLFU[V]) Update(key string, ttl time.Duration, fn func(old V, found bool) V) {
	now := t.opts.Clock()
	exp := expiry(now, t.opts.clampTTL(ttl))
	t.cache.Compute(key, func(cur entry[V], found bool) (entry[V], otter.ComputeOp) {
		var old V
		live := found && !cur.expired(now)
		if live {
			old = cur.val
		}
		return entry[V]{val: fn(old, live), expiresAt: exp}, otter.WriteOp
	})
}

// Len returns the estimated number of entries.
func (t *TinyLFU[V]) Len() int {
	return t.cache.EstimatedSize()
}

// Sweep invalidates expired entries.
func (t *TinyLFU[V]) Sweep() int {
	now := t.opts.Clock()
	var expired []string
	for key, e := range t.cache.All() {
		if e.expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		t.removeExpired(key, now)
	}
	return len(expired)
}

// Purge removes all values.
func (t *TinyLFU[V]) Purge() {
	t.cache.InvalidateAll()
}
