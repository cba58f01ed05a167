package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// LRU is a sharded least-recently-used store. Each shard owns a fixed slice of
// the capacity and its own lock, so operations on unrelated keys rarely
// contend.
type LRU[V any] struct {
	shards []*shard[V]
	opts   Options
}

type shard[V any] struct {
	mu   sync.Mutex
	lru  *simplelru.LRU[string, entry[V]]
	size int
}

// NewLRU creates an LRU store.
func NewLRU[V any](opts Options) (*LRU[V], error) {
	opts = opts.withDefaults()
	perShard := (opts.MaxEntries + opts.Shards - 1) / opts.Shards

	s := &LRU[V]{shards: make([]*shard[V], opts.Shards), opts: opts}
	for i := range s.shards {
		// Evictions are done by hand in add so that expired and explicit
		// removals are never reported as evictions.
		l, err := simplelru.NewLRU[string, entry[V]](perShard, nil)
		if err != nil {
			return nil, fmt.Errorf("create lru shard: %w", err)
		}
		s.shards[i] = &shard[V]{lru: l, size: perShard}
	}
	return s, nil
}

func (s *LRU[V]) shardFor(key string) *shard[V] {
	if len(s.shards) == 1 {
		return s.shards[0]
	}
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// Set inserts or replaces key.
func (s *LRU[V]) Set(key string, val V, ttl time.Duration) {
	e := entry[V]{val: val, expiresAt: expiry(s.opts.Clock(), s.opts.clampTTL(ttl))}
	sh := s.shardFor(key)

	sh.mu.Lock()
	evicted, ok := sh.add(key, e)
	sh.mu.Unlock()

	if ok && s.opts.OnEvict != nil {
		s.opts.OnEvict(evicted)
	}
}

// add stores e, first dropping the least recently used entry when the shard
// is full. Callers hold sh.mu.
func (sh *shard[V]) add(key string, e entry[V]) (string, bool) {
	var (
		evicted string
		ok      bool
	)
	if !sh.lru.Contains(key) && sh.lru.Len() >= sh.size {
		evicted, _, ok = sh.lru.RemoveOldest()
	}
	sh.lru.Add(key, e)
	return evicted, ok
}

// Get returns the live value for key and marks it most recently used.
func (s *LRU[V]) Get(key string) (V, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.lookup(key, s.opts.Clock(), sh.lru.Get)
}

// Peek returns the live value for key without changing its recency.
func (s *LRU[V]) Peek(key string) (V, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.lookup(key, s.opts.Clock(), sh.lru.Peek)
}

// lookup reads key through read, dropping it if expired. Callers hold sh.mu.
func (sh *shard[V]) lookup(key string, now time.Time, read func(string) (entry[V], bool)) (V, bool) {
	var zero V
	e, ok := read(key)
	if !ok {
		return zero, false
	}
	if e.expired(now) {
		sh.lru.Remove(key)
		return zero, false
	}
	return e.val, true
}

// Delete removes key and reports whether a live entry was removed.
func (s *LRU[V]) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.lru.Peek(key)
	if !ok {
		return false
	}
	sh.lru.Remove(key)
	return !e.expired(s.opts.Clock())
}

// Update atomically rewrites key. An expired value is passed to fn as absent.
func (s *LRU[V]) Update(key string, ttl time.Duration, fn func(old V, found bool) V) {
	now := s.opts.Clock()
	sh := s.shardFor(key)

	sh.mu.Lock()
	old, found := sh.lookup(key, now, sh.lru.Peek)
	e := entry[V]{val: fn(old, found), expiresAt: expiry(now, s.opts.clampTTL(ttl))}
	evicted, ok := sh.add(key, e)
	sh.mu.Unlock()

	if ok && s.opts.OnEvict != nil {
		s.opts.OnEvict(evicted)
	}
}

// Len returns the number of entries across all shards.
func (s *LRU[V]) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += sh.lru.Len()
		sh.mu.Unlock()
	}
	return n
}

// Sweep removes expired entries one shard at a time.
func (s *LRU[V]) Sweep() int {
	removed := 0
	for _, sh := range s.shards {
		now := s.opts.Clock()
		sh.mu.Lock()
		for _, key := range sh.lru.Keys() {
			if e, ok := sh.lru.Peek(key); ok && e.expired(now) {
				sh.lru.Remove(key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Purge removes every entry.
func (s *LRU[V]) Purge() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.lru.Purge()
		sh.mu.Unlock()
	}
}
