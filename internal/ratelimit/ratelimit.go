// Package ratelimit implements per-client request limiting with lazy-refill token buckets.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed           bool
	Limit             int64
	Remaining         int64
	RetryAfterSeconds float64
}

// RetryAfter returns the whole number of seconds a denied client should wait.
func (r Result) RetryAfter() int {
	return int(math.Ceil(r.RetryAfterSeconds))
}

// Bucket is a token bucket with lazy refill (no background goroutine).
type Bucket struct {
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastFill time.Time
}

func newBucket(perMinute int64, now time.Time) *Bucket {
	return &Bucket{
		tokens:   float64(perMinute),
		max:      float64(perMinute),
		rate:     float64(perMinute) / 60.0,
		lastFill: now,
	}
}

// refill adds tokens based on elapsed time since last refill.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.max, b.tokens+elapsed*b.rate)
	b.lastFill = now
}

// tryConsume attempts to consume n tokens. Returns remaining and whether allowed.
func (b *Bucket) tryConsume(n float64, now time.Time) (remaining int64, allowed bool) {
	b.refill(now)
	if b.tokens >= n {
		b.tokens -= n
		return int64(b.tokens), true
	}
	return 0, false
}

// retryAfter returns seconds until n tokens are available.
func (b *Bucket) retryAfter(n float64) float64 {
	if b.tokens >= n {
		return 0
	}
	return (n - b.tokens) / b.rate
}

// Limiter is the bucket of a single client.
type Limiter struct {
	mu       sync.Mutex
	bucket   *Bucket
	limit    int64
	lastUsed time.Time
}

func (l *Limiter) allow(now time.Time) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastUsed = now

	remaining, ok := l.bucket.tryConsume(1, now)
	if ok {
		return Result{Allowed: true, Limit: l.limit, Remaining: remaining}
	}
	return Result{
		Allowed:           false,
		Limit:             l.limit,
		RetryAfterSeconds: l.bucket.retryAfter(1),
	}
}

// Registry hands out one Limiter per client key, all sharing the same
// per-minute limit. A limit of 0 disables limiting.
type Registry struct {
	perMinute int64
	idle      time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewRegistry creates a registry allowing perMinute requests per client.
// Clients unseen for idle are dropped by Sweep.
func NewRegistry(perMinute int64, idle time.Duration) *Registry {
	return &Registry{
		perMinute: perMinute,
		idle:      idle,
		now:       time.Now,
		limiters:  make(map[string]*Limiter),
	}
}

// Allow consumes one token from key's bucket.
func (r *Registry) Allow(key string) Result {
	if r.perMinute <= 0 {
		return Result{Allowed: true}
	}
	now := r.now()
	return r.getOrCreate(key, now).allow(now)
}

func (r *Registry) getOrCreate(key string, now time.Time) *Limiter {
	r.mu.RLock()
	l, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double-check after acquiring write lock.
	if l, ok := r.limiters[key]; ok {
		return l
	}
	l = &Limiter{bucket: newBucket(r.perMinute, now), limit: r.perMinute, lastUsed: now}
	r.limiters[key] = l
	return l
}

// Name identifies the registry to the sweeper.
func (r *Registry) Name() string { return "purge_limits" }

// Len returns the number of tracked clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}

// Sweep removes limiters idle for longer than the registry's idle period.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for k, l := range r.limiters {
		l.mu.Lock()
		stale := l.lastUsed.Before(cutoff)
		l.mu.Unlock()
		if stale {
			delete(r.limiters, k)
			evicted++
		}
	}
	return evicted
}
