// Package cache implements the HTTP response cache engine: policy-gated
// admission, per-entry ttl storage with eviction, and bulk invalidation by
// cache tag.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	edgecache "github.com/eugener/edgecache/internal"
	"github.com/eugener/edgecache/internal/policy"
	"github.com/eugener/edgecache/internal/store"
	"github.com/eugener/edgecache/internal/tagindex"
	"github.com/eugener/edgecache/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/eugener/edgecache/internal/cache")

// Recorder receives engine events. *telemetry.Metrics implements it.
type Recorder interface {
	Hit(namespace string)
	Miss(namespace string)
	Stored(namespace string)
	Evicted(namespace string)
	Purged(namespace string, n int)
}

// Options configures a Cache.
type Options struct {
	Backend    string // store backend, see store.New
	MaxEntries int
	Shards     int
	MaxTTL     time.Duration
	Clock      func() time.Time
	Policy     edgecache.PolicyEvaluator // nil = policy.Edge with no default ttl
	Recorder   Recorder                  // nil = no metrics
}

// DeleteOptions modifies Delete.
type DeleteOptions struct {
	// IgnoreMethod deletes the entry for the request URL even when the
	// request method is not GET.
	IgnoreMethod bool
}

// Cache is one isolated namespace: a response store plus its tag index.
// All methods are safe for concurrent use.
type Cache struct {
	name    string
	entries store.Store[*edgecache.Response]
	tags    *tagindex.Index
	policy  edgecache.PolicyEvaluator
	rec     Recorder
}

// New creates an empty cache namespace.
func New(name string, opts Options) (*Cache, error) {
	c := &Cache{
		name:   name,
		policy: opts.Policy,
		rec:    opts.Recorder,
	}
	if c.policy == nil {
		c.policy = &policy.Edge{Now: opts.Clock}
	}
	if c.rec == nil {
		c.rec = nopRecorder{}
	}

	so := store.Options{
		MaxEntries: opts.MaxEntries,
		Shards:     opts.Shards,
		MaxTTL:     opts.MaxTTL,
		Clock:      opts.Clock,
		OnEvict:    func(string) { c.rec.Evicted(c.name) },
	}
	entries, err := store.New[*edgecache.Response](opts.Backend, so)
	if err != nil {
		return nil, fmt.Errorf("cache %s: entries: %w", name, err)
	}

	so.OnEvict = nil
	tags, err := store.New[[]string](opts.Backend, so)
	if err != nil {
		return nil, fmt.Errorf("cache %s: tags: %w", name, err)
	}

	c.entries = entries
	c.tags = tagindex.New(tags)
	return c, nil
}

// Name returns the namespace name.
func (c *Cache) Name() string { return c.name }

// KeyOf returns the cache key for req: its URL, verbatim. The method is not
// part of the key and no normalization is applied.
func KeyOf(req *edgecache.Request) string {
	return req.URL
}

// Put stores res for req when the policy allows it and reports whether it did.
// The stored copy has its Set-Cookie header removed; res itself is not
// modified. Cache-Tag values on res link the entry to those tags.
func (c *Cache) Put(ctx context.Context, req *edgecache.Request, res *edgecache.Response) bool {
	key := KeyOf(req)
	ctx, span := tracer.Start(ctx, "cache.Put", trace.WithAttributes(
		attribute.String("cache.namespace", c.name),
		attribute.String("cache.key", key),
	))
	defer span.End()

	d, err := c.evaluate(req, res)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "cache policy rejected response",
			slog.String("key", key),
			slog.String("error", err.Error()),
			slog.String("request_id", edgecache.RequestIDFromContext(ctx)),
		)
		return false
	}
	if !d.Storable || d.TTL <= 0 {
		span.SetAttributes(attribute.Bool("cache.stored", false))
		return false
	}

	stored := res.Clone()
	if stored.Header == nil {
		stored.Header = make(http.Header)
	}
	stored.Header.Del(edgecache.HeaderSetCookie)

	ttl := time.Duration(d.TTL) * time.Second
	c.entries.Set(key, stored, ttl)

	tags := tagindex.ParseTags(stored.Header.Get(edgecache.HeaderCacheTag))
	for _, tag := range tags {
		c.tags.Link(tag, key, ttl)
	}

	c.rec.Stored(c.name)
	span.SetAttributes(
		attribute.Bool("cache.stored", true),
		attribute.Int("cache.ttl", d.TTL),
		attribute.Int("cache.tags", len(tags)),
	)
	slog.LogAttrs(ctx, slog.LevelDebug, "cache store",
		slog.String("namespace", c.name),
		slog.String("key", key),
		slog.Int("ttl", d.TTL),
		slog.Int("tags", len(tags)),
	)
	return true
}

// evaluate runs the policy, converting a panic into an error so a broken
// evaluator only fails the current Put.
func (c *Cache) evaluate(req *edgecache.Request, res *edgecache.Response) (d edgecache.Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: policy panic: %v", edgecache.ErrInternal, rec)
		}
	}()
	return c.policy.Evaluate(req, res)
}

// Match returns a copy of the live entry for req with Cf-Cache-Status: HIT.
func (c *Cache) Match(ctx context.Context, req *edgecache.Request) (*edgecache.Response, bool) {
	key := KeyOf(req)
	_, span := tracer.Start(ctx, "cache.Match", trace.WithAttributes(
		attribute.String("cache.namespace", c.name),
		attribute.String("cache.key", key),
	))
	defer span.End()

	stored, ok := c.entries.Get(key)
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	if !ok {
		c.rec.Miss(c.name)
		return nil, false
	}
	c.rec.Hit(c.name)

	res := stored.Clone()
	res.Header.Set(edgecache.HeaderCacheStatus, edgecache.StatusHit)
	return res, true
}

// Delete removes the entry for req and reports whether one existed. Only GET
// responses are ever cached, so a non-GET request deletes nothing unless
// opts.IgnoreMethod is set.
func (c *Cache) Delete(ctx context.Context, req *edgecache.Request, opts DeleteOptions) bool {
	if req.Method != http.MethodGet && !opts.IgnoreMethod {
		return false
	}
	key := KeyOf(req)
	_, span := tracer.Start(ctx, "cache.Delete", trace.WithAttributes(
		attribute.String("cache.namespace", c.name),
		attribute.String("cache.key", key),
	))
	defer span.End()

	deleted := c.entries.Delete(key)
	span.SetAttributes(attribute.Bool("cache.deleted", deleted))
	return deleted
}

// ResetByTag invalidates every entry linked to any of tags. It always
// succeeds; unknown tags and already-evicted keys are skipped.
func (c *Cache) ResetByTag(ctx context.Context, tags []string) bool {
	c.PurgeTags(ctx, tags)
	return true
}

// PurgeTags is ResetByTag that reports how many live entries were removed.
// Each key is deleted under its own shard lock, so a large purge does not
// stall lookups of unrelated keys.
func (c *Cache) PurgeTags(ctx context.Context, tags []string) int {
	ctx, span := tracer.Start(ctx, "cache.PurgeTags", trace.WithAttributes(
		attribute.String("cache.namespace", c.name),
		attribute.StringSlice("cache.tags", tags),
	))
	defer span.End()

	purged := 0
	for _, tag := range tags {
		for _, key := range c.tags.Lookup(tag) {
			if _, ok := c.entries.Peek(key); !ok {
				continue
			}
			if c.entries.Delete(key) {
				purged++
			}
		}
		c.tags.Forget(tag)
	}

	if purged > 0 {
		c.rec.Purged(c.name, purged)
	}
	span.SetAttributes(attribute.Int("cache.purged", purged))
	slog.LogAttrs(ctx, slog.LevelInfo, "cache purge by tag",
		slog.String("namespace", c.name),
		slog.Int("tags", len(tags)),
		slog.Int("purged", purged),
		slog.String("request_id", edgecache.RequestIDFromContext(ctx)),
	)
	return purged
}

// Len returns the number of stored responses, including expired ones not yet
// reclaimed.
func (c *Cache) Len() int { return c.entries.Len() }

// Sweep reclaims expired responses and tags and returns how many responses
// were removed.
func (c *Cache) Sweep() int {
	c.tags.Sweep()
	return c.entries.Sweep()
}

// Purge drops every response and tag.
func (c *Cache) Purge() {
	c.entries.Purge()
	c.tags.Purge()
}

type nopRecorder struct{}

func (nopRecorder) Hit(string)         {}
func (nopRecorder) Miss(string)        {}
func (nopRecorder) Stored(string)      {}
func (nopRecorder) Evicted(string)     {}
func (nopRecorder) Purged(string, int) {}
