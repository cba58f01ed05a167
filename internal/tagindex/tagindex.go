// Package tagindex maps cache tags to the cache keys stored under them so a
// whole group of entries can be invalidated at once.
//
// Tag values are stored with their own ttl, independent of the entries they
// reference. A tag may therefore list keys that have already expired or been
// evicted; callers are expected to skip those.
package tagindex

import (
	"slices"
	"strings"
	"time"

	"github.com/eugener/edgecache/internal/store"
)

// Index is a tag -> keys index. It is safe for concurrent use.
type Index struct {
	tags store.Store[[]string]
}

// New returns an Index backed by s.
func New(s store.Store[[]string]) *Index {
	return &Index{tags: s}
}

// Link appends key to the set stored under tag. The tag's expiry is reset to
// ttl, so the most recent link governs the lifetime of the whole set.
func (x *Index) Link(tag, key string, ttl time.Duration) {
	x.tags.Update(tag, ttl, func(keys []string, _ bool) []string {
		if slices.Contains(keys, key) {
			return keys
		}
		// Copy on write: Lookup hands out slices that must stay stable.
		out := make([]string, len(keys), len(keys)+1)
		copy(out, keys)
		return append(out, key)
	})
}

// Lookup returns the keys linked to tag in insertion order, or nil when the
// tag is unknown or expired. Recency is not affected.
func (x *Index) Lookup(tag string) []string {
	keys, ok := x.tags.Peek(tag)
	if !ok {
		return nil
	}
	return slices.Clone(keys)
}

// Forget removes the tag itself. The entries it referenced are untouched.
func (x *Index) Forget(tag string) bool {
	return x.tags.Delete(tag)
}

// Len returns the number of stored tags.
func (x *Index) Len() int { return x.tags.Len() }

// Purge drops every tag.
func (x *Index) Purge() { x.tags.Purge() }

// Sweep drops expired tags.
func (x *Index) Sweep() int { return x.tags.Sweep() }

// ParseTags splits a Cache-Tag header value into tag names. Surrounding
// whitespace is trimmed and empty names are dropped. Commas cannot be escaped.
func ParseTags(header string) []string {
	if header == "" {
		return nil
	}
	var tags []string
	for tag := range strings.SplitSeq(header, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
