// Package policy decides whether an origin response may be stored by a shared
// edge cache and for how long, following the RFC 9111 storage and freshness
// rules as applied by CDN edge caches.
package policy

import (
	"fmt"
	"net/http"
	"time"

	edgecache "github.com/eugener/edgecache/internal"
)

// cacheableStatus lists status codes that are heuristically cacheable.
// 206 is deliberately absent: partial content is never stored.
var cacheableStatus = map[int]struct{}{
	http.StatusOK:                   {},
	http.StatusNonAuthoritativeInfo: {},
	http.StatusNoContent:            {},
	http.StatusMultipleChoices:      {},
	http.StatusMovedPermanently:     {},
	http.StatusPermanentRedirect:    {},
	http.StatusNotFound:             {},
	http.StatusMethodNotAllowed:     {},
	http.StatusGone:                 {},
	http.StatusRequestURITooLong:    {},
	http.StatusNotImplemented:       {},
}

// Edge evaluates responses for a shared cache.
type Edge struct {
	// DefaultTTL applies to storable responses that carry no explicit
	// freshness information. Zero disables heuristic caching.
	DefaultTTL time.Duration
	// Now returns the current time; time.Now when nil.
	Now func() time.Time
}

var _ edgecache.PolicyEvaluator = (*Edge)(nil)

// Evaluate returns the storage decision for a request/response pair.
// An error means the headers could not be interpreted; callers should treat
// the response as not storable.
func (p *Edge) Evaluate(req *edgecache.Request, res *edgecache.Response) (edgecache.Decision, error) {
	if req.Method != http.MethodGet {
		return edgecache.Decision{}, nil
	}
	if _, ok := cacheableStatus[res.Status]; !ok {
		return edgecache.Decision{}, nil
	}

	reqCC := parseCacheControl(req.Header.Values("Cache-Control"))
	if reqCC.has("no-store") {
		return edgecache.Decision{}, nil
	}

	resCC := parseCacheControl(res.Header.Values("Cache-Control"))
	if resCC.has("no-store") || resCC.has("private") || resCC.has("no-cache") {
		return edgecache.Decision{}, nil
	}
	if req.Header.Get("Authorization") != "" && !resCC.has("public") && !resCC.has("s-maxage") {
		return edgecache.Decision{}, nil
	}
	if !varyStorable(res.Header) {
		return edgecache.Decision{}, nil
	}

	ttl, err := p.freshness(resCC, res.Header)
	if err != nil {
		return edgecache.Decision{}, err
	}
	if ttl <= 0 {
		return edgecache.Decision{}, nil
	}
	return edgecache.Decision{Storable: true, TTL: ttl}, nil
}

// freshness returns the freshness lifetime in seconds:
// s-maxage, then max-age, then Expires relative to Date, then DefaultTTL.
func (p *Edge) freshness(cc directives, h http.Header) (int, error) {
	if n, ok, err := cc.seconds("s-maxage"); ok {
		return n, err
	}
	if n, ok, err := cc.seconds("max-age"); ok {
		return n, err
	}
	if raw := h.Get("Expires"); raw != "" {
		expires, err := http.ParseTime(raw)
		if err != nil {
			// An invalid Expires means "already expired".
			return 0, nil
		}
		date := p.now()
		if rawDate := h.Get("Date"); rawDate != "" {
			if date, err = http.ParseTime(rawDate); err != nil {
				return 0, fmt.Errorf("invalid Date header %q", rawDate)
			}
		}
		return int(expires.Sub(date) / time.Second), nil
	}
	return int(p.DefaultTTL / time.Second), nil
}

func (p *Edge) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
