// Package edgecache defines domain types and interfaces for the edgecache
// HTTP response cache. This package has no project imports -- it is the
// dependency root.
package edgecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"
)

// --- Header conventions ---

// Header names are kept in canonical MIME form so direct map access on
// http.Header skips canonicalization.
const (
	HeaderCacheTag    = "Cache-Tag"
	HeaderCacheStatus = "Cf-Cache-Status"
	HeaderSetCookie   = "Set-Cookie"
)

// Cache status values written to HeaderCacheStatus.
const (
	StatusHit    = "HIT"
	StatusMiss   = "MISS"
	StatusBypass = "BYPASS"
)

// --- Request / Response ---

// Request is the subset of an HTTP request the cache reads.
type Request struct {
	URL    string
	Method string
	Header http.Header
}

// NewRequest returns a GET request for rawURL. It is the Go form of looking a
// cache entry up by a bare URL string.
func NewRequest(rawURL string) *Request {
	return &Request{URL: rawURL, Method: http.MethodGet, Header: http.Header{}}
}

// RequestFromHTTP converts a server-side request. The URL is made absolute
// from r.Host when the request line carried only a path.
func RequestFromHTTP(r *http.Request) *Request {
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" && u.Host != "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}
	return &Request{URL: u.String(), Method: r.Method, Header: r.Header}
}

// Response is a fully buffered HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Clone returns a deep copy of r. Mutating the copy never affects r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	var body []byte
	if r.Body != nil {
		body = make([]byte, len(r.Body))
		copy(body, r.Body)
	}
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   body,
	}
}

// --- Policy ---

// Decision is the outcome of evaluating a request/response pair.
// A TTL of zero means the response must not be stored.
type Decision struct {
	Storable bool
	TTL      int // seconds
}

// PolicyEvaluator decides whether a response may be cached and for how long.
// Implementations must be pure functions of header metadata.
type PolicyEvaluator interface {
	Evaluate(req *Request, res *Response) (Decision, error)
}

// PolicyFunc adapts a function to the PolicyEvaluator interface.
type PolicyFunc func(req *Request, res *Response) (Decision, error)

// Evaluate calls f(req, res).
func (f PolicyFunc) Evaluate(req *Request, res *Response) (Decision, error) {
	return f(req, res)
}

// --- Purge audit ---

// PurgeEvent records one invalidation request made through the admin API.
type PurgeEvent struct {
	ID        string    `json:"id"`
	Namespace string    `json:"namespace"`
	Tags      []string  `json:"tags,omitempty"`
	Files     []string  `json:"files,omitempty"`
	Purged    int       `json:"purged"`
	RequestID string    `json:"request_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PurgeFilter narrows a purge log query. Zero fields match everything.
type PurgeFilter struct {
	Namespace string
	Tag       string
	Since     time.Time
	Limit     int
	Offset    int
}

// --- Context keys ---

type contextKey int

const ctxKeyRequestID contextKey = 0

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// --- Shared helpers ---

// HashKey returns the hex-encoded SHA-256 hash of a raw admin key.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
