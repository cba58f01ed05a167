// Package origin forwards cache misses to the upstream server.
package origin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	edgecache "github.com/eugener/edgecache/internal"
	"github.com/eugener/edgecache/internal/circuitbreaker"
)

// Observer receives one call per origin round trip.
type Observer interface {
	ObserveOrigin(method string, d time.Duration, err error)
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	Host         string // overrides the Host header sent upstream; empty keeps the client's
	Timeout      time.Duration
	MaxBodyBytes int64 // 0 = unlimited
	Resolver     *dnscache.Resolver
	Breaker      *circuitbreaker.Breaker // nil = never short-circuit
	Observer     Observer
}

// Client fetches responses from a single origin.
type Client struct {
	base     *url.URL
	host     string
	maxBody  int64
	http     *http.Client
	breaker  *circuitbreaker.Breaker
	observer Observer
	tracer   trace.Tracer
}

// Fetched is an origin response. When the body exceeded the size limit, Body
// holds the first MaxBodyBytes and Rest streams the remainder; the caller must
// close Rest and must not cache the response.
type Fetched struct {
	*edgecache.Response
	Rest io.ReadCloser
}

// Oversize reports whether the body was too large to buffer.
func (f *Fetched) Oversize() bool { return f.Rest != nil }

// New creates a Client for opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("origin url %q must be absolute", opts.BaseURL)
	}
	return &Client{
		base:    base,
		host:    opts.Host,
		maxBody: opts.MaxBodyBytes,
		http: &http.Client{
			Transport: NewTransport(opts.Resolver),
			Timeout:   opts.Timeout,
			// Redirects are the client's business; they are cacheable responses here.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		breaker:  opts.Breaker,
		observer: opts.Observer,
		tracer:   otel.Tracer("edgecache/origin"),
	}, nil
}

// Target maps an incoming request path and query onto the origin.
func (c *Client) Target(r *http.Request) *url.URL {
	u := *c.base
	u.Path = singleJoiningSlash(c.base.Path, r.URL.Path)
	u.RawPath = ""
	u.RawQuery = r.URL.RawQuery
	return &u
}

// Fetch forwards r to the origin. Errors wrap edgecache.ErrOrigin, or
// edgecache.ErrUnavailable while the breaker is open.
func (c *Client) Fetch(ctx context.Context, r *http.Request) (*Fetched, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		return nil, edgecache.ErrUnavailable
	}

	target := c.Target(r)
	ctx, span := c.tracer.Start(ctx, "origin.fetch", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.full", target.String()),
		))
	defer span.End()

	start := time.Now()
	f, err := c.do(ctx, r, target)
	if c.breaker != nil {
		status := 0
		if f != nil {
			status = f.Status
		}
		c.breaker.Record(circuitbreaker.Weight(status, err))
	}
	if c.observer != nil {
		c.observer.ObserveOrigin(r.Method, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("http.response.status_code", f.Status),
		attribute.Bool("edgecache.oversize", f.Oversize()),
	)
	return f, nil
}

func (c *Client) do(ctx context.Context, r *http.Request, target *url.URL) (*Fetched, error) {
	var body io.Reader
	if r.Body != nil && r.Body != http.NoBody {
		body = r.Body
	}
	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", edgecache.ErrOrigin, err)
	}
	out.ContentLength = r.ContentLength
	copyHeader(out.Header, r.Header)
	if c.host != "" {
		out.Host = c.host
	} else {
		out.Host = r.Host
	}
	setForwarded(out.Header, r)

	resp, err := c.http.Do(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", edgecache.ErrOrigin, err)
	}

	res := &edgecache.Response{Status: resp.StatusCode, Header: make(http.Header, len(resp.Header))}
	copyHeader(res.Header, resp.Header)

	if c.maxBody <= 0 {
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %w", edgecache.ErrOrigin, err)
		}
		res.Body = b
		return &Fetched{Response: res}, nil
	}

	var buf bytes.Buffer
	n, err := io.CopyN(&buf, resp.Body, c.maxBody+1)
	if err != nil && !errors.Is(err, io.EOF) {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: read body: %w", edgecache.ErrOrigin, err)
	}
	if n <= c.maxBody {
		resp.Body.Close()
		res.Body = buf.Bytes()
		return &Fetched{Response: res}, nil
	}

	slog.LogAttrs(ctx, slog.LevelDebug, "origin body exceeds buffer limit",
		slog.String("url", target.String()),
		slog.Int64("limit", c.maxBody),
	)
	b := buf.Bytes()
	res.Body = b[:c.maxBody]
	rest := io.MultiReader(bytes.NewReader(b[c.maxBody:]), resp.Body)
	return &Fetched{Response: res, Rest: readCloser{rest, resp.Body}}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// hopByHop headers that must not be forwarded between client and upstream.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// copyHeader copies src into dst minus hop-by-hop headers, including any
// named in src's Connection header.
func copyHeader(dst, src http.Header) {
	var named map[string]struct{}
	for _, v := range src.Values("Connection") {
		for f := range strings.SplitSeq(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				if named == nil {
					named = make(map[string]struct{})
				}
				named[http.CanonicalHeaderKey(f)] = struct{}{}
			}
		}
	}
	for key, vals := range src {
		if _, hop := hopByHopHeaders[key]; hop {
			continue
		}
		if _, hop := named[key]; hop {
			continue
		}
		dst[key] = append([]string(nil), vals...)
	}
}

func setForwarded(h http.Header, r *http.Request) {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	if r.Host != "" {
		h.Set("X-Forwarded-Host", r.Host)
	}
	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	h.Set("X-Forwarded-Proto", proto)
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
