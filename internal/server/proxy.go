package server

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	edgecache "github.com/eugener/edgecache/internal"
	"github.com/eugener/edgecache/internal/cache"
	"github.com/eugener/edgecache/internal/origin"
)

// Pre-allocated cache status header values.
var (
	missValue   = []string{edgecache.StatusMiss}
	bypassValue = []string{edgecache.StatusBypass}
)

// handleProxy serves GET from the cache, filling it from the origin on a miss.
// HEAD is answered from the cache when possible and otherwise passed through.
// Every other method is forwarded, and a successful unsafe request
// invalidates the stored GET response for the same URL.
func (s *server) handleProxy(w http.ResponseWriter, r *http.Request) {
	req := edgecache.RequestFromHTTP(r)

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if res, ok := s.deps.Cache.Match(r.Context(), req); ok {
			writeStored(w, r, res)
			return
		}
		if r.Method == http.MethodHead {
			s.passThrough(w, r)
			return
		}
		s.fill(w, r, req)
	default:
		s.passThrough(w, r)
	}
}

// fill fetches a missed GET from the origin, offers it to the cache, and
// writes it to the client.
func (s *server) fill(w http.ResponseWriter, r *http.Request, req *edgecache.Request) {
	f, err := s.deps.Origin.Fetch(r.Context(), r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if f.Oversize() {
		defer f.Rest.Close()
		writeStreamed(w, r, f, bypassValue)
		return
	}

	// Put works on its own copy, so the client still receives any Set-Cookie.
	s.deps.Cache.Put(r.Context(), req, f.Response)
	writeFetched(w, r, f.Response, missValue)
}

// passThrough forwards r unchanged and never stores the result.
func (s *server) passThrough(w http.ResponseWriter, r *http.Request) {
	f, err := s.deps.Origin.Fetch(r.Context(), r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if invalidates(r.Method) && f.Status < http.StatusBadRequest {
		s.invalidate(r)
	}
	if f.Oversize() {
		defer f.Rest.Close()
		writeStreamed(w, r, f, bypassValue)
		return
	}
	writeFetched(w, r, f.Response, bypassValue)
}

// invalidate drops the stored GET response for the request URL.
func (s *server) invalidate(r *http.Request) {
	target := edgecache.RequestFromHTTP(r)
	target.Method = http.MethodGet
	if s.deps.Cache.Delete(r.Context(), target, cache.DeleteOptions{}) {
		slog.LogAttrs(r.Context(), slog.LevelDebug, "cache entry invalidated",
			slog.String("method", r.Method),
			slog.String("url", target.URL),
		)
	}
}

func invalidates(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// writeStored writes a cache hit. Match already set the HIT status header.
func writeStored(w http.ResponseWriter, r *http.Request, res *edgecache.Response) {
	h := w.Header()
	for k, v := range res.Header {
		h[k] = v
	}
	if bodyAllowed(res.Status) {
		h["Content-Length"] = []string{strconv.Itoa(len(res.Body))}
	}
	w.WriteHeader(res.Status)
	if r.Method != http.MethodHead {
		w.Write(res.Body)
	}
}

func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}

func writeFetched(w http.ResponseWriter, r *http.Request, res *edgecache.Response, status []string) {
	h := w.Header()
	for k, v := range res.Header {
		h[k] = v
	}
	h[edgecache.HeaderCacheStatus] = status
	if r.Method != http.MethodHead && bodyAllowed(res.Status) {
		h["Content-Length"] = []string{strconv.Itoa(len(res.Body))}
	}
	w.WriteHeader(res.Status)
	if r.Method != http.MethodHead {
		w.Write(res.Body)
	}
}

func writeStreamed(w http.ResponseWriter, r *http.Request, f *origin.Fetched, status []string) {
	h := w.Header()
	for k, v := range f.Header {
		h[k] = v
	}
	h[edgecache.HeaderCacheStatus] = status
	w.WriteHeader(f.Status)
	if _, err := w.Write(f.Body); err != nil {
		return
	}
	if _, err := io.Copy(w, f.Rest); err != nil {
		slog.LogAttrs(r.Context(), slog.LevelWarn, "stream from origin interrupted",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
