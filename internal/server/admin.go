package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	edgecache "github.com/eugener/edgecache/internal"
	"github.com/eugener/edgecache/internal/cache"
)

// maxAdminBody is the maximum allowed admin request body size (1 MB).
const maxAdminBody = 1 << 20

// purgeRequest is the decoded body of POST /admin/purge.
type purgeRequest struct {
	Tags  []string
	Files []string
}

// errRelativeFile rejects file purges that could never match a cache key.
// Keys are the absolute URLs clients requested, scheme and host included.
var errRelativeFile = fmt.Errorf("%w: files must be absolute http(s) URLs", edgecache.ErrBadRequest)

// parsePurge reads {"tags":[...],"files":[...]}. Both fields are optional
// but at least one must name something. Files must be absolute URLs.
func parsePurge(body []byte) (purgeRequest, error) {
	var p purgeRequest
	if !gjson.ValidBytes(body) {
		return p, edgecache.ErrBadRequest
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return p, edgecache.ErrBadRequest
	}
	var err error
	if p.Tags, err = stringArray(root.Get("tags")); err != nil {
		return p, err
	}
	if p.Files, err = stringArray(root.Get("files")); err != nil {
		return p, err
	}
	if len(p.Tags) == 0 && len(p.Files) == 0 {
		return p, edgecache.ErrBadRequest
	}
	for _, f := range p.Files {
		u, err := url.Parse(f)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return p, errRelativeFile
		}
	}
	return p, nil
}

// stringArray returns the non-empty strings of a JSON array. A missing
// field is an empty list; anything other than an array of strings is rejected.
func stringArray(v gjson.Result) ([]string, error) {
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	if !v.IsArray() {
		return nil, edgecache.ErrBadRequest
	}
	var out []string
	var bad bool
	v.ForEach(func(_, item gjson.Result) bool {
		if item.Type != gjson.String {
			bad = true
			return false
		}
		if s := item.String(); s != "" {
			out = append(out, s)
		}
		return true
	})
	if bad {
		return nil, edgecache.ErrBadRequest
	}
	return out, nil
}

type purgeResponse struct {
	ID     string `json:"id"`
	Purged int    `json:"purged"`
	Tags   int    `json:"tags"`
	Files  int    `json:"files"`
}

func (s *server) handlePurge(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAdminBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(http.StatusBadRequest, "request body too large"))
		return
	}
	p, err := parsePurge(body)
	if errors.Is(err, errRelativeFile) {
		writeJSON(w, http.StatusBadRequest, errorResponse(http.StatusBadRequest, errRelativeFile.Error()))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse(http.StatusBadRequest, `body must be {"tags":[...],"files":[...]} naming at least one tag or file`))
		return
	}

	ctx := r.Context()
	c := s.deps.Cache
	purged := c.PurgeTags(ctx, p.Tags)
	for _, file := range p.Files {
		if c.Delete(ctx, edgecache.NewRequest(file), cache.DeleteOptions{}) {
			purged++
		}
	}

	ev := edgecache.PurgeEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Namespace: c.Name(),
		Tags:      p.Tags,
		Files:     p.Files,
		Purged:    purged,
		RequestID: edgecache.RequestIDFromContext(ctx),
		CreatedAt: time.Now().UTC(),
	}
	if s.deps.Purges != nil {
		s.deps.Purges.Record(ev)
	}

	slog.LogAttrs(ctx, slog.LevelInfo, "purge",
		slog.String("id", ev.ID),
		slog.Int("tags", len(p.Tags)),
		slog.Int("files", len(p.Files)),
		slog.Int("purged", purged),
	)
	writeJSON(w, http.StatusOK, purgeResponse{
		ID:     ev.ID,
		Purged: purged,
		Tags:   len(p.Tags),
		Files:  len(p.Files),
	})
}

// --- Purge history ---

type pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

type listResponse struct {
	Data       any        `json:"data"`
	Pagination pagination `json:"pagination"`
}

func parsePagination(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return
}

func (s *server) handleListPurges(w http.ResponseWriter, r *http.Request) {
	if s.deps.PurgeLog == nil {
		writeJSON(w, http.StatusNotFound, errorResponse(http.StatusNotFound, "purge log is disabled"))
		return
	}

	q := r.URL.Query()
	f := edgecache.PurgeFilter{
		Namespace: q.Get("namespace"),
		Tag:       q.Get("tag"),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse(http.StatusBadRequest, "invalid since format, use RFC3339"))
			return
		}
		f.Since = t
	}
	f.Offset, f.Limit = parsePagination(r)

	events, err := s.deps.PurgeLog.ListPurges(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	total, err := s.deps.PurgeLog.CountPurges(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []edgecache.PurgeEvent{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Data:       events,
		Pagination: pagination{Offset: f.Offset, Limit: f.Limit, Total: total},
	})
}

type statsResponse struct {
	Namespace string `json:"namespace"`
	Entries   int    `json:"entries"`
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Namespace: s.deps.Cache.Name(),
		Entries:   s.deps.Cache.Len(),
	})
}
