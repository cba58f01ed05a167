package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	edgecache "github.com/eugener/edgecache/internal"
)

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorResponse(status int, msg string) apiError {
	var e apiError
	e.Error.Message = msg
	switch status {
	case http.StatusBadRequest:
		e.Error.Type = "invalid_request"
	case http.StatusUnauthorized:
		e.Error.Type = "unauthorized"
	case http.StatusNotFound:
		e.Error.Type = "not_found"
	case http.StatusTooManyRequests:
		e.Error.Type = "rate_limit_exceeded"
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		e.Error.Type = "origin_error"
	default:
		e.Error.Type = "internal_error"
	}
	return e
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, edgecache.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, edgecache.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, edgecache.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, edgecache.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, edgecache.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, edgecache.ErrOrigin):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and writes a sanitized JSON error.
// Internal details are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := http.StatusText(status)
	if status >= http.StatusInternalServerError {
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
			slog.String("request_id", edgecache.RequestIDFromContext(r.Context())),
		)
	}
	writeJSON(w, status, errorResponse(status, msg))
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
