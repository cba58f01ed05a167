package edgecache

import "errors"

// Sentinel errors for the cache domain.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrOrigin       = errors.New("origin error")
	ErrUnavailable  = errors.New("origin unavailable")
	ErrRateLimited  = errors.New("rate limited")
	ErrInternal     = errors.New("internal error")
)
