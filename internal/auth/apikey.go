// Package auth implements bearer-token authentication for the admin API.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	edgecache "github.com/eugener/edgecache/internal"
)

// StaticKey authenticates requests against a single configured admin key.
// Only the SHA-256 hash of the key is retained.
type StaticKey struct {
	hash string
}

// NewStaticKey returns a StaticKey for raw. An empty key is rejected.
func NewStaticKey(raw string) (*StaticKey, error) {
	if raw == "" {
		return nil, errors.New("admin key must not be empty")
	}
	return &StaticKey{hash: edgecache.HashKey(raw)}, nil
}

// Authenticate checks the Bearer token in the Authorization header.
func (a *StaticKey) Authenticate(_ context.Context, r *http.Request) error {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return edgecache.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(edgecache.HashKey(raw)), []byte(a.hash)) != 1 {
		return edgecache.ErrUnauthorized
	}
	return nil
}
