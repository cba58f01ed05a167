package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"os"
)

// Weight returns how much an origin outcome counts against the origin.
//
//   - timeout -> 1.5
//   - transport error -> 1.0
//   - 502, 503, 504 -> 1.0
//   - 429 -> 0.5
//   - anything else, including 500 and 4xx -> 0
//
// A plain 500 is usually an application answer the cache passes along, not a
// sign the origin is unreachable.
func Weight(status int, err error) float64 {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			return 1.5
		}
		if errors.Is(err, context.Canceled) {
			return 0
		}
		return 1.0
	}
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return 1.0
	case http.StatusTooManyRequests:
		return 0.5
	default:
		return 0
	}
}
