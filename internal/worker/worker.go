// Package worker runs the cache service's background tasks: purge log
// recording and retention, expired-entry sweeps, and DNS refresh.
package worker

import "context"

// Worker is a long-running background task.
type Worker interface {
	// Name identifies the worker in logs and errors.
	Name() string
	// Run blocks until ctx is cancelled or an unrecoverable error occurs.
	// Returning nil on cancellation is a clean stop.
	Run(ctx context.Context) error
}
