package worker

import (
	"context"
	"log/slog"
	"time"
)

const retentionInterval = time.Hour

// RetentionStore is the persistence interface consumed by PurgeRetention.
type RetentionStore interface {
	DeletePurgesBefore(ctx context.Context, before time.Time) (int64, error)
}

// PurgeRetention periodically deletes purge audit events older than maxAge.
type PurgeRetention struct {
	store    RetentionStore
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewPurgeRetention creates a retention worker that keeps maxAge of history.
func NewPurgeRetention(store RetentionStore, maxAge time.Duration) *PurgeRetention {
	return &PurgeRetention{store: store, maxAge: maxAge, interval: retentionInterval, now: time.Now}
}

// Name returns the worker identifier.
func (w *PurgeRetention) Name() string { return "purge_retention" }

// Run prunes once at startup and then on every tick until ctx is cancelled.
func (w *PurgeRetention) Run(ctx context.Context) error {
	w.prune(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.prune(ctx)
		}
	}
}

func (w *PurgeRetention) prune(ctx context.Context) {
	cutoff := w.now().Add(-w.maxAge)
	n, err := w.store.DeletePurgesBefore(ctx, cutoff)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "purge log prune failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if n > 0 {
		slog.Info("purge log pruned", "deleted", n, "before", cutoff.UTC().Format(time.RFC3339))
	}
}
