package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner starts workers together and stops them together: the first worker
// to fail cancels the rest.
type Runner struct {
	workers []Worker
}

// NewRunner creates a Runner with the given workers.
func NewRunner(workers ...Worker) *Runner {
	return &Runner{workers: workers}
}

// Run blocks until every worker has returned. The first error, prefixed with
// the failing worker's name, is returned.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		g.Go(func() error {
			name := w.Name()
			start := time.Now()
			slog.LogAttrs(ctx, slog.LevelInfo, "worker started", slog.String("worker", name))

			err := w.Run(ctx)

			attrs := []slog.Attr{
				slog.String("worker", name),
				slog.Duration("uptime", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				slog.LogAttrs(ctx, slog.LevelError, "worker failed", attrs...)
				return fmt.Errorf("%s: %w", name, err)
			}
			slog.LogAttrs(ctx, slog.LevelInfo, "worker stopped", attrs...)
			return nil
		})
	}
	return g.Wait()
}
