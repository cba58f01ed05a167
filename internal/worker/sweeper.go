package worker

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// SweepTarget is a cache whose expired entries can be reclaimed eagerly.
type SweepTarget interface {
	Name() string
	Sweep() int
	Len() int
}

// Sweeper periodically drops expired entries so memory is returned without
// waiting for a lookup to touch them. Expired entries are never served either way.
type Sweeper struct {
	targets  []SweepTarget
	interval time.Duration
	report   func(namespace string, entries int)
}

// NewSweeper creates a Sweeper over targets. report, if non-nil, receives the
// live entry count of every target after each pass.
func NewSweeper(interval time.Duration, report func(string, int), targets ...SweepTarget) *Sweeper {
	return &Sweeper{targets: targets, interval: interval, report: report}
}

// Name returns the worker identifier, listing the swept targets.
func (s *Sweeper) Name() string {
	names := make([]string, len(s.targets))
	for i, t := range s.targets {
		names[i] = t.Name()
	}
	return "sweeper(" + strings.Join(names, ",") + ")"
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	for _, t := range s.targets {
		removed := t.Sweep()
		entries := t.Len()
		if s.report != nil {
			s.report(t.Name(), entries)
		}
		if removed > 0 {
			slog.LogAttrs(ctx, slog.LevelDebug, "cache swept",
				slog.String("namespace", t.Name()),
				slog.Int("removed", removed),
				slog.Int("entries", entries),
			)
		}
	}
}
