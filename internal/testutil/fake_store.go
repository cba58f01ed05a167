package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	edgecache "github.com/eugener/edgecache/internal"
)

// FakePurgeStore is an in-memory purge log. It satisfies storage.PurgeStore
// and can stand in for the asynchronous recorder through Record.
type FakePurgeStore struct {
	mu     sync.RWMutex
	events []edgecache.PurgeEvent
	Err    error // returned by every store method when set
}

// NewFakePurgeStore returns an empty FakePurgeStore.
func NewFakePurgeStore() *FakePurgeStore {
	return &FakePurgeStore{}
}

// Record appends e synchronously.
func (s *FakePurgeStore) Record(e edgecache.PurgeEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

// Events returns a copy of everything recorded, oldest first.
func (s *FakePurgeStore) Events() []edgecache.PurgeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

// InsertPurges appends events.
func (s *FakePurgeStore) InsertPurges(_ context.Context, events []edgecache.PurgeEvent) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	s.events = append(s.events, events...)
	s.mu.Unlock()
	return nil
}

// ListPurges returns matching events newest first.
func (s *FakePurgeStore) ListPurges(_ context.Context, f edgecache.PurgeFilter) ([]edgecache.PurgeEvent, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	matched := s.match(f)
	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// CountPurges returns the number of matching events.
func (s *FakePurgeStore) CountPurges(_ context.Context, f edgecache.PurgeFilter) (int, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return len(s.match(f)), nil
}

// DeletePurgesBefore drops events created before the cutoff.
func (s *FakePurgeStore) DeletePurgesBefore(_ context.Context, before time.Time) (int64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.events)
	s.events = slices.DeleteFunc(s.events, func(e edgecache.PurgeEvent) bool {
		return e.CreatedAt.Before(before)
	})
	return int64(n - len(s.events)), nil
}

func (s *FakePurgeStore) match(f edgecache.PurgeFilter) []edgecache.PurgeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []edgecache.PurgeEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if f.Namespace != "" && e.Namespace != f.Namespace {
			continue
		}
		if f.Tag != "" && !slices.Contains(e.Tags, f.Tag) {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Ping always succeeds.
func (s *FakePurgeStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *FakePurgeStore) Close() error { return nil }
