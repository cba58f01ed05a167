package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRetentionStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (s *fakeRetentionStore) DeletePurgesBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, before)
	return 2, s.err
}

func (s *fakeRetentionStore) calls() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.cutoffs...)
}

func TestPurgeRetention_PrunesOnStartAndTick(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	store := &fakeRetentionStore{}
	w := NewPurgeRetention(store, 24*time.Hour)
	w.interval = 20 * time.Millisecond
	w.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return len(store.calls()) >= 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	want := now.Add(-24 * time.Hour)
	if got := store.calls()[0]; !got.Equal(want) {
		t.Errorf("cutoff = %v, want %v", got, want)
	}
}

func TestPurgeRetention_ErrorKeepsRunning(t *testing.T) {
	t.Parallel()
	store := &fakeRetentionStore{err: errors.New("locked")}
	w := NewPurgeRetention(store, time.Hour)
	w.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return len(store.calls()) >= 3 })
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
}

type fakeTarget struct {
	name   string
	sweeps atomic.Int32
	live   int
}

func (f *fakeTarget) Name() string { return f.name }
func (f *fakeTarget) Sweep() int   { f.sweeps.Add(1); return 1 }
func (f *fakeTarget) Len() int     { return f.live }

func TestSweeper(t *testing.T) {
	t.Parallel()
	a := &fakeTarget{name: "default", live: 3}
	b := &fakeTarget{name: "images", live: 7}

	var mu sync.Mutex
	reported := map[string]int{}
	s := NewSweeper(10*time.Millisecond, func(ns string, n int) {
		mu.Lock()
		reported[ns] = n
		mu.Unlock()
	}, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return a.sweeps.Load() >= 2 && b.sweeps.Load() >= 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if reported["default"] != 3 || reported["images"] != 7 {
		t.Errorf("reported = %v", reported)
	}
}

type fakeResolver struct {
	refreshes atomic.Int32
	cleared   atomic.Bool
}

func (f *fakeResolver) Refresh(clearUnused bool) {
	f.refreshes.Add(1)
	f.cleared.Store(clearUnused)
}

func TestDNSRefresher(t *testing.T) {
	t.Parallel()
	r := &fakeResolver{}
	d := NewDNSRefresher(r, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return r.refreshes.Load() >= 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if !r.cleared.Load() {
		t.Error("Refresh should clear unused hosts")
	}
}

func TestWorkerNames(t *testing.T) {
	t.Parallel()
	tests := []struct {
		w    Worker
		want string
	}{
		{&PurgeRecorder{}, "purge_recorder"},
		{&PurgeRetention{}, "purge_retention"},
		{NewSweeper(time.Minute, nil, &fakeTarget{name: "default"}, &fakeTarget{name: "purge_limits"}), "sweeper(default,purge_limits)"},
		{&DNSRefresher{}, "dns_refresher"},
	}
	for _, tt := range tests {
		if got := tt.w.Name(); got != tt.want {
			t.Errorf("%T.Name() = %q, want %q", tt.w, got, tt.want)
		}
	}
}
