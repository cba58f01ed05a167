package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	edgecache "github.com/eugener/edgecache/internal"
)

// failingWorker returns err as soon as it starts.
type failingWorker struct{ err error }

func (f *failingWorker) Name() string              { return "failing" }
func (f *failingWorker) Run(context.Context) error { return f.err }

func runAsync(ctx context.Context, r *Runner) <-chan error {
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return done
}

func TestRunner_StopsCacheWorkersOnCancel(t *testing.T) {
	t.Parallel()
	store := &fakePurgeStore{}
	rec := NewPurgeRecorder(store, nil)
	target := &fakeTarget{name: "default"}
	sweeper := NewSweeper(10*time.Millisecond, nil, target)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, NewRunner(rec, sweeper))

	rec.Record(edgecache.PurgeEvent{ID: "p1", Namespace: "default", Tags: []string{"t"}})
	waitFor(t, 2*time.Second, func() bool { return target.sweeps.Load() >= 1 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
	// The recorder drains before Run returns.
	if got := store.all(); len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("persisted = %+v, want the recorded purge", got)
	}
}

func TestRunner_FailureNamesWorkerAndStopsOthers(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk full")
	target := &fakeTarget{name: "default"}
	r := NewRunner(NewSweeper(time.Hour, nil, target), &failingWorker{err: boom})

	select {
	case err := <-runAsync(t.Context(), r):
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want %v", err, boom)
		}
		if err == nil || !strings.HasPrefix(err.Error(), "failing: ") {
			t.Errorf("err = %v, want it prefixed with the worker name", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper kept the runner alive after a sibling failed")
	}
}

func TestRunner_NoWorkers(t *testing.T) {
	t.Parallel()
	if err := NewRunner().Run(t.Context()); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}
