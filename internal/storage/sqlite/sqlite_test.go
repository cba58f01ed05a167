package sqlite

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	edgecache "github.com/eugener/edgecache/internal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// Use a unique file-based temp DB for each test to avoid shared :memory: races
	path := t.TempDir() + "/test.db"
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestPurgeRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	ev := edgecache.PurgeEvent{
		ID:        "p-1",
		Namespace: "default",
		Tags:      []string{"product-1", "catalog"},
		Files:     []string{"https://example.com/a?x=1,2"},
		Purged:    3,
		RequestID: "req-1",
		CreatedAt: base,
	}
	if err := s.InsertPurges(ctx, []edgecache.PurgeEvent{ev}); err != nil {
		t.Fatal("insert:", err)
	}

	got, err := s.ListPurges(ctx, edgecache.PurgeFilter{})
	if err != nil {
		t.Fatal("list:", err)
	}
	if len(got) != 1 {
		t.Fatalf("list count = %d, want 1", len(got))
	}
	g := got[0]
	if g.ID != ev.ID || g.Namespace != ev.Namespace || g.Purged != 3 || g.RequestID != "req-1" {
		t.Errorf("got %+v", g)
	}
	if !slices.Equal(g.Tags, ev.Tags) {
		t.Errorf("tags = %v, want %v", g.Tags, ev.Tags)
	}
	if !slices.Equal(g.Files, ev.Files) {
		t.Errorf("files = %v, want %v", g.Files, ev.Files)
	}
	if !g.CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", g.CreatedAt, base)
	}
}

func TestInsertPurgesEmpty(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if err := s.InsertPurges(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}

func TestInsertPurgesNilLists(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertPurges(ctx, []edgecache.PurgeEvent{{ID: "p", Namespace: "ns", CreatedAt: base}}); err != nil {
		t.Fatal(err)
	}
	got, err := s.ListPurges(ctx, edgecache.PurgeFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || len(got[0].Tags) != 0 || len(got[0].Files) != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestListPurgesFilter(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var events []edgecache.PurgeEvent
	for i := range 6 {
		ns := "default"
		if i%2 == 1 {
			ns = "images"
		}
		events = append(events, edgecache.PurgeEvent{
			ID:        fmt.Sprintf("p-%d", i),
			Namespace: ns,
			Tags:      []string{fmt.Sprintf("t%d", i%3)},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	if err := s.InsertPurges(ctx, events); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter edgecache.PurgeFilter
		want   []string
	}{
		{"all newest first", edgecache.PurgeFilter{}, []string{"p-5", "p-4", "p-3", "p-2", "p-1", "p-0"}},
		{"namespace", edgecache.PurgeFilter{Namespace: "images"}, []string{"p-5", "p-3", "p-1"}},
		{"tag", edgecache.PurgeFilter{Tag: "t0"}, []string{"p-3", "p-0"}},
		{"since", edgecache.PurgeFilter{Since: base.Add(4 * time.Minute)}, []string{"p-5", "p-4"}},
		{"limit offset", edgecache.PurgeFilter{Limit: 2, Offset: 1}, []string{"p-4", "p-3"}},
		{"combined", edgecache.PurgeFilter{Namespace: "default", Tag: "t1"}, []string{"p-4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListPurges(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			if !slices.Equal(ids, tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}

	n, err := s.CountPurges(ctx, edgecache.PurgeFilter{Namespace: "default"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestInsertPurgesDuplicateID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	ev := edgecache.PurgeEvent{ID: "dup", Namespace: "default", CreatedAt: base}
	if err := s.InsertPurges(ctx, []edgecache.PurgeEvent{ev}); err != nil {
		t.Fatal(err)
	}
	// The batch is rejected as a whole.
	err := s.InsertPurges(ctx, []edgecache.PurgeEvent{{ID: "new", Namespace: "default", CreatedAt: base}, ev})
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	n, _ := s.CountPurges(ctx, edgecache.PurgeFilter{})
	if n != 1 {
		t.Errorf("count = %d, want 1 after rolled back batch", n)
	}
}

func TestDeletePurgesBefore(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	events := []edgecache.PurgeEvent{
		{ID: "old", Namespace: "default", Tags: []string{"a"}, CreatedAt: base.Add(-48 * time.Hour)},
		{ID: "new", Namespace: "default", Tags: []string{"a"}, CreatedAt: base},
	}
	if err := s.InsertPurges(ctx, events); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeletePurgesBefore(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	got, err := s.ListPurges(ctx, edgecache.PurgeFilter{Tag: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("remaining = %+v", got)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryDSN(t *testing.T) {
	t.Parallel()
	s, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestBuildDSN(t *testing.T) {
	t.Parallel()
	const tail = "_pragma=auto_vacuum(2)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"

	tests := []struct {
		dsn  string
		want string
	}{
		{"purges.db", "file:purges.db?" + tail},
		{"/var/lib/edgecache/purges.db", "file:/var/lib/edgecache/purges.db?" + tail},
		{":memory:", "file::memory:?mode=memory&cache=shared&" + tail},
	}
	for _, tt := range tests {
		if got := buildDSN(tt.dsn); got != tt.want {
			t.Errorf("buildDSN(%q) =\n  %s\nwant\n  %s", tt.dsn, got, tt.want)
		}
	}
}

func TestIncrementalAutoVacuum(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var mode int
	if err := s.read.QueryRowContext(context.Background(), `PRAGMA auto_vacuum`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != 2 {
		t.Errorf("auto_vacuum = %d, want 2 (incremental)", mode)
	}
}

func TestDeletePurgesBeforeNothingToDelete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	n, err := s.DeletePurgesBefore(context.Background(), base)
	if err != nil || n != 0 {
		t.Errorf("DeletePurgesBefore on empty log = %d, %v; want 0, nil", n, err)
	}
}

func TestPingAfterClose(t *testing.T) {
	t.Parallel()
	s, err := New(t.TempDir() + "/closed.db")
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping on a closed store should fail")
	}
}
