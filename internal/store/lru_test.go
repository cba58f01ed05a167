package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eugener/edgecache/internal/testutil"
)

func newTestLRU(t *testing.T, max int, clock *testutil.Clock) *LRU[string] {
	t.Helper()
	s, err := NewLRU[string](Options{MaxEntries: max, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLRU_GetSetDelete(t *testing.T) {
	t.Parallel()
	s := newTestLRU(t, 10, testutil.NewClock())

	if _, ok := s.Get("missing"); ok {
		t.Error("should not find missing key")
	}

	s.Set("k1", "v1", time.Minute)
	val, ok := s.Get("k1")
	if !ok {
		t.Fatal("should find k1")
	}
	if val != "v1" {
		t.Errorf("value = %q, want %q", val, "v1")
	}

	s.Set("k1", "v2", time.Minute)
	if val, _ := s.Get("k1"); val != "v2" {
		t.Errorf("value after replace = %q, want %q", val, "v2")
	}

	if !s.Delete("k1") {
		t.Error("Delete should report existing entry")
	}
	if _, ok := s.Get("k1"); ok {
		t.Error("should not find deleted key")
	}
	if s.Delete("k1") {
		t.Error("second Delete should report false")
	}
}

func TestLRU_TTLExpiry(t *testing.T) {
	t.Parallel()
	clock := testutil.NewClock()
	s := newTestLRU(t, 10, clock)

	s.Set("expiring", "data", 60*time.Second)
	clock.Advance(59 * time.Second)
	if _, ok := s.Peek("expiring"); !ok {
		t.Fatal("entry should still be live")
	}

	clock.Advance(time.Second)
	if _, ok := s.Get("expiring"); ok {
		t.Error("entry should be expired")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0 after lazy expiry", s.Len())
	}
}

func TestLRU_NoExpiryForZeroTTL(t *testing.T) {
	t.Parallel()
	clock := testutil.NewClock()
	s := newTestLRU(t, 10, clock)

	s.Set("forever", "x", 0)
	clock.Advance(365 * 24 * time.Hour)
	if _, ok := s.Get("forever"); !ok {
		t.Error("entry without ttl should not expire")
	}
}

func TestLRU_MaxTTL(t *testing.T) {
	t.Parallel()
	clock := testutil.NewClock()
	s, err := NewLRU[string](Options{MaxEntries: 10, MaxTTL: time.Minute, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}

	s.Set("long", "x", time.Hour)
	clock.Advance(time.Minute)
	if _, ok := s.Get("long"); ok {
		t.Error("ttl should be capped at MaxTTL")
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()
	var evicted []string
	s, err := NewLRU[string](Options{
		MaxEntries: 3,
		OnEvict:    func(key string) { evicted = append(evicted, key) },
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Set("a", "1", time.Minute)
	s.Set("b", "2", time.Minute)
	s.Set("c", "3", time.Minute)

	// Touch "a" so "b" becomes the least recently used.
	s.Get("a")
	s.Set("d", "4", time.Minute)

	if _, ok := s.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := s.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
}

func TestLRU_PeekDoesNotTouchRecency(t *testing.T) {
	t.Parallel()
	s := newTestLRU(t, 2, testutil.NewClock())

	s.Set("a", "1", time.Minute)
	s.Set("b", "2", time.Minute)
	s.Peek("a")
	s.Set("c", "3", time.Minute)

	if _, ok := s.Peek("a"); ok {
		t.Error("a should have been evicted despite Peek")
	}
	if _, ok := s.Peek("b"); !ok {
		t.Error("b should still be cached")
	}
}

func TestLRU_DeleteExpiredReportsFalse(t *testing.T) {
	t.Parallel()
	clock := testutil.NewClock()
	s := newTestLRU(t, 10, clock)

	s.Set("k", "v", time.Second)
	clock.Advance(2 * time.Second)
	if s.Delete("k") {
		t.Error("Delete of expired entry should report false")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestLRU_Update(t *testing.T) {
	t.Parallel()
	clock := testutil.NewClock()
	s, err := NewLRU[[]string](Options{MaxEntries: 10, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}

	appendFn := func(v string) func([]string, bool) []string {
		return func(old []string, _ bool) []string {
			return append(append([]string(nil), old...), v)
		}
	}
	s.Update("tag", time.Minute, appendFn("a"))
	s.Update("tag", time.Minute, appendFn("b"))

	got, ok := s.Get("tag")
	if !ok || len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Get = %v, %v; want [a b]", got, ok)
	}

	clock.Advance(time.Minute)
	s.Update("tag", time.Minute, func(old []string, found bool) []string {
		if found {
			t.Error("expired value should be passed as not found")
		}
		return []string{"c"}
	})
	if got, _ := s.Get("tag"); len(got) != 1 || got[0] != "c" {
		t.Errorf("Get after expiry = %v, want [c]", got)
	}
}

func TestLRU_Sweep(t *testing.T) {
	t.Parallel()
	clock := testutil.NewClock()
	s, err := NewLRU[string](Options{MaxEntries: 100, Shards: 4, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}

	for i := range 10 {
		s.Set(fmt.Sprintf("short-%d", i), "x", time.Second)
		s.Set(fmt.Sprintf("long-%d", i), "x", time.Hour)
	}
	clock.Advance(time.Minute)

	if n := s.Sweep(); n != 10 {
		t.Errorf("Sweep removed %d, want 10", n)
	}
	if s.Len() != 10 {
		t.Errorf("Len = %d, want 10", s.Len())
	}
}

func TestLRU_Purge(t *testing.T) {
	t.Parallel()
	s, err := NewLRU[string](Options{MaxEntries: 100, Shards: 8})
	if err != nil {
		t.Fatal(err)
	}

	s.Set("a", "1", time.Minute)
	s.Set("b", "2", time.Minute)
	s.Purge()

	if _, ok := s.Get("a"); ok {
		t.Error("purge should remove all keys")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestLRU_ShardedCapacity(t *testing.T) {
	t.Parallel()
	s, err := NewLRU[int](Options{MaxEntries: 64, Shards: 8})
	if err != nil {
		t.Fatal(err)
	}
	for i := range 1000 {
		s.Set(fmt.Sprintf("k%d", i), i, time.Minute)
	}
	if n := s.Len(); n > 64 {
		t.Errorf("Len = %d, want <= 64", n)
	}
}

func TestLRU_Concurrent(t *testing.T) {
	t.Parallel()
	s, err := NewLRU[int](Options{MaxEntries: 128, Shards: 16})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				key := fmt.Sprintf("k%d", (g*500+i)%300)
				s.Set(key, i, time.Minute)
				s.Get(key)
				s.Update(key+"-tag", time.Minute, func(old int, _ bool) int { return old + 1 })
				if i%7 == 0 {
					s.Delete(key)
				}
			}
		}()
	}
	wg.Wait()

	if n := s.Len(); n > 128 {
		t.Errorf("Len = %d, exceeds capacity", n)
	}
}

func TestNew_Backends(t *testing.T) {
	t.Parallel()
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"", false},
		{BackendLRU, false},
		{BackendTinyLFU, false},
		{"arc", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			t.Parallel()
			s, err := New[string](tt.backend, Options{MaxEntries: 10})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Fatal("store is nil")
			}
		})
	}
}
