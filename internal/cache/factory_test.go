package cache

import (
	"context"
	"testing"

	edgecache "github.com/eugener/edgecache/internal"
	"github.com/eugener/edgecache/internal/testutil"
)

func TestFactoryDefaultIsShared(t *testing.T) {
	t.Parallel()
	f, err := NewFactory(Options{Policy: &testutil.FakePolicy{TTL: 60}})
	if err != nil {
		t.Fatal(err)
	}

	if f.Default() != f.Default() {
		t.Error("Default should return the same instance")
	}
	if f.Default().Name() != DefaultNamespace {
		t.Errorf("name = %q, want %q", f.Default().Name(), DefaultNamespace)
	}
}

func TestFactoryOpenIsIndependent(t *testing.T) {
	t.Parallel()
	f, err := NewFactory(Options{Policy: &testutil.FakePolicy{TTL: 60}})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	req := edgecache.NewRequest("/a")
	res := &edgecache.Response{Status: 200, Body: []byte("x")}

	first, err := f.Open("images")
	if err != nil {
		t.Fatal(err)
	}
	first.Put(ctx, req, res)

	second, err := f.Open("images")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("Open should return a new namespace on every call")
	}
	if _, ok := second.Match(ctx, req); ok {
		t.Error("reopened namespace should be empty")
	}
	if _, ok := f.Default().Match(ctx, req); ok {
		t.Error("default namespace should be isolated from named ones")
	}
}

func TestFactoryOpenEmptyName(t *testing.T) {
	t.Parallel()
	f, err := NewFactory(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Open(""); err == nil {
		t.Error("expected error for empty namespace name")
	}
}
