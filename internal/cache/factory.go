package cache

import (
	"errors"
	"fmt"
)

// DefaultNamespace is the name of the factory's shared cache.
const DefaultNamespace = "default"

var errNoNamespace = errors.New("namespace name is required")

// Factory hands out cache namespaces. It owns one process-lifetime default
// namespace, created at construction and passed to request handlers
// explicitly.
type Factory struct {
	opts Options
	def  *Cache
}

// NewFactory creates a factory and its default namespace.
func NewFactory(opts Options) (*Factory, error) {
	def, err := New(DefaultNamespace, opts)
	if err != nil {
		return nil, err
	}
	return &Factory{opts: opts, def: def}, nil
}

// Default returns the shared default namespace. Every call returns the same
// instance.
func (f *Factory) Default() *Cache { return f.def }

// Open returns a new, empty namespace. Namespaces are not registered: two
// calls with the same name return independent caches.
func (f *Factory) Open(name string) (*Cache, error) {
	if name == "" {
		return nil, errNoNamespace
	}
	c, err := New(name, f.opts)
	if err != nil {
		return nil, fmt.Errorf("open namespace: %w", err)
	}
	return c, nil
}
