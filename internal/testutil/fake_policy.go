package testutil

import (
	"sync/atomic"

	edgecache "github.com/eugener/edgecache/internal"
)

// FakePolicy is a configurable edgecache.PolicyEvaluator.
// With no EvalFn set, every response is storable for TTL seconds.
type FakePolicy struct {
	TTL    int
	EvalFn func(req *edgecache.Request, res *edgecache.Response) (edgecache.Decision, error)

	calls atomic.Int64
}

// Evaluate delegates to EvalFn or returns a storable decision.
func (f *FakePolicy) Evaluate(req *edgecache.Request, res *edgecache.Response) (edgecache.Decision, error) {
	f.calls.Add(1)
	if f.EvalFn != nil {
		return f.EvalFn(req, res)
	}
	return edgecache.Decision{Storable: f.TTL > 0, TTL: f.TTL}, nil
}

// Calls returns how many times Evaluate ran.
func (f *FakePolicy) Calls() int64 { return f.calls.Load() }
