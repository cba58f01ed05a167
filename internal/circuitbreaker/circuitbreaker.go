// Package circuitbreaker guards the origin with a sliding-window error rate
// detector. While the breaker is open, misses fail immediately instead of
// queueing behind timeouts against an origin that is known to be down.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows all requests through.
	StateClosed State = iota
	// StateOpen rejects all requests.
	StateOpen
	// StateHalfOpen allows a single probe request.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	ErrorThreshold float64       // weighted error rate to trip (e.g. 0.5)
	MinSamples     int           // minimum requests in the window before tripping
	Window         time.Duration // sliding window length, whole seconds, at most one minute
	OpenTimeout    time.Duration // time in OPEN before a probe is let through
}

// DefaultConfig returns the defaults used when the config file leaves fields unset.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.5,
		MinSamples:     20,
		Window:         30 * time.Second,
		OpenTimeout:    10 * time.Second,
	}
}

const maxWindow = 60

// bucket holds error and request counts for a 1-second slot.
type bucket struct {
	errors float64 // weighted error sum
	total  int
}

// window is a ring of 1-second buckets.
type window struct {
	buckets  [maxWindow]bucket
	size     int
	head     int
	headTime int64 // unix seconds of head bucket
}

func newWindow(d time.Duration) window {
	size := int(d / time.Second)
	if size <= 0 || size > maxWindow {
		size = maxWindow
	}
	return window{size: size}
}

// advance moves the head forward to nowSec, clearing buckets that fell out.
func (w *window) advance(nowSec int64) {
	if w.headTime == 0 {
		w.headTime = nowSec
		return
	}
	gap := nowSec - w.headTime
	if gap <= 0 {
		return
	}
	n := int(min(gap, int64(w.size)))
	for i := range n {
		w.buckets[(w.head+1+i)%w.size] = bucket{}
	}
	w.head = int((int64(w.head) + gap) % int64(w.size))
	w.headTime = nowSec
}

func (w *window) record(weight float64, now time.Time) {
	w.advance(now.Unix())
	w.buckets[w.head].total++
	w.buckets[w.head].errors += weight
}

// rate returns the weighted error rate and the sample count across the window.
func (w *window) rate(now time.Time) (float64, int) {
	w.advance(now.Unix())
	var errs float64
	var total int
	for i := range w.size {
		errs += w.buckets[i].errors
		total += w.buckets[i].total
	}
	if total == 0 {
		return 0, 0
	}
	return errs / float64(total), total
}

func (w *window) reset() {
	*w = window{size: w.size}
}

// Breaker is a closed/open/half-open state machine. Safe for concurrent use.
type Breaker struct {
	mu          sync.Mutex
	state       State
	window      window
	openedAt    time.Time
	probing     bool // a half-open probe is in flight
	threshold   float64
	minSamples  int
	openTimeout time.Duration
	now         func() time.Time
	onChange    func(from, to State)
}

// NewBreaker creates a closed breaker. onChange, if non-nil, is called with
// the breaker lock held on every state transition and must not call back in.
func NewBreaker(cfg Config, onChange func(from, to State)) *Breaker {
	return &Breaker{
		state:       StateClosed,
		window:      newWindow(cfg.Window),
		threshold:   cfg.ErrorThreshold,
		minSamples:  cfg.MinSamples,
		openTimeout: cfg.OpenTimeout,
		now:         time.Now,
		onChange:    onChange,
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may proceed. In HALF_OPEN exactly one
// caller is admitted until its outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.openTimeout {
			return false
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Record feeds one outcome into the breaker. Weight 0 is a success.
func (b *Breaker) Record(weight float64) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window.record(weight, now)

	switch b.state {
	case StateClosed:
		if weight == 0 {
			return
		}
		rate, samples := b.window.rate(now)
		if samples >= b.minSamples && rate >= b.threshold {
			b.openedAt = now
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.probing = false
		if weight == 0 {
			b.window.reset()
			b.transition(StateClosed)
			return
		}
		b.openedAt = now
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.onChange != nil && from != to {
		b.onChange(from, to)
	}
}
