package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	edgecache "github.com/eugener/edgecache/internal"
)

const (
	purgeChanSize   = 1000
	purgeBatchSize  = 100
	purgeFlushEvery = 5 * time.Second
	purgeDrainTime  = 30 * time.Second
)

// PurgeStore is the persistence interface consumed by PurgeRecorder.
type PurgeStore interface {
	InsertPurges(ctx context.Context, events []edgecache.PurgeEvent) error
}

// PurgeRecorder buffers purge audit events and batch-flushes them to the store.
// Events are dropped if the channel is full (back-pressure on slow DB).
type PurgeRecorder struct {
	ch    chan edgecache.PurgeEvent
	store PurgeStore
	gauge func(int)
}

// NewPurgeRecorder creates a PurgeRecorder backed by store. gauge, if non-nil,
// receives the queue length after every enqueue and flush.
func NewPurgeRecorder(store PurgeStore, gauge func(int)) *PurgeRecorder {
	return &PurgeRecorder{
		ch:    make(chan edgecache.PurgeEvent, purgeChanSize),
		store: store,
		gauge: gauge,
	}
}

// Name returns the worker identifier.
func (p *PurgeRecorder) Name() string { return "purge_recorder" }

// Record enqueues a purge event. It never blocks; drops on full channel.
func (p *PurgeRecorder) Record(e edgecache.PurgeEvent) {
	select {
	case p.ch <- e:
		p.report()
	default:
		slog.Warn("purge event dropped, channel full",
			slog.String("namespace", e.Namespace),
			slog.Int("purged", e.Purged),
		)
	}
}

// Run processes events until ctx is cancelled, then drains remaining events.
func (p *PurgeRecorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(purgeFlushEvery)
	defer ticker.Stop()

	buf := make([]edgecache.PurgeEvent, 0, purgeBatchSize)

	for {
		select {
		case e := <-p.ch:
			buf = append(buf, e)
			if len(buf) >= purgeBatchSize {
				p.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ticker.C:
			if len(buf) > 0 {
				p.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ctx.Done():
			// Drain remaining events with a timeout.
			p.drain(buf)
			return nil
		}
	}
}

func (p *PurgeRecorder) drain(buf []edgecache.PurgeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), purgeDrainTime)
	defer cancel()

	for {
		select {
		case e := <-p.ch:
			buf = append(buf, e)
			if len(buf) >= purgeBatchSize {
				p.flush(ctx, buf)
				buf = buf[:0]
			}
		default:
			if len(buf) > 0 {
				p.flush(ctx, buf)
			}
			return
		}
	}
}

func (p *PurgeRecorder) flush(ctx context.Context, buf []edgecache.PurgeEvent) {
	// Copy to avoid aliasing the caller's slice.
	batch := make([]edgecache.PurgeEvent, len(buf))
	copy(batch, buf)

	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.Must(uuid.NewV7()).String()
		}
	}

	if err := p.store.InsertPurges(ctx, batch); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "purge flush failed",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()),
		)
	}
	p.report()
}

func (p *PurgeRecorder) report() {
	if p.gauge != nil {
		p.gauge(len(p.ch))
	}
}
