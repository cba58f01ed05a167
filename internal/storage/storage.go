// Package storage defines persistence interfaces for the cache service.
package storage

import (
	"context"
	"time"

	edgecache "github.com/eugener/edgecache/internal"
)

// PurgeStore manages the purge audit log.
type PurgeStore interface {
	InsertPurges(ctx context.Context, events []edgecache.PurgeEvent) error
	ListPurges(ctx context.Context, f edgecache.PurgeFilter) ([]edgecache.PurgeEvent, error)
	CountPurges(ctx context.Context, f edgecache.PurgeFilter) (int, error)
	DeletePurgesBefore(ctx context.Context, before time.Time) (int64, error)
}

// Store combines all storage interfaces.
type Store interface {
	PurgeStore
	Ping(ctx context.Context) error
	Close() error
}
