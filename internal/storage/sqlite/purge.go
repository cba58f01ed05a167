package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	edgecache "github.com/eugener/edgecache/internal"
)

// InsertPurges writes a batch of purge events and their tag rows in one transaction.
func (s *Store) InsertPurges(ctx context.Context, events []edgecache.PurgeEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	evStmt, err := tx.PrepareContext(ctx, `INSERT INTO purge_events
		(id, namespace, tags, files, purged, request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer evStmt.Close()

	tagStmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO purge_event_tags (event_id, tag) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer tagStmt.Close()

	for _, e := range events {
		tags, err := marshalList(e.Tags)
		if err != nil {
			return err
		}
		files, err := marshalList(e.Files)
		if err != nil {
			return err
		}
		if _, err := evStmt.ExecContext(ctx,
			e.ID, e.Namespace, tags, files, e.Purged, e.RequestID,
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert purge %s: %w", e.ID, err)
		}
		for _, tag := range e.Tags {
			if _, err := tagStmt.ExecContext(ctx, e.ID, tag); err != nil {
				return fmt.Errorf("insert purge tag %s: %w", e.ID, err)
			}
		}
	}
	return tx.Commit()
}

// ListPurges returns purge events matching the filter, newest first.
func (s *Store) ListPurges(ctx context.Context, f edgecache.PurgeFilter) ([]edgecache.PurgeEvent, error) {
	where, args := purgeWhere(f)
	query := `SELECT id, namespace, tags, files, purged, request_id, created_at
		FROM purge_events` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []edgecache.PurgeEvent
	for rows.Next() {
		var e edgecache.PurgeEvent
		var tags, files, createdAt string
		if err := rows.Scan(&e.ID, &e.Namespace, &tags, &files, &e.Purged, &e.RequestID, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(files), &e.Files); err != nil {
			return nil, fmt.Errorf("decode files for %s: %w", e.ID, err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountPurges returns the number of purge events matching the filter.
func (s *Store) CountPurges(ctx context.Context, f edgecache.PurgeFilter) (int, error) {
	where, args := purgeWhere(f)
	var n int
	err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purge_events`+where, args...,
	).Scan(&n)
	return n, err
}

// DeletePurgesBefore removes purge events created before the cutoff.
// Tag rows go with them through the foreign key cascade.
func (s *Store) DeletePurgesBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.write.ExecContext(ctx,
		`DELETE FROM purge_events WHERE created_at < ?`, before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return n, err
	}
	// Return freed pages to the filesystem.
	if _, err := s.write.ExecContext(ctx, `PRAGMA incremental_vacuum`); err != nil {
		return n, fmt.Errorf("incremental vacuum: %w", err)
	}
	return n, nil
}

func purgeWhere(f edgecache.PurgeFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.Namespace != "" {
		clauses = append(clauses, "namespace = ?")
		args = append(args, f.Namespace)
	}
	if f.Tag != "" {
		clauses = append(clauses, "id IN (SELECT event_id FROM purge_event_tags WHERE tag = ?)")
		args = append(args, f.Tag)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// marshalList encodes a string slice as a JSON array, never "null".
func marshalList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}
