// Package sqlite stores the purge audit log in SQLite via modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// pragmas apply to every connection. auto_vacuum must come first: it only
// takes effect before the first table exists, and lets retention give pages
// back through incremental_vacuum.
var pragmas = []string{
	"auto_vacuum(2)", // INCREMENTAL
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// readConns bounds the read pool. Only the admin API reads the log.
const readConns = 4

// Store is the purge log. Batched inserts from the purge recorder go through a
// single writer connection; admin listings use a small read pool.
type Store struct {
	write *sql.DB
	read  *sql.DB
}

// buildDSN turns a file path or ":memory:" into a modernc DSN. In-memory
// databases use a shared cache so both pools see the same data.
func buildDSN(dsn string) string {
	var b strings.Builder
	if dsn == ":memory:" {
		b.WriteString("file::memory:?mode=memory&cache=shared")
	} else {
		b.WriteString("file:" + dsn + "?")
	}
	for i, p := range pragmas {
		if i > 0 || dsn == ":memory:" {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=" + p)
	}
	return b.String()
}

// New opens the purge log at dsn and applies pending migrations.
func New(dsn string) (*Store, error) {
	full := buildDSN(dsn)

	write, err := sql.Open("sqlite", full)
	if err != nil {
		return nil, fmt.Errorf("open purge log writer: %w", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", full)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open purge log readers: %w", err)
	}
	read.SetMaxOpenConns(readConns)

	if err := migrate(write); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("migrate purge log: %w", err)
	}
	return &Store{write: write, read: read}, nil
}

func migrate(db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	_, err = p.Up(context.Background())
	return err
}

// Ping checks both pools: a dead writer silently drops recorded purges.
func (s *Store) Ping(ctx context.Context) error {
	return errors.Join(s.write.PingContext(ctx), s.read.PingContext(ctx))
}

// Close closes both pools.
func (s *Store) Close() error {
	return errors.Join(s.write.Close(), s.read.Close())
}
