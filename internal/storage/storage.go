// Package storage provides the generic SQL helpers the pinning and
// samples packages build on: pragma setup, a PRAGMA user_version
// -gated forward-only migration runner, and a BEGIN IMMEDIATE
// transaction helper. This generalizes the teacher's sqlite.go, which
// offered the same execer/querier split over *sql.DB/*sql.Tx for FDO's
// voucher and session state.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Open opens a SQLite database at path with the pragmas the design's
// concurrency model requires (§5): write-ahead logging, foreign keys
// on, and a 10s busy timeout so contended writers retry instead of
// failing immediately.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=10000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q: %w", p, err)
		}
	}
	return db, nil
}

// Migration is one forward-only schema step, gated on PRAGMA
// user_version per spec.md §6.
type Migration struct {
	Version int
	Stmts   []string
}

// Migrate applies every migration whose Version exceeds the database's
// current user_version, in ascending order, each inside its own
// transaction.
func Migrate(ctx context.Context, db *sql.DB, migrations []Migration) error {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := WithImmediate(ctx, db, func(conn *sql.Conn) error {
			for _, stmt := range m.Stmts {
				if _, err := conn.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d: %w", m.Version, err)
				}
			}
			_, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", m.Version))
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

// WithImmediate runs fn over a single connection wrapped in a BEGIN
// IMMEDIATE ... COMMIT block, per §5's "all multi-statement mutations
// run inside BEGIN IMMEDIATE ... COMMIT pairs to avoid deadlock
// upgrades". database/sql's own Tx always issues a plain BEGIN, so the
// immediate lock is requested by hand on a dedicated connection instead.
func WithImmediate(ctx context.Context, db *sql.DB, fn func(conn *sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin immediate: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
