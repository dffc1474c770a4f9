// Package samples implements the §3 Sample entity: a write-only store
// of opaque client blobs, kept in its own database file so the dominant
// write-heavy /submit traffic never contends with the pinning store's
// WAL.
package samples

import (
	"context"
	"database/sql"
	"time"

	"github.com/openattest/attestation-server/internal/storage"
)

var migrations = []storage.Migration{
	{
		Version: 1,
		Stmts: []string{
			`CREATE TABLE samples (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				blob BLOB NOT NULL,
				insert_time INTEGER NOT NULL
			)`,
		},
	},
}

// MaxBlobSize is the §6 /submit body cap.
const MaxBlobSize = 64 * 1024

// Store wraps the dedicated sample database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(ctx context.Context, path string) (*Store, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx, db, migrations); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Insert writes an opaque blob. The caller is responsible for enforcing
// MaxBlobSize before calling.
func (s *Store) Insert(ctx context.Context, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO samples (blob, insert_time) VALUES (?, ?)`, blob, s.now().Unix())
	return err
}
