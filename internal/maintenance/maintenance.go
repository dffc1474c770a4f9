// Package maintenance implements design component F: the daily vacuum,
// expired-session sweep, and soft-deletion garbage collection loop.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openattest/attestation-server/internal/pinning"
)

// Interval is the §4.5 cadence.
const Interval = 24 * time.Hour

// RetentionHorizon is the §4.5 suggested default: devices soft-deleted
// more than this long ago have their history garbage-collected.
const RetentionHorizon = 90 * 24 * time.Hour

// Loop runs the §4.5 maintenance cycle.
type Loop struct {
	store     *pinning.Store
	backupDir string
	now       func() time.Time
}

func New(store *pinning.Store, backupDir string) *Loop {
	return &Loop{store: store, backupDir: backupDir, now: time.Now}
}

// Run blocks, waking every Interval, until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	if n, err := l.store.SweepExpiredSessions(ctx, "maintenance-tick"); err != nil {
		slog.Error("maintenance: session sweep failed", "error", err)
	} else {
		slog.Info("maintenance: swept expired sessions", "count", n)
	}

	if err := l.analyzeAndVacuum(ctx); err != nil {
		slog.Error("maintenance: analyze/vacuum failed", "error", err)
	}

	if err := l.backup(ctx); err != nil {
		slog.Error("maintenance: backup failed", "error", err)
	}

	if n, err := l.store.GCDeletedDevices(ctx, "maintenance-tick", RetentionHorizon); err != nil {
		slog.Error("maintenance: gc failed", "error", err)
	} else {
		slog.Info("maintenance: gc'd soft-deleted devices", "count", n)
	}
}

func (l *Loop) analyzeAndVacuum(ctx context.Context) error {
	db := l.store.DB()
	if _, err := db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// backup takes an atomic, consistent snapshot with VACUUM INTO rather
// than copying the database file directly, which would require holding
// a read lock for the duration of the copy.
func (l *Loop) backup(ctx context.Context) error {
	if l.backupDir == "" {
		return nil
	}
	if err := os.MkdirAll(l.backupDir, 0o700); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}
	dest := filepath.Join(l.backupDir, fmt.Sprintf("attestation-%s.db", l.now().UTC().Format("20060102T150405Z")))
	if _, err := l.store.DB().ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}
