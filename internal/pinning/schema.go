package pinning

import (
	"context"
	"database/sql"

	"github.com/openattest/attestation-server/internal/storage"
)

// migrations is the forward-only schema history for the main database,
// gated on PRAGMA user_version per spec.md §6. Generalizes the flat
// CREATE TABLE IF NOT EXISTS list in the teacher's sqlite.Init into a
// version-gated sequence, since this schema is expected to evolve.
var migrations = []storage.Migration{
	{
		Version: 1,
		Stmts: []string{
			`CREATE TABLE accounts (
				user_id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT NOT NULL UNIQUE COLLATE NOCASE,
				password_salt BLOB NOT NULL,
				password_hash BLOB NOT NULL,
				subscribe_key BLOB NOT NULL,
				verify_interval INTEGER NOT NULL DEFAULT 14400,
				alert_delay INTEGER NOT NULL DEFAULT 172800,
				email TEXT
			)`,
			`CREATE TABLE sessions (
				session_id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL REFERENCES accounts(user_id) ON DELETE CASCADE,
				cookie_token BLOB NOT NULL,
				request_token BLOB NOT NULL,
				expiry_time INTEGER NOT NULL
			)`,
			`CREATE INDEX sessions_user_id ON sessions(user_id)`,
			`CREATE TABLE devices (
				fingerprint BLOB PRIMARY KEY,
				user_id INTEGER NOT NULL REFERENCES accounts(user_id) ON DELETE CASCADE,
				pinned_certificate_0 BLOB NOT NULL,
				pinned_certificate_1 BLOB NOT NULL,
				pinned_certificate_2 BLOB,
				pinned_certificate_3 BLOB,
				pinned_verified_boot_key BLOB NOT NULL,
				verified_boot_hash BLOB,
				pinned_os_version INTEGER NOT NULL,
				pinned_os_patch_level INTEGER NOT NULL,
				pinned_vendor_patch_level INTEGER,
				pinned_boot_patch_level INTEGER,
				pinned_app_version INTEGER NOT NULL,
				pinned_security_level INTEGER NOT NULL,
				user_profile_secure INTEGER NOT NULL,
				enrolled_biometrics INTEGER NOT NULL,
				accessibility INTEGER NOT NULL,
				adb_enabled INTEGER NOT NULL,
				add_users_when_locked INTEGER NOT NULL,
				deny_new_usb INTEGER NOT NULL,
				oem_unlock_allowed INTEGER NOT NULL,
				system_user INTEGER NOT NULL,
				device_admin INTEGER NOT NULL,
				verified_time_first INTEGER NOT NULL,
				verified_time_last INTEGER NOT NULL,
				expired_time_last INTEGER,
				failure_time_last INTEGER,
				deletion_time INTEGER
			)`,
			`CREATE INDEX devices_user_id ON devices(user_id)`,
			`CREATE TABLE attestations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				fingerprint BLOB NOT NULL REFERENCES devices(fingerprint) ON DELETE CASCADE,
				time INTEGER NOT NULL,
				strong INTEGER NOT NULL,
				tee_enforced TEXT NOT NULL,
				os_enforced TEXT NOT NULL
			)`,
			`CREATE INDEX attestations_fingerprint ON attestations(fingerprint, id DESC)`,
		},
	},
}

// Migrate brings db up to the latest schema version.
func Migrate(ctx context.Context, db *sql.DB) error {
	return storage.Migrate(ctx, db, migrations)
}
