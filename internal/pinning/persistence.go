package pinning

import (
	"context"
	"database/sql"
	"time"
)

func unixTime(sec int64) time.Time { return time.Unix(sec, 0) }

func nullableU64(p *uint64) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func insertDevice(ctx context.Context, conn *sql.Conn, d *Device) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO devices (
			fingerprint, user_id,
			pinned_certificate_0, pinned_certificate_1, pinned_certificate_2, pinned_certificate_3,
			pinned_verified_boot_key, verified_boot_hash,
			pinned_os_version, pinned_os_patch_level, pinned_vendor_patch_level, pinned_boot_patch_level, pinned_app_version,
			pinned_security_level,
			user_profile_secure, enrolled_biometrics, accessibility, adb_enabled, add_users_when_locked,
			deny_new_usb, oem_unlock_allowed, system_user, device_admin,
			verified_time_first, verified_time_last
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Fingerprint[:], d.UserID,
		d.PinnedCertificate0, d.PinnedCertificate1, d.PinnedCertificate2, d.PinnedCertificate3,
		d.PinnedVerifiedBootKey[:], nullableBytes(d.VerifiedBootHash),
		int64(d.PinnedOSVersion), int64(d.PinnedOSPatchLevel), nullableU64(d.PinnedVendorPatchLevel), nullableU64(d.PinnedBootPatchLevel), int64(d.PinnedAppVersion),
		int(d.PinnedSecurityLevel),
		d.UserProfileSecure, d.EnrolledBiometrics, d.Accessibility, d.ADBEnabled, d.AddUsersWhenLocked,
		d.DenyNewUSB, d.OEMUnlockAllowed, d.SystemUser, d.DeviceAdmin,
		d.VerifiedTimeFirst.Unix(), d.VerifiedTimeLast.Unix(),
	)
	return err
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// updateDeviceOnVerify persists the advanced monotonic counters and
// refreshed flags for a successful re-verification, per §4.3's "on
// success" clause: update flags, advance counters, set
// verifiedTimeLast, clear failureTimeLast.
func updateDeviceOnVerify(ctx context.Context, conn *sql.Conn, d *Device, now time.Time) error {
	_, err := conn.ExecContext(ctx, `
		UPDATE devices SET
			pinned_os_version = ?, pinned_os_patch_level = ?, pinned_vendor_patch_level = ?, pinned_boot_patch_level = ?, pinned_app_version = ?,
			user_profile_secure = ?, enrolled_biometrics = ?, accessibility = ?, adb_enabled = ?, add_users_when_locked = ?,
			deny_new_usb = ?, oem_unlock_allowed = ?, system_user = ?, device_admin = ?,
			verified_boot_hash = ?,
			verified_time_last = ?, failure_time_last = NULL
		WHERE fingerprint = ?`,
		int64(d.PinnedOSVersion), int64(d.PinnedOSPatchLevel), nullableU64(d.PinnedVendorPatchLevel), nullableU64(d.PinnedBootPatchLevel), int64(d.PinnedAppVersion),
		d.UserProfileSecure, d.EnrolledBiometrics, d.Accessibility, d.ADBEnabled, d.AddUsersWhenLocked,
		d.DenyNewUSB, d.OEMUnlockAllowed, d.SystemUser, d.DeviceAdmin,
		nullableBytes(d.VerifiedBootHash),
		now.Unix(), d.Fingerprint[:],
	)
	return err
}

// recordFailure sets failureTimeLast without mutating any other field,
// per §4.3's Mismatch(pinning)/Mismatch(downgrade) clauses and §8
// property 5 ("no other field mutated").
func recordFailure(ctx context.Context, conn *sql.Conn, fingerprint [32]byte, now time.Time) error {
	_, err := conn.ExecContext(ctx, `UPDATE devices SET failure_time_last = ? WHERE fingerprint = ?`, now.Unix(), fingerprint[:])
	return err
}

func appendHistory(ctx context.Context, conn *sql.Conn, fingerprint [32]byte, now time.Time, strong bool, teeText, osText string) error {
	_, err := conn.ExecContext(ctx,
		`INSERT INTO attestations (fingerprint, time, strong, tee_enforced, os_enforced) VALUES (?, ?, ?, ?, ?)`,
		fingerprint[:], now.Unix(), strong, teeText, osText)
	return err
}
