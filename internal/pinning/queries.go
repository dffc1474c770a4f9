package pinning

import (
	"context"
	"database/sql"
	"errors"

	"github.com/openattest/attestation-server/internal/apierr"
	"github.com/openattest/attestation-server/internal/catalogue"
)

// ListDevices implements /api/devices.json: every non-deleted device
// owned by userID.
func (s *Store) ListDevices(ctx context.Context, cid string, userID uint64) ([]*Device, *apierr.Error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, pinned_certificate_0, pinned_certificate_1, pinned_certificate_2, pinned_certificate_3,
		       pinned_verified_boot_key, verified_boot_hash,
		       pinned_os_version, pinned_os_patch_level, pinned_vendor_patch_level, pinned_boot_patch_level, pinned_app_version,
		       pinned_security_level,
		       user_profile_secure, enrolled_biometrics, accessibility, adb_enabled, add_users_when_locked,
		       deny_new_usb, oem_unlock_allowed, system_user, device_admin,
		       verified_time_first, verified_time_last, expired_time_last, failure_time_last
		FROM devices WHERE user_id = ? AND deletion_time IS NULL ORDER BY verified_time_last DESC`, userID)
	if err != nil {
		return nil, apierr.Wrap(cid, err)
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		d := &Device{UserID: userID}
		var fp, vbk []byte
		var vbh sql.NullString
		var vendorPatch, bootPatch, expiredAt, failureAt sql.NullInt64
		var verifiedFirst, verifiedLast int64
		var securityLevel int

		if err := rows.Scan(&fp, &d.PinnedCertificate0, &d.PinnedCertificate1, &d.PinnedCertificate2, &d.PinnedCertificate3,
			&vbk, &vbh,
			&d.PinnedOSVersion, &d.PinnedOSPatchLevel, &vendorPatch, &bootPatch, &d.PinnedAppVersion,
			&securityLevel,
			&d.UserProfileSecure, &d.EnrolledBiometrics, &d.Accessibility, &d.ADBEnabled, &d.AddUsersWhenLocked,
			&d.DenyNewUSB, &d.OEMUnlockAllowed, &d.SystemUser, &d.DeviceAdmin,
			&verifiedFirst, &verifiedLast, &expiredAt, &failureAt); err != nil {
			return nil, apierr.Wrap(cid, err)
		}

		copy(d.Fingerprint[:], fp)
		copy(d.PinnedVerifiedBootKey[:], vbk)
		if vbh.Valid {
			d.VerifiedBootHash = []byte(vbh.String)
		}
		if vendorPatch.Valid {
			v := uint64(vendorPatch.Int64)
			d.PinnedVendorPatchLevel = &v
		}
		if bootPatch.Valid {
			v := uint64(bootPatch.Int64)
			d.PinnedBootPatchLevel = &v
		}
		d.PinnedSecurityLevel = catalogue.SecurityLevel(securityLevel)
		d.VerifiedTimeFirst = unixTime(verifiedFirst)
		d.VerifiedTimeLast = unixTime(verifiedLast)
		if expiredAt.Valid {
			t := unixTime(expiredAt.Int64)
			d.ExpiredTimeLast = &t
		}
		if failureAt.Valid {
			t := unixTime(failureAt.Int64)
			d.FailureTimeLast = &t
		}
		out = append(out, d)
	}
	return out, nil
}

// DeleteDevice implements /api/delete-device: a write-once soft-delete
// tombstone, per §3's deletionTime invariant.
func (s *Store) DeleteDevice(ctx context.Context, cid string, userID uint64, fingerprint [32]byte) *apierr.Error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET deletion_time = ? WHERE fingerprint = ? AND user_id = ? AND deletion_time IS NULL`,
		s.now().Unix(), fingerprint[:], userID)
	if err != nil {
		return apierr.Wrap(cid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(cid, err)
	}
	if n == 0 {
		return apierr.New(apierr.Malformed, cid, "unknown device")
	}
	return nil
}

// HistoryEntry is one row of /api/attestation-history.json.
type HistoryEntry struct {
	ID          uint64
	Fingerprint [32]byte
	Time        int64
	Strong      bool
	TEEEnforced string
	OSEnforced  string
}

const historyPageSize = 20

// AttestationHistory implements /api/attestation-history.json: page
// size 20, DESC by id, id <= offsetId, ownership-checked.
func (s *Store) AttestationHistory(ctx context.Context, cid string, userID uint64, fingerprint [32]byte, offsetID uint64) ([]HistoryEntry, *apierr.Error) {
	var owner uint64
	if err := s.db.QueryRowContext(ctx, `SELECT user_id FROM devices WHERE fingerprint = ?`, fingerprint[:]).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.New(apierr.Malformed, cid, "unknown device")
		}
		return nil, apierr.Wrap(cid, err)
	}
	if owner != userID {
		return nil, apierr.New(apierr.Unauthenticated, cid, "not your device")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, time, strong, tee_enforced, os_enforced FROM attestations
		WHERE fingerprint = ? AND id <= ? ORDER BY id DESC LIMIT ?`,
		fingerprint[:], offsetID, historyPageSize)
	if err != nil {
		return nil, apierr.Wrap(cid, err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		e.Fingerprint = fingerprint
		if err := rows.Scan(&e.ID, &e.Time, &e.Strong, &e.TEEEnforced, &e.OSEnforced); err != nil {
			return nil, apierr.Wrap(cid, err)
		}
		out = append(out, e)
	}
	return out, nil
}
