package pinning

import (
	"context"
	"database/sql"
	"errors"

	"github.com/openattest/attestation-server/internal/apierr"
	"github.com/openattest/attestation-server/internal/catalogue"
	"github.com/openattest/attestation-server/internal/storage"
	"github.com/openattest/attestation-server/internal/verifier"
)

// Record implements §4.3's record(report, userId, strong) -> Outcome as
// a single BEGIN IMMEDIATE transaction. The apierr.Error return is only
// for unexpected faults (apierr.Internal); continuity failures are
// reported through the Outcome itself so the caller can decide how to
// render them without re-deriving apierr.Mismatch/Revoked from scratch.
func (s *Store) Record(ctx context.Context, cid string, report *verifier.AttestationReport, userID uint64, strong bool) (Outcome, *apierr.Error) {
	var outcome Outcome
	now := s.now()

	err := storage.WithImmediate(ctx, s.db, func(conn *sql.Conn) error {
		existing, found, err := loadDevice(ctx, conn, report.Fingerprint)
		if err != nil {
			return err
		}

		if !found {
			device := deviceFromReport(report, userID, now)
			if err := insertDevice(ctx, conn, device); err != nil {
				return err
			}
			if err := appendHistory(ctx, conn, device.Fingerprint, now, strong, report.TEEEnforcedText, report.OSEnforcedText); err != nil {
				return err
			}
			outcome = OutcomeEnrolled
			return nil
		}

		if existing.UserID != userID {
			outcome = OutcomeMismatchOwner
			return nil
		}
		if existing.DeletionTime != nil {
			outcome = OutcomeRevoked
			return nil
		}
		if !immutableFieldsEqual(existing, report) {
			outcome = OutcomeMismatchPinning
			return recordFailure(ctx, conn, existing.Fingerprint, now)
		}
		if !monotonicOK(existing, report) {
			outcome = OutcomeMismatchDowngrade
			return recordFailure(ctx, conn, existing.Fingerprint, now)
		}

		advanceMonotonic(existing, report)
		applyFlags(existing, report)
		if err := updateDeviceOnVerify(ctx, conn, existing, now); err != nil {
			return err
		}
		if err := appendHistory(ctx, conn, existing.Fingerprint, now, strong, report.TEEEnforcedText, report.OSEnforcedText); err != nil {
			return err
		}
		outcome = OutcomeVerified
		return nil
	})
	if err != nil {
		return 0, apierr.Wrap(cid, err)
	}
	return outcome, nil
}

func loadDevice(ctx context.Context, conn *sql.Conn, fingerprint [32]byte) (*Device, bool, error) {
	var d Device
	var vendorPatch, bootPatch sql.NullInt64
	var vbh sql.NullString
	var expiredAt, failureAt, deletedAt sql.NullInt64
	var verifiedFirst, verifiedLast int64
	var securityLevel int

	row := conn.QueryRowContext(ctx, `
		SELECT user_id, pinned_certificate_0, pinned_certificate_1, pinned_certificate_2, pinned_certificate_3,
		       pinned_verified_boot_key, verified_boot_hash,
		       pinned_os_version, pinned_os_patch_level, pinned_vendor_patch_level, pinned_boot_patch_level, pinned_app_version,
		       pinned_security_level,
		       user_profile_secure, enrolled_biometrics, accessibility, adb_enabled, add_users_when_locked,
		       deny_new_usb, oem_unlock_allowed, system_user, device_admin,
		       verified_time_first, verified_time_last, expired_time_last, failure_time_last, deletion_time
		FROM devices WHERE fingerprint = ?`, fingerprint[:])

	var vbk []byte
	err := row.Scan(&d.UserID, &d.PinnedCertificate0, &d.PinnedCertificate1, &d.PinnedCertificate2, &d.PinnedCertificate3,
		&vbk, &vbh,
		&d.PinnedOSVersion, &d.PinnedOSPatchLevel, &vendorPatch, &bootPatch, &d.PinnedAppVersion,
		&securityLevel,
		&d.UserProfileSecure, &d.EnrolledBiometrics, &d.Accessibility, &d.ADBEnabled, &d.AddUsersWhenLocked,
		&d.DenyNewUSB, &d.OEMUnlockAllowed, &d.SystemUser, &d.DeviceAdmin,
		&verifiedFirst, &verifiedLast, &expiredAt, &failureAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	d.Fingerprint = fingerprint
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
	if deletedAt.Valid {
		t := unixTime(deletedAt.Int64)
		d.DeletionTime = &t
	}
	return &d, true, nil
}
