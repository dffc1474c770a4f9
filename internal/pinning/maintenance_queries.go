package pinning

import (
	"context"
	"time"

	"github.com/openattest/attestation-server/internal/apierr"
)

// SweepExpiredSessions deletes session rows whose expiryTime has
// passed, per §4.5.
func (s *Store) SweepExpiredSessions(ctx context.Context, cid string) (int64, *apierr.Error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expiry_time < ?`, s.now().Unix())
	if err != nil {
		return 0, apierr.Wrap(cid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apierr.Wrap(cid, err)
	}
	return n, nil
}

// GCDeletedDevices removes devices (and, via FK cascade, their history)
// soft-deleted more than retention ago, per §4.5's horizon GC.
func (s *Store) GCDeletedDevices(ctx context.Context, cid string, retention time.Duration) (int64, *apierr.Error) {
	cutoff := s.now().Add(-retention).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE deletion_time IS NOT NULL AND deletion_time < ?`, cutoff)
	if err != nil {
		return 0, apierr.Wrap(cid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apierr.Wrap(cid, err)
	}
	return n, nil
}

// DevicesNeedingAlertScan is the per-device state the alert dispatcher
// needs, without the pinned certificate blobs ListDevices carries.
type DevicesNeedingAlertScan struct {
	Fingerprint      [32]byte
	UserID           uint64
	VerifiedTimeLast time.Time
	ExpiredTimeLast  *time.Time
}

// ScanForAlerts returns every non-deleted device belonging to an
// account with a configured email address, for the alert dispatcher's
// periodic sweep (§4.4).
func (s *Store) ScanForAlerts(ctx context.Context, cid string) ([]DevicesNeedingAlertScan, *apierr.Error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.fingerprint, d.user_id, d.verified_time_last, d.expired_time_last
		FROM devices d JOIN accounts a ON a.user_id = d.user_id
		WHERE d.deletion_time IS NULL AND a.email IS NOT NULL AND a.email != ''`)
	if err != nil {
		return nil, apierr.Wrap(cid, err)
	}
	defer rows.Close()

	var out []DevicesNeedingAlertScan
	for rows.Next() {
		var d DevicesNeedingAlertScan
		var fp []byte
		var verifiedLast int64
		var expiredAt *int64
		if err := rows.Scan(&fp, &d.UserID, &verifiedLast, &expiredAt); err != nil {
			return nil, apierr.Wrap(cid, err)
		}
		copy(d.Fingerprint[:], fp)
		d.VerifiedTimeLast = unixTime(verifiedLast)
		if expiredAt != nil {
			t := unixTime(*expiredAt)
			d.ExpiredTimeLast = &t
		}
		out = append(out, d)
	}
	return out, nil
}

// MarkAlerted sets expiredTimeLast on a device (§4.4: "emit one and set
// expiredTimeLast = now").
func (s *Store) MarkAlerted(ctx context.Context, cid string, fingerprint [32]byte, at time.Time) *apierr.Error {
	if _, err := s.db.ExecContext(ctx, `UPDATE devices SET expired_time_last = ? WHERE fingerprint = ?`, at.Unix(), fingerprint[:]); err != nil {
		return apierr.Wrap(cid, err)
	}
	return nil
}
