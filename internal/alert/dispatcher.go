package alert

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/openattest/attestation-server/internal/pinning"
)

// Interval is the design parameter from §4.4: "wakes every 15 minutes
// (design parameter; not timing-critical)".
const Interval = 15 * time.Minute

// Dispatcher runs the §4.4 loop.
type Dispatcher struct {
	store  *pinning.Store
	mailer Mailer
	now    func() time.Time
}

func New(store *pinning.Store, mailer Mailer) *Dispatcher {
	return &Dispatcher{store: store, mailer: mailer, now: time.Now}
}

// Run blocks, waking every Interval, until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	devices, err := d.store.ScanForAlerts(ctx, "alert-tick")
	if err != nil {
		slog.Error("alert: scan failed", "error", err)
		return
	}
	for _, dev := range devices {
		if err := d.evaluate(ctx, dev); err != nil {
			slog.Error("alert: evaluating device failed", "fingerprint", hex.EncodeToString(dev.Fingerprint[:]), "error", err)
		}
	}
}

func (d *Dispatcher) evaluate(ctx context.Context, dev pinning.DevicesNeedingAlertScan) error {
	account, err := d.store.Account(ctx, "alert-tick", dev.UserID)
	if err != nil {
		return err
	}
	now := d.now()

	expired := now.Sub(dev.VerifiedTimeLast) > account.AlertDelay
	alreadyAlerted := dev.ExpiredTimeLast != nil && !dev.VerifiedTimeLast.After(*dev.ExpiredTimeLast)

	if expired && !alreadyAlerted {
		if err := d.mailer.Send(account.Email, "Device stopped checking in",
			"A device on your account has not verified in over "+account.AlertDelay.String()+"."); err != nil {
			slog.Warn("alert: send failed, will retry next tick", "error", err)
			return nil
		}
		return d.store.MarkAlerted(ctx, "alert-tick", dev.Fingerprint, now)
	}

	if dev.ExpiredTimeLast != nil && dev.VerifiedTimeLast.After(*dev.ExpiredTimeLast) {
		if err := d.mailer.Send(account.Email, "Device recovered",
			"A previously alerted device has verified again."); err != nil {
			slog.Warn("alert: recovery notice send failed, will retry next tick", "error", err)
			return nil
		}
		// One-shot: clearing expiredTimeLast prevents re-sending the
		// recovered notice on the next tick for the same verification.
		if _, err := d.store.DB().ExecContext(ctx, `UPDATE devices SET expired_time_last = NULL WHERE fingerprint = ?`, dev.Fingerprint[:]); err != nil {
			return err
		}
		return nil
	}

	return nil
}
