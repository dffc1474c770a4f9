package pinning

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/openattest/attestation-server/internal/catalogue"
	"github.com/openattest/attestation-server/internal/verifier"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	// Device rows reference accounts(user_id); the tests below record
	// devices for user 7, so that account must exist.
	if _, err := s.db.ExecContext(context.Background(),
		`INSERT INTO accounts (user_id, username, password_salt, password_hash, subscribe_key) VALUES (7, 'owner7', x'00', x'00', x'00')`); err != nil {
		t.Fatalf("creating account 7: %v", err)
	}
	return s
}

func sampleReport(fingerprint [32]byte, osVersion, osPatch uint64) *verifier.AttestationReport {
	return &verifier.AttestationReport{
		Fingerprint:           fingerprint,
		PinnedCertificate0:    []byte("leaf"),
		PinnedCertificate1:    []byte("batch"),
		PinnedVerifiedBootKey: [32]byte{1, 2, 3},
		PinnedOSVersion:       osVersion,
		PinnedOSPatchLevel:    osPatch,
		SecurityLevel:         catalogue.SecurityLevelTEE,
		TEEEnforcedText:       `{"osVersion":14}`,
		OSEnforcedText:        `{"osVersion":14}`,
	}
}

func TestRecordEnrollsFirstTime(t *testing.T) {
	s := openTestStore(t)
	var fp [32]byte
	fp[0] = 1

	outcome, err := s.Record(context.Background(), "cid", sampleReport(fp, 14, 20240101), 7, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeEnrolled {
		t.Fatalf("expected Enrolled, got %v", outcome)
	}

	devices, aerr := s.ListDevices(context.Background(), "cid", 7)
	if aerr != nil {
		t.Fatalf("listing devices: %v", aerr)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
}

func TestRecordPinImmutability(t *testing.T) {
	s := openTestStore(t)
	var fp [32]byte
	fp[0] = 2
	ctx := context.Background()

	if _, err := s.Record(ctx, "cid", sampleReport(fp, 14, 20240101), 7, false); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	before, _, loadErr := loadDeviceForTest(t, s, fp)
	if loadErr != nil {
		t.Fatal(loadErr)
	}

	if _, err := s.Record(ctx, "cid", sampleReport(fp, 15, 20240201), 7, true); err != nil {
		t.Fatalf("re-verify: %v", err)
	}
	after, _, loadErr := loadDeviceForTest(t, s, fp)
	if loadErr != nil {
		t.Fatal(loadErr)
	}

	if after.PinnedVerifiedBootKey != before.PinnedVerifiedBootKey {
		t.Fatalf("pinnedVerifiedBootKey changed across re-verify")
	}
	if after.VerifiedTimeFirst != before.VerifiedTimeFirst {
		t.Fatalf("verifiedTimeFirst changed across re-verify")
	}
	if after.PinnedOSVersion != 15 {
		t.Fatalf("monotonic counter did not advance: got %d", after.PinnedOSVersion)
	}
}

func TestRecordDowngradeRejected(t *testing.T) {
	s := openTestStore(t)
	var fp [32]byte
	fp[0] = 3
	ctx := context.Background()

	if _, err := s.Record(ctx, "cid", sampleReport(fp, 14, 20240201), 7, false); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	outcome, err := s.Record(ctx, "cid", sampleReport(fp, 14, 20240101), 7, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeMismatchDowngrade {
		t.Fatalf("expected Mismatch(downgrade), got %v", outcome)
	}

	before, _, _ := loadDeviceForTest(t, s, fp)
	if before.FailureTimeLast == nil {
		t.Fatalf("expected failureTimeLast to be set after downgrade")
	}
	if before.PinnedOSPatchLevel != 20240201 {
		t.Fatalf("monotonic counter must not regress: got %d", before.PinnedOSPatchLevel)
	}
}

func TestRecordOwnerMismatch(t *testing.T) {
	s := openTestStore(t)
	var fp [32]byte
	fp[0] = 4
	ctx := context.Background()

	if _, err := s.Record(ctx, "cid", sampleReport(fp, 14, 1), 7, false); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	outcome, err := s.Record(ctx, "cid", sampleReport(fp, 14, 1), 8, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeMismatchOwner {
		t.Fatalf("expected Mismatch(owner), got %v", outcome)
	}
}

func TestRecordRevokedAfterDelete(t *testing.T) {
	s := openTestStore(t)
	var fp [32]byte
	fp[0] = 5
	ctx := context.Background()

	if _, err := s.Record(ctx, "cid", sampleReport(fp, 14, 1), 7, false); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if aerr := s.DeleteDevice(ctx, "cid", 7, fp); aerr != nil {
		t.Fatalf("delete: %v", aerr)
	}
	outcome, err := s.Record(ctx, "cid", sampleReport(fp, 14, 1), 7, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeRevoked {
		t.Fatalf("expected Revoked, got %v", outcome)
	}
}

func TestRecordHistoryAppendOnly(t *testing.T) {
	s := openTestStore(t)
	var fp [32]byte
	fp[0] = 6
	ctx := context.Background()

	if _, err := s.Record(ctx, "cid", sampleReport(fp, 14, 1), 7, false); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if _, err := s.Record(ctx, "cid", sampleReport(fp, 15, 2), 7, true); err != nil {
		t.Fatalf("re-verify: %v", err)
	}
	// Downgrade must not append a history row.
	if _, err := s.Record(ctx, "cid", sampleReport(fp, 15, 1), 7, true); err != nil {
		t.Fatalf("downgrade attempt errored: %v", err)
	}

	hist, aerr := s.AttestationHistory(ctx, "cid", 7, fp, ^uint64(0))
	if aerr != nil {
		t.Fatalf("history: %v", aerr)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 history rows (enrol + re-verify only), got %d", len(hist))
	}
}

func TestValidConfigurationGuard(t *testing.T) {
	cases := []struct {
		verify, alert time.Duration
		want          bool
	}{
		{4 * time.Hour, 48 * time.Hour, true},
		{30 * time.Minute, 48 * time.Hour, false},   // verifyInterval too small
		{4 * time.Hour, 20 * time.Hour, false},        // alertDelay too small
		{72 * time.Hour, 48 * time.Hour, false},       // alertDelay <= verifyInterval
		{8 * 24 * time.Hour, 9 * 24 * time.Hour, false}, // verifyInterval too large
	}
	for _, c := range cases {
		if got := ValidConfiguration(c.verify, c.alert); got != c.want {
			t.Errorf("ValidConfiguration(%v, %v) = %v, want %v", c.verify, c.alert, got, c.want)
		}
	}
}

func loadDeviceForTest(t *testing.T, s *Store, fp [32]byte) (*Device, bool, error) {
	t.Helper()
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return nil, false, err
	}
	defer conn.Close()
	return loadDevice(context.Background(), conn, fp)
}
