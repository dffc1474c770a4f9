package pinning

import (
	"time"

	"github.com/openattest/attestation-server/internal/catalogue"
	"github.com/openattest/attestation-server/internal/verifier"
)

// Device is the §3 Pinning Record.
type Device struct {
	Fingerprint [32]byte
	UserID      uint64

	PinnedCertificate0 []byte
	PinnedCertificate1 []byte
	PinnedCertificate2 []byte
	PinnedCertificate3 []byte

	PinnedVerifiedBootKey [32]byte
	VerifiedBootHash      []byte

	PinnedOSVersion        uint64
	PinnedOSPatchLevel     uint64
	PinnedVendorPatchLevel *uint64
	PinnedBootPatchLevel   *uint64
	PinnedAppVersion       uint64

	PinnedSecurityLevel catalogue.SecurityLevel

	UserProfileSecure  bool
	EnrolledBiometrics bool
	Accessibility      bool
	ADBEnabled         bool
	AddUsersWhenLocked bool
	DenyNewUSB         bool
	OEMUnlockAllowed   bool
	SystemUser         bool
	DeviceAdmin        int

	VerifiedTimeFirst time.Time
	VerifiedTimeLast  time.Time
	ExpiredTimeLast   *time.Time
	FailureTimeLast   *time.Time
	DeletionTime      *time.Time
}

// Outcome is the tagged result of Record, per §4.3.
type Outcome int

const (
	OutcomeEnrolled Outcome = iota
	OutcomeVerified
	OutcomeMismatchOwner
	OutcomeMismatchPinning
	OutcomeMismatchDowngrade
	OutcomeRevoked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEnrolled:
		return "enrolled"
	case OutcomeVerified:
		return "verified"
	case OutcomeMismatchOwner:
		return "mismatch(owner)"
	case OutcomeMismatchPinning:
		return "mismatch(pinning)"
	case OutcomeMismatchDowngrade:
		return "mismatch(downgrade)"
	case OutcomeRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Success reports whether the outcome represents a persisted history
// row (Enrolled or Verified).
func (o Outcome) Success() bool {
	return o == OutcomeEnrolled || o == OutcomeVerified
}

func deviceFromReport(r *verifier.AttestationReport, userID uint64, now time.Time) *Device {
	return &Device{
		Fingerprint:            r.Fingerprint,
		UserID:                 userID,
		PinnedCertificate0:     r.PinnedCertificate0,
		PinnedCertificate1:     r.PinnedCertificate1,
		PinnedCertificate2:     r.PinnedCertificate2,
		PinnedCertificate3:     r.PinnedCertificate3,
		PinnedVerifiedBootKey:  r.PinnedVerifiedBootKey,
		VerifiedBootHash:       r.VerifiedBootHash,
		PinnedOSVersion:        r.PinnedOSVersion,
		PinnedOSPatchLevel:     r.PinnedOSPatchLevel,
		PinnedVendorPatchLevel: r.PinnedVendorPatchLevel,
		PinnedBootPatchLevel:   r.PinnedBootPatchLevel,
		PinnedAppVersion:       r.PinnedAppVersion,
		PinnedSecurityLevel:    r.SecurityLevel,
		UserProfileSecure:      r.UserProfileSecure,
		EnrolledBiometrics:     r.EnrolledBiometrics,
		Accessibility:          r.Accessibility,
		ADBEnabled:             r.ADBEnabled,
		AddUsersWhenLocked:     r.AddUsersWhenLocked,
		DenyNewUSB:             r.DenyNewUSB,
		OEMUnlockAllowed:       r.OEMUnlockAllowed,
		SystemUser:             r.SystemUser,
		DeviceAdmin:            r.DeviceProperties.DeviceAdmin,
		VerifiedTimeFirst:      now,
		VerifiedTimeLast:       now,
	}
}

// immutableFieldsEqual checks the pinned-immutable fields named in §3's
// invariant and §4.3 step 2.3.
func immutableFieldsEqual(existing *Device, report *verifier.AttestationReport) bool {
	return existing.PinnedVerifiedBootKey == report.PinnedVerifiedBootKey &&
		bytesEqual(existing.PinnedCertificate0, report.PinnedCertificate0) &&
		bytesEqual(existing.PinnedCertificate1, report.PinnedCertificate1) &&
		bytesEqual(existing.PinnedCertificate2, report.PinnedCertificate2) &&
		bytesEqual(existing.PinnedCertificate3, report.PinnedCertificate3) &&
		existing.PinnedSecurityLevel == report.SecurityLevel
}

// monotonicOK checks §4.3 step 2.4: every monotonic counter present in
// the report must be >= the stored value.
func monotonicOK(existing *Device, report *verifier.AttestationReport) bool {
	if report.PinnedOSVersion < existing.PinnedOSVersion {
		return false
	}
	if report.PinnedOSPatchLevel < existing.PinnedOSPatchLevel {
		return false
	}
	if existing.PinnedVendorPatchLevel != nil && report.PinnedVendorPatchLevel != nil &&
		*report.PinnedVendorPatchLevel < *existing.PinnedVendorPatchLevel {
		return false
	}
	if existing.PinnedBootPatchLevel != nil && report.PinnedBootPatchLevel != nil &&
		*report.PinnedBootPatchLevel < *existing.PinnedBootPatchLevel {
		return false
	}
	// An app version of 0 means the report did not carry one.
	if report.PinnedAppVersion != 0 && report.PinnedAppVersion < existing.PinnedAppVersion {
		return false
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func advanceMonotonic(existing *Device, report *verifier.AttestationReport) {
	existing.PinnedOSVersion = report.PinnedOSVersion
	existing.PinnedOSPatchLevel = report.PinnedOSPatchLevel
	if report.PinnedVendorPatchLevel != nil {
		existing.PinnedVendorPatchLevel = report.PinnedVendorPatchLevel
	}
	if report.PinnedBootPatchLevel != nil {
		existing.PinnedBootPatchLevel = report.PinnedBootPatchLevel
	}
	if report.PinnedAppVersion > existing.PinnedAppVersion {
		existing.PinnedAppVersion = report.PinnedAppVersion
	}
}

func applyFlags(existing *Device, report *verifier.AttestationReport) {
	existing.UserProfileSecure = report.UserProfileSecure
	existing.EnrolledBiometrics = report.EnrolledBiometrics
	existing.Accessibility = report.Accessibility
	existing.ADBEnabled = report.ADBEnabled
	existing.AddUsersWhenLocked = report.AddUsersWhenLocked
	existing.DenyNewUSB = report.DenyNewUSB
	existing.OEMUnlockAllowed = report.OEMUnlockAllowed
	existing.SystemUser = report.SystemUser
	existing.DeviceAdmin = report.DeviceProperties.DeviceAdmin
	existing.VerifiedBootHash = report.VerifiedBootHash
}
