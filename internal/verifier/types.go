// Package verifier implements design component C: it parses and
// validates a client-submitted attestation chain, extracts the keystore
// attestation extension, binds it to a previously issued challenge, and
// produces a normalized AttestationReport for the pinning store.
package verifier

import (
	"time"

	"github.com/openattest/attestation-server/internal/apierr"
	"github.com/openattest/attestation-server/internal/catalogue"
	"github.com/openattest/attestation-server/internal/challenge"
)

// ProtocolVersion is the only auditor-message framing version this
// server accepts; anything else fails closed per §4.2 step 1.
const ProtocolVersion byte = 1

// MaxMessageSize caps the opaque attestation bundle accepted by /verify.
const MaxMessageSize = 16 * 1024

// AuthorizationList is the normalized subset of an Android keystore
// authorization list this server cares about. Optional fields are nil
// pointers/empty slices when absent, never zero values, per §4.2's tie
// -break note.
type AuthorizationList struct {
	OSVersion        uint64
	OSPatchLevel     uint64
	VendorPatchLevel *uint64
	BootPatchLevel   *uint64
	ApplicationID    []byte
	VerifiedBootKey  []byte
	VerifiedBootHash []byte
}

// DeviceProperties are the eight boolean flags plus deviceAdmin level
// the auditor app captures about itself and appends to the message
// outside the TEE-signed extension (the TEE has no visibility into
// userspace device-admin/accessibility state).
type DeviceProperties struct {
	UserProfileSecure  bool
	EnrolledBiometrics bool
	Accessibility      bool
	ADBEnabled         bool
	AddUsersWhenLocked bool
	DenyNewUSB         bool
	OEMUnlockAllowed   bool
	SystemUser         bool
	DeviceAdmin        int // 0, 1, or 2
}

// AttestationReport is the normalized output of a successful Verify
// call: every Device field from §3 plus the challenge and stringified
// authorization lists §4.2 step 8 calls for.
type AttestationReport struct {
	Fingerprint [32]byte // derived from the second-to-root certificate

	PinnedCertificate0 []byte
	PinnedCertificate1 []byte
	PinnedCertificate2 []byte
	PinnedCertificate3 []byte

	PinnedVerifiedBootKey [32]byte
	VerifiedBootHash      []byte // optional; nil when absent

	PinnedOSVersion        uint64
	PinnedOSPatchLevel     uint64
	PinnedVendorPatchLevel *uint64
	PinnedBootPatchLevel   *uint64
	PinnedAppVersion       uint64

	SecurityLevel catalogue.SecurityLevel
	Device        catalogue.Entry

	DeviceProperties

	Challenge challenge.Nonce

	TEEEnforcedText string
	OSEnforcedText  string

	VerifiedTime time.Time
}

// VerificationResult is the output of Verify: either a report, or a
// typed failure from the apierr taxonomy.
type VerificationResult struct {
	Report *AttestationReport
	Err    *apierr.Error
}
