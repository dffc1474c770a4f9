package verifier

import (
	"crypto/sha256"
	"crypto/x509"
	"time"

	"github.com/openattest/attestation-server/internal/apierr"
	"github.com/openattest/attestation-server/internal/catalogue"
	"github.com/openattest/attestation-server/internal/challenge"
)

// ChallengeConsumer is the subset of challenge.Index the verifier needs,
// named so tests can substitute a fake without pulling in the real
// time-based index.
type ChallengeConsumer interface {
	Consume(challenge.Nonce) bool
}

// DeviceCatalogue is the subset of catalogue.Catalogue the verifier
// needs.
type DeviceCatalogue interface {
	Lookup(catalogue.SecurityLevel, [32]byte) (catalogue.Entry, bool)
}

// Verifier implements design component C.
type Verifier struct {
	Roots      []TrustRoot
	Challenges ChallengeConsumer
	Catalogue  DeviceCatalogue
	Now        func() time.Time
}

// New constructs a Verifier over the given trust roots, challenge index
// and catalogue.
func New(roots []TrustRoot, challenges ChallengeConsumer, cat DeviceCatalogue) *Verifier {
	return &Verifier{Roots: roots, Challenges: challenges, Catalogue: cat, Now: time.Now}
}

// Verify runs §4.2's eight-step algorithm over a raw auditor message.
// userId and strong are not consulted here — they travel straight to
// the pinning store (§4.3), which is the component that owns ownership
// and strength semantics.
func (v *Verifier) Verify(cid string, message []byte) VerificationResult {
	report, err := v.verify(cid, message)
	if err != nil {
		return VerificationResult{Err: err}
	}
	return VerificationResult{Report: report}
}

func (v *Verifier) verify(cid string, message []byte) (*AttestationReport, *apierr.Error) {
	// Step 1: framing check.
	version, props, der, err := parseMessage(message)
	if err != nil {
		return nil, apierr.New(apierr.Malformed, cid, err.Error())
	}
	if version != ProtocolVersion {
		return nil, apierr.New(apierr.Malformed, cid, "unrecognized protocol version")
	}

	// Step 2: chain parse.
	chain, cerr := parseChain(der)
	if cerr != nil {
		return nil, apierr.New(apierr.Malformed, cid, cerr.Error())
	}

	// Step 3: signature chain verification.
	now := v.Now()
	if cerr := verifySignatureChain(chain, v.Roots, now); cerr != nil {
		return nil, apierr.New(apierr.Malformed, cid, cerr.Error())
	}

	// Step 4: attestation extension extraction (leaf only).
	leaf := chain[0]
	kd, err := extractKeyDescription(leaf.Extensions)
	if err != nil {
		return nil, apierr.New(apierr.Malformed, cid, err.Error())
	}
	teeList, err := parseAuthorizationList(kd.TeeEnforced)
	if err != nil {
		return nil, apierr.New(apierr.Malformed, cid, err.Error())
	}
	swList, err := parseAuthorizationList(kd.SoftwareEnforced)
	if err != nil {
		return nil, apierr.New(apierr.Malformed, cid, err.Error())
	}

	// Step 5: challenge binding.
	var nonce challenge.Nonce
	if len(kd.AttestationChallenge) != challenge.Len {
		return nil, apierr.New(apierr.StaleChallenge, cid, "attestation challenge has the wrong length")
	}
	copy(nonce[:], kd.AttestationChallenge)
	if !v.Challenges.Consume(nonce) {
		return nil, apierr.New(apierr.StaleChallenge, cid, "challenge not found or expired")
	}

	// Step 6: fingerprint derivation from the second-to-root certificate.
	batchCert := chain[len(chain)-2]
	fingerprint := sha256.Sum256(batchCert.RawSubjectPublicKeyInfo)

	// Step 7: catalogue lookup.
	securityLevel := catalogue.SecurityLevelTEE
	if kd.AttestationSecurityLevel == 1 {
		securityLevel = catalogue.SecurityLevelStrongBox
	}
	// RootOfTrust.verifiedBootKey is itself the SHA-256 digest of the
	// Android Verified Boot public key, not a raw key to be hashed —
	// hashing it again would look up a digest-of-a-digest and never
	// match the catalogue's entries.
	verifiedBootKey := teeList.VerifiedBootKey
	if len(verifiedBootKey) == 0 {
		verifiedBootKey = swList.VerifiedBootKey
	}
	var keyDigest [32]byte
	if len(verifiedBootKey) != len(keyDigest) {
		return nil, apierr.New(apierr.Malformed, cid, "verifiedBootKey has the wrong length")
	}
	copy(keyDigest[:], verifiedBootKey)
	device, ok := v.Catalogue.Lookup(securityLevel, keyDigest)
	if !ok {
		return nil, apierr.New(apierr.UnknownDevice, cid, "verified-boot key not recognized")
	}

	// Step 8: report assembly.
	report := &AttestationReport{
		Fingerprint:            fingerprint,
		PinnedVerifiedBootKey:  keyDigest,
		VerifiedBootHash:       firstNonEmpty(teeList.VerifiedBootHash, swList.VerifiedBootHash),
		PinnedOSVersion:        maxU64(teeList.OSVersion, swList.OSVersion),
		PinnedOSPatchLevel:     maxU64(teeList.OSPatchLevel, swList.OSPatchLevel),
		PinnedVendorPatchLevel: firstNonNil(teeList.VendorPatchLevel, swList.VendorPatchLevel),
		PinnedBootPatchLevel:   firstNonNil(teeList.BootPatchLevel, swList.BootPatchLevel),
		PinnedAppVersion:       parseAppVersion(firstNonEmptySlice(swList.ApplicationID, teeList.ApplicationID)),
		SecurityLevel:          securityLevel,
		Device:                 device,
		DeviceProperties:       props,
		Challenge:              nonce,
		TEEEnforcedText:        stringifyAuthorizationList(teeList),
		OSEnforcedText:         stringifyAuthorizationList(swList),
		VerifiedTime:           now,
	}
	setPinnedCertificates(report, chain)

	return report, nil
}

// setPinnedCertificates copies up to four chain certificates (leaf
// first) into the report's four pinned-certificate slots, per §3.
func setPinnedCertificates(r *AttestationReport, chain []*x509.Certificate) {
	slots := []*[]byte{&r.PinnedCertificate0, &r.PinnedCertificate1, &r.PinnedCertificate2, &r.PinnedCertificate3}
	for i, slot := range slots {
		if i < len(chain) {
			*slot = chain[i].Raw
		}
	}
}

func firstNonEmpty(a, b []byte) []byte {
	if len(a) > 0 {
		return a
	}
	return b
}

func firstNonEmptySlice(a, b []byte) []byte { return firstNonEmpty(a, b) }

func firstNonNil(a, b *uint64) *uint64 {
	if a != nil {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
