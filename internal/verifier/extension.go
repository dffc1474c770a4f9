package verifier

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
)

// keyDescriptionOID is the keystore attestation extension identified in
// §4.2 step 4.
var keyDescriptionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 1, 17}

// Context-specific tag numbers inside an AuthorizationList, per the
// Android Keystore attestation schema. Only the tags this server
// consults are named; everything else is skipped.
const (
	tagRootOfTrust      = 704
	tagOSVersion        = 705
	tagOSPatchLevel     = 706
	tagApplicationID    = 709
	tagVendorPatchLevel = 718
	tagBootPatchLevel   = 719
)

// rootOfTrust is the inner SEQUENCE carried at tag 704.
type rootOfTrust struct {
	VerifiedBootKey   []byte
	DeviceLocked      bool
	VerifiedBootState asn1.Enumerated
	VerifiedBootHash  []byte
}

// keyDescription mirrors the top-level KeyDescription SEQUENCE. The two
// AuthorizationLists are decoded generically (as raw tagged elements)
// since most of their ~30 possible fields are irrelevant here.
type keyDescription struct {
	AttestationVersion      int
	AttestationSecurityLevel asn1.Enumerated
	KeymasterVersion        int
	KeymasterSecurityLevel  asn1.Enumerated
	AttestationChallenge    []byte
	UniqueID                []byte
	SoftwareEnforced        asn1.RawValue
	TeeEnforced             asn1.RawValue
}

// extractKeyDescription locates the keystore attestation extension among
// a certificate's extensions and parses its top-level structure.
func extractKeyDescription(extensions []pkix.Extension) (*keyDescription, error) {
	for _, ext := range extensions {
		if !ext.Id.Equal(keyDescriptionOID) {
			continue
		}
		var kd keyDescription
		if _, err := asn1.Unmarshal(ext.Value, &kd); err != nil {
			return nil, fmt.Errorf("parsing KeyDescription: %w", err)
		}
		return &kd, nil
	}
	return nil, fmt.Errorf("keystore attestation extension not present")
}

// parseAuthorizationList decodes an AuthorizationList SEQUENCE into the
// AuthorizationList fields this server consults, ignoring every tag it
// doesn't recognize.
func parseAuthorizationList(raw asn1.RawValue) (AuthorizationList, error) {
	var out AuthorizationList

	var elems []asn1.RawValue
	if _, err := asn1.Unmarshal(raw.FullBytes, &elems); err != nil {
		return out, fmt.Errorf("parsing AuthorizationList: %w", err)
	}

	for _, elem := range elems {
		switch elem.Tag {
		case tagOSVersion:
			var v int64
			if _, err := asn1.Unmarshal(elem.Bytes, &v); err == nil {
				out.OSVersion = uint64(v)
			}
		case tagOSPatchLevel:
			var v int64
			if _, err := asn1.Unmarshal(elem.Bytes, &v); err == nil {
				out.OSPatchLevel = uint64(v)
			}
		case tagVendorPatchLevel:
			var v int64
			if _, err := asn1.Unmarshal(elem.Bytes, &v); err == nil {
				u := uint64(v)
				out.VendorPatchLevel = &u
			}
		case tagBootPatchLevel:
			var v int64
			if _, err := asn1.Unmarshal(elem.Bytes, &v); err == nil {
				u := uint64(v)
				out.BootPatchLevel = &u
			}
		case tagApplicationID:
			var v []byte
			if _, err := asn1.Unmarshal(elem.Bytes, &v); err == nil {
				out.ApplicationID = v
			}
		case tagRootOfTrust:
			var rot rootOfTrust
			if _, err := asn1.Unmarshal(elem.Bytes, &rot); err == nil {
				out.VerifiedBootKey = rot.VerifiedBootKey
				if len(rot.VerifiedBootHash) > 0 {
					out.VerifiedBootHash = rot.VerifiedBootHash
				}
			}
		}
	}

	return out, nil
}

// attestationPackageInfo is one entry of the AttestationApplicationId
// structure embedded (as a nested DER SEQUENCE) inside the ApplicationID
// octet string. version feeds AttestationReport.PinnedAppVersion.
type attestationPackageInfo struct {
	PackageName []byte
	Version     int
}

type attestationApplicationID struct {
	PackageInfos     []attestationPackageInfo `asn1:"set"`
	SignatureDigests [][]byte                 `asn1:"set"`
}

// parseAppVersion extracts the first package's version from the nested
// AttestationApplicationId structure. Absence or malformed input yields
// version 0, which the caller treats as "not reported" rather than a
// hard failure — app version is informational, not safety-critical.
func parseAppVersion(applicationID []byte) uint64 {
	if len(applicationID) == 0 {
		return 0
	}
	var aid attestationApplicationID
	if _, err := asn1.Unmarshal(applicationID, &aid); err != nil || len(aid.PackageInfos) == 0 {
		return 0
	}
	return uint64(aid.PackageInfos[0].Version)
}
