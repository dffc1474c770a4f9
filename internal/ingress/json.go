package ingress

import (
	"encoding/hex"
	"encoding/pem"

	"github.com/openattest/attestation-server/internal/catalogue"
	"github.com/openattest/attestation-server/internal/pinning"
)

// deviceJSON is the §8 property 8 round-trip shape for
// /api/devices.json: certificates as PEM, fingerprint and
// verifiedBootKey as hex.
type deviceJSON struct {
	Fingerprint            string  `json:"fingerprint"`
	PinnedCertificates     []string `json:"pinnedCertificates"`
	PinnedVerifiedBootKey  string  `json:"pinnedVerifiedBootKey"`
	VerifiedBootHash       string  `json:"verifiedBootHash,omitempty"`
	PinnedOSVersion        uint64  `json:"pinnedOsVersion"`
	PinnedOSPatchLevel     uint64  `json:"pinnedOsPatchLevel"`
	PinnedVendorPatchLevel *uint64 `json:"pinnedVendorPatchLevel,omitempty"`
	PinnedBootPatchLevel   *uint64 `json:"pinnedBootPatchLevel,omitempty"`
	PinnedAppVersion       uint64  `json:"pinnedAppVersion"`
	PinnedSecurityLevel    string  `json:"pinnedSecurityLevel"`
	UserProfileSecure      bool    `json:"userProfileSecure"`
	EnrolledBiometrics     bool    `json:"enrolledBiometrics"`
	Accessibility          bool    `json:"accessibility"`
	ADBEnabled             bool    `json:"adbEnabled"`
	AddUsersWhenLocked     bool    `json:"addUsersWhenLocked"`
	DenyNewUSB             bool    `json:"denyNewUsb"`
	OEMUnlockAllowed       bool    `json:"oemUnlockAllowed"`
	SystemUser             bool    `json:"systemUser"`
	DeviceAdmin            int     `json:"deviceAdmin"`
	VerifiedTimeFirst      int64   `json:"verifiedTimeFirst"`
	VerifiedTimeLast       int64   `json:"verifiedTimeLast"`
	ExpiredTimeLast        *int64  `json:"expiredTimeLast,omitempty"`
	FailureTimeLast        *int64  `json:"failureTimeLast,omitempty"`
}

func pemCertificate(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func toDeviceJSON(d *pinning.Device) deviceJSON {
	var certs []string
	for _, c := range [][]byte{d.PinnedCertificate0, d.PinnedCertificate1, d.PinnedCertificate2, d.PinnedCertificate3} {
		if len(c) > 0 {
			certs = append(certs, pemCertificate(c))
		}
	}

	level := "tee"
	if d.PinnedSecurityLevel == catalogue.SecurityLevelStrongBox {
		level = "strongbox"
	}

	j := deviceJSON{
		Fingerprint:            hex.EncodeToString(d.Fingerprint[:]),
		PinnedCertificates:     certs,
		PinnedVerifiedBootKey:  hex.EncodeToString(d.PinnedVerifiedBootKey[:]),
		PinnedOSVersion:        d.PinnedOSVersion,
		PinnedOSPatchLevel:     d.PinnedOSPatchLevel,
		PinnedVendorPatchLevel: d.PinnedVendorPatchLevel,
		PinnedBootPatchLevel:   d.PinnedBootPatchLevel,
		PinnedAppVersion:       d.PinnedAppVersion,
		PinnedSecurityLevel:    level,
		UserProfileSecure:      d.UserProfileSecure,
		EnrolledBiometrics:     d.EnrolledBiometrics,
		Accessibility:          d.Accessibility,
		ADBEnabled:             d.ADBEnabled,
		AddUsersWhenLocked:     d.AddUsersWhenLocked,
		DenyNewUSB:             d.DenyNewUSB,
		OEMUnlockAllowed:       d.OEMUnlockAllowed,
		SystemUser:             d.SystemUser,
		DeviceAdmin:            d.DeviceAdmin,
		VerifiedTimeFirst:      d.VerifiedTimeFirst.Unix(),
		VerifiedTimeLast:       d.VerifiedTimeLast.Unix(),
	}
	if len(d.VerifiedBootHash) > 0 {
		j.VerifiedBootHash = hex.EncodeToString(d.VerifiedBootHash)
	}
	if d.ExpiredTimeLast != nil {
		t := d.ExpiredTimeLast.Unix()
		j.ExpiredTimeLast = &t
	}
	if d.FailureTimeLast != nil {
		t := d.FailureTimeLast.Unix()
		j.FailureTimeLast = &t
	}
	return j
}

type historyEntryJSON struct {
	ID          uint64 `json:"id"`
	Time        int64  `json:"time"`
	Strong      bool   `json:"strong"`
	TEEEnforced string `json:"teeEnforced"`
	OSEnforced  string `json:"osEnforced"`
}

func toHistoryJSON(h pinning.HistoryEntry) historyEntryJSON {
	return historyEntryJSON{ID: h.ID, Time: h.Time, Strong: h.Strong, TEEEnforced: h.TEEEnforced, OSEnforced: h.OSEnforced}
}
