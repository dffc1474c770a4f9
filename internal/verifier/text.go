package verifier

import (
	"encoding/hex"
	"encoding/json"
)

// authorizationListText is the stable JSON shape persisted for the
// teeEnforced/osEnforced text blobs (§3, §9 open question: "a stable
// JSON encoding is recommended"). Fields are omitted rather than
// zero-valued when the source AuthorizationList didn't carry them.
type authorizationListText struct {
	OSVersion        uint64  `json:"osVersion,omitempty"`
	OSPatchLevel     uint64  `json:"osPatchLevel,omitempty"`
	VendorPatchLevel *uint64 `json:"vendorPatchLevel,omitempty"`
	BootPatchLevel   *uint64 `json:"bootPatchLevel,omitempty"`
	ApplicationID    string  `json:"applicationId,omitempty"`
	VerifiedBootKey  string  `json:"verifiedBootKey,omitempty"`
	VerifiedBootHash string  `json:"verifiedBootHash,omitempty"`
}

// stringifyAuthorizationList renders an AuthorizationList into the
// opaque human-readable text blob §4.2 step 8 calls for. Marshal errors
// are impossible for this fixed-shape struct, so they're ignored.
func stringifyAuthorizationList(l AuthorizationList) string {
	t := authorizationListText{
		OSVersion:        l.OSVersion,
		OSPatchLevel:     l.OSPatchLevel,
		VendorPatchLevel: l.VendorPatchLevel,
		BootPatchLevel:   l.BootPatchLevel,
	}
	if len(l.ApplicationID) > 0 {
		t.ApplicationID = hex.EncodeToString(l.ApplicationID)
	}
	if len(l.VerifiedBootKey) > 0 {
		t.VerifiedBootKey = hex.EncodeToString(l.VerifiedBootKey)
	}
	if len(l.VerifiedBootHash) > 0 {
		t.VerifiedBootHash = hex.EncodeToString(l.VerifiedBootHash)
	}
	b, _ := json.Marshal(t)
	return string(b)
}
