package verifier

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadTrustRoots parses a file of PEM "PUBLIC KEY" blocks into the
// pinned roots the verifier checks submitted chains against. Pinning by
// public key only (not a full certificate) means a vendor can rotate
// the root certificate's validity period or serial without requiring a
// server-side update, so long as the key itself is unchanged.
func LoadTrustRoots(path string) ([]TrustRoot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trust roots: %w", err)
	}

	var roots []TrustRoot
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "PUBLIC KEY" {
			continue
		}
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing trust root public key: %w", err)
		}
		roots = append(roots, TrustRoot{PublicKey: pub})
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("no PUBLIC KEY blocks found in %s", path)
	}
	return roots, nil
}
