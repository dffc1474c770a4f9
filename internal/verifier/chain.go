package verifier

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"time"
)

// TrustRoot is a vendor attestation root's public key, pinned into the
// server at startup (§4.2 step 2: "the last must chain to a pinned
// vendor attestation root whose public key is built into the server").
// Only the public key is needed; the root certificate itself need not
// be presented by the client or stored by the server.
type TrustRoot struct {
	PublicKey any
}

// parseChain decodes the client-submitted DER certificates into a chain
// of at least two certificates, per §4.2 step 2.
func parseChain(der [][]byte) ([]*x509.Certificate, *ChainError) {
	if len(der) < 2 {
		return nil, newChainError(ChainErrorTooShort, nil, "attestation bundle must contain at least the leaf and one issuer")
	}
	chain := make([]*x509.Certificate, 0, len(der))
	for _, b := range der {
		cert, err := x509.ParseCertificate(b)
		if err != nil {
			return nil, newChainError(ChainErrorMalformed, nil, err.Error())
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

// verifySignatureChain checks §4.2 step 3: every certificate's signature
// against its issuer's public key, and every certificate's validity
// window against now. The last certificate in chain is checked against
// roots instead of chain[i+1].
func verifySignatureChain(chain []*x509.Certificate, roots []TrustRoot, now time.Time) *ChainError {
	for i, cert := range chain {
		if now.Before(cert.NotBefore) {
			return newChainError(ChainErrorNotYetValid, cert, "NotBefore is in the future")
		}
		if now.After(cert.NotAfter) {
			return newChainError(ChainErrorExpired, cert, "NotAfter has passed")
		}

		if i+1 < len(chain) {
			if err := cert.CheckSignatureFrom(chain[i+1]); err != nil {
				return newChainError(ChainErrorSignature, cert, err.Error())
			}
			continue
		}

		if !checkSignatureFromAnyRoot(cert, roots) {
			return newChainError(ChainErrorUntrustedRoot, cert, "no pinned root validated this certificate's signature")
		}
	}
	return nil
}

// checkSignatureFromAnyRoot verifies cert's signature against each
// root's public key. Only the public key is pinned (not a full
// certificate), so a minimal v1 certificate shell is used to drive
// crypto/x509's own signature-verification routine rather than
// reimplementing per-algorithm verification by hand. The shell carries
// the key's algorithm because crypto/x509 refuses a parent whose public
// key algorithm is unknown.
func checkSignatureFromAnyRoot(cert *x509.Certificate, roots []TrustRoot) bool {
	for _, root := range roots {
		var algo x509.PublicKeyAlgorithm
		switch root.PublicKey.(type) {
		case *rsa.PublicKey:
			algo = x509.RSA
		case *ecdsa.PublicKey:
			algo = x509.ECDSA
		case ed25519.PublicKey:
			algo = x509.Ed25519
		}
		shell := &x509.Certificate{Version: 1, PublicKey: root.PublicKey, PublicKeyAlgorithm: algo}
		if err := cert.CheckSignatureFrom(shell); err == nil {
			return true
		}
	}
	return false
}
