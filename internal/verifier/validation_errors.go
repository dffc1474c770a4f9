package verifier

import (
	"crypto/x509"
	"fmt"
)

// ChainErrorCode narrows why certificate-chain validation failed, in the
// same spirit as the teacher's CertificateValidationErrorCode — but
// scoped to the attestation-chain checks this server actually performs
// (§4.2 steps 2-3), not a generic custom-checker framework.
type ChainErrorCode int

const (
	ChainErrorMalformed ChainErrorCode = iota
	ChainErrorTooShort
	ChainErrorExpired
	ChainErrorNotYetValid
	ChainErrorSignature
	ChainErrorUntrustedRoot
)

func (c ChainErrorCode) String() string {
	switch c {
	case ChainErrorTooShort:
		return "chain has fewer than two certificates"
	case ChainErrorExpired:
		return "certificate expired"
	case ChainErrorNotYetValid:
		return "certificate not yet valid"
	case ChainErrorSignature:
		return "certificate signature verification failed"
	case ChainErrorUntrustedRoot:
		return "chain does not terminate at the pinned vendor root"
	default:
		return "malformed certificate chain"
	}
}

// ChainError reports which certificate in the chain failed and why.
type ChainError struct {
	Code        ChainErrorCode
	Certificate *x509.Certificate // nil for malformed/too-short
	Message     string
}

func (e *ChainError) Error() string {
	if e.Certificate != nil {
		return fmt.Sprintf("%s: %s (subject=%s)", e.Code, e.Message, e.Certificate.Subject)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newChainError(code ChainErrorCode, cert *x509.Certificate, message string) *ChainError {
	return &ChainError{Code: code, Certificate: cert, Message: message}
}
