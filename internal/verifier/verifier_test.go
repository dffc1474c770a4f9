package verifier

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"math/big"
	"testing"
	"time"

	"github.com/openattest/attestation-server/internal/catalogue"
	"github.com/openattest/attestation-server/internal/challenge"
)

type fakeChallenges struct{ ok bool }

func (f fakeChallenges) Consume(challenge.Nonce) bool { return f.ok }

type fakeCatalogue struct {
	entry catalogue.Entry
	ok    bool
}

func (f fakeCatalogue) Lookup(catalogue.SecurityLevel, [32]byte) (catalogue.Entry, bool) {
	return f.entry, f.ok
}

// buildChain creates root -> batch -> leaf, where leaf carries a
// keystore attestation extension binding nonce and a verified-boot key.
func buildChain(t *testing.T, nonce challenge.Nonce, verifiedBootKey []byte, osVersion, osPatch int64) ([]*x509.Certificate, []byte, TrustRoot) {
	t.Helper()

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		t.Fatal(err)
	}
	_ = rootDER

	batchKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	batchTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "batch"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	batchRootForSigning := *rootTmpl
	batchRootForSigning.PublicKey = &rootKey.PublicKey
	batchDER, err := x509.CreateCertificate(rand.Reader, batchTmpl, &batchRootForSigning, &batchKey.PublicKey, rootKey)
	if err != nil {
		t.Fatal(err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	ext := buildAttestationExtension(t, nonce[:], verifiedBootKey, osVersion, osPatch)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		ExtraExtensions: []pkix.Extension{
			{Id: keyDescriptionOID, Value: ext},
		},
	}
	batchForSigning := *batchTmpl
	batchForSigning.PublicKey = &batchKey.PublicKey
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, &batchForSigning, &leafKey.PublicKey, batchKey)
	if err != nil {
		t.Fatal(err)
	}

	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		t.Fatal(err)
	}
	batch, err := x509.ParseCertificate(batchDER)
	if err != nil {
		t.Fatal(err)
	}

	msg := encodeMessage(t, []byte{0x01, 0x00, 0x00}, [][]byte{leafDER, batchDER})

	return []*x509.Certificate{leaf, batch}, msg, TrustRoot{PublicKey: &rootKey.PublicKey}
}

func buildAttestationExtension(t *testing.T, challengeBytes, verifiedBootKey []byte, osVersion, osPatch int64) []byte {
	t.Helper()

	rot := rootOfTrust{VerifiedBootKey: verifiedBootKey, DeviceLocked: true, VerifiedBootState: 0, VerifiedBootHash: []byte{0xaa}}
	rotDER, err := asn1.Marshal(rot)
	if err != nil {
		t.Fatal(err)
	}

	authList := marshalTaggedSeq(t, map[int]interface{}{
		tagOSVersion:    osVersion,
		tagOSPatchLevel: osPatch,
		tagRootOfTrust:  asn1.RawValue{FullBytes: rotDER},
	})

	kd := keyDescription{
		AttestationVersion:       3,
		AttestationSecurityLevel: 0,
		KeymasterVersion:         3,
		KeymasterSecurityLevel:   0,
		AttestationChallenge:     challengeBytes,
		UniqueID:                 nil,
		SoftwareEnforced:         asn1.RawValue{FullBytes: emptySeq(t)},
		TeeEnforced:              asn1.RawValue{FullBytes: authList},
	}
	out, err := asn1.Marshal(kd)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func emptySeq(t *testing.T) []byte {
	b, err := asn1.Marshal(struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// marshalTaggedSeq builds a SEQUENCE of explicitly-tagged elements for
// use as an AuthorizationList in tests, without depending on the real
// per-field struct shapes used elsewhere in the package.
func marshalTaggedSeq(t *testing.T, tagged map[int]interface{}) []byte {
	t.Helper()
	var body []byte
	for tag, v := range tagged {
		var inner []byte
		var err error
		switch val := v.(type) {
		case int64:
			inner, err = asn1.Marshal(val)
		case asn1.RawValue:
			inner = val.FullBytes
		default:
			t.Fatalf("unsupported tagged value type %T", v)
		}
		if err != nil {
			t.Fatal(err)
		}
		raw := asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: tag, IsCompound: true, Bytes: inner}
		encoded, err := asn1.Marshal(raw)
		if err != nil {
			t.Fatal(err)
		}
		body = append(body, encoded...)
	}
	seq := asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSequence, IsCompound: true, Bytes: body}
	out, err := asn1.Marshal(seq)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func encodeMessage(t *testing.T, header []byte, certs [][]byte) []byte {
	t.Helper()
	out := append([]byte{}, header...)
	countBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(countBuf, uint16(len(certs)))
	out = append(out, countBuf...)
	for _, c := range certs {
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(len(c)))
		out = append(out, lenBuf...)
		out = append(out, c...)
	}
	return out
}

func TestVerifyHappyPath(t *testing.T) {
	var nonce challenge.Nonce
	copy(nonce[:], []byte("01234567890123456789012345678901")[:32])
	vbk := sha256.Sum256([]byte("verified-boot-public-key"))

	_, msg, root := buildChain(t, nonce, vbk[:], 14, 20240101)

	v := New([]TrustRoot{root}, fakeChallenges{ok: true}, fakeCatalogue{entry: catalogue.Entry{OSFamily: "GrapheneOS"}, ok: true})

	res := v.Verify("cid-1", msg)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Report.PinnedVerifiedBootKey != vbk {
		t.Fatalf("verified boot key digest mismatch")
	}
	if res.Report.PinnedOSVersion != 14 {
		t.Fatalf("expected osVersion 14, got %d", res.Report.PinnedOSVersion)
	}
}

func TestVerifyStaleChallenge(t *testing.T) {
	var nonce challenge.Nonce
	_, msg, root := buildChain(t, nonce, []byte("k"), 1, 1)

	v := New([]TrustRoot{root}, fakeChallenges{ok: false}, fakeCatalogue{ok: true})
	res := v.Verify("cid-2", msg)
	if res.Err == nil || res.Err.Kind.String() != "stale_challenge" {
		t.Fatalf("expected StaleChallenge, got %v", res.Err)
	}
}

func TestVerifyUnknownDevice(t *testing.T) {
	var nonce challenge.Nonce
	vbk := sha256.Sum256([]byte("k"))
	_, msg, root := buildChain(t, nonce, vbk[:], 1, 1)

	v := New([]TrustRoot{root}, fakeChallenges{ok: true}, fakeCatalogue{ok: false})
	res := v.Verify("cid-3", msg)
	if res.Err == nil || res.Err.Kind.String() != "unknown_device" {
		t.Fatalf("expected UnknownDevice, got %v", res.Err)
	}
}

func TestParseMessageRejectsBadVersion(t *testing.T) {
	v := New(nil, fakeChallenges{ok: true}, fakeCatalogue{ok: true})
	msg := encodeMessage(t, []byte{0x09, 0x00, 0x00}, nil)
	res := v.Verify("cid-4", msg)
	if res.Err == nil || res.Err.Kind.String() != "malformed" {
		t.Fatalf("expected Malformed for bad version, got %v", res.Err)
	}
}
