package ingress

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/openattest/attestation-server/internal/apierr"
	"github.com/openattest/attestation-server/internal/challenge"
	"github.com/openattest/attestation-server/internal/pinning"
)

// challengeReservedLen is the zero-filled span the §6 wire format
// reserves between the version byte and the nonce.
const challengeReservedLen = 32

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	n := s.Challenges.Issue()
	resp := make([]byte, 1+challengeReservedLen+challenge.Len)
	resp[0] = 1
	copy(resp[1+challengeReservedLen:], n[:])
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(resp)
}

// handleVerify implements /verify: Authorization carries "Auditor
// <userId> [<base64 subscribeKey>]", the body is the opaque attestation
// bundle C consumes, and D's Record outcome decides the response.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)

	userID, subscribeKey, aerr := parseAuditorAuth(r.Header.Get("Authorization"), cid)
	if aerr != nil {
		writeAPIError(w, false, aerr)
		return
	}

	account, aerr := s.Store.Account(r.Context(), cid, userID)
	if aerr != nil {
		writeAPIError(w, false, apierr.New(apierr.Unauthenticated, cid, "unknown account"))
		return
	}

	strong := false
	if subscribeKey != nil {
		if subtle.ConstantTimeCompare(subscribeKey, account.SubscribeKey) != 1 {
			writeAPIError(w, false, apierr.New(apierr.Unauthenticated, cid, "subscribeKey mismatch"))
			return
		}
		strong = true
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIError(w, false, readBodyError(err, cid))
		return
	}

	result := s.Verifier.Verify(cid, body)
	if result.Err != nil {
		writeAPIError(w, false, result.Err)
		return
	}

	outcome, aerr := s.Store.Record(r.Context(), cid, result.Report, userID, strong)
	if aerr != nil {
		writeAPIError(w, false, aerr)
		return
	}
	if !outcome.Success() {
		writeAPIError(w, false, outcomeError(outcome, cid))
		return
	}

	w.Write([]byte(base64.StdEncoding.EncodeToString(account.SubscribeKey) + " " + strconv.FormatInt(int64(account.VerifyInterval.Seconds()), 10)))
}

// outcomeError renders a §4.3 continuity failure as the matching §7
// error kind, for the handler's single error-writing path.
func outcomeError(o pinning.Outcome, cid string) *apierr.Error {
	switch o {
	case pinning.OutcomeMismatchOwner:
		return apierr.NewMismatch(apierr.ReasonOwner, cid, "device owned by a different account")
	case pinning.OutcomeMismatchPinning:
		return apierr.NewMismatch(apierr.ReasonPinning, cid, "pinned identity changed")
	case pinning.OutcomeMismatchDowngrade:
		return apierr.NewMismatch(apierr.ReasonDowngrade, cid, "monotonic counter regressed")
	case pinning.OutcomeRevoked:
		return apierr.New(apierr.Revoked, cid, "device has been deleted")
	default:
		return apierr.New(apierr.Internal, cid, "unexpected record outcome")
	}
}

// parseAuditorAuth parses "Auditor <userId> [<base64 subscribeKey>]".
func parseAuditorAuth(header, cid string) (userID uint64, subscribeKey []byte, aerr *apierr.Error) {
	fields := strings.Fields(header)
	if len(fields) < 2 || fields[0] != "Auditor" {
		return 0, nil, apierr.New(apierr.Unauthenticated, cid, "missing Auditor authorization")
	}
	id, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, nil, apierr.New(apierr.Malformed, cid, "malformed userId")
	}
	if len(fields) >= 3 {
		key, err := base64.StdEncoding.DecodeString(fields[2])
		if err != nil {
			return 0, nil, apierr.New(apierr.Malformed, cid, "malformed subscribeKey")
		}
		return id, key, nil
	}
	return id, nil, nil
}

// readBodyError classifies an io.ReadAll failure on a body wrapped by
// http.MaxBytesReader: only the size-exceeded case is a client-caused
// §7 TooLarge; anything else (a mid-body disconnect, a transport
// fault) is an Internal, since the server itself didn't reject it.
func readBodyError(err error, cid string) *apierr.Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.New(apierr.TooLarge, cid, "body too large")
	}
	return apierr.New(apierr.Internal, cid, "reading request body")
}

// handleSubmit implements /submit: a write-only opaque blob, capped at
// samples.MaxBlobSize.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIError(w, false, readBodyError(err, cid))
		return
	}
	if err := s.Samples.Insert(r.Context(), body); err != nil {
		writeAPIError(w, false, apierr.Wrap(cid, err))
		return
	}
	w.WriteHeader(http.StatusOK)
}
