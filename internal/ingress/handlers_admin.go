package ingress

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/openattest/attestation-server/internal/apierr"
)

type requestTokenOnly struct {
	RequestToken string `json:"requestToken"`
}

func decodeJSON(r *http.Request, cid string, v any) *apierr.Error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierr.New(apierr.TooLarge, cid, "body too large")
		}
		return apierr.New(apierr.Malformed, cid, "malformed request body")
	}
	return nil
}

func decodeFingerprint(hexStr, cid string) ([32]byte, *apierr.Error) {
	var fp [32]byte
	raw, err := hex.DecodeString(hexStr)
	if err != nil || len(raw) != 32 {
		return fp, apierr.New(apierr.Malformed, cid, "malformed fingerprint")
	}
	copy(fp[:], raw)
	return fp, nil
}

type createAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	var req createAccountRequest
	if aerr := decodeJSON(r, cid, &req); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	if _, aerr := s.Store.CreateAccount(r.Context(), cid, req.Username, req.Password); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	var req loginRequest
	if aerr := decodeJSON(r, cid, &req); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	sess, aerr := s.Store.Login(r.Context(), cid, req.Username, req.Password)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	setSessionCookie(w, sess)
	w.Write([]byte(base64.StdEncoding.EncodeToString(sess.RequestToken)))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	var req requestTokenOnly
	if aerr := decodeJSON(r, cid, &req); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	sess, aerr := s.authenticate(r, cid, req.RequestToken)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	if aerr := s.Store.Logout(r.Context(), cid, sess.SessionID); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLogoutEverywhere(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	var req requestTokenOnly
	if aerr := decodeJSON(r, cid, &req); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	sess, aerr := s.authenticate(r, cid, req.RequestToken)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	if aerr := s.Store.LogoutEverywhere(r.Context(), cid, sess.UserID); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type accountResponse struct {
	UserID         uint64 `json:"userId"`
	Username       string `json:"username"`
	SubscribeKey   string `json:"subscribeKey"`
	VerifyInterval int64  `json:"verifyInterval"`
	AlertDelay     int64  `json:"alertDelay"`
	Email          string `json:"email,omitempty"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	var req requestTokenOnly
	if aerr := decodeJSON(r, cid, &req); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	sess, aerr := s.authenticate(r, cid, req.RequestToken)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	account, aerr := s.Store.Account(r.Context(), cid, sess.UserID)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	writeJSON(w, accountResponse{
		UserID:         account.UserID,
		Username:       account.Username,
		SubscribeKey:   base64.StdEncoding.EncodeToString(account.SubscribeKey),
		VerifyInterval: int64(account.VerifyInterval.Seconds()),
		AlertDelay:     int64(account.AlertDelay.Seconds()),
		Email:          account.Email,
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	var req requestTokenOnly
	if aerr := decodeJSON(r, cid, &req); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	sess, aerr := s.authenticate(r, cid, req.RequestToken)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	devices, aerr := s.Store.ListDevices(r.Context(), cid, sess.UserID)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	out := make([]deviceJSON, 0, len(devices))
	for _, d := range devices {
		out = append(out, toDeviceJSON(d))
	}
	writeJSON(w, out)
}

type historyRequest struct {
	Fingerprint  string `json:"fingerprint"`
	OffsetID     uint64 `json:"offsetId"`
	RequestToken string `json:"requestToken"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	var req historyRequest
	if aerr := decodeJSON(r, cid, &req); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	sess, aerr := s.authenticate(r, cid, req.RequestToken)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	fp, aerr := decodeFingerprint(req.Fingerprint, cid)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	hist, aerr := s.Store.AttestationHistory(r.Context(), cid, sess.UserID, fp, req.OffsetID)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	out := make([]historyEntryJSON, 0, len(hist))
	for _, h := range hist {
		out = append(out, toHistoryJSON(h))
	}
	writeJSON(w, out)
}

type deleteDeviceRequest struct {
	Fingerprint  string `json:"fingerprint"`
	RequestToken string `json:"requestToken"`
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	var req deleteDeviceRequest
	if aerr := decodeJSON(r, cid, &req); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	sess, aerr := s.authenticate(r, cid, req.RequestToken)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	fp, aerr := decodeFingerprint(req.Fingerprint, cid)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	if aerr := s.Store.DeleteDevice(r.Context(), cid, sess.UserID, fp); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type configurationRequest struct {
	VerifyInterval int64  `json:"verifyInterval"`
	AlertDelay     int64  `json:"alertDelay"`
	Email          string `json:"email"`
	RequestToken   string `json:"requestToken"`
}

func (s *Server) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	var req configurationRequest
	if aerr := decodeJSON(r, cid, &req); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	sess, aerr := s.authenticate(r, cid, req.RequestToken)
	if aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	if aerr := s.Store.UpdateConfiguration(r.Context(), cid, sess.UserID,
		time.Duration(req.VerifyInterval)*time.Second, time.Duration(req.AlertDelay)*time.Second, req.Email); aerr != nil {
		writeAPIError(w, true, aerr)
		return
	}
	w.WriteHeader(http.StatusOK)
}
