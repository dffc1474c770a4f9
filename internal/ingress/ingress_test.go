package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/openattest/attestation-server/internal/catalogue"
	"github.com/openattest/attestation-server/internal/challenge"
	"github.com/openattest/attestation-server/internal/pinning"
	"github.com/openattest/attestation-server/internal/samples"
	"github.com/openattest/attestation-server/internal/verifier"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	store, err := pinning.Open(ctx, filepath.Join(t.TempDir(), "main.db"))
	if err != nil {
		t.Fatalf("opening pinning store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sampleStore, err := samples.Open(ctx, filepath.Join(t.TempDir(), "samples.db"))
	if err != nil {
		t.Fatalf("opening sample store: %v", err)
	}
	t.Cleanup(func() { sampleStore.Close() })

	v := verifier.New(nil, challenge.New(), catalogue.New(nil))
	return New(v, challenge.New(), store, sampleStore, "")
}

func TestChallengeReturnsFramedNonce(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/challenge", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.Bytes()
	if len(body) != 1+challengeReservedLen+challenge.Len {
		t.Fatalf("unexpected response length %d", len(body))
	}
	if body[0] != 1 {
		t.Fatalf("unexpected version byte %d", body[0])
	}
}

func TestSubmitAcceptsOpaqueBlob(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader([]byte("opaque-blob")))
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestVerifyRejectsMissingAuthorization(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader([]byte("junk")))
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestVerifyRejectsUnknownAccount(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader([]byte("junk")))
	req.Header.Set("Authorization", "Auditor 999")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

// TestAccountLifecycle exercises create-account -> login -> account ->
// devices.json (empty) -> configuration -> logout through the real
// double-submit cookie/token flow, end to end.
func TestAccountLifecycle(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	doJSON := func(path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := doJSON("/api/create-account", createAccountRequest{Username: "alice", Password: "correct horse battery staple"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("create-account status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doJSON("/api/login", loginRequest{Username: "alice", Password: "correct horse battery staple"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rr.Code, rr.Body.String())
	}
	requestToken := rr.Body.String()
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != pinning.CookieName {
		t.Fatalf("expected session cookie, got %v", cookies)
	}

	rr = doJSON("/api/account", requestTokenOnly{RequestToken: requestToken}, cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("account status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var acc accountResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &acc); err != nil {
		t.Fatal(err)
	}
	if acc.Username != "alice" {
		t.Fatalf("unexpected username %q", acc.Username)
	}

	rr = doJSON("/api/devices.json", requestTokenOnly{RequestToken: requestToken}, cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("devices status = %d", rr.Code)
	}
	var devices []deviceJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &devices); err != nil {
		t.Fatal(err)
	}
	if len(devices) != 0 {
		t.Fatalf("expected no devices, got %d", len(devices))
	}

	rr = doJSON("/api/configuration", configurationRequest{
		VerifyInterval: int64(pinning.DefaultVerifyInterval.Seconds()),
		AlertDelay:     int64(pinning.DefaultAlertDelay.Seconds()),
		Email:          "alice@example.com",
		RequestToken:   requestToken,
	}, cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("configuration status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doJSON("/api/logout", requestTokenOnly{RequestToken: requestToken}, cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doJSON("/api/account", requestTokenOnly{RequestToken: requestToken}, cookies)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected session to be gone after logout, got %d", rr.Code)
	}
}

func TestCreateAccountConflict(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	post := func(body any) *httptest.ResponseRecorder {
		b, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/create-account", bytes.NewReader(b))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	if rr := post(createAccountRequest{Username: "bob", Password: "hunter2hunter2"}); rr.Code != http.StatusOK {
		t.Fatalf("first create-account status = %d", rr.Code)
	}
	if rr := post(createAccountRequest{Username: "bob", Password: "different-password"}); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate username, got %d", rr.Code)
	}
}
