// Package ingress implements design component G: thin HTTP decoders
// over the three core endpoints (challenge, verify, submit) plus the
// session-authenticated admin endpoints over the pinning store. Routing
// follows the teacher's http.go, generalized from a single onboarding
// handshake endpoint to the full table in spec.md §6, with
// github.com/gorilla/mux standing in for the teacher's bare
// http.ServeMux so method mismatches 405 instead of 404.
package ingress

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/openattest/attestation-server/internal/challenge"
	"github.com/openattest/attestation-server/internal/pinning"
	"github.com/openattest/attestation-server/internal/samples"
	"github.com/openattest/attestation-server/internal/verifier"
)

// MaxAdminBodySize bounds the JSON bodies of the session-authenticated
// endpoints, which never carry more than a handful of small fields.
const MaxAdminBodySize = 64 * 1024

// maxChallengeBodySize bounds the (normally empty) /challenge body.
const maxChallengeBodySize = 1024

// Server wires design component G over B (Challenges), C (Verifier), D
// (Store) and the Sample store.
type Server struct {
	Verifier        *verifier.Verifier
	Challenges      *challenge.Index
	Store           *pinning.Store
	Samples         *samples.Store
	CanonicalOrigin string
	AdminBodyLimit  int64
	Now             func() time.Time
}

func New(v *verifier.Verifier, challenges *challenge.Index, store *pinning.Store, sampleStore *samples.Store, canonicalOrigin string) *Server {
	return &Server{
		Verifier:        v,
		Challenges:      challenges,
		Store:           store,
		Samples:         sampleStore,
		CanonicalOrigin: canonicalOrigin,
		AdminBodyLimit:  MaxAdminBodySize,
		Now:             time.Now,
	}
}

// Router builds the full §6 route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(withCorrelationID)
	r.Use(withWorkerLimit)
	r.Use(s.withOriginCheck)

	r.Handle("/challenge", withBodyLimit(maxChallengeBodySize, s.handleChallenge)).Methods(http.MethodPost)
	r.Handle("/verify", withBodyLimit(verifier.MaxMessageSize, s.handleVerify)).Methods(http.MethodPost)
	r.Handle("/submit", withBodyLimit(samples.MaxBlobSize, s.handleSubmit)).Methods(http.MethodPost)

	admin := r.PathPrefix("/api").Subrouter()
	admin.Handle("/create-account", withBodyLimit(s.AdminBodyLimit, s.handleCreateAccount)).Methods(http.MethodPost)
	admin.Handle("/login", withBodyLimit(s.AdminBodyLimit, s.handleLogin)).Methods(http.MethodPost)
	admin.Handle("/logout", withBodyLimit(s.AdminBodyLimit, s.handleLogout)).Methods(http.MethodPost)
	admin.Handle("/account", withBodyLimit(s.AdminBodyLimit, s.handleAccount)).Methods(http.MethodPost)
	admin.Handle("/devices.json", withBodyLimit(s.AdminBodyLimit, s.handleDevices)).Methods(http.MethodPost)
	admin.Handle("/attestation-history.json", withBodyLimit(s.AdminBodyLimit, s.handleHistory)).Methods(http.MethodPost)
	admin.Handle("/delete-device", withBodyLimit(s.AdminBodyLimit, s.handleDeleteDevice)).Methods(http.MethodPost)
	admin.Handle("/configuration", withBodyLimit(s.AdminBodyLimit, s.handleConfiguration)).Methods(http.MethodPost)

	r.Handle("/logout-everywhere", withBodyLimit(s.AdminBodyLimit, s.handleLogoutEverywhere)).Methods(http.MethodPost)

	return r
}
