package ingress

import (
	"encoding/json"
	"net/http"

	"github.com/openattest/attestation-server/internal/apierr"
)

// writeAPIError maps a tagged core error to the §7 HTTP status and
// renders its message as plain text, except Internal, whose detail
// never leaves the process.
func writeAPIError(w http.ResponseWriter, admin bool, err *apierr.Error) {
	status := err.HTTPStatus(admin)
	if err.Kind == apierr.Internal {
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Message, status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
