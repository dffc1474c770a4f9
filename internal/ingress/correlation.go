package ingress

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const cidKey ctxKey = 0

// withCorrelationID stamps every request with a fresh UUID, attached to
// both the request context (for handlers) and the apierr results they
// produce, so a single ID ties a log line to the response it produced.
func withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := uuid.NewString()
		w.Header().Set("X-Correlation-Id", cid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), cidKey, cid)))
	})
}

func correlationID(r *http.Request) string {
	if v, ok := r.Context().Value(cidKey).(string); ok {
		return v
	}
	return ""
}
