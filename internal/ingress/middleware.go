package ingress

import "net/http"

// WorkerLimit is the nominal worker-pool size from spec.md §5: "a
// fixed-size worker pool (nominal 128 workers, bounded accept backlog ≈
// 1024)". net/http already gives each connection its own goroutine, so
// this middleware stands in for the pool bound alone: a buffered
// channel acquired at the top of every handler, released on return.
const WorkerLimit = 128

// withWorkerLimit bounds in-flight handler execution to WorkerLimit
// concurrent requests; callers beyond that wait on the channel send.
// The number of waiting requests is not capped here.
func withWorkerLimit(next http.Handler) http.Handler {
	sem := make(chan struct{}, WorkerLimit)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sem <- struct{}{}
		defer func() { <-sem }()
		next.ServeHTTP(w, r)
	})
}

// withOriginCheck implements §4.6: "Origin/Sec-Fetch-* headers, when
// present, must equal the server's canonical origin; absent is allowed
// (native-app clients)." An empty CanonicalOrigin disables the check
// entirely, for deployments behind a proxy that already enforces it.
func (s *Server) withOriginCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.CanonicalOrigin != "" {
			if origin := r.Header.Get("Origin"); origin != "" && origin != s.CanonicalOrigin {
				http.Error(w, "origin mismatch", http.StatusForbidden)
				return
			}
			if site := r.Header.Get("Sec-Fetch-Site"); site != "" && site != "same-origin" && site != "none" {
				http.Error(w, "cross-site request rejected", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// withBodyLimit caps the request body the way net/http.MaxBytesReader
// does: reads past limit fail with an error the handler surfaces as 413.
func withBodyLimit(limit int64, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next(w, r)
	})
}
