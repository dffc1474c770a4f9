package ingress

import (
	"encoding/base64"
	"net/http"

	"github.com/openattest/attestation-server/internal/apierr"
	"github.com/openattest/attestation-server/internal/pinning"
)

// authenticate implements the session half of §4.6's double-submit
// check: the __Host-session cookie supplies sessionId+cookieToken, the
// caller-supplied requestToken (base64, from the JSON body) must match
// the row's stored copy.
func (s *Server) authenticate(r *http.Request, cid, requestTokenB64 string) (*pinning.Session, *apierr.Error) {
	cookie, err := r.Cookie(pinning.CookieName)
	if err != nil {
		return nil, apierr.New(apierr.Unauthenticated, cid, "missing session cookie")
	}
	sessionID, cookieToken, perr := pinning.ParseCookieValue(cookie.Value)
	if perr != nil {
		return nil, apierr.New(apierr.Unauthenticated, cid, "malformed session cookie")
	}
	requestToken, derr := base64.StdEncoding.DecodeString(requestTokenB64)
	if derr != nil {
		return nil, apierr.New(apierr.Unauthenticated, cid, "malformed requestToken")
	}
	return s.Store.Authenticate(r.Context(), cid, sessionID, cookieToken, requestToken)
}

// setSessionCookie renders the §6 cookie attributes exactly:
// __Host- prefix, HttpOnly, Secure, SameSite=Strict, Path=/, Max-Age=48h.
func setSessionCookie(w http.ResponseWriter, sess *pinning.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     pinning.CookieName,
		Value:    sess.CookieValue(),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(pinning.SessionTTL.Seconds()),
	})
}
