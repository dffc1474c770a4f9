package pinning

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	tokenLen     = 32
	SessionTTL   = 48 * time.Hour
	CookieName   = "__Host-session"
)

// Session is the §3 Session entity: two independent tokens implementing
// the double-submit CSRF pattern (cookieToken travels in the __Host-
// cookie, requestToken travels in the request body/header).
type Session struct {
	SessionID    uint64
	UserID       uint64
	CookieToken  []byte
	RequestToken []byte
	ExpiryTime   time.Time
}

func newToken() ([]byte, error) {
	b := make([]byte, tokenLen)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating session token: %w", err)
	}
	return b, nil
}

// CookieValue renders the §6 session-cookie value:
// "<sessionId:decimal>|<base64(cookieToken)>".
func (s Session) CookieValue() string {
	return strconv.FormatUint(s.SessionID, 10) + "|" + base64.StdEncoding.EncodeToString(s.CookieToken)
}

// ParseCookieValue parses a cookie value back into a session ID and
// cookie token, without looking anything up in storage.
func ParseCookieValue(v string) (sessionID uint64, cookieToken []byte, err error) {
	parts := strings.SplitN(v, "|", 2)
	if len(parts) != 2 {
		return 0, nil, fmt.Errorf("malformed session cookie")
	}
	sessionID, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("malformed session id: %w", err)
	}
	cookieToken, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return 0, nil, fmt.Errorf("malformed cookie token: %w", err)
	}
	return sessionID, cookieToken, nil
}

// matchesToken does a constant-time comparison, used for both the
// cookie token and the double-submit request token.
func matchesToken(got, want []byte) bool {
	return len(got) == len(want) && subtle.ConstantTimeCompare(got, want) == 1
}
