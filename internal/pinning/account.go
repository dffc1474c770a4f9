package pinning

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
	subscribeKeyLen = 32

	// MinVerifyInterval/MaxVerifyInterval/MinAlertDelay/MaxAlertDelay
	// bound the configuration guard, §8 property 7.
	MinVerifyInterval = time.Hour
	MaxVerifyInterval = 7 * 24 * time.Hour
	MinAlertDelay     = 32 * time.Hour
	MaxAlertDelay     = 14 * 24 * time.Hour

	DefaultVerifyInterval = 4 * time.Hour
	DefaultAlertDelay     = 48 * time.Hour
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]{1,32}$`)

// roleAddress is the email blacklist from §6, "a blacklist of regular
// expressions (bootstrapped in code) rejects role addresses at
// configuration time."
var roleAddress = regexp.MustCompile(`(?i)^(postmaster|abuse|noc|security|hostmaster|webmaster|root|admin)@`)

// Account is the §3 Account entity.
type Account struct {
	UserID         uint64
	Username       string
	PasswordSalt   []byte
	PasswordHash   []byte
	SubscribeKey   []byte
	VerifyInterval time.Duration
	AlertDelay     time.Duration
	Email          string
}

// ValidUsername reports whether a candidate username satisfies the §3
// pattern.
func ValidUsername(u string) bool { return usernamePattern.MatchString(u) }

// ValidEmail reports whether an email clears the role-address blacklist.
// An empty email (no contact address configured) is always valid.
func ValidEmail(email string) bool {
	if email == "" {
		return true
	}
	return !roleAddress.MatchString(email)
}

// ValidConfiguration implements §8 property 7: a configuration update is
// accepted iff both intervals are within bounds and alertDelay exceeds
// verifyInterval.
func ValidConfiguration(verifyInterval, alertDelay time.Duration) bool {
	if verifyInterval < MinVerifyInterval || verifyInterval > MaxVerifyInterval {
		return false
	}
	if alertDelay < MinAlertDelay || alertDelay > MaxAlertDelay {
		return false
	}
	return alertDelay > verifyInterval
}

// hashPassword derives a scrypt(N=32768,r=8,p=1,32) verifier from a
// freshly generated salt, per §3.
func hashPassword(password string) (salt, hash []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("generating salt: %w", err)
	}
	hash, err = scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving password verifier: %w", err)
	}
	return salt, hash, nil
}

// verifyPassword checks password against a stored salt+hash in constant
// time.
func verifyPassword(password string, salt, wantHash []byte) (bool, error) {
	gotHash, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return false, fmt.Errorf("deriving password verifier: %w", err)
	}
	return subtle.ConstantTimeCompare(gotHash, wantHash) == 1, nil
}

// newSubscribeKey draws a fresh 32-byte rotatable shared secret.
func newSubscribeKey() ([]byte, error) {
	k := make([]byte, subscribeKeyLen)
	if _, err := rand.Read(k); err != nil {
		return nil, fmt.Errorf("generating subscribe key: %w", err)
	}
	return k, nil
}
