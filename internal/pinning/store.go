// Package pinning implements design component D: the durable truth
// about accounts, sessions and per-device pinning records. Record runs
// inside a single BEGIN IMMEDIATE transaction via internal/storage; the
// other mutations are issued as individual statements. This generalizes the
// teacher's sqlite.go execer/querier split (insert/update/query helpers
// shared across *sql.DB and *sql.Tx) to this domain's richer
// conditional logic.
package pinning

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"github.com/openattest/attestation-server/internal/apierr"
	"github.com/openattest/attestation-server/internal/storage"
)

// Store wraps the main database connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens path, migrates it to the latest schema, and returns a
// ready Store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// DB exposes the underlying connection for the maintenance loop
// (ANALYZE/VACUUM/backup), which operates outside this package's
// domain-specific transactions.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// CreateAccount implements /api/create-account. Returns apierr.Conflict
// if username is already taken.
func (s *Store) CreateAccount(ctx context.Context, cid, username, password string) (*Account, *apierr.Error) {
	if !ValidUsername(username) {
		return nil, apierr.New(apierr.Malformed, cid, "invalid username")
	}
	salt, hash, err := hashPassword(password)
	if err != nil {
		return nil, apierr.Wrap(cid, err)
	}
	subscribeKey, err := newSubscribeKey()
	if err != nil {
		return nil, apierr.Wrap(cid, err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (username, password_salt, password_hash, subscribe_key, verify_interval, alert_delay)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		username, salt, hash, subscribeKey, int64(DefaultVerifyInterval.Seconds()), int64(DefaultAlertDelay.Seconds()))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apierr.New(apierr.Conflict, cid, "username already taken")
		}
		return nil, apierr.Wrap(cid, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apierr.Wrap(cid, err)
	}
	return &Account{
		UserID: uint64(id), Username: username, PasswordSalt: salt, PasswordHash: hash,
		SubscribeKey: subscribeKey, VerifyInterval: DefaultVerifyInterval, AlertDelay: DefaultAlertDelay,
	}, nil
}

func isUniqueViolation(err error) bool {
	// ncruces/go-sqlite3 surfaces SQLite errors with a message containing
	// "UNIQUE constraint failed"; there is no typed sentinel to match on.
	return err != nil && containsFold(err.Error(), "UNIQUE constraint")
}

func containsFold(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if equalFold(s[i:i+len(substr)], substr) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Login verifies credentials and creates a new 48h session.
func (s *Store) Login(ctx context.Context, cid, username, password string) (*Session, *apierr.Error) {
	var (
		userID           uint64
		salt, hash       []byte
	)
	row := s.db.QueryRowContext(ctx, `SELECT user_id, password_salt, password_hash FROM accounts WHERE username = ?`, username)
	if err := row.Scan(&userID, &salt, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.New(apierr.Unauthenticated, cid, "invalid credentials")
		}
		return nil, apierr.Wrap(cid, err)
	}
	ok, err := verifyPassword(password, salt, hash)
	if err != nil {
		return nil, apierr.Wrap(cid, err)
	}
	if !ok {
		return nil, apierr.New(apierr.Unauthenticated, cid, "invalid credentials")
	}

	cookieToken, err := newToken()
	if err != nil {
		return nil, apierr.Wrap(cid, err)
	}
	requestToken, err := newToken()
	if err != nil {
		return nil, apierr.Wrap(cid, err)
	}
	expiry := s.now().Add(SessionTTL)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, cookie_token, request_token, expiry_time) VALUES (?, ?, ?, ?)`,
		userID, cookieToken, requestToken, expiry.Unix())
	if err != nil {
		return nil, apierr.Wrap(cid, err)
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return nil, apierr.Wrap(cid, err)
	}

	// Opportunistic sweep of this account's expired sessions, per §3.
	_, _ = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ? AND expiry_time < ?`, userID, s.now().Unix())

	return &Session{
		SessionID: uint64(sessionID), UserID: userID,
		CookieToken: cookieToken, RequestToken: requestToken, ExpiryTime: expiry,
	}, nil
}

// Authenticate validates a session cookie + double-submit request token
// pair, per §4.6.
func (s *Store) Authenticate(ctx context.Context, cid string, sessionID uint64, cookieToken, requestToken []byte) (*Session, *apierr.Error) {
	var (
		userID                uint64
		storedCookie, storedReq []byte
		expiry                int64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, cookie_token, request_token, expiry_time FROM sessions WHERE session_id = ?`, sessionID)
	if err := row.Scan(&userID, &storedCookie, &storedReq, &expiry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.New(apierr.Unauthenticated, cid, "unknown session")
		}
		return nil, apierr.Wrap(cid, err)
	}
	if s.now().Unix() > expiry {
		return nil, apierr.New(apierr.Unauthenticated, cid, "session expired")
	}
	if !matchesToken(cookieToken, storedCookie) || !matchesToken(requestToken, storedReq) {
		return nil, apierr.New(apierr.Unauthenticated, cid, "token mismatch")
	}
	return &Session{SessionID: sessionID, UserID: userID, CookieToken: storedCookie, RequestToken: storedReq, ExpiryTime: time.Unix(expiry, 0)}, nil
}

// Logout deletes a single session.
func (s *Store) Logout(ctx context.Context, cid string, sessionID uint64) *apierr.Error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return apierr.Wrap(cid, err)
	}
	return nil
}

// LogoutEverywhere deletes every session owned by userID.
func (s *Store) LogoutEverywhere(ctx context.Context, cid string, userID uint64) *apierr.Error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return apierr.Wrap(cid, err)
	}
	return nil
}

// Account loads an account by ID.
func (s *Store) Account(ctx context.Context, cid string, userID uint64) (*Account, *apierr.Error) {
	var a Account
	var verifySecs, alertSecs int64
	var email sql.NullString
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, subscribe_key, verify_interval, alert_delay, email FROM accounts WHERE user_id = ?`, userID)
	if err := row.Scan(&a.UserID, &a.Username, &a.SubscribeKey, &verifySecs, &alertSecs, &email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.New(apierr.Malformed, cid, "unknown account")
		}
		return nil, apierr.Wrap(cid, err)
	}
	a.VerifyInterval = time.Duration(verifySecs) * time.Second
	a.AlertDelay = time.Duration(alertSecs) * time.Second
	a.Email = email.String
	return &a, nil
}

// UpdateConfiguration implements /api/configuration, enforcing §8
// property 7.
func (s *Store) UpdateConfiguration(ctx context.Context, cid string, userID uint64, verifyInterval, alertDelay time.Duration, email string) *apierr.Error {
	if !ValidConfiguration(verifyInterval, alertDelay) {
		return apierr.New(apierr.Malformed, cid, "verifyInterval/alertDelay out of bounds")
	}
	if !ValidEmail(email) {
		return apierr.New(apierr.Malformed, cid, "role address rejected")
	}
	var emailArg any
	if email != "" {
		emailArg = email
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET verify_interval = ?, alert_delay = ?, email = ? WHERE user_id = ?`,
		int64(verifyInterval.Seconds()), int64(alertDelay.Seconds()), emailArg, userID); err != nil {
		return apierr.Wrap(cid, err)
	}
	return nil
}

// subscribeKeyBase64 is a small formatting helper for the /verify
// success response (§6: "base64(subscribeKey) ' ' verifyInterval").
func subscribeKeyBase64(key []byte) string { return base64.StdEncoding.EncodeToString(key) }
