package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/smitius/flea-market/internal/observability"
)

const (
	defaultMaxAttempts      = 5
	defaultLockoutWindow    = 15 * time.Minute
	defaultIdleTimeout      = 2 * time.Hour
	defaultRememberTTL      = 7 * 24 * time.Hour
	defaultAttemptRetention = 7 * 24 * time.Hour
	minPasswordLen          = 6
)

// CredentialStore holds accounts and their salted password hashes.
type CredentialStore interface {
	GetByUsername(ctx context.Context, username string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	UpdatePassword(ctx context.Context, accountID, passwordHash string) error
}

// AttemptLedger is the append-only record of failed logins, keyed by
// source address.
type AttemptLedger interface {
	RecordFailure(ctx context.Context, attempt FailedAttempt) error
	CountFailuresSince(ctx context.Context, address string, since time.Time) (int, error)
	RecentFailures(ctx context.Context, limit int) ([]FailedAttempt, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionRegistry tracks one row per login session.
type SessionRegistry interface {
	CreateSession(ctx context.Context, record SessionRecord) error
	GetSession(ctx context.Context, token string) (SessionRecord, error)
	TouchSession(ctx context.Context, token, accountID string, at time.Time) error
	CloseSession(ctx context.Context, token, accountID string) error
	CloseOtherSessions(ctx context.Context, accountID, keepToken string) (int64, error)
	ListActiveSessions(ctx context.Context, accountID string) ([]SessionRecord, error)
	ExpireIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service is the authentication gate: it checks lockout state, verifies
// credentials, and issues and revokes registry sessions.
type Service struct {
	creds    CredentialStore
	ledger   AttemptLedger
	sessions SessionRegistry
	logger   *observability.Logger

	maxAttempts      int
	lockoutWindow    time.Duration
	idleTimeout      time.Duration
	rememberTTL      time.Duration
	attemptRetention time.Duration

	now func() time.Time
}

func NewService(creds CredentialStore, ledger AttemptLedger, sessions SessionRegistry, logger *observability.Logger) *Service {
	return &Service{
		creds:            creds,
		ledger:           ledger,
		sessions:         sessions,
		logger:           logger,
		maxAttempts:      defaultMaxAttempts,
		lockoutWindow:    defaultLockoutWindow,
		idleTimeout:      defaultIdleTimeout,
		rememberTTL:      defaultRememberTTL,
		attemptRetention: defaultAttemptRetention,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithSecurityConfig(maxAttempts int, lockoutWindow, idleTimeout, rememberTTL, attemptRetention time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockoutWindow > 0 {
		s.lockoutWindow = lockoutWindow
	}
	if idleTimeout > 0 {
		s.idleTimeout = idleTimeout
	}
	if rememberTTL > 0 {
		s.rememberTTL = rememberTTL
	}
	if attemptRetention > 0 {
		s.attemptRetention = attemptRetention
	}
}

// RememberTTL is the transport-cookie lifetime for remembered logins.
// Registry rows still expire on the idle rule regardless.
func (s *Service) RememberTTL() time.Duration {
	return s.rememberTTL
}

// Login runs one attempt through the gate: lockout check, credential
// check, session open. Unknown username and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	username := strings.TrimSpace(strings.ToLower(req.Username))
	password := req.Password

	if username == "" || password == "" {
		s.recordFailure(ctx, req, username)
		return LoginResult{}, ErrInvalidCredentials
	}

	now := s.now()
	count, err := s.ledger.CountFailuresSince(ctx, req.Address, now.Add(-s.lockoutWindow))
	if err != nil {
		return LoginResult{}, fmt.Errorf("count failed attempts: %w", err)
	}
	if count >= s.maxAttempts {
		s.logger.Warn("login_rate_limited", map[string]any{"address": req.Address})
		return LoginResult{}, RateLimitedError{RetryAfter: s.lockoutWindow}
	}

	account, err := s.creds.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Burn a bcrypt comparison so an unknown username costs the
			// same as a wrong password.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			s.recordFailure(ctx, req, username)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(ctx, req, username)
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := randomToken(32)
	if err != nil {
		return LoginResult{}, fmt.Errorf("generate session token: %w", err)
	}

	record := SessionRecord{
		AccountID:    account.ID,
		Token:        token,
		Address:      req.Address,
		UserAgent:    truncateUserAgent(req.UserAgent),
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
	}
	// Without a registry row the idle-expiry and audit guarantees are
	// void, so a failed write fails the whole login.
	if err := s.sessions.CreateSession(ctx, record); err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("login_success", map[string]any{"username": username, "address": req.Address})

	return LoginResult{Account: account, Token: token, Remember: req.Remember}, nil
}

// Authenticate resolves a session token to its account. The row must be
// active and within the idle window; success refreshes last_activity.
func (s *Service) Authenticate(ctx context.Context, token string) (Account, SessionRecord, error) {
	if token == "" {
		return Account{}, SessionRecord{}, ErrNoSession
	}

	record, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, SessionRecord{}, ErrNoSession
		}
		return Account{}, SessionRecord{}, fmt.Errorf("lookup session: %w", err)
	}

	now := s.now()
	if !record.Active || record.LastActivity.Before(now.Add(-s.idleTimeout)) {
		return Account{}, SessionRecord{}, ErrNoSession
	}

	account, err := s.creds.GetByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, SessionRecord{}, ErrNoSession
		}
		return Account{}, SessionRecord{}, fmt.Errorf("lookup session account: %w", err)
	}

	// A missing row here means the session raced a close; the request
	// already authenticated, so the lost touch only delays expiry.
	if err := s.sessions.TouchSession(ctx, token, account.ID, now); err != nil {
		s.logger.Error("session_touch_failed", map[string]any{"error": err.Error()})
	}

	return account, record, nil
}

// Logout closes the registry row. Closing an already-closed or unknown
// session is a no-op.
func (s *Service) Logout(ctx context.Context, token, accountID string) error {
	if err := s.sessions.CloseSession(ctx, token, accountID); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	s.logger.Info("logout", map[string]any{"account_id": accountID})
	return nil
}

// ChangePassword replaces the account hash and revokes every other
// active session for the account, keeping only the one that made the
// change.
func (s *Service) ChangePassword(ctx context.Context, account Account, token, current, newPassword, confirm string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(current)); err != nil {
		return ErrWrongCurrentPassword
	}
	if newPassword != confirm {
		return ErrPasswordMismatch
	}
	if len(newPassword) < minPasswordLen {
		return ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.creds.UpdatePassword(ctx, account.ID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	revoked, err := s.sessions.CloseOtherSessions(ctx, account.ID, token)
	if err != nil {
		return fmt.Errorf("revoke other sessions: %w", err)
	}

	s.logger.Info("password_changed", map[string]any{
		"account_id":       account.ID,
		"revoked_sessions": revoked,
	})

	return nil
}

// ActiveSessions lists the account's active sessions, newest activity
// first.
func (s *Service) ActiveSessions(ctx context.Context, accountID string) ([]SessionRecord, error) {
	records, err := s.sessions.ListActiveSessions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return records, nil
}

// RecentFailedAttempts lists the newest ledger rows for the admin view.
func (s *Service) RecentFailedAttempts(ctx context.Context, limit int) ([]FailedAttempt, error) {
	if limit <= 0 {
		limit = 10
	}
	attempts, err := s.ledger.RecentFailures(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed attempts: %w", err)
	}
	return attempts, nil
}

// Sweep expires idle sessions and purges stale ledger rows. It is
// best-effort housekeeping: callers on read paths ignore the error.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()

	expired, err := s.sessions.ExpireIdleBefore(ctx, now.Add(-s.idleTimeout))
	if err != nil {
		return SweepResult{}, fmt.Errorf("expire idle sessions: %w", err)
	}

	purged, err := s.ledger.PurgeBefore(ctx, now.Add(-s.attemptRetention))
	if err != nil {
		return SweepResult{ExpiredSessions: expired}, fmt.Errorf("purge failed attempts: %w", err)
	}

	return SweepResult{ExpiredSessions: expired, PurgedAttempts: purged}, nil
}

// SweepQuietly runs Sweep and logs instead of returning failures. Used
// from opportunistic call sites on read paths.
func (s *Service) SweepQuietly(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("sweep_failed", map[string]any{"error": err.Error()})
	}
}

// recordFailure appends to the ledger. A storage failure here must not
// break the login flow, so it is logged and swallowed.
func (s *Service) recordFailure(ctx context.Context, req LoginRequest, username string) {
	attempt := FailedAttempt{
		Address:     req.Address,
		Username:    username,
		UserAgent:   truncateUserAgent(req.UserAgent),
		AttemptedAt: s.now(),
	}
	if err := s.ledger.RecordFailure(ctx, attempt); err != nil {
		s.logger.Error("record_failed_attempt_failed", map[string]any{"error": err.Error()})
	}
	s.logger.Warn("login_failed", map[string]any{"username": username, "address": req.Address})
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// dummyHash is compared against when the username does not exist, to
// keep response timing uniform.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

var (
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrNoSession            = errors.New("no active session")
	ErrWrongCurrentPassword = errors.New("current password is incorrect")
	ErrPasswordMismatch     = errors.New("password confirmation does not match")
	ErrPasswordTooShort     = errors.New("password must be at least 6 characters")
)

// RateLimitedError is returned when the ledger reports the source
// address locked out. Distinct from ErrInvalidCredentials so the
// transport can answer 429 instead of 401.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return "too many failed login attempts"
}
