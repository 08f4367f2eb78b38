package auth

import "time"

const maxUserAgentLen = 500

type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionRecord is one row in the session registry. Rows are flipped
// inactive on logout or idle expiry, never deleted, so the registry
// doubles as an audit trail.
type SessionRecord struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Token        string    `json:"-"`
	Address      string    `json:"address"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Active       bool      `json:"active"`
}

// FailedAttempt is an append-only ledger row. The username is
// attacker-supplied and may not reference any account.
type FailedAttempt struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	Username    string    `json:"username"`
	UserAgent   string    `json:"user_agent"`
	AttemptedAt time.Time `json:"attempted_at"`
}

type LoginRequest struct {
	Username  string
	Password  string
	Remember  bool
	Address   string
	UserAgent string
}

type LoginResult struct {
	Account  Account
	Token    string
	Remember bool
}

type SweepResult struct {
	ExpiredSessions int64 `json:"expired_sessions"`
	PurgedAttempts  int64 `json:"purged_attempts"`
}

func truncateUserAgent(ua string) string {
	if len(ua) > maxUserAgentLen {
		return ua[:maxUserAgentLen]
	}
	return ua
}
