package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Repository backs the credential store, the failed-attempt ledger and
// the session registry with Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (Account, error) {
	var account Account
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at, updated_at
		FROM accounts
		WHERE username = $1
	`, username).Scan(&account.ID, &account.Username, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("query account by username: %w", err)
	}

	return account, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (Account, error) {
	var account Account
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id).Scan(&account.ID, &account.Username, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("query account by id: %w", err)
	}

	return account, nil
}

func (r *Repository) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, accountID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("password update rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// UpsertAdminAccount provisions the single admin account from the
// environment at boot. An existing account keeps its id; extra accounts
// from older deployments are removed.
func (r *Repository) UpsertAdminAccount(ctx context.Context, username, plainPassword string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate uuid v7: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM accounts ORDER BY created_at ASC LIMIT 1`).Scan(&existingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existingID = id.String()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO accounts (id, username, password_hash, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $4)
			`, existingID, username, string(hash), now); err != nil {
				return fmt.Errorf("insert admin account: %w", err)
			}
		} else {
			return fmt.Errorf("select existing account: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET username = $2, password_hash = $3, updated_at = $4
			WHERE id = $1
		`, existingID, username, string(hash), now); err != nil {
			return fmt.Errorf("update admin account: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id <> $1`, existingID); err != nil {
		return fmt.Errorf("cleanup extra accounts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (r *Repository) RecordFailure(ctx context.Context, attempt FailedAttempt) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate attempt id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO failed_login_attempts (id, address, username, user_agent, attempted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), attempt.Address, attempt.Username, attempt.UserAgent, attempt.AttemptedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert failed attempt: %w", err)
	}

	return nil
}

func (r *Repository) CountFailuresSince(ctx context.Context, address string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM failed_login_attempts
		WHERE address = $1 AND attempted_at > $2
	`, address, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failed attempts: %w", err)
	}

	return count, nil
}

func (r *Repository) RecentFailures(ctx context.Context, limit int) ([]FailedAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, address, username, user_agent, attempted_at
		FROM failed_login_attempts
		ORDER BY attempted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]FailedAttempt, 0)
	for rows.Next() {
		var attempt FailedAttempt
		if err := rows.Scan(&attempt.ID, &attempt.Address, &attempt.Username, &attempt.UserAgent, &attempt.AttemptedAt); err != nil {
			return nil, fmt.Errorf("scan failed attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failed attempts: %w", err)
	}

	return attempts, nil
}

func (r *Repository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM failed_login_attempts
		WHERE attempted_at < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge failed attempts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purged attempts rows affected: %w", err)
	}

	return affected, nil
}

func (r *Repository) CreateSession(ctx context.Context, record SessionRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate session id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_sessions (id, account_id, session_token, address, user_agent, created_at, last_activity, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
	`, id.String(), record.AccountID, record.Token, record.Address, record.UserAgent,
		record.CreatedAt.UTC(), record.LastActivity.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

func (r *Repository) GetSession(ctx context.Context, token string) (SessionRecord, error) {
	var record SessionRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, session_token, address, user_agent, created_at, last_activity, is_active
		FROM user_sessions
		WHERE session_token = $1
	`, token).Scan(&record.ID, &record.AccountID, &record.Token, &record.Address,
		&record.UserAgent, &record.CreatedAt, &record.LastActivity, &record.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, err
		}
		return SessionRecord{}, fmt.Errorf("query session: %w", err)
	}

	return record, nil
}

// TouchSession refreshes last_activity. Zero rows affected is fine: a
// missing or closed row means the session ended between lookup and
// touch.
func (r *Repository) TouchSession(ctx context.Context, token, accountID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET last_activity = $3
		WHERE session_token = $1 AND account_id = $2 AND is_active
	`, token, accountID, at.UTC())
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return nil
}

func (r *Repository) CloseSession(ctx context.Context, token, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET is_active = FALSE
		WHERE session_token = $1 AND account_id = $2
	`, token, accountID)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	return nil
}

func (r *Repository) CloseOtherSessions(ctx context.Context, accountID, keepToken string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET is_active = FALSE
		WHERE account_id = $1 AND session_token <> $2 AND is_active
	`, accountID, keepToken)
	if err != nil {
		return 0, fmt.Errorf("close other sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("closed sessions rows affected: %w", err)
	}

	return affected, nil
}

func (r *Repository) ListActiveSessions(ctx context.Context, accountID string) ([]SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, session_token, address, user_agent, created_at, last_activity, is_active
		FROM user_sessions
		WHERE account_id = $1 AND is_active
		ORDER BY last_activity DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()

	records := make([]SessionRecord, 0)
	for rows.Next() {
		var record SessionRecord
		if err := rows.Scan(&record.ID, &record.AccountID, &record.Token, &record.Address,
			&record.UserAgent, &record.CreatedAt, &record.LastActivity, &record.Active); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return records, nil
}

func (r *Repository) ExpireIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET is_active = FALSE
		WHERE is_active AND last_activity < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire idle sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired sessions rows affected: %w", err)
	}

	return affected, nil
}
