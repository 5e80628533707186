package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = `
	id, display_name, email, password_hash, COALESCE(phone, ''), COALESCE(avatar_url, ''),
	email_verified, COALESCE(verification_token, ''), verification_expires_at,
	COALESCE(reset_token, ''), reset_expires_at, reset_request_count, reset_window_start,
	deleted, deleted_at, COALESCE(original_email, ''), created_at, updated_at
`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Email,
		&user.PasswordHash,
		&user.Phone,
		&user.AvatarURL,
		&user.EmailVerified,
		&user.VerificationToken,
		&user.VerificationExpiresAt,
		&user.ResetToken,
		&user.ResetExpiresAt,
		&user.ResetRequestCount,
		&user.ResetWindowStart,
		&user.Deleted,
		&user.DeletedAt,
		&user.OriginalEmail,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, phone, avatar_url, email_verified, verification_token, verification_expires_at)
		VALUES ($1, $2, LOWER($3), $4, NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''), $9)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Phone, user.AvatarURL, user.EmailVerified, user.VerificationToken, user.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return scanUser(row)
}

// GetUserByEmail resolves the single active (non-deleted) holder of an email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1) AND NOT deleted`, email)
	return scanUser(row)
}

func (s *PostgresStore) HasDeletedUserWithOriginalEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE deleted AND LOWER(original_email)=LOWER($1))
	`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check deleted email: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

// VerifyUserEmail consumes a verification token with a conditional update so
// two racing attempts cannot both trigger downstream side effects. The winner
// gets the verified user back with ok=true; a zero-row outcome on an
// already-verified user is reported as ok=false with no error so the losing
// racer can treat it as success.
func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) (User, bool, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET email_verified=TRUE, updated_at=NOW()
		WHERE verification_token=$1 AND NOT email_verified AND NOT deleted
		  AND verification_expires_at > NOW()
		RETURNING id, email, display_name
	`, token).Scan(&user.ID, &user.Email, &user.DisplayName)
	if err == nil {
		user.EmailVerified = true
		return user, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, false, fmt.Errorf("verify email: %w", err)
	}
	var alreadyVerified bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE verification_token=$1 AND email_verified)
	`, token).Scan(&alreadyVerified)
	if err != nil {
		return User{}, false, fmt.Errorf("check verified: %w", err)
	}
	if alreadyVerified {
		return User{}, false, nil
	}
	return User{}, false, sql.ErrNoRows
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1 AND NOT deleted
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// CountResetRequest advances the rolling one-hour password-reset window for a
// user and returns the request count inside the current window.
func (s *PostgresStore) CountResetRequest(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET reset_request_count = CASE
				WHEN reset_window_start IS NULL OR reset_window_start < NOW() - INTERVAL '1 hour' THEN 1
				ELSE reset_request_count + 1
			END,
			reset_window_start = CASE
				WHEN reset_window_start IS NULL OR reset_window_start < NOW() - INTERVAL '1 hour' THEN NOW()
				ELSE reset_window_start
			END
		WHERE id=$1
		RETURNING reset_request_count
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reset request: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET reset_token=$2, reset_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM users WHERE reset_token=$1 AND reset_expires_at > NOW() AND NOT deleted
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET reset_token=NULL, reset_expires_at=NULL, updated_at=NOW() WHERE reset_token=$1
	`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// FindUserByHandle matches a mention token against email or display name,
// case-sensitive and exact. Missing handles are the caller's no-op case.
func (s *PostgresStore) FindUserByHandle(ctx context.Context, handle string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE NOT deleted AND (email=$1 OR display_name=$1)
		LIMIT 1
	`, handle)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, err
	}
	if err != nil {
		return User{}, fmt.Errorf("find user by handle: %w", err)
	}
	return user, nil
}

// SoftDeleteUser anonymizes the user row in place. The conditional on NOT
// deleted makes reruns and racing deleters no-ops; the rewritten email frees
// the original address for re-registration while original_email preserves it.
func (s *PostgresStore) SoftDeleteUser(ctx context.Context, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET original_email = email,
			email = 'deleted_' || EXTRACT(EPOCH FROM NOW())::bigint || '_' || email,
			password_hash = '',
			phone = NULL,
			avatar_url = NULL,
			email_verified = FALSE,
			verification_token = NULL,
			reset_token = NULL,
			deleted = TRUE,
			deleted_at = NOW(),
			updated_at = NOW()
		WHERE id=$1 AND NOT deleted
	`, userID)
	if err != nil {
		return false, fmt.Errorf("soft delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete user rows: %w", err)
	}
	return affected > 0, nil
}
