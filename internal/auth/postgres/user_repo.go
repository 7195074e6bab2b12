// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/taskmaster/taskmaster/internal/auth"
)

const userColumns = `id, email, name, password_hash, is_guest,
		       password_reset_otp_hash, password_reset_otp_expires_at,
		       password_reset_otp_attempts, password_reset_otp_last_sent_at,
		       created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
	now  func() time.Time
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface, opts ...Option) *UserRepository {
	c := newConfig(opts)
	return &UserRepository{pool: pool, now: c.now}
}

// List returns all users ordered by creation time.
func (r *UserRepository) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "list users").
			Wrap(err)
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "iterate users").
			Wrap(err)
	}
	return users, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by normalized email, preferring non-guest accounts.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
		ORDER BY is_guest, created_at
		LIMIT 1
	`, email)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	otpHash, otpExpiresAt, otpAttempts, otpLastSentAt := resetColumns(user.ResetOTP)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, name, password_hash, is_guest,
			password_reset_otp_hash, password_reset_otp_expires_at,
			password_reset_otp_attempts, password_reset_otp_last_sent_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		user.ID.String(),
		auth.NormalizeEmail(user.Email),
		user.Name,
		user.PasswordHash,
		user.IsGuest,
		otpHash,
		otpExpiresAt,
		otpAttempts,
		otpLastSentAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEmail(err) {
			return oops.Code(auth.CodeDuplicateEmail).
				With("email", user.Email).
				Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// Update applies patch in a single statement and returns the merged row.
func (r *UserRepository) Update(ctx context.Context, id ulid.ULID, patch auth.UserPatch) (*auth.User, error) {
	var email *string
	if patch.Email != nil {
		normalized := auth.NormalizeEmail(*patch.Email)
		email = &normalized
	}
	var name *string
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		name = &trimmed
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			email = COALESCE($2, email),
			name = COALESCE($3, name),
			password_hash = COALESCE($4, password_hash),
			password_reset_otp_hash = CASE WHEN $5 THEN NULL ELSE password_reset_otp_hash END,
			password_reset_otp_expires_at = CASE WHEN $5 THEN NULL ELSE password_reset_otp_expires_at END,
			password_reset_otp_attempts = CASE WHEN $5 THEN NULL ELSE password_reset_otp_attempts END,
			password_reset_otp_last_sent_at = CASE WHEN $5 THEN NULL ELSE password_reset_otp_last_sent_at END,
			updated_at = $6
		WHERE id = $1
		RETURNING `+userColumns,
		id.String(),
		email,
		name,
		patch.PasswordHash,
		patch.ClearResetOTP,
		r.now().UTC(),
	)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		if isDuplicateEmail(err) {
			return nil, oops.Code(auth.CodeDuplicateEmail).
				With("id", id.String()).
				Wrap(auth.ErrDuplicateEmail)
		}
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// SetResetOTP overwrites or clears the reset columns.
func (r *UserRepository) SetResetOTP(ctx context.Context, id ulid.ULID, otp *auth.ResetOTP) error {
	otpHash, otpExpiresAt, otpAttempts, otpLastSentAt := resetColumns(otp)

	result, err := r.pool.Exec(ctx, `
		UPDATE users SET
			password_reset_otp_hash = $2,
			password_reset_otp_expires_at = $3,
			password_reset_otp_attempts = $4,
			password_reset_otp_last_sent_at = $5,
			updated_at = $6
		WHERE id = $1
	`, id.String(), otpHash, otpExpiresAt, otpAttempts, otpLastSentAt, r.now().UTC())
	if err != nil {
		return oops.Code("USER_SET_RESET_FAILED").
			With("operation", "update reset columns").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// IncrementResetAttempts bumps the attempt counter of an in-flight reset.
// Returns ErrNotFound if the user has no reset in flight.
func (r *UserRepository) IncrementResetAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
		UPDATE users SET
			password_reset_otp_attempts = COALESCE(password_reset_otp_attempts, 0) + 1,
			updated_at = $2
		WHERE id = $1 AND password_reset_otp_hash IS NOT NULL
		RETURNING password_reset_otp_attempts
	`, id.String(), r.now().UTC()).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("RESET_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("USER_INCREMENT_ATTEMPTS_FAILED").
			With("operation", "increment reset attempts").
			With("id", id.String()).
			Wrap(err)
	}
	return attempts, nil
}

// resetColumns flattens otp into nullable column values.
func resetColumns(otp *auth.ResetOTP) (hash *string, expiresAt *time.Time, attempts *int, lastSentAt *time.Time) {
	if otp == nil {
		return nil, nil, nil, nil
	}
	h := otp.Hash
	e := otp.ExpiresAt.UTC()
	a := otp.Attempts
	l := otp.LastSentAt.UTC()
	return &h, &e, &a, &l
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *UserRepository) scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr         string
		email         string
		name          string
		passwordHash  string
		isGuest       bool
		otpHash       *string
		otpExpiresAt  *time.Time
		otpAttempts   *int
		otpLastSentAt *time.Time
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&name,
		&passwordHash,
		&isGuest,
		&otpHash,
		&otpExpiresAt,
		&otpAttempts,
		&otpLastSentAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows and constraint errors unchanged for callers to classify.
		return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	user := &auth.User{
		ID:           id,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		IsGuest:      isGuest,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
	if otpHash != nil {
		otp := &auth.ResetOTP{Hash: *otpHash}
		if otpExpiresAt != nil {
			otp.ExpiresAt = *otpExpiresAt
		}
		if otpAttempts != nil {
			otp.Attempts = *otpAttempts
		}
		if otpLastSentAt != nil {
			otp.LastSentAt = *otpLastSentAt
		}
		user.ResetOTP = otp
	}
	return user, nil
}
