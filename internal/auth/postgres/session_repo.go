// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/taskmaster/taskmaster/internal/auth"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
// Only the SHA-256 of each token is stored.
type SessionRepository struct {
	pool poolIface
	now  func() time.Time
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool poolIface, opts ...Option) *SessionRepository {
	c := newConfig(opts)
	return &SessionRepository{pool: pool, now: c.now}
}

// Create issues and stores a new session.
func (r *SessionRepository) Create(ctx context.Context, userID ulid.ULID) (*auth.Session, error) {
	session, err := auth.NewSession(userID, r.now())
	if err != nil {
		return nil, err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`,
		auth.HashSessionToken(session.ID),
		userID.String(),
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return session, nil
}

// Get retrieves a live session. Expired sessions are removed on sight.
func (r *SessionRepository) Get(ctx context.Context, id string) (*auth.Session, error) {
	hash := auth.HashSessionToken(id)

	var (
		userIDStr string
		createdAt time.Time
		expiresAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, created_at, expires_at
		FROM sessions
		WHERE token_hash = $1
	`, hash).Scan(&userIDStr, &createdAt, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeSessionNotFound).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	session := &auth.Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
	if session.IsExpiredAt(r.now()) {
		if err := r.deleteHash(ctx, hash); err != nil {
			return nil, err
		}
		return nil, oops.Code(auth.CodeSessionNotFound).Wrap(auth.ErrNotFound)
	}
	return session, nil
}

// Delete removes a session if present.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	return r.deleteHash(ctx, auth.HashSessionToken(id))
}

func (r *SessionRepository) deleteHash(ctx context.Context, hash string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE token_hash = $1
	`, hash)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	// No ErrNotFound when nothing was deleted; logout is idempotent.
	return nil
}
