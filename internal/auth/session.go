// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes = 32                 // 32 bytes = 64 hex chars
	SessionTTL        = 7 * 24 * time.Hour // fixed at creation, never extended
)

// Session is proof that a user authenticated.
// ID is the bearer credential handed to the client. Repositories persist
// only HashSessionToken(ID), so a copy of the store holds no live tokens.
type Session struct {
	ID        string
	UserID    ulid.ULID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewSession creates a Session for userID with a fresh token.
func NewSession(userID ulid.ULID, now time.Time) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	now = now.UTC()
	return &Session{
		ID:        token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}, nil
}

// IsExpiredAt returns true if the session would be expired at the given time.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// GenerateSessionToken creates a secure random hex token.
func GenerateSessionToken() (string, error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(tokenBytes), nil
}

// HashSessionToken computes the SHA256 hash used as the storage key for a token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create issues and stores a new session for userID.
	Create(ctx context.Context, userID ulid.ULID) (*Session, error)

	// Get retrieves a session by its token. An expired session is deleted
	// and reported as ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error
}
