// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package filestore

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/taskmaster/taskmaster/internal/auth"
)

// userRecord is the on-disk shape of a user. The four reset fields are
// stored flat and nullable.
type userRecord struct {
	ID                         string     `json:"id"`
	Email                      string     `json:"email"`
	Name                       string     `json:"name,omitempty"`
	PasswordHash               string     `json:"passwordHash"`
	IsGuest                    bool       `json:"isGuest"`
	PasswordResetOtpHash       *string    `json:"passwordResetOtpHash"`
	PasswordResetOtpExpiresAt  *time.Time `json:"passwordResetOtpExpiresAt"`
	PasswordResetOtpAttempts   *int       `json:"passwordResetOtpAttempts"`
	PasswordResetOtpLastSentAt *time.Time `json:"passwordResetOtpLastSentAt"`
	CreatedAt                  time.Time  `json:"createdAt"`
	UpdatedAt                  time.Time  `json:"updatedAt"`
}

func newUserRecord(u *auth.User) userRecord {
	rec := userRecord{
		ID:           u.ID.String(),
		Email:        auth.NormalizeEmail(u.Email),
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		IsGuest:      u.IsGuest,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
	rec.setResetOTP(u.ResetOTP)
	return rec
}

func (rec *userRecord) setResetOTP(otp *auth.ResetOTP) {
	if otp == nil {
		rec.PasswordResetOtpHash = nil
		rec.PasswordResetOtpExpiresAt = nil
		rec.PasswordResetOtpAttempts = nil
		rec.PasswordResetOtpLastSentAt = nil
		return
	}
	hash := otp.Hash
	expiresAt := otp.ExpiresAt.UTC()
	attempts := otp.Attempts
	lastSentAt := otp.LastSentAt.UTC()
	rec.PasswordResetOtpHash = &hash
	rec.PasswordResetOtpExpiresAt = &expiresAt
	rec.PasswordResetOtpAttempts = &attempts
	rec.PasswordResetOtpLastSentAt = &lastSentAt
}

func (rec *userRecord) toUser() (*auth.User, error) {
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("id", rec.ID).
			Wrap(err)
	}

	u := &auth.User{
		ID:           id,
		Email:        rec.Email,
		Name:         rec.Name,
		PasswordHash: rec.PasswordHash,
		IsGuest:      rec.IsGuest,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if rec.PasswordResetOtpHash != nil {
		otp := &auth.ResetOTP{Hash: *rec.PasswordResetOtpHash}
		if rec.PasswordResetOtpExpiresAt != nil {
			otp.ExpiresAt = *rec.PasswordResetOtpExpiresAt
		}
		if rec.PasswordResetOtpAttempts != nil {
			otp.Attempts = *rec.PasswordResetOtpAttempts
		}
		if rec.PasswordResetOtpLastSentAt != nil {
			otp.LastSentAt = *rec.PasswordResetOtpLastSentAt
		}
		u.ResetOTP = otp
	}
	return u, nil
}

// sessionRecord is the on-disk shape of a session, keyed by token hash.
type sessionRecord struct {
	TokenHash string    `json:"tokenHash"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (rec *sessionRecord) toSession(token string) (*auth.Session, error) {
	userID, err := ulid.Parse(rec.UserID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").
			With("user_id", rec.UserID).
			Wrap(err)
	}
	return &auth.Session{
		ID:        token,
		UserID:    userID,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}
