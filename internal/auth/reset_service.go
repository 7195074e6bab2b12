// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// PasswordResetService handles the one-time-code password reset flow.
//
// A user moves from no active reset, to an issued code, to one of verified,
// expired, or exhausted. All of that state lives on the User record, so the
// service itself holds nothing between calls and any number of replicas can
// serve the same user.
type PasswordResetService struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
	now    func() time.Time
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(users UserRepository, hasher PasswordHasher, opts ...Option) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	o := applyOptions(opts)
	if o.logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if o.now == nil {
		return nil, oops.Errorf("clock is required")
	}

	return &PasswordResetService{
		users:  users,
		hasher: hasher,
		logger: o.logger,
		now:    o.now,
	}, nil
}

// RequestReset issues a reset code for the account with the given email.
// Returns the plaintext code for delivery by email (sending is NOT this service's job).
// If no account exists it returns ("", nil), so callers can respond identically
// either way and the endpoint cannot be used to discover accounts.
//
// A second request within ResetResendInterval fails with RESET_RATE_LIMITED.
// Two requests racing past that check both write; the last write wins and
// only its code is valid.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	now := s.now()
	if user.ResetOTP != nil {
		if wait := user.ResetOTP.ResendAvailableIn(now); wait > 0 {
			return "", oops.Code(CodeRateLimited).
				With("retry_after", wait.Round(time.Second).String()).
				Errorf("please wait before requesting another code")
		}
	}

	code, err := GenerateResetCode()
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate code").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(code)
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "hash code").
			Wrap(err)
	}

	if err := s.users.SetResetOTP(ctx, user.ID, NewResetOTP(hash, now)); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "store reset code").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset code issued", "user_id", user.ID.String())
	return code, nil
}

// CompleteReset sets a new password if code matches the outstanding reset code.
//
// Unknown accounts, missing codes, expired codes, and wrong codes all fail with
// RESET_INVALID_OTP. Only a wrong code against a live reset counts as an attempt;
// once MaxResetCodeAttempts is reached every further try fails with
// RESET_TOO_MANY_ATTEMPTS until a new code is requested.
func (s *PasswordResetService) CompleteReset(ctx context.Context, email, code, newPassword string) (*User, error) {
	if newPassword == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("new password cannot be empty")
	}

	email = NormalizeEmail(email)
	code = NormalizeResetCode(code)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Pay for one comparison so a miss costs the same as a wrong code.
			_, _ = s.hasher.Verify(code, dummyPasswordHash) //nolint:errcheck // timing only
			return nil, invalidResetCode()
		}
		return nil, oops.Code("RESET_COMPLETE_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	otp := user.ResetOTP
	if otp == nil || otp.Hash == "" || otp.IsExpiredAt(s.now()) {
		return nil, invalidResetCode()
	}

	if otp.IsExhausted() {
		return nil, oops.Code(CodeTooManyAttempts).
			With("user_id", user.ID.String()).
			Errorf("too many attempts, request a new code")
	}

	valid, err := s.hasher.Verify(code, otp.Hash)
	if err != nil {
		return nil, oops.Code("RESET_COMPLETE_FAILED").
			With("operation", "verify code").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if !valid {
		attempts, incErr := s.users.IncrementResetAttempts(ctx, user.ID)
		if errors.Is(incErr, ErrNotFound) {
			// The reset finished or was replaced between read and write.
			return nil, invalidResetCode()
		}
		if incErr != nil {
			return nil, oops.Code("RESET_COMPLETE_FAILED").
				With("operation", "record attempt").
				With("user_id", user.ID.String()).
				Wrap(incErr)
		}
		s.logger.InfoContext(ctx, "password reset code mismatch",
			"user_id", user.ID.String(),
			"attempts", attempts)
		return nil, invalidResetCode()
	}

	hash, err := hashPassword(s.hasher, newPassword, "RESET_COMPLETE_FAILED")
	if err != nil {
		return nil, err
	}

	updated, err := s.users.Update(ctx, user.ID, UserPatch{
		PasswordHash:  &hash,
		ClearResetOTP: true,
	})
	if err != nil {
		return nil, oops.Code("RESET_COMPLETE_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "user_id", user.ID.String())
	return updated, nil
}

func invalidResetCode() error {
	return oops.Code(CodeInvalidOTP).Errorf("invalid or expired code")
}
