// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Guest account defaults.
//
// Every guest shares GuestPassword, so anyone who learns a guest's generated
// email can sign in to it with a password login. Kept as-is until the product
// decides whether guests should be password-authenticable at all.
const (
	GuestPassword    = "12345678"
	GuestName        = "Guest User"
	guestEmailDomain = "example.com"
	guestIDBytes     = 4
)

// oauthPasswordBytes sizes the random password given to OAuth-provisioned users.
const oauthPasswordBytes = 32

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// It is a well-formed cost 12 bcrypt hash that matches no password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$2a$12$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// ProfileUpdate carries the fields a user may change about themselves.
// Nil fields are left unchanged.
type ProfileUpdate struct {
	Email    *string
	Name     *string
	Password *string
}

// Service provides authentication operations.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	hasher   PasswordHasher
	identity IdentityProvider
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService creates a new Service.
func NewAuthService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
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

	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		identity: o.identity,
		logger:   o.logger,
		now:      o.now,
	}, nil
}

// OAuthEnabled reports whether an identity provider is configured.
func (s *Service) OAuthEnabled() bool {
	return s.identity != nil
}

// Signup creates a regular account and signs it in.
func (s *Service) Signup(ctx context.Context, email, password, name string) (*User, *Session, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, nil, err
	}
	if password == "" {
		return nil, nil, oops.Code(CodeInvalidInput).Errorf("password cannot be empty")
	}

	hash, err := hashPassword(s.hasher, password, "AUTH_SIGNUP_FAILED")
	if err != nil {
		return nil, nil, err
	}

	user, err := s.createUser(ctx, email, name, hash, false)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// Login authenticates by email and password and issues a session.
// Unknown emails and wrong passwords fail identically, in roughly the same time.
func (s *Service) Login(ctx context.Context, email, password string) (*User, *Session, error) {
	email = NormalizeEmail(email)

	user, lookupErr := s.users.GetByEmail(ctx, email)

	var targetHash string
	var userExists bool

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
		targetHash = dummyPasswordHash
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify so that both branches pay for one bcrypt comparison.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, nil, invalidCredentials()
		}
		return nil, nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		return nil, nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradePasswordHash(ctx, user, password)
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// GuestLogin provisions a throwaway guest account and signs it in.
func (s *Service) GuestLogin(ctx context.Context) (*User, *Session, error) {
	suffix := make([]byte, guestIDBytes)
	if _, err := rand.Read(suffix); err != nil {
		return nil, nil, oops.Code("AUTH_GUEST_FAILED").
			With("operation", "generate guest id").
			Wrap(err)
	}
	email := "guest_" + hex.EncodeToString(suffix) + "@" + guestEmailDomain

	hash, err := s.hasher.Hash(GuestPassword)
	if err != nil {
		return nil, nil, oops.Code("AUTH_GUEST_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := s.createUser(ctx, email, GuestName, hash, true)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// OAuthComplete exchanges an external access token for a local session,
// provisioning an account with an unusable random password on first sight.
func (s *Service) OAuthComplete(ctx context.Context, token string) (*User, *Session, error) {
	if s.identity == nil {
		return nil, nil, oops.Code(CodeOAuthDisabled).Errorf("no identity provider configured")
	}
	if token == "" {
		return nil, nil, oops.Code(CodeInvalidInput).Errorf("access token cannot be empty")
	}

	ident, err := s.identity.Exchange(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			s.logger.DebugContext(ctx, "identity provider rejected token", "error", err)
			return nil, nil, oops.Code(CodeInvalidToken).Errorf("invalid token")
		}
		return nil, nil, oops.Code("AUTH_OAUTH_FAILED").
			With("operation", "exchange token").
			Wrap(err)
	}

	email := NormalizeEmail(ident.Email)
	if email == "" {
		return nil, nil, oops.Code(CodeOAuthNoEmail).Errorf("identity has no email")
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		user, err = s.provisionOAuthUser(ctx, email, ident.Name)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, oops.Code("AUTH_OAUTH_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// CurrentUser resolves a session token to its user.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*User, error) {
	session, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, unauthorized()
		}
		return nil, oops.Code("AUTH_CURRENT_USER_FAILED").
			With("operation", "get user by id").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return user, nil
}

// UpdateProfile changes the signed-in user's email, name, or password.
func (s *Service) UpdateProfile(ctx context.Context, sessionID string, update ProfileUpdate) (*User, error) {
	session, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var patch UserPatch
	if update.Email != nil {
		email := NormalizeEmail(*update.Email)
		if err := ValidateEmail(email); err != nil {
			return nil, err
		}
		patch.Email = &email
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		patch.Name = &name
	}
	if update.Password != nil {
		hash, err := hashPassword(s.hasher, *update.Password, "AUTH_PROFILE_UPDATE_FAILED")
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &hash
	}

	if patch.IsEmpty() {
		return s.CurrentUser(ctx, sessionID)
	}

	user, err := s.users.Update(ctx, session.UserID, patch)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return nil, oops.Code(CodeDuplicateEmail).
				With("user_id", session.UserID.String()).
				Wrap(err)
		case errors.Is(err, ErrNotFound):
			return nil, oops.Code(CodeUserNotFound).
				With("user_id", session.UserID.String()).
				Wrap(err)
		default:
			return nil, oops.Code("AUTH_PROFILE_UPDATE_FAILED").
				With("operation", "update user").
				With("user_id", session.UserID.String()).
				Wrap(err)
		}
	}
	return user, nil
}

// Logout ends a session. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// resolveSession maps any lookup miss, including expiry, to Unauthorized.
func (s *Service) resolveSession(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, unauthorized()
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, unauthorized()
		}
		return nil, oops.Code("AUTH_SESSION_LOOKUP_FAILED").
			With("operation", "get session").
			Wrap(err)
	}
	return session, nil
}

func (s *Service) createUser(ctx context.Context, email, name, hash string, isGuest bool) (*User, error) {
	user, err := NewUser(email, name, hash, isGuest, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, oops.Code(CodeDuplicateEmail).
				With("email", email).
				Wrap(err)
		}
		return nil, oops.Code("AUTH_USER_CREATE_FAILED").
			With("operation", "create user").
			With("guest", isGuest).
			Wrap(err)
	}
	return user, nil
}

func (s *Service) provisionOAuthUser(ctx context.Context, email, name string) (*User, error) {
	secret := make([]byte, oauthPasswordBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, oops.Code("AUTH_OAUTH_FAILED").
			With("operation", "generate password").
			Wrap(err)
	}
	// bcrypt reads at most 72 bytes; 64 hex chars fits.
	hash, err := s.hasher.Hash(hex.EncodeToString(secret))
	if err != nil {
		return nil, oops.Code("AUTH_OAUTH_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := s.createUser(ctx, email, name, hash, false)
	if err == nil {
		s.logger.InfoContext(ctx, "provisioned oauth user", "user_id", user.ID.String())
		return user, nil
	}

	// A concurrent completion for the same identity won the insert.
	if errors.Is(err, ErrDuplicateEmail) {
		existing, getErr := s.users.GetByEmail(ctx, email)
		if getErr == nil {
			return existing, nil
		}
	}
	return nil, err
}

func (s *Service) issueSession(ctx context.Context, user *User) (*Session, error) {
	session, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return session, nil
}

// upgradePasswordHash rehashes with the current cost. Login succeeds regardless.
func (s *Service) upgradePasswordHash(ctx context.Context, user *User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", user.ID.String(),
			"operation", "hash password",
			"error", err)
		return
	}

	updated, err := s.users.Update(ctx, user.ID, UserPatch{PasswordHash: &hash})
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", user.ID.String(),
			"operation", "update user",
			"error", err)
		return
	}
	*user = *updated
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

func unauthorized() error {
	return oops.Code(CodeUnauthorized).Errorf("invalid or expired session")
}

// hashPassword hashes a caller-chosen password. Input the hasher rejects is
// reported as a client error; anything else is wrapped with failCode.
func hashPassword(hasher PasswordHasher, password, failCode string) (string, error) {
	hash, err := hasher.Hash(password)
	switch {
	case err == nil:
		return hash, nil
	case password == "":
		return "", oops.Code(CodeInvalidInput).Errorf("password cannot be empty")
	case errors.Is(err, ErrPasswordTooLong):
		return "", err
	default:
		return "", oops.Code(failCode).With("operation", "hash password").Wrap(err)
	}
}
