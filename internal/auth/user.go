// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User represents an account.
type User struct {
	ID           ulid.ULID
	Email        string
	Name         string
	PasswordHash string
	IsGuest      bool
	ResetOTP     *ResetOTP // nil when no reset is in flight
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// All email comparisons happen on normalized values.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that a normalized email is plausible.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeInvalidInput).Errorf("email cannot be empty")
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return oops.Code(CodeInvalidInput).With("email", email).Errorf("email must contain a local part and a domain")
	}
	return nil
}

// NewUser creates a validated User with a fresh ID.
// The email is normalized; passwordHash must already be hashed.
func NewUser(email, name, passwordHash string, isGuest bool, now time.Time) (*User, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now = now.UTC()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		IsGuest:      isGuest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// UserPatch holds a partial update. Nil fields are left unchanged.
type UserPatch struct {
	Email        *string
	Name         *string
	PasswordHash *string

	// ClearResetOTP removes any in-flight reset state in the same write.
	ClearResetOTP bool
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Email == nil && p.Name == nil && p.PasswordHash == nil && !p.ClearResetOTP
}

// Apply merges the patch into u and stamps UpdatedAt.
// Repositories without native partial updates use this to build the merged record.
func (p UserPatch) Apply(u *User, now time.Time) {
	if p.Email != nil {
		u.Email = NormalizeEmail(*p.Email)
	}
	if p.Name != nil {
		u.Name = strings.TrimSpace(*p.Name)
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.ClearResetOTP {
		u.ResetOTP = nil
	}
	u.UpdatedAt = now.UTC()
}

// UserRepository manages user persistence.
// Implementations must make each method atomic for the record it touches.
type UserRepository interface {
	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]*User, error)

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email.
	// When a guest and a regular account share an address the regular account wins.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Create stores a new user. Returns ErrDuplicateEmail when the user is not
	// a guest and another non-guest user already has the email.
	Create(ctx context.Context, user *User) error

	// Update applies a partial update and returns the merged record.
	// Returns ErrNotFound or ErrDuplicateEmail.
	Update(ctx context.Context, id ulid.ULID, patch UserPatch) (*User, error)

	// SetResetOTP overwrites the reset state for a user. A nil otp clears it.
	SetResetOTP(ctx context.Context, id ulid.ULID, otp *ResetOTP) error

	// IncrementResetAttempts adds one to the reset attempt counter and
	// returns the new value.
	IncrementResetAttempts(ctx context.Context, id ulid.ULID) (int, error)
}
