// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package filestore

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/taskmaster/taskmaster/internal/auth"
)

// UserRepository implements auth.UserRepository on users.json.
type UserRepository struct {
	store *Store
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)

type usersDocument struct {
	header
	Users []userRecord `json:"users"`
}

// List returns all users in insertion order.
func (r *UserRepository) List(ctx context.Context) ([]*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_LIST_FAILED").Wrap(err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	users := make([]*auth.User, 0, len(doc.Users))
	for i := range doc.Users {
		u, err := doc.Users[i].toUser()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").Wrap(err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	idx := doc.indexOf(id)
	if idx < 0 {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return doc.Users[idx].toUser()
}

// GetByEmail retrieves a user by normalized email, preferring non-guest accounts.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").Wrap(err)
	}
	email = auth.NormalizeEmail(email)

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	guestIdx := -1
	for i := range doc.Users {
		if doc.Users[i].Email != email {
			continue
		}
		if !doc.Users[i].IsGuest {
			return doc.Users[i].toUser()
		}
		if guestIdx < 0 {
			guestIdx = i
		}
	}
	if guestIdx >= 0 {
		return doc.Users[guestIdx].toUser()
	}
	return nil, oops.Code(auth.CodeUserNotFound).
		With("email", email).
		Wrap(auth.ErrNotFound)
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("USER_CREATE_FAILED").Wrap(err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}

	rec := newUserRecord(user)
	if !rec.IsGuest && doc.emailTaken(rec.Email, "") {
		return oops.Code(auth.CodeDuplicateEmail).
			With("email", rec.Email).
			Wrap(auth.ErrDuplicateEmail)
	}
	if doc.indexOf(user.ID) >= 0 {
		return oops.Code("USER_CREATE_FAILED").
			With("id", rec.ID).
			Errorf("user id already exists")
	}

	doc.Users = append(doc.Users, rec)
	return r.save(doc)
}

// Update applies patch to the user and returns the merged record.
func (r *UserRepository) Update(ctx context.Context, id ulid.ULID, patch auth.UserPatch) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_UPDATE_FAILED").Wrap(err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	idx := doc.indexOf(id)
	if idx < 0 {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}

	user, err := doc.Users[idx].toUser()
	if err != nil {
		return nil, err
	}

	if patch.Email != nil {
		email := auth.NormalizeEmail(*patch.Email)
		if !user.IsGuest && email != user.Email && doc.emailTaken(email, doc.Users[idx].ID) {
			return nil, oops.Code(auth.CodeDuplicateEmail).
				With("email", email).
				Wrap(auth.ErrDuplicateEmail)
		}
	}

	patch.Apply(user, r.store.now())
	doc.Users[idx] = newUserRecord(user)
	if err := r.save(doc); err != nil {
		return nil, err
	}
	return user, nil
}

// SetResetOTP overwrites or clears the user's reset state.
func (r *UserRepository) SetResetOTP(ctx context.Context, id ulid.ULID, otp *auth.ResetOTP) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("USER_SET_RESET_FAILED").Wrap(err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}

	idx := doc.indexOf(id)
	if idx < 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}

	doc.Users[idx].setResetOTP(otp)
	doc.Users[idx].UpdatedAt = r.store.now().UTC()
	return r.save(doc)
}

// IncrementResetAttempts bumps the attempt counter of an in-flight reset.
// Returns ErrNotFound if the user has no reset in flight.
func (r *UserRepository) IncrementResetAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, oops.Code("USER_INCREMENT_ATTEMPTS_FAILED").Wrap(err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return 0, err
	}

	idx := doc.indexOf(id)
	if idx < 0 || doc.Users[idx].PasswordResetOtpHash == nil {
		return 0, oops.Code("RESET_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}

	rec := &doc.Users[idx]
	attempts := 1
	if rec.PasswordResetOtpAttempts != nil {
		attempts = *rec.PasswordResetOtpAttempts + 1
	}
	rec.PasswordResetOtpAttempts = &attempts
	rec.UpdatedAt = r.store.now().UTC()

	if err := r.save(doc); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (r *UserRepository) load() (*usersDocument, error) {
	doc := &usersDocument{}
	if err := r.store.load(UsersFile, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *UserRepository) save(doc *usersDocument) error {
	if doc.Users == nil {
		doc.Users = []userRecord{}
	}
	return r.store.save(UsersFile, &doc.header, doc)
}

func (d *usersDocument) indexOf(id ulid.ULID) int {
	key := id.String()
	for i := range d.Users {
		if d.Users[i].ID == key {
			return i
		}
	}
	return -1
}

// emailTaken reports whether a non-guest user other than exceptID holds email.
func (d *usersDocument) emailTaken(email, exceptID string) bool {
	for i := range d.Users {
		u := &d.Users[i]
		if u.ID != exceptID && !u.IsGuest && u.Email == email {
			return true
		}
	}
	return false
}
