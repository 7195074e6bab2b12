// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

// Package mocks provides testify mocks for the auth interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/taskmaster/taskmaster/internal/auth"
)

// testingT is satisfied by *testing.T.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

var _ auth.UserRepository = (*MockUserRepository)(nil)

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t testingT) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserRepository) List(ctx context.Context) ([]*auth.User, error) {
	ret := m.Called(ctx)
	users, _ := ret.Get(0).([]*auth.User)
	return users, ret.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	ret := m.Called(ctx, id)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	ret := m.Called(ctx, email)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, id ulid.ULID, patch auth.UserPatch) (*auth.User, error) {
	ret := m.Called(ctx, id, patch)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

func (m *MockUserRepository) SetResetOTP(ctx context.Context, id ulid.ULID, otp *auth.ResetOTP) error {
	return m.Called(ctx, id, otp).Error(0)
}

func (m *MockUserRepository) IncrementResetAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	ret := m.Called(ctx, id)
	return ret.Int(0), ret.Error(1)
}

// MockSessionRepository is a mock of auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

var _ auth.SessionRepository = (*MockSessionRepository)(nil)

// NewMockSessionRepository creates a mock that asserts its expectations on cleanup.
func NewMockSessionRepository(t testingT) *MockSessionRepository {
	m := &MockSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionRepository) Create(ctx context.Context, userID ulid.ULID) (*auth.Session, error) {
	ret := m.Called(ctx, userID)
	session, _ := ret.Get(0).(*auth.Session)
	return session, ret.Error(1)
}

func (m *MockSessionRepository) Get(ctx context.Context, id string) (*auth.Session, error) {
	ret := m.Called(ctx, id)
	session, _ := ret.Get(0).(*auth.Session)
	return session, ret.Error(1)
}

func (m *MockSessionRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

var _ auth.PasswordHasher = (*MockPasswordHasher)(nil)

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(secret string) (string, error) {
	ret := m.Called(secret)
	return ret.String(0), ret.Error(1)
}

func (m *MockPasswordHasher) Verify(secret, hash string) (bool, error) {
	ret := m.Called(secret, hash)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockIdentityProvider is a mock of auth.IdentityProvider.
type MockIdentityProvider struct {
	mock.Mock
}

var _ auth.IdentityProvider = (*MockIdentityProvider)(nil)

// NewMockIdentityProvider creates a mock that asserts its expectations on cleanup.
func NewMockIdentityProvider(t testingT) *MockIdentityProvider {
	m := &MockIdentityProvider{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockIdentityProvider) Exchange(ctx context.Context, token string) (*auth.Identity, error) {
	ret := m.Called(ctx, token)
	ident, _ := ret.Get(0).(*auth.Identity)
	return ident, ret.Error(1)
}
