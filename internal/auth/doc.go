// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

// Package auth provides account, session, and password-reset primitives for TaskMaster.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with a normalized email and a password hash
//   - NewSession - creates a Session with a fresh bearer token and fixed expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - signup, login, guest login, OAuth provisioning, profile updates
//   - PasswordResetService - the one-time-code password reset flow
//
// Both services depend only on the UserRepository, SessionRepository, and
// PasswordHasher interfaces. Storage backends live in the filestore and
// postgres subpackages and are chosen once at startup.
package auth
