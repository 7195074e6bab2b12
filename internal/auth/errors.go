// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by repositories when a non-guest email is already taken.
var ErrDuplicateEmail = errors.New("email already exists")

// ErrInvalidToken is returned by identity providers that reject an external token.
var ErrInvalidToken = errors.New("invalid token")

// Error codes carried by oops errors returned from the services.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodePasswordTooLong    = "AUTH_PASSWORD_TOO_LONG"
	CodeDuplicateEmail     = "AUTH_DUPLICATE_EMAIL"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUnauthorized       = "AUTH_UNAUTHORIZED"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeOAuthNoEmail       = "AUTH_OAUTH_NO_EMAIL"
	CodeOAuthDisabled      = "AUTH_OAUTH_DISABLED"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeInvalidOTP         = "RESET_INVALID_OTP"
	CodeRateLimited        = "RESET_RATE_LIMITED"
	CodeTooManyAttempts    = "RESET_TOO_MANY_ATTEMPTS"
)
