// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package auth

import (
	"log/slog"
	"time"
)

// Option configures Service and PasswordResetService.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	now      func() time.Time
	identity IdentityProvider
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		now:    time.Now,
	}
}

// WithLogger sets the logger. A nil logger is rejected by the constructors.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock replaces time.Now. Tests use it to step across expiry boundaries.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIdentityProvider enables OAuthComplete.
func WithIdentityProvider(p IdentityProvider) Option {
	return func(o *options) { o.identity = p }
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
