// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package auth

import "context"

// Identity is what an external identity provider vouches for.
type Identity struct {
	Email string
	Name  string // empty when the provider has no display name
}

// IdentityProvider exchanges an external access token for an Identity.
// Implementations return an error wrapping ErrInvalidToken when the token is rejected.
type IdentityProvider interface {
	Exchange(ctx context.Context, token string) (*Identity, error)
}
