// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

// Package identity exchanges third-party OAuth access tokens for identities.
package identity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/taskmaster/taskmaster/internal/auth"
)

// ErrInvalidToken is returned when the provider rejects the access token.
var ErrInvalidToken = auth.ErrInvalidToken

// Retry defaults for provider calls.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 200 * time.Millisecond
	DefaultTimeout     = 10 * time.Second
)

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 1 << 20

// SupabaseConfig configures SupabaseProvider.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	HTTPClient     *http.Client
	MaxAttempts    uint64
	Backoff        time.Duration
}

// SupabaseProvider resolves Supabase GoTrue access tokens through /auth/v1/user.
type SupabaseProvider struct {
	endpoint    string
	apiKey      string
	client      *http.Client
	maxAttempts uint64
	backoff     time.Duration
}

// Compile-time interface check.
var _ auth.IdentityProvider = (*SupabaseProvider)(nil)

// NewSupabaseProvider creates a SupabaseProvider.
func NewSupabaseProvider(cfg SupabaseConfig) (*SupabaseProvider, error) {
	if cfg.URL == "" {
		return nil, oops.Code("IDENTITY_CONFIG").Errorf("supabase url is required")
	}
	if cfg.ServiceRoleKey == "" {
		return nil, oops.Code("IDENTITY_CONFIG").Errorf("supabase service role key is required")
	}

	p := &SupabaseProvider{
		endpoint:    strings.TrimRight(cfg.URL, "/") + "/auth/v1/user",
		apiKey:      cfg.ServiceRoleKey,
		client:      cfg.HTTPClient,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: DefaultTimeout}
	}
	if p.maxAttempts == 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	if p.backoff <= 0 {
		p.backoff = DefaultBackoff
	}
	return p, nil
}

type supabaseUser struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	Identities   []struct {
		IdentityData map[string]any `json:"identity_data"`
	} `json:"identities"`
}

// displayName picks full_name, then name, then the first linked identity's full_name.
func (u *supabaseUser) displayName() string {
	if name := stringField(u.UserMetadata, "full_name"); name != "" {
		return name
	}
	if name := stringField(u.UserMetadata, "name"); name != "" {
		return name
	}
	if len(u.Identities) > 0 {
		return stringField(u.Identities[0].IdentityData, "full_name")
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// Exchange resolves token to an identity. Rejected tokens wrap ErrInvalidToken.
// Server errors and transport failures are retried with exponential backoff.
func (p *SupabaseProvider) Exchange(ctx context.Context, token string) (*auth.Identity, error) {
	var user *supabaseUser
	b := retry.WithMaxRetries(p.maxAttempts-1, retry.NewExponential(p.backoff))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		u, err := p.fetch(ctx, token)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &auth.Identity{
		Email: user.Email,
		Name:  user.displayName(),
	}, nil
}

// fetch performs one request. Only failures worth repeating come back retryable.
func (p *SupabaseProvider) fetch(ctx context.Context, token string) (*supabaseUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, http.NoBody)
	if err != nil {
		return nil, oops.Code("IDENTITY_REQUEST_FAILED").Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, oops.Code("IDENTITY_REQUEST_FAILED").Wrap(err)
		}
		return nil, retry.RetryableError(oops.Code("IDENTITY_UNAVAILABLE").Wrap(err))
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // read-only body

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, oops.Code(auth.CodeInvalidToken).
			With("status", resp.StatusCode).
			Wrap(ErrInvalidToken)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, retry.RetryableError(oops.Code("IDENTITY_UNAVAILABLE").
			With("status", resp.StatusCode).
			Errorf("identity provider returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, oops.Code("IDENTITY_REQUEST_FAILED").
			With("status", resp.StatusCode).
			Errorf("identity provider returned %d", resp.StatusCode)
	}

	var user supabaseUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&user); err != nil {
		return nil, oops.Code("IDENTITY_DECODE_FAILED").With("operation", "decode user").Wrap(err)
	}
	return &user, nil
}
