// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/taskmaster/internal/auth"
	"github.com/taskmaster/taskmaster/pkg/errutil"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*SupabaseProvider, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	p, err := NewSupabaseProvider(SupabaseConfig{
		URL:            srv.URL + "/",
		ServiceRoleKey: "service-key",
		HTTPClient:     srv.Client(),
		Backoff:        time.Millisecond,
	})
	require.NoError(t, err)
	return p, &calls
}

func TestSupabaseProvider_Exchange(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantName string
	}{
		{
			name:     "full_name wins",
			body:     `{"email":"a@x.com","user_metadata":{"full_name":"Ada L","name":"ada"}}`,
			wantName: "Ada L",
		},
		{
			name:     "falls back to name",
			body:     `{"email":"a@x.com","user_metadata":{"name":"ada"}}`,
			wantName: "ada",
		},
		{
			name:     "falls back to first identity",
			body:     `{"email":"a@x.com","user_metadata":{},"identities":[{"identity_data":{"full_name":"Ada Identity"}}]}`,
			wantName: "Ada Identity",
		},
		{
			name:     "no name anywhere",
			body:     `{"email":"a@x.com"}`,
			wantName: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/auth/v1/user", r.URL.Path)
				assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
				assert.Equal(t, "service-key", r.Header.Get("apikey"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			})

			ident, err := p.Exchange(context.Background(), "user-token")
			require.NoError(t, err)
			assert.Equal(t, "a@x.com", ident.Email)
			assert.Equal(t, tt.wantName, ident.Name)
		})
	}
}

func TestSupabaseProvider_RejectedToken(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			p, calls := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
			})

			_, err := p.Exchange(context.Background(), "bad")
			require.Error(t, err)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
			assert.Equal(t, int32(1), calls.Load(), "rejections are not retried")
		})
	}
}

func TestSupabaseProvider_RetriesServerErrors(t *testing.T) {
	p, calls := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.Exchange(context.Background(), "tok")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "IDENTITY_UNAVAILABLE")
	assert.Equal(t, int32(DefaultMaxAttempts), calls.Load())
}

func TestSupabaseProvider_RecoversAfterTransientFailure(t *testing.T) {
	var n atomic.Int32
	p, calls := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"email":"b@x.com"}`))
	})

	ident, err := p.Exchange(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", ident.Email)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSupabaseProvider_ClientErrorsAreFinal(t *testing.T) {
	p, calls := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := p.Exchange(context.Background(), "tok")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrInvalidToken)
	errutil.AssertErrorCode(t, err, "IDENTITY_REQUEST_FAILED")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSupabaseProvider_MalformedBody(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := p.Exchange(context.Background(), "tok")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "IDENTITY_DECODE_FAILED")
}

func TestNewSupabaseProvider_RequiresConfig(t *testing.T) {
	_, err := NewSupabaseProvider(SupabaseConfig{ServiceRoleKey: "k"})
	errutil.AssertErrorCode(t, err, "IDENTITY_CONFIG")

	_, err = NewSupabaseProvider(SupabaseConfig{URL: "https://x.supabase.co"})
	errutil.AssertErrorCode(t, err, "IDENTITY_CONFIG")
}
