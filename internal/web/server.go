// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

// Package web exposes the auth services as a JSON HTTP API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/taskmaster/taskmaster/internal/auth"
	"github.com/taskmaster/taskmaster/internal/email"
	"github.com/taskmaster/taskmaster/internal/observability"
)

// AuthService is the part of *auth.Service the handlers call.
type AuthService interface {
	Signup(ctx context.Context, email, password, name string) (*auth.User, *auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.User, *auth.Session, error)
	GuestLogin(ctx context.Context) (*auth.User, *auth.Session, error)
	OAuthComplete(ctx context.Context, token string) (*auth.User, *auth.Session, error)
	CurrentUser(ctx context.Context, sessionID string) (*auth.User, error)
	UpdateProfile(ctx context.Context, sessionID string, update auth.ProfileUpdate) (*auth.User, error)
	Logout(ctx context.Context, sessionID string) error
}

// ResetService is the part of *auth.PasswordResetService the handlers call.
type ResetService interface {
	RequestReset(ctx context.Context, email string) (string, error)
	CompleteReset(ctx context.Context, email, code, newPassword string) (*auth.User, error)
}

// Config wires a Server.
type Config struct {
	Addr    string
	Auth    AuthService
	Reset   ResetService
	Mailer  email.Sender
	Metrics *observability.Metrics // optional
	Logger  *slog.Logger           // optional
	// SecureCookies marks the session cookie Secure; set in production.
	SecureCookies bool
}

// Server serves the auth API.
type Server struct {
	addr          string
	auth          AuthService
	reset         ResetService
	mailer        email.Sender
	metrics       *observability.Metrics
	logger        *slog.Logger
	secureCookies bool
	schemas       *schemaSet

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer validates cfg and compiles the request schemas.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Auth == nil {
		return nil, oops.Code("WEB_CONFIG_INVALID").Errorf("auth service is required")
	}
	if cfg.Reset == nil {
		return nil, oops.Code("WEB_CONFIG_INVALID").Errorf("reset service is required")
	}
	if cfg.Mailer == nil {
		return nil, oops.Code("WEB_CONFIG_INVALID").Errorf("mail sender is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	return &Server{
		addr:          cfg.Addr,
		auth:          cfg.Auth,
		reset:         cfg.Reset,
		mailer:        cfg.Mailer,
		metrics:       cfg.Metrics,
		logger:        logger,
		secureCookies: cfg.SecureCookies,
		schemas:       schemas,
	}, nil
}

// Start listens on the configured address and serves in the background.
// The returned channel receives a serve failure and is closed on stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_ALREADY_RUNNING").Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.Code("WEB_SHUTDOWN_FAILED").With("operation", "shutdown web server").Wrap(err)
		}
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
