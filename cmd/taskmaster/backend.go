// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/taskmaster/taskmaster/internal/auth"
	"github.com/taskmaster/taskmaster/internal/auth/filestore"
	"github.com/taskmaster/taskmaster/internal/auth/postgres"
	"github.com/taskmaster/taskmaster/internal/config"
	"github.com/taskmaster/taskmaster/internal/email"
	"github.com/taskmaster/taskmaster/internal/identity"
	"github.com/taskmaster/taskmaster/internal/store"
	"github.com/taskmaster/taskmaster/internal/xdg"
)

// Storage backends.
const (
	backendFile     = "file"
	backendPostgres = "postgres"
)

// backend is the repository pair chosen at startup.
type backend struct {
	kind     string
	users    auth.UserRepository
	sessions auth.SessionRepository
	close    func()
}

// openBackend selects PostgreSQL when database.url is set and the file
// store otherwise.
func openBackend(ctx context.Context, cfg *config.Config, migrate bool, deps *ServeDeps, logger *slog.Logger) (*backend, error) {
	if cfg.Database.URL == "" {
		if migrate {
			logger.Warn("--migrate ignored without database.url")
		}
		if err := xdg.EnsureDir(cfg.DataDir); err != nil {
			return nil, err
		}
		fs, err := filestore.Open(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return &backend{
			kind:     backendFile,
			users:    fs.Users(),
			sessions: fs.Sessions(),
			close:    func() {},
		}, nil
	}

	if migrate {
		if err := migrateUp(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return nil, err
		}
	}

	pool, err := deps.PoolConnector(ctx, store.ConnectConfig{URL: cfg.Database.URL, Logger: logger})
	if err != nil {
		return nil, err
	}
	return &backend{
		kind:     backendPostgres,
		users:    postgres.NewUserRepository(pool),
		sessions: postgres.NewSessionRepository(pool),
		close:    pool.Close,
	}, nil
}

func migrateUp(databaseURL string, factory func(string) (Migrator, error), logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	pending, err := migrator.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		logger.Info("database schema up to date")
		return nil
	}
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("pending", len(pending)).Wrap(err)
	}
	logger.Info("applied migrations", "count", len(pending))
	return nil
}

// newMailer returns an SMTP sender when a relay is configured and a
// logging sender otherwise. Config validation already refuses the
// logging sender in production.
func newMailer(cfg *config.Config, logger *slog.Logger) (email.Sender, error) {
	if !cfg.SMTPConfigured() {
		if cfg.IsProduction() {
			return nil, oops.Code(config.CodeInvalid).Errorf("SMTP is not configured")
		}
		logger.Warn("smtp not configured, reset emails will only be logged")
		return email.NewLogSender(logger), nil
	}
	return email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		SSL:      cfg.Email.SMTP.SSL,
		From:     cfg.Email.From,
		FromName: cfg.Email.FromName,
	})
}

// newIdentityProvider returns nil when OAuth is not configured.
func newIdentityProvider(cfg *config.Config) (auth.IdentityProvider, error) {
	if !cfg.OAuthEnabled() {
		return nil, nil
	}
	return identity.NewSupabaseProvider(identity.SupabaseConfig{
		URL:            cfg.Supabase.URL,
		ServiceRoleKey: cfg.Supabase.ServiceRoleKey,
	})
}
