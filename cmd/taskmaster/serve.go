// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/taskmaster/taskmaster/internal/auth"
	"github.com/taskmaster/taskmaster/internal/config"
	"github.com/taskmaster/taskmaster/internal/observability"
	"github.com/taskmaster/taskmaster/internal/web"
)

// NewServeCmd creates the serve subcommand. A nil deps uses defaults.
func NewServeCmd(deps *ServeDeps) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the auth API and the metrics/health listener. Accounts and
sessions live in PostgreSQL when database.url is set and in JSON files
under data_dir otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			// Upstream traceparent headers become the request span's parent,
			// so request logs carry the caller's trace ID.
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{}, propagation.Baggage{}))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, cfg, migrate, deps.withDefaults(), logger)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending database migrations before serving")
	return cmd
}

// runServe blocks until ctx is cancelled or a listener fails.
func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, migrate bool, deps *ServeDeps, logger *slog.Logger) error {
	logger.Info("starting taskmaster",
		"version", version,
		"environment", cfg.Environment,
		"http_addr", cfg.HTTP.Addr,
	)

	be, err := openBackend(ctx, cfg, migrate, deps, logger)
	if err != nil {
		return oops.Code("SERVE_STORAGE_FAILED").With("operation", "open storage").Wrap(err)
	}
	defer be.close()
	logger.Info("storage ready", "backend", be.kind)

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}
	provider, err := newIdentityProvider(cfg)
	if err != nil {
		return err
	}

	opts := []auth.Option{auth.WithLogger(logger), auth.WithIdentityProvider(provider)}
	hasher := auth.NewBcryptHasher()
	authSvc, err := auth.NewAuthService(be.users, be.sessions, hasher, opts...)
	if err != nil {
		return err
	}
	resetSvc, err := auth.NewPasswordResetService(be.users, hasher, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	var metrics *observability.Metrics
	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load, logger)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_METRICS_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		metrics = obsServer.Metrics()
	}

	webServer, err := web.NewServer(web.Config{
		Addr:          cfg.HTTP.Addr,
		Auth:          authSvc,
		Reset:         resetSvc,
		Mailer:        mailer,
		Metrics:       metrics,
		Logger:        logger,
		SecureCookies: cfg.IsProduction(),
	})
	if err != nil {
		stopObservability(obsServer, cfg, logger)
		return err
	}
	webErrCh, err := webServer.Start()
	if err != nil {
		stopObservability(obsServer, cfg, logger)
		return oops.Code("SERVE_HTTP_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, webErrCh, "web", logger)

	ready.Store(true)
	metricsAddr := ""
	if obsServer != nil {
		metricsAddr = obsServer.Addr()
	}
	deps.OnReady(webServer.Addr(), metricsAddr)
	cmd.Println("TaskMaster listening on " + webServer.Addr())

	<-ctx.Done()
	logger.Info("shutting down")
	ready.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}
	stopObservability(obsServer, cfg, logger)

	logger.Info("shutdown complete")
	return nil
}

func stopObservability(s ObservabilityServer, cfg *config.Config, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports a failure.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
