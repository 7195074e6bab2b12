// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package web

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler returns the routed API wrapped in tracing.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.observe)

	api := r.PathPrefix("/api/auth").Subrouter()
	api.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/guest", s.handleGuest).Methods(http.MethodPost)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/session", s.handleLogout).Methods(http.MethodDelete)
	api.HandleFunc("/profile", s.handleProfile).Methods(http.MethodPut)
	api.HandleFunc("/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	api.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)
	api.HandleFunc("/oauth/complete", s.handleOAuthComplete).Methods(http.MethodPost)

	return otelhttp.NewHandler(r, "taskmaster.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
