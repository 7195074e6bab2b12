// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package web

import (
	"encoding/json"
	"net/http"

	"github.com/samber/oops"

	"github.com/taskmaster/taskmaster/internal/auth"
	"github.com/taskmaster/taskmaster/pkg/errutil"
)

const internalErrorMessage = "Internal server error"

type errorStatus struct {
	status  int
	message string
}

// errorStatuses maps service error codes to responses. Unlisted codes are 500.
var errorStatuses = map[string]errorStatus{
	CodeBadRequest:              {http.StatusBadRequest, "Invalid request"},
	auth.CodeInvalidInput:       {http.StatusBadRequest, "Invalid input"},
	auth.CodePasswordTooLong:    {http.StatusBadRequest, "Password is too long"},
	auth.CodeDuplicateEmail:     {http.StatusBadRequest, "Email already exists"},
	auth.CodeInvalidCredentials: {http.StatusUnauthorized, "Invalid email or password"},
	auth.CodeUnauthorized:       {http.StatusUnauthorized, "Unauthorized"},
	auth.CodeUserNotFound:       {http.StatusUnauthorized, "Unauthorized"},
	auth.CodeInvalidToken:       {http.StatusUnauthorized, "Invalid token"},
	auth.CodeOAuthNoEmail:       {http.StatusBadRequest, "OAuth user has no email"},
	auth.CodeOAuthDisabled:      {http.StatusServiceUnavailable, "OAuth sign-in is not configured"},
	auth.CodeRateLimited:        {http.StatusTooManyRequests, "Please wait before requesting another OTP"},
	auth.CodeInvalidOTP:         {http.StatusBadRequest, "Invalid or expired OTP"},
	auth.CodeTooManyAttempts:    {http.StatusBadRequest, "Too many attempts. Please request a new OTP"},
}

type userJSON struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsGuest bool   `json:"isGuest"`
}

type userResponse struct {
	User *userJSON `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newUserResponse(u *auth.User) userResponse {
	if u == nil {
		return userResponse{}
	}
	return userResponse{User: &userJSON{
		ID:      u.ID.String(),
		Email:   u.Email,
		Name:    u.Name,
		IsGuest: u.IsGuest,
	}}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.DebugContext(r.Context(), "write response failed", "error", err)
	}
}

// writeError renders err by its code. Unmapped errors are logged and
// reported with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errutil.Code(err)
	mapped, ok := errorStatuses[code]
	if !ok {
		errutil.LogErrorContext(r.Context(), s.logger, "request failed", err)
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: internalErrorMessage})
		return
	}

	message := mapped.message
	if oopsErr, isOops := oops.AsOops(err); isOops && code == CodeBadRequest {
		if public := oopsErr.Public(); public != "" {
			message = public
		}
	}
	s.writeJSON(w, r, mapped.status, errorResponse{Error: message})
}
