// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package web

import (
	"net/http"

	"github.com/taskmaster/taskmaster/internal/auth"
	"github.com/taskmaster/taskmaster/internal/email"
	"github.com/taskmaster/taskmaster/pkg/errutil"
)

// ForgotPasswordMessage is returned whether or not the account exists.
const ForgotPasswordMessage = "If an account exists for this email, you will receive an OTP shortly."

// ResetPasswordMessage confirms a completed reset.
const ResetPasswordMessage = "Password reset successful"

// Auth event names recorded in metrics.
const (
	eventSignup        = "signup"
	eventLogin         = "login"
	eventGuest         = "guest_login"
	eventOAuth         = "oauth_complete"
	eventResetRequest  = "reset_request"
	eventResetComplete = "reset_complete"
)

func (s *Server) record(event string, err error) {
	if s.metrics != nil {
		s.metrics.RecordAuthEvent(event, err)
	}
}

// startSession answers a successful sign-in with the user and a fresh cookie.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *auth.User, session *auth.Session) {
	s.setSessionCookie(w, session)
	s.writeJSON(w, r, http.StatusOK, newUserResponse(user))
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, session, err := s.auth.Signup(r.Context(), req.Email, req.Password, req.Name)
	s.record(eventSignup, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.startSession(w, r, user, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	s.record(eventLogin, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.startSession(w, r, user, session)
}

func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	user, session, err := s.auth.GuestLogin(r.Context())
	s.record(eventGuest, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.startSession(w, r, user, session)
}

func (s *Server) handleOAuthComplete(w http.ResponseWriter, r *http.Request) {
	var req oauthCompleteRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, session, err := s.auth.OAuthComplete(r.Context(), req.AccessToken)
	s.record(eventOAuth, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.startSession(w, r, user, session)
}

// handleSession reports the signed-in user, or null for anonymous callers.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" {
		s.writeJSON(w, r, http.StatusOK, userResponse{})
		return
	}

	user, err := s.auth.CurrentUser(r.Context(), id)
	if err != nil {
		if errutil.Code(err) != auth.CodeUnauthorized {
			errutil.LogErrorContext(r.Context(), s.logger, "session lookup failed", err)
		}
		s.writeJSON(w, r, http.StatusOK, userResponse{})
		return
	}
	s.writeJSON(w, r, http.StatusOK, newUserResponse(user))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), sessionID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	s.writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" {
		s.writeJSON(w, r, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return
	}

	var req profileRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.auth.UpdateProfile(r.Context(), id, auth.ProfileUpdate{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, newUserResponse(user))
}

// handleForgotPassword answers identically for known, unknown and
// rate-limited addresses.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	code, err := s.reset.RequestReset(r.Context(), req.Email)
	s.record(eventResetRequest, err)
	if err != nil && errutil.Code(err) != auth.CodeRateLimited {
		s.writeError(w, r, err)
		return
	}

	if code != "" {
		if err := s.sendResetCode(r, auth.NormalizeEmail(req.Email), code); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.writeJSON(w, r, http.StatusOK, messageResponse{Message: ForgotPasswordMessage})
}

func (s *Server) sendResetCode(r *http.Request, to, code string) error {
	msg, err := email.RenderPasswordReset(to, code)
	if err != nil {
		return err
	}
	ref, err := s.mailer.Send(r.Context(), msg)
	if s.metrics != nil {
		s.metrics.RecordEmail(err)
	}
	if err != nil {
		return err
	}
	s.logger.InfoContext(r.Context(), "password reset email sent", "message_id", ref.MessageID)
	return nil
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	_, err := s.reset.CompleteReset(r.Context(), req.Email, req.OTP, req.Password)
	s.record(eventResetComplete, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, messageResponse{Message: ResetPasswordMessage})
}
