// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/samber/oops"

	"github.com/taskmaster/taskmaster/internal/auth"
)

// PasswordResetSubject is the subject line of reset code emails.
const PasswordResetSubject = "Your TaskMaster Password Reset Code"

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// RenderPasswordReset builds the reset code email for to.
func RenderPasswordReset(to, code string) (Message, error) {
	minutes := int(auth.ResetCodeExpiry.Minutes())

	var html bytes.Buffer
	err := templates.ExecuteTemplate(&html, "password_reset.html", struct {
		Code          string
		ExpiryMinutes int
	}{code, minutes})
	if err != nil {
		return Message{}, oops.Code("EMAIL_RENDER_FAILED").
			With("template", "password_reset.html").
			Wrap(err)
	}

	return Message{
		To:      to,
		Subject: PasswordResetSubject,
		Text:    fmt.Sprintf("Your password reset code is: %s. This code expires in %d minutes.", code, minutes),
		HTML:    html.String(),
	}, nil
}
