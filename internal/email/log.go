// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package email

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
)

// LogSender records messages in the log instead of sending them.
// For local development only; bodies are never logged.
type LogSender struct {
	logger *slog.Logger
}

// Compile-time interface check.
var _ Sender = (*LogSender)(nil)

// NewLogSender creates a LogSender. A nil logger uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs msg metadata and returns a synthetic message id.
func (s *LogSender) Send(ctx context.Context, msg Message) (DeliveryRef, error) {
	ref := DeliveryRef{MessageID: ulid.Make().String() + "@log"}
	s.logger.InfoContext(ctx, "email not sent, smtp not configured",
		"to", msg.To,
		"subject", msg.Subject,
		"message_id", ref.MessageID)
	return ref, nil
}
