// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

// Package email renders and delivers transactional mail.
//
// Delivery is a single attempt. Callers decide what a failure means; the
// password reset flow treats the issued code as valid whether or not the
// message went out.
package email

import (
	"context"
)

// Default sender identity.
const (
	DefaultFrom     = "noreply@taskmaster.com"
	DefaultFromName = "TaskMaster Support"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// DeliveryRef identifies a handed-off message.
type DeliveryRef struct {
	MessageID string
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) (DeliveryRef, error)
}
