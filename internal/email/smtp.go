// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package email

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/wneessen/go-mail"
)

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL selects implicit TLS (usually port 465). Otherwise STARTTLS is
	// used when the relay offers it.
	SSL      bool
	From     string
	FromName string
	Timeout  time.Duration
}

// deliverer is the part of *mail.Client SMTPSender uses.
type deliverer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPSender hands messages to an SMTP relay.
type SMTPSender struct {
	client   deliverer
	from     string
	fromName string
}

// Compile-time interface check.
var _ Sender = (*SMTPSender)(nil)

// NewSMTPSender creates a sender for the relay described by cfg.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("EMAIL_SMTP_CONFIG").Errorf("smtp host is required")
	}

	opts := []mail.Option{
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.SSL {
		opts = append(opts, mail.WithSSL())
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("EMAIL_SMTP_CONFIG").
			With("host", cfg.Host).
			With("port", cfg.Port).
			Wrap(err)
	}
	return newSMTPSender(client, cfg.From, cfg.FromName), nil
}

func newSMTPSender(client deliverer, from, fromName string) *SMTPSender {
	if from == "" {
		from = DefaultFrom
	}
	if fromName == "" {
		fromName = DefaultFromName
	}
	return &SMTPSender{client: client, from: from, fromName: fromName}
}

// Send delivers msg in one attempt.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (DeliveryRef, error) {
	m, err := s.build(msg)
	if err != nil {
		return DeliveryRef{}, err
	}

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return DeliveryRef{}, oops.Code("EMAIL_SEND_FAILED").
			With("subject", msg.Subject).
			Wrap(err)
	}

	var ref DeliveryRef
	if ids := m.GetGenHeader(mail.HeaderMessageID); len(ids) > 0 {
		ref.MessageID = strings.Trim(ids[0], "<>")
	}
	return ref, nil
}

func (s *SMTPSender) build(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(s.fromName, s.from); err != nil {
		return nil, oops.Code("EMAIL_INVALID_ADDRESS").With("from", s.from).Wrap(err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, oops.Code("EMAIL_INVALID_ADDRESS").With("to", msg.To).Wrap(err)
	}
	m.Subject(msg.Subject)
	m.SetMessageID()
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}
