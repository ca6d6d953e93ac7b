// Package email delivers outbox messages over SMTP.
package email

import (
	"context"
	"fmt"

	"adops_backend/platform/config"
	"adops_backend/platform/logger"

	"github.com/wneessen/go-mail"
)

// Sender delivers a rendered message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, toName, subject, htmlBody string) error
	Enabled() bool
}

// SMTPSender is the production Sender.
type SMTPSender struct {
	cfg config.EmailConfig
	log *logger.Logger
}

func NewSMTPSender(cfg config.EmailConfig, log *logger.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, log: log}
}

var _ Sender = (*SMTPSender)(nil)

func (s *SMTPSender) Enabled() bool {
	return s.cfg.GetEmailEnabled() && s.cfg.GetSMTPHost() != ""
}

func (s *SMTPSender) Send(ctx context.Context, to, toName, subject, htmlBody string) error {
	if !s.Enabled() {
		s.log.Debug("email disabled, dropping message", "to", to, "subject", subject)
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.GetEmailFromName(), s.cfg.GetEmailFromAddress()); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.AddToFormat(toName, to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	client, err := mail.NewClient(s.cfg.GetSMTPHost(),
		mail.WithPort(s.cfg.GetSMTPPort()),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.GetSMTPUsername()),
		mail.WithPassword(s.cfg.GetSMTPPassword()),
	)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
