package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/helmhq/identity-service/internal/core/port"
	"github.com/helmhq/identity-service/internal/infra/config"
	"github.com/helmhq/identity-service/internal/infra/logger"
)

// Mailer delivers notifications through an SMTP relay.
type Mailer struct {
	cfg    config.SMTPSettings
	logger *zap.Logger
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer constructs an SMTP-backed notifier.
func NewMailer(cfg config.SMTPSettings, log *zap.Logger) *Mailer {
	return &Mailer{
		cfg:    cfg,
		logger: log,
		send:   smtp.SendMail,
	}
}

// Notify sends a plain-text message to the recipient.
func (m *Mailer) Notify(ctx context.Context, recipient, subject, body string) (port.DeliveryResult, error) {
	result := port.DeliveryResult{Recipient: recipient}

	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return result, fmt.Errorf("recipient is required")
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + recipient,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.From, []string{recipient}, []byte(msg)); err != nil {
		return result, fmt.Errorf("send mail: %w", err)
	}

	result.Accepted = true
	m.logger.Info("notification delivered",
		zap.String("recipient", logger.MaskEmail(recipient)),
		zap.String("subject", subject),
	)

	return result, nil
}

// StubNotifier logs notifications instead of delivering them. Used when the
// SMTP relay is disabled.
type StubNotifier struct {
	logger *zap.Logger
}

// NewStubNotifier constructs a development-friendly notifier.
func NewStubNotifier(log *zap.Logger) *StubNotifier {
	return &StubNotifier{logger: log}
}

// Notify logs the would-be delivery and reports it as accepted.
func (n *StubNotifier) Notify(_ context.Context, recipient, subject, body string) (port.DeliveryResult, error) {
	n.logger.Info("stub notification",
		zap.String("recipient", logger.MaskEmail(recipient)),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return port.DeliveryResult{Recipient: recipient, Accepted: true}, nil
}

var (
	_ port.Notifier = (*Mailer)(nil)
	_ port.Notifier = (*StubNotifier)(nil)
)
