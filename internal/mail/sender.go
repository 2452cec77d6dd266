// Package mail delivers student notifications.
package mail

import (
	"context"
	"errors"
	"fmt"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/config"
)

// Message is a rendered notification.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

// NewSMTPSender builds a sender from configuration. STARTTLS is used when the
// relay offers it.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host not configured")
	}
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

// Send composes a multipart/alternative message and delivers it.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender stands in when SMTP is not configured. The body holds the
// student's view link, so only the subject is logged.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a sender that only logs.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("smtp not configured; notification not sent", zap.String("subject", msg.Subject))
	return nil
}

// NewSender picks the SMTP sender when a host is configured.
func NewSender(cfg config.SMTPConfig, logger *zap.Logger) (Sender, error) {
	if cfg.Host == "" {
		logger.Warn("SMTP_HOST not provided; notifications will only be logged")
		return NewLogSender(logger), nil
	}
	return NewSMTPSender(cfg)
}
