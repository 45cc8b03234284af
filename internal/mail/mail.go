// Package mail delivers authority notifications over SMTP or the SendGrid API.
package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/civicbot/internal/config"
)

// ErrNotConfigured is returned when the selected transport lacks required settings.
var ErrNotConfigured = errors.New("email transport not configured")

// Attachment is an in-memory file attached to a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is a plain text email.
type Message struct {
	From        string
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Transport sends a message and returns the provider message id.
type Transport interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// New builds the Transport selected by cfg.Transport.
func New(cfg config.EmailConfig) (Transport, error) {
	switch cfg.Transport {
	case "", "smtp":
		if cfg.Host == "" {
			return nil, fmt.Errorf("smtp host missing: %w", ErrNotConfigured)
		}
		return NewSMTPTransport(cfg), nil
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid api key missing: %w", ErrNotConfigured)
		}
		return NewSendGridTransport(cfg.SendGridAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown email transport %q", cfg.Transport)
	}
}
