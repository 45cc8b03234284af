package mail

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/edgard/civicbot/internal/config"
)

// SMTPTransport submits messages to an SMTP relay. Port 465 uses implicit TLS,
// any other port upgrades with STARTTLS when the server offers it.
type SMTPTransport struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration
}

// NewSMTPTransport creates an SMTP transport from cfg.
func NewSMTPTransport(cfg config.EmailConfig) *SMTPTransport {
	return &SMTPTransport{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  cfg.Timeout,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (string, error) {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return "", fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return "", fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	m.SetDate()
	m.SetMessageID()

	for _, a := range msg.Attachments {
		if err := m.AttachReader(a.Name, bytes.NewReader(a.Data), gomail.WithFileContentType(gomail.ContentType(a.ContentType))); err != nil {
			return "", fmt.Errorf("failed to attach %s: %w", a.Name, err)
		}
	}

	client, err := gomail.NewClient(t.host, t.options()...)
	if err != nil {
		return "", fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	var id string
	if ids := m.GetGenHeader(gomail.HeaderMessageID); len(ids) > 0 {
		id = strings.Trim(ids[0], "<>")
	}
	return id, nil
}

func (t *SMTPTransport) options() []gomail.Option {
	opts := []gomail.Option{gomail.WithPort(t.port)}
	if t.timeout > 0 {
		opts = append(opts, gomail.WithTimeout(t.timeout))
	}
	if t.port == 465 {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if t.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(t.username),
			gomail.WithPassword(t.password),
		)
	}
	return opts
}
