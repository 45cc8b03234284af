package mail

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridTransport sends messages through the SendGrid v3 mail API.
type SendGridTransport struct {
	client *sendgrid.Client
}

// NewSendGridTransport creates a transport authenticated with apiKey.
func NewSendGridTransport(apiKey string) *SendGridTransport {
	return &SendGridTransport{client: sendgrid.NewSendClient(apiKey)}
}

func (t *SendGridTransport) Send(ctx context.Context, msg *Message) (string, error) {
	message := sgmail.NewV3Mail()
	message.SetFrom(sgmail.NewEmail("", msg.From))
	message.Subject = msg.Subject

	p := sgmail.NewPersonalization()
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail("", to))
	}
	message.AddPersonalizations(p)
	message.AddContent(sgmail.NewContent("text/plain", msg.Body))

	for _, a := range msg.Attachments {
		att := sgmail.NewAttachment()
		att.SetContent(base64.StdEncoding.EncodeToString(a.Data))
		att.SetType(a.ContentType)
		att.SetFilename(a.Name)
		att.SetDisposition("attachment")
		message.AddAttachment(att)
	}

	resp, err := t.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("sendgrid request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}
