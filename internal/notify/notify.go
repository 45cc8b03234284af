// Package notify composes and delivers authority emails for reports.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/civicbot/internal/config"
	"github.com/edgard/civicbot/internal/database"
	"github.com/edgard/civicbot/internal/geocode"
	"github.com/edgard/civicbot/internal/llm"
	"github.com/edgard/civicbot/internal/mail"
	"github.com/edgard/civicbot/internal/photo"
)

const (
	maxSubjectRunes = 60
	maxPhotoBytes   = 20 << 20
)

// Draft is a composed email.
type Draft struct {
	Subject    string
	Body       string
	AIEnhanced bool
}

// Notifier writes and sends the email for one report.
type Notifier struct {
	transport  mail.Transport
	gateway    llm.Gateway
	photos     photo.Store
	from       string
	to         []string
	disclaimer string
	aiTimeout  time.Duration
	log        *slog.Logger
}

// New creates a Notifier. Model calls are bounded by aiTimeout.
func New(cfg config.EmailConfig, transport mail.Transport, gateway llm.Gateway, photos photo.Store, aiTimeout time.Duration, log *slog.Logger) *Notifier {
	to := cfg.To
	if len(to) == 0 {
		to = []string{cfg.From}
	}
	return &Notifier{
		transport:  transport,
		gateway:    gateway,
		photos:     photos,
		from:       cfg.From,
		to:         to,
		disclaimer: cfg.Disclaimer,
		aiTimeout:  aiTimeout,
		log:        log.With("component", "notifier"),
	}
}

// Send composes the email, attaches the photo when available and delivers it.
func (n *Notifier) Send(ctx context.Context, r *database.Report) (string, Draft, error) {
	draft := n.Compose(ctx, r)

	msg := &mail.Message{
		From:    n.from,
		To:      n.to,
		Subject: draft.Subject,
		Body:    draft.Body,
	}
	if att, ok := n.attachment(ctx, r); ok {
		msg.Attachments = append(msg.Attachments, att)
	}

	id, err := n.transport.Send(ctx, msg)
	if err != nil {
		return "", draft, err
	}
	n.log.InfoContext(ctx, "Authority email sent", "report_id", r.ID, "ai_enhanced", draft.AIEnhanced, "attachments", len(msg.Attachments))
	return id, draft, nil
}

// Compose asks the model for a subject and body and falls back to Template on any failure.
func (n *Notifier) Compose(ctx context.Context, r *database.Report) Draft {
	callCtx, cancel := context.WithTimeout(ctx, n.aiTimeout)
	defer cancel()

	out, err := n.gateway.GenerateEmail(callCtx, llm.EmailRequest{
		Description: r.Description,
		Category:    r.Category.String,
		Severity:    r.Severity.String,
		Lat:         r.Lat,
		Lng:         r.Lng,
	})
	if err != nil {
		n.log.DebugContext(ctx, "AI email unavailable, using template", "report_id", r.ID, "error", err)
		return Template(r, n.disclaimer)
	}

	var body strings.Builder
	body.WriteString(out.Body)
	body.WriteString("\n\n")
	writeFacts(&body, r)
	if n.disclaimer != "" {
		body.WriteString("\n")
		body.WriteString(n.disclaimer)
	}
	return Draft{Subject: truncate(out.Subject, maxSubjectRunes), Body: body.String(), AIEnhanced: true}
}

// Template is the fixed email used when no model output is available.
func Template(r *database.Report, disclaimer string) Draft {
	var body strings.Builder
	body.WriteString(r.Description)
	body.WriteString("\n\n")
	writeFacts(&body, r)
	if disclaimer != "" {
		body.WriteString("\n")
		body.WriteString(disclaimer)
	}
	return Draft{
		Subject: truncate("Report: "+strings.Join(strings.Fields(r.Description), " "), maxSubjectRunes),
		Body:    body.String(),
	}
}

func writeFacts(b *strings.Builder, r *database.Report) {
	fmt.Fprintf(b, "Category: %s\n", orUnclassified(r.Category.String))
	fmt.Fprintf(b, "Severity: %s\n", orUnclassified(r.Severity.String))
	fmt.Fprintf(b, "Location: %s\n", geocode.FormatCoordinates(r.Lat, r.Lng))
	fmt.Fprintf(b, "Map: %s\n", geocode.MapsLink(r.Lat, r.Lng))
	fmt.Fprintf(b, "Reported: %s\n", r.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(b, "Report ID: %s\n", r.ID)
}

func (n *Notifier) attachment(ctx context.Context, r *database.Report) (mail.Attachment, bool) {
	if r.PhotoRef == "" {
		return mail.Attachment{}, false
	}
	data, err := photo.ReadAll(ctx, n.photos, r.PhotoRef, maxPhotoBytes)
	if err != nil {
		n.log.WarnContext(ctx, "Photo unavailable, sending without attachment", "report_id", r.ID, "error", err)
		return mail.Attachment{}, false
	}
	ct := r.PhotoContentType
	if ct == "" {
		ct = "image/jpeg"
	}
	return mail.Attachment{Name: "report-" + r.ID + photo.ExtensionFor(ct), ContentType: ct, Data: data}, true
}

func orUnclassified(s string) string {
	if s == "" {
		return "unclassified"
	}
	return s
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
