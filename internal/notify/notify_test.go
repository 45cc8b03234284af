package notify

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/edgard/civicbot/internal/config"
	"github.com/edgard/civicbot/internal/database"
	"github.com/edgard/civicbot/internal/llm"
	"github.com/edgard/civicbot/internal/mail"
	"github.com/edgard/civicbot/internal/photo"
)

type captureTransport struct {
	msg *mail.Message
	err error
}

func (c *captureTransport) Send(_ context.Context, msg *mail.Message) (string, error) {
	c.msg = msg
	if c.err != nil {
		return "", c.err
	}
	return "abc@host", nil
}

type emailGateway struct {
	llm.Gateway
	draft llm.EmailDraft
	err   error
}

func (g emailGateway) GenerateEmail(context.Context, llm.EmailRequest) (llm.EmailDraft, error) {
	return g.draft, g.err
}

func testReport() *database.Report {
	return &database.Report{
		ID:               "r-1",
		CreatedAt:        time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Description:      "Large pothole on MG Road near the metro station that has been growing for weeks",
		Lat:              12.9716,
		Lng:              77.5946,
		PhotoRef:         "1-abc.jpg",
		PhotoContentType: "image/jpeg",
		Category:         sql.NullString{String: "pothole", Valid: true},
		Severity:         sql.NullString{String: "high", Valid: true},
	}
}

func newNotifier(t *testing.T, tr mail.Transport, gw llm.Gateway, withPhoto bool) *Notifier {
	t.Helper()
	store := photo.NewLocalStore(t.TempDir())
	if withPhoto {
		if _, err := store.Save(context.Background(), "1-abc.jpg", "image/jpeg", strings.NewReader("jpeg")); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.EmailConfig{From: "reports@civicbot.local", Disclaimer: "Automated civic report."}
	return New(cfg, tr, gw, store, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTemplate(t *testing.T) {
	t.Parallel()

	d := Template(testReport(), "Disclaimer.")
	if d.AIEnhanced {
		t.Error("template must not be AI enhanced")
	}
	if utf8.RuneCountInString(d.Subject) > 60 || !strings.HasPrefix(d.Subject, "Report: Large pothole") {
		t.Errorf("Subject = %q", d.Subject)
	}
	for _, want := range []string{
		"Large pothole on MG Road", "Category: pothole", "Severity: high",
		"Location: 12.971600, 77.594600", "https://www.google.com/maps?q=12.971600,77.594600",
		"2025-03-01T10:00:00Z", "Disclaimer.",
	} {
		if !strings.Contains(d.Body, want) {
			t.Errorf("Body missing %q:\n%s", want, d.Body)
		}
	}

	r := testReport()
	r.Category, r.Severity = sql.NullString{}, sql.NullString{}
	if d := Template(r, ""); !strings.Contains(d.Body, "Category: unclassified") {
		t.Errorf("Body = %q", d.Body)
	}
}

func TestSendWithAIDraftAndPhoto(t *testing.T) {
	t.Parallel()

	tr := &captureTransport{}
	gw := emailGateway{draft: llm.EmailDraft{
		Subject: "Urgent: deep pothole on MG Road requires immediate repair by the ward office",
		Body:    "Dear team, a deep pothole was reported.",
	}}
	id, draft, err := newNotifier(t, tr, gw, true).Send(context.Background(), testReport())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "abc@host" || !draft.AIEnhanced {
		t.Errorf("Send() = %q, %+v", id, draft)
	}
	if n := utf8.RuneCountInString(tr.msg.Subject); n > 60 {
		t.Errorf("subject has %d runes", n)
	}
	if !strings.HasPrefix(tr.msg.Body, "Dear team") || !strings.Contains(tr.msg.Body, "Automated civic report.") {
		t.Errorf("Body = %q", tr.msg.Body)
	}
	if len(tr.msg.To) != 1 || tr.msg.To[0] != "reports@civicbot.local" {
		t.Errorf("To = %v, want fallback to From", tr.msg.To)
	}
	if len(tr.msg.Attachments) != 1 || tr.msg.Attachments[0].Name != "report-r-1.jpg" {
		t.Errorf("Attachments = %+v", tr.msg.Attachments)
	}
}

func TestSendFallsBackWithoutPhoto(t *testing.T) {
	t.Parallel()

	tr := &captureTransport{}
	gw := emailGateway{err: llm.ErrMalformedResponse}
	_, draft, err := newNotifier(t, tr, gw, false).Send(context.Background(), testReport())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if draft.AIEnhanced || len(tr.msg.Attachments) != 0 {
		t.Errorf("draft = %+v, attachments = %d", draft, len(tr.msg.Attachments))
	}
}

func TestSendTransportError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	_, _, err := newNotifier(t, &captureTransport{err: boom}, llm.Disabled(), false).Send(context.Background(), testReport())
	if !errors.Is(err, boom) {
		t.Errorf("Send() error = %v", err)
	}
}
