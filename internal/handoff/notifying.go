package handoff

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/leadrail/sitechat-platform/internal/audit"
	"github.com/leadrail/sitechat-platform/internal/notify"
	"github.com/leadrail/sitechat-platform/pkg/logging"
)

// NotifyingWriter wraps a Writer, emails the sales team a summary after each
// persisted booking request, and records the delivery on the audit trail.
// Notification and audit failures are logged, never surfaced; the booking
// is already durable at that point.
type NotifyingWriter struct {
	inner     Writer
	sender    notify.EmailSender
	salesAddr string
	trail     *audit.Trail
	logger    *logging.Logger
}

var _ Writer = (*NotifyingWriter)(nil)

// NewNotifyingWriter creates the wrapper. A nil sender or empty sales
// address disables notifications; a nil trail disables auditing.
func NewNotifyingWriter(inner Writer, sender notify.EmailSender, salesAddr string, trail *audit.Trail, logger *logging.Logger) *NotifyingWriter {
	if inner == nil {
		panic("handoff: inner writer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &NotifyingWriter{
		inner:     inner,
		sender:    sender,
		salesAddr: salesAddr,
		trail:     trail,
		logger:    logger.WithComponent("handoff"),
	}
}

// Create persists the record, then notifies sales best-effort.
func (w *NotifyingWriter) Create(ctx context.Context, rec *Record) (*Record, error) {
	stored, err := w.inner.Create(ctx, rec)
	if err != nil {
		return nil, err
	}

	if w.sender != nil && w.salesAddr != "" {
		msg := notify.EmailMessage{
			To:      w.salesAddr,
			Subject: fmt.Sprintf("New qualified lead: %s (%s)", stored.Name, stored.BookingType),
			Body:    FormatSummary(stored),
			HTML:    FormatSummaryHTML(stored),
		}
		if err := w.sender.Send(ctx, msg); err != nil {
			w.logger.Error("failed to send handoff notification",
				"error", err,
				"org_id", stored.OrgID,
				"booking_id", stored.ID,
			)
		} else {
			w.logger.Info("handoff notification sent",
				"org_id", stored.OrgID,
				"booking_id", stored.ID,
			)
		}
	}

	if err := w.trail.LogHandoffDelivered(ctx, stored.OrgID, stored.SessionID, stored.BookingType); err != nil {
		w.logger.Warn("failed to audit handoff delivery", "error", err, "org_id", stored.OrgID)
	}

	return stored, nil
}

// FormatSummary renders a plain-text lead summary for notifications.
func FormatSummary(rec *Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", rec.Name)
	fmt.Fprintf(&b, "Email: %s\n", rec.Email)
	fmt.Fprintf(&b, "Requested: %s\n", rec.BookingType)
	if rec.Details != "" {
		fmt.Fprintf(&b, "Details: %s\n", rec.Details)
	}
	if rec.Timeline != "" {
		fmt.Fprintf(&b, "Timeline: %s\n", rec.Timeline)
	}
	if rec.PageURL != "" {
		fmt.Fprintf(&b, "Page: %s\n", rec.PageURL)
	}
	if rec.Escalated {
		b.WriteString("Escalated: visitor matched a high-value answer\n")
	}
	fmt.Fprintf(&b, "Session: %s\n", rec.SessionID)
	return b.String()
}

// FormatSummaryHTML renders the summary for HTML email bodies.
func FormatSummaryHTML(rec *Record) string {
	esc := func(s string) string { return html.EscapeString(s) }
	var b strings.Builder
	b.WriteString("<h3>New qualified lead</h3><ul>")
	fmt.Fprintf(&b, "<li><b>Name:</b> %s</li>", esc(rec.Name))
	fmt.Fprintf(&b, "<li><b>Email:</b> %s</li>", esc(rec.Email))
	fmt.Fprintf(&b, "<li><b>Requested:</b> %s</li>", esc(rec.BookingType))
	if rec.Details != "" {
		fmt.Fprintf(&b, "<li><b>Details:</b> %s</li>", esc(rec.Details))
	}
	if rec.Timeline != "" {
		fmt.Fprintf(&b, "<li><b>Timeline:</b> %s</li>", esc(rec.Timeline))
	}
	if rec.PageURL != "" {
		fmt.Fprintf(&b, "<li><b>Page:</b> %s</li>", esc(rec.PageURL))
	}
	if rec.Escalated {
		b.WriteString("<li><b>Escalated:</b> high-value answer</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}
