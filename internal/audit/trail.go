// Package audit provides an immutable trail of admin and handoff events so
// tenant-facing changes stay reviewable.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audited event.
type EventType string

const (
	// EventScriptUpdated is logged when an org's script config is saved.
	EventScriptUpdated EventType = "admin.script_updated"
	// EventScriptDeleted is logged when an org's script config is removed.
	EventScriptDeleted EventType = "admin.script_deleted"
	// EventHandoffDelivered is logged when a qualified lead reaches sales.
	EventHandoffDelivered EventType = "handoff.delivered"
)

// Event is one immutable audit record.
type Event struct {
	ID        string          `json:"id"`
	EventType EventType       `json:"event_type"`
	OrgID     string          `json:"org_id"`
	SessionID string          `json:"session_id,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Trail persists audit events. A nil trail is a no-op so auditing can be
// disabled without guarding every call site.
type Trail struct {
	db *sql.DB
}

// NewTrail creates an audit trail. Returns nil when db is nil.
func NewTrail(db *sql.DB) *Trail {
	if db == nil {
		return nil
	}
	return &Trail{db: db}
}

// LogEvent records one audit event.
func (t *Trail) LogEvent(ctx context.Context, event Event) error {
	if t == nil || t.db == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, org_id, session_id, actor, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := t.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.OrgID,
		nullString(event.SessionID),
		nullString(event.Actor),
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// LogScriptUpdated records a saved script config with its section count.
func (t *Trail) LogScriptUpdated(ctx context.Context, orgID, actor string, sections int) error {
	details, _ := json.Marshal(map[string]int{"sections": sections})
	return t.LogEvent(ctx, Event{
		EventType: EventScriptUpdated,
		OrgID:     orgID,
		Actor:     actor,
		Details:   details,
	})
}

// LogScriptDeleted records a removed script config.
func (t *Trail) LogScriptDeleted(ctx context.Context, orgID, actor string) error {
	return t.LogEvent(ctx, Event{
		EventType: EventScriptDeleted,
		OrgID:     orgID,
		Actor:     actor,
	})
}

// LogHandoffDelivered records a delivered sales handoff. Contact details stay
// out of the trail; the booking row holds them.
func (t *Trail) LogHandoffDelivered(ctx context.Context, orgID, sessionID, bookingType string) error {
	details, _ := json.Marshal(map[string]string{"booking_type": bookingType})
	return t.LogEvent(ctx, Event{
		EventType: EventHandoffDelivered,
		OrgID:     orgID,
		SessionID: sessionID,
		Details:   details,
	})
}

// ListEvents returns an org's most recent audit events.
func (t *Trail) ListEvents(ctx context.Context, orgID string, limit int) ([]Event, error) {
	if t == nil || t.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT id, event_type, org_id, COALESCE(session_id, ''),
		       COALESCE(actor, ''), details, created_at
		FROM audit_events
		WHERE org_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.OrgID, &ev.SessionID,
			&ev.Actor, &ev.Details, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
