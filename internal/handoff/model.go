// Package handoff persists booking requests produced when a visitor
// completes the sales handoff chain, and notifies the sales team.
package handoff

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrInvalidName is returned when the name is missing
	ErrInvalidName = errors.New("handoff: name is required")

	// ErrInvalidEmail is returned when the email fails minimal validation
	ErrInvalidEmail = errors.New("handoff: valid email is required")

	// ErrMissingOrgID is returned when the org context is absent
	ErrMissingOrgID = errors.New("handoff: org id is required")

	// ErrMissingSession is returned when the session id is absent
	ErrMissingSession = errors.New("handoff: session id is required")
)

// Record is a booking request collected by the handoff chain.
type Record struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	SessionID   string    `json:"session_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Details     string    `json:"details"`
	Timeline    string    `json:"timeline"`
	PageURL     string    `json:"page_url"`
	BookingType string    `json:"booking_type"`
	Escalated   bool      `json:"escalated"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate applies the minimal field checks the chain enforces.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.OrgID) == "" {
		return ErrMissingOrgID
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return ErrMissingSession
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if !ValidEmail(r.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidEmail checks for an @ with a non-empty local part and a domain
// segment containing a dot. Deliberately minimal; delivery verification is
// not this system's job.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1 && !strings.Contains(domain, "@")
}
