// Package session persists per-visitor conversation state between stateless
// HTTP turns. Documents are versioned; every write is a compare-and-swap so
// two concurrent turns for the same session cannot silently overwrite each
// other's workflow step.
package session

import (
	"errors"
	"strings"
	"time"
)

// WorkflowStep is the engine's current position in the scripted flow.
type WorkflowStep string

const (
	StepIdle             WorkflowStep = "idle"
	StepLeadQuestion     WorkflowStep = "lead_question"
	StepSalesQuestion    WorkflowStep = "sales_question"
	StepFollowUpQuestion WorkflowStep = "follow_up_question"
	StepLoopClosure      WorkflowStep = "loop_closure"
	StepHandoffConfirm   WorkflowStep = "sales_handoff_confirm"
	StepHandoffName      WorkflowStep = "sales_handoff_name"
	StepHandoffEmail     WorkflowStep = "sales_handoff_email"
	StepHandoffDetails   WorkflowStep = "sales_handoff_details"
	StepHandoffTimeline  WorkflowStep = "sales_handoff_timeline"
	StepHandoffEnd       WorkflowStep = "sales_handoff_end"
)

// BookingStatus tracks whether a handoff/booking request exists for a session.
type BookingStatus string

const (
	BookingNone      BookingStatus = "none"
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
)

var (
	// ErrNotFound indicates no session document exists for the key.
	ErrNotFound = errors.New("session: not found")

	// ErrVersionConflict indicates a concurrent turn already advanced the
	// session. The caller should reload and retry once, then surface a soft
	// "please try again" to the visitor.
	ErrVersionConflict = errors.New("session: version conflict")
)

// Session is the versioned conversation document for one (org, session) pair.
type Session struct {
	OrgID     string `dynamodbav:"orgId" json:"orgId"`
	SessionID string `dynamodbav:"sessionId" json:"sessionId"`

	WorkflowStep      WorkflowStep      `dynamodbav:"workflowStep" json:"workflowStep"`
	PageURL           string            `dynamodbav:"pageUrl" json:"pageUrl"`
	CollectedAnswers  map[string]string `dynamodbav:"collectedAnswers,omitempty" json:"collectedAnswers,omitempty"`
	FollowUpCount     int               `dynamodbav:"followUpCount" json:"followUpCount"`
	PreviousQuestions []string          `dynamodbav:"previousQuestions,omitempty" json:"previousQuestions,omitempty"`
	BookingStatus     BookingStatus     `dynamodbav:"bookingStatus" json:"bookingStatus"`
	Escalated         bool              `dynamodbav:"escalated" json:"escalated"`
	HandoffDelivered  bool              `dynamodbav:"handoffDelivered" json:"handoffDelivered"`
	Completed         bool              `dynamodbav:"completed" json:"completed"`

	LastUpdated time.Time `dynamodbav:"lastUpdated" json:"lastUpdated"`
	Version     int64     `dynamodbav:"version" json:"version"`
	ExpiresAt   int64     `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// New returns a fresh idle session document.
func New(orgID, sessionID, pageURL string) *Session {
	return &Session{
		OrgID:            orgID,
		SessionID:        sessionID,
		WorkflowStep:     StepIdle,
		PageURL:          pageURL,
		CollectedAnswers: make(map[string]string),
		BookingStatus:    BookingNone,
		Version:          1,
	}
}

// Validate checks the document key.
func (s *Session) Validate() error {
	if s == nil {
		return errors.New("session: document required")
	}
	if strings.TrimSpace(s.OrgID) == "" {
		return errors.New("session: org id required")
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return errors.New("session: session id required")
	}
	return nil
}

// RecordAnswer stores a collected answer under the given slot.
func (s *Session) RecordAnswer(slot, value string) {
	if s.CollectedAnswers == nil {
		s.CollectedAnswers = make(map[string]string)
	}
	s.CollectedAnswers[slot] = value
}

// RecordQuestion appends to the asked-question history, skipping duplicates
// of the most recent entry so rephrased re-asks don't flood the list.
func (s *Session) RecordQuestion(text string) {
	if text == "" {
		return
	}
	if n := len(s.PreviousQuestions); n > 0 && s.PreviousQuestions[n-1] == text {
		return
	}
	s.PreviousQuestions = append(s.PreviousQuestions, text)
}

// HasAsked reports whether the question was already asked this session.
func (s *Session) HasAsked(text string) bool {
	for _, q := range s.PreviousQuestions {
		if q == text {
			return true
		}
	}
	return false
}

// InHandoffChain reports whether the session is in the terminal contact
// collection chain.
func (s *Session) InHandoffChain() bool {
	switch s.WorkflowStep {
	case StepHandoffConfirm, StepHandoffName, StepHandoffEmail,
		StepHandoffDetails, StepHandoffTimeline, StepHandoffEnd:
		return true
	}
	return false
}

// Clone returns a deep copy so in-memory stores and retries never alias
// the caller's document.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.CollectedAnswers != nil {
		cp.CollectedAnswers = make(map[string]string, len(s.CollectedAnswers))
		for k, v := range s.CollectedAnswers {
			cp.CollectedAnswers[k] = v
		}
	}
	if s.PreviousQuestions != nil {
		cp.PreviousQuestions = append([]string(nil), s.PreviousQuestions...)
	}
	return &cp
}
