package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leadrail/sitechat-platform/internal/fallback"
	"github.com/leadrail/sitechat-platform/internal/handoff"
	"github.com/leadrail/sitechat-platform/internal/observability/metrics"
	"github.com/leadrail/sitechat-platform/internal/script"
	"github.com/leadrail/sitechat-platform/internal/session"
	"github.com/leadrail/sitechat-platform/pkg/logging"
)

// ErrInvalidRequest marks turn requests rejected before any state is touched.
var ErrInvalidRequest = errors.New("engine: invalid turn request")

const (
	genericGreeting  = "Hi! How can I help you today?"
	racePrompt       = "Looks like that message crossed with another one. Could you send it again?"
	handoffSoftError = "I couldn't reach our scheduling system just now, but I've saved your details. We'll finish setting this up on your next message."
)

// TurnRequest is one inbound widget turn.
type TurnRequest struct {
	OrgID     string `json:"orgId"`
	SessionID string `json:"sessionId"`
	PageURL   string `json:"pageUrl"`
	Question  string `json:"question,omitempty"`
	// Proactive marks an engine-initiated turn used to emit the first
	// scripted message without visitor input. An absent question implies it.
	Proactive bool `json:"proactive,omitempty"`
}

// Validate rejects malformed requests before they reach the state machine.
func (r TurnRequest) Validate() error {
	if strings.TrimSpace(r.OrgID) == "" {
		return fmt.Errorf("%w: org id required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("%w: session id required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.PageURL) == "" {
		return fmt.Errorf("%w: page url required", ErrInvalidRequest)
	}
	return nil
}

// TurnResponse is the widget-facing reply. An absent WorkflowStep means the
// generic responder produced the text; a present step with empty Buttons
// tells the client to render a free-text input.
type TurnResponse struct {
	MainText            string   `json:"mainText"`
	Buttons             []string `json:"buttons"`
	WorkflowStep        string   `json:"workflowStep,omitempty"`
	ShowBookingCalendar bool     `json:"showBookingCalendar,omitempty"`
	BookingType         string   `json:"bookingType,omitempty"`
}

// Config tunes the orchestrator.
type Config struct {
	MaxFollowUps    int
	IntentThreshold int
	// CollaboratorTimeout bounds each session store, responder and handoff
	// writer call; a stalled dependency fails the turn instead of hanging
	// it. Zero means 5s.
	CollaboratorTimeout time.Duration
}

// Engine composes the workflow state machine with the session store, script
// resolver, classifiers and the external collaborators, one turn at a time.
type Engine struct {
	resolver  *script.Resolver
	sessions  session.Store
	workflow  *Workflow
	responder fallback.Responder
	writer    handoff.Writer
	reporter  Reporter
	metrics   *metrics.EngineMetrics
	logger    *logging.Logger

	collabTimeout time.Duration
}

// New builds an engine. responder, writer, reporter and m may be nil; the
// corresponding behavior degrades (apology answers, undelivered handoffs).
func New(resolver *script.Resolver, sessions session.Store, responder fallback.Responder, writer handoff.Writer, reporter Reporter, m *metrics.EngineMetrics, logger *logging.Logger, cfg Config) *Engine {
	if resolver == nil {
		panic("engine: script resolver required")
	}
	if sessions == nil {
		panic("engine: session store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.CollaboratorTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Engine{
		resolver:      resolver,
		sessions:      sessions,
		workflow:      NewWorkflow(cfg.MaxFollowUps, cfg.IntentThreshold),
		responder:     responder,
		writer:        writer,
		reporter:      reporter,
		metrics:       m,
		logger:        logger.WithComponent("engine"),
		collabTimeout: timeout,
	}
}

// Turn processes one inbound turn end to end: load session, step the
// workflow, deliver any completed handoff, persist with compare-and-swap,
// or defer to the generic responder when the engine abstains.
func (e *Engine) Turn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	question := strings.TrimSpace(req.Question)
	proactive := req.Proactive || question == ""

	// Qualification extraction is independent of the workflow and runs
	// alongside the script lookup.
	sigCh := make(chan []Signal, 1)
	go func() { sigCh <- ClassifyQualification(question) }()

	sec, err := e.resolver.Resolve(ctx, req.OrgID, req.PageURL)
	if err != nil {
		e.logger.Error("script resolution failed, treating page as unscripted",
			"error", err, "org_id", req.OrgID, "page_url", req.PageURL)
		sec = nil
	}

	signals := <-sigCh
	if e.reporter != nil && len(signals) > 0 {
		if err := e.reporter.Record(ctx, req.OrgID, req.SessionID, signals); err != nil {
			e.logger.Warn("qualification report update failed", "error", err, "org_id", req.OrgID)
		}
	}

	delivered := false
	for attempt := 0; ; attempt++ {
		stored, existed, err := e.loadSession(ctx, req)
		if err != nil {
			e.metrics.ObserveTurn("error", time.Since(start).Seconds())
			return nil, err
		}

		doc := stored.Clone()
		doc.PageURL = req.PageURL
		mergeSignals(doc, signals)

		res := e.workflow.Step(sec, doc, question, proactive)

		if res.Fallback {
			if existed && sessionDiffers(stored, doc) {
				// A burned re-ask budget must survive this turn.
				if err := e.persistSession(ctx, doc, true, stored.Version); err != nil &&
					!errors.Is(err, session.ErrVersionConflict) {
					e.logger.Warn("session update before fallback failed", "error", err, "org_id", req.OrgID)
				}
			}
			return e.fallbackTurn(ctx, req, question, start)
		}

		if res.HandoffReady && !doc.HandoffDelivered {
			if delivered || e.deliverHandoff(ctx, doc) {
				delivered = true
				doc.HandoffDelivered = true
				doc.BookingStatus = session.BookingConfirmed
			} else {
				res.Messages = []string{handoffSoftError}
				res.ShowBookingCalendar = false
			}
		}

		err = e.persistSession(ctx, doc, existed, stored.Version)
		if err == nil {
			if res.BookingType != "" && res.Step == session.StepHandoffName {
				e.metrics.ObserveBookingIntent(string(res.BookingType))
			}
			e.metrics.ObserveTurn("scripted", time.Since(start).Seconds())
			return toResponse(res), nil
		}
		if errors.Is(err, session.ErrVersionConflict) {
			if attempt == 0 {
				continue
			}
			e.logger.Warn("session race lost twice, surfacing retry",
				"org_id", req.OrgID, "session_id", req.SessionID)
			e.metrics.ObserveTurn("error", time.Since(start).Seconds())
			return &TurnResponse{MainText: racePrompt, Buttons: []string{}}, nil
		}
		e.metrics.ObserveTurn("error", time.Since(start).Seconds())
		return nil, err
	}
}

// loadSession fetches the stored document or builds a fresh idle one. The
// read is bounded by the collaborator timeout.
func (e *Engine) loadSession(ctx context.Context, req TurnRequest) (*session.Session, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, e.collabTimeout)
	defer cancel()

	doc, err := e.sessions.Get(cctx, req.OrgID, req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return session.New(req.OrgID, req.SessionID, req.PageURL), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("engine: load session: %w", err)
	}
	return doc, true, nil
}

// persistSession writes the document with the same bounded timeout.
func (e *Engine) persistSession(ctx context.Context, doc *session.Session, existed bool, expectedVersion int64) error {
	cctx, cancel := context.WithTimeout(ctx, e.collabTimeout)
	defer cancel()

	if existed {
		return e.sessions.CompareAndSet(cctx, doc, expectedVersion)
	}
	return e.sessions.Create(cctx, doc)
}

// fallbackTurn answers generically. No workflow step is returned and no new
// session document is created for unscripted pages.
func (e *Engine) fallbackTurn(ctx context.Context, req TurnRequest, question string, start time.Time) (*TurnResponse, error) {
	text := genericGreeting
	if question != "" {
		text = fallback.Apology
		if e.responder != nil {
			cctx, cancel := context.WithTimeout(ctx, e.collabTimeout)
			defer cancel()
			answer, err := e.responder.Answer(cctx, req.OrgID, req.PageURL, question)
			if err != nil {
				e.logger.Error("fallback responder failed", "error", err, "org_id", req.OrgID)
			} else {
				text = answer
			}
		}
	}
	e.metrics.ObserveTurn("fallback", time.Since(start).Seconds())
	return &TurnResponse{MainText: text, Buttons: []string{}}, nil
}

// deliverHandoff writes the collected record with a bounded timeout.
func (e *Engine) deliverHandoff(ctx context.Context, doc *session.Session) bool {
	if e.writer == nil {
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, e.collabTimeout)
	defer cancel()

	rec := e.workflow.HandoffRecord(doc)
	if _, err := e.writer.Create(cctx, rec); err != nil {
		e.logger.Error("handoff delivery failed",
			"error", err, "org_id", doc.OrgID, "session_id", doc.SessionID)
		e.metrics.ObserveHandoff(false)
		return false
	}
	e.logger.Info("handoff delivered",
		"org_id", doc.OrgID, "session_id", doc.SessionID, "booking_type", rec.BookingType)
	e.metrics.ObserveHandoff(true)
	return true
}

// mergeSignals folds qualification signals into the session's answers so
// lead scoring can read them alongside scripted answers.
func mergeSignals(doc *session.Session, signals []Signal) {
	for _, sig := range signals {
		value := sig.Subtag
		if value == "" {
			value = "yes"
		}
		doc.RecordAnswer("qual_"+string(sig.Dimension), value)
	}
}

// sessionDiffers reports whether a turn mutated anything worth persisting.
func sessionDiffers(before, after *session.Session) bool {
	if before.WorkflowStep != after.WorkflowStep ||
		before.FollowUpCount != after.FollowUpCount ||
		before.Escalated != after.Escalated ||
		before.Completed != after.Completed ||
		before.BookingStatus != after.BookingStatus ||
		before.PageURL != after.PageURL {
		return true
	}
	return len(before.CollectedAnswers) != len(after.CollectedAnswers) ||
		len(before.PreviousQuestions) != len(after.PreviousQuestions)
}

func toResponse(res StepResult) *TurnResponse {
	buttons := res.Buttons
	if buttons == nil {
		buttons = []string{}
	}
	return &TurnResponse{
		MainText:            res.MainText(),
		Buttons:             buttons,
		WorkflowStep:        string(res.Step),
		ShowBookingCalendar: res.ShowBookingCalendar,
		BookingType:         string(res.BookingType),
	}
}
