package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leadrail/sitechat-platform/internal/handoff"
	"github.com/leadrail/sitechat-platform/internal/script"
	"github.com/leadrail/sitechat-platform/internal/session"
)

// Answer slot names for the handoff chain and free-text collection.
const (
	slotName        = "name"
	slotEmail       = "email"
	slotDetails     = "details"
	slotTimeline    = "timeline"
	slotBookingType = "booking_type"
	slotFollowUp    = "follow_up"
)

// Button labels and prompts for the engine-owned handoff chain. Scripted
// question text comes from the org's configuration; these cover the contact
// collection turns the script never defines.
const (
	talkToSalesLabel = "Talk to Sales"

	handoffConfirmPrompt = "Great! Would you prefer a product demo or a quick call with our team?"
	handoffIntentPrompt  = "Happy to set that up! Could I get your name first?"
	askNamePrompt        = "Could I get your name?"
	askEmailPrompt       = "What's the best email to reach you?"
	invalidEmailPrompt   = "That doesn't look like a valid email. Could you double-check it?"
	askDetailsPrompt     = "What are you hoping to solve? A sentence or two helps our team prepare."
	askTimelinePrompt    = "And what's your timeline for getting started?"
	handoffClosing       = "You're all set! Our sales team will reach out shortly, or pick a time that works for you below."
	closureFarewell      = "Sounds good! I'm here if anything else comes up."
)

var affirmativeRE = regexp.MustCompile(`(?i)\b(?:yes|yeah|yep|yup|sure|ok(?:ay)?|sounds good|absolutely|definitely|talk to sales|let'?s (?:do it|go)|go ahead)\b`)

// StepResult is the outcome of one workflow turn. A zero Step with Fallback
// set means the engine abstained and the caller should answer generically.
type StepResult struct {
	// Messages are emitted in order; compound turns (diagnostic answer plus
	// follow-up question) carry more than one.
	Messages []string
	// Buttons are the option labels for the emitted question. Empty with a
	// Step present means the client should render a free-text input.
	Buttons []string
	Step    session.WorkflowStep
	// Fallback defers this turn to the generic responder. No session
	// mutation accompanies it.
	Fallback bool
	// ShowBookingCalendar tells the client to surface the scheduling UI.
	ShowBookingCalendar bool
	BookingType         BookingType
	// HandoffReady asks the caller to deliver the collected handoff record.
	HandoffReady bool
	// SessionComplete marks the scripted flow finished without a handoff.
	SessionComplete bool
}

// MainText joins the emitted messages into the single response body.
func (r StepResult) MainText() string {
	return strings.Join(r.Messages, "\n\n")
}

// Workflow is the scripted state machine. It owns every workflowStep
// transition; classifiers and stores stay outside it. Step mutates the given
// session document in place and the caller decides whether to persist it.
type Workflow struct {
	maxFollowUps    int
	intentThreshold int
}

// NewWorkflow builds a state machine with the given retry maximum and
// booking-intent threshold. Non-positive values fall back to defaults.
func NewWorkflow(maxFollowUps, intentThreshold int) *Workflow {
	if maxFollowUps <= 0 {
		maxFollowUps = 2
	}
	if intentThreshold <= 0 {
		intentThreshold = DefaultIntentThreshold
	}
	return &Workflow{maxFollowUps: maxFollowUps, intentThreshold: intentThreshold}
}

// Step advances the session one turn. proactive marks an engine-initiated
// turn with no visitor message, used to emit the first scripted question.
func (w *Workflow) Step(sec *script.Section, doc *session.Session, message string, proactive bool) StepResult {
	if !sec.HasScript() {
		return StepResult{Fallback: true}
	}

	if doc.InHandoffChain() {
		return w.handoffTurn(doc, message)
	}

	if doc.Completed {
		if !sec.AllowReentry {
			return StepResult{Fallback: true}
		}
		doc.Completed = false
		doc.WorkflowStep = session.StepIdle
		doc.FollowUpCount = 0
	}

	if w.retriesExhausted(doc) {
		return StepResult{Fallback: true}
	}

	reply := strings.TrimSpace(message)

	// Booking intent takes precedence over the scripted flow: an explicit
	// scheduling request mid-script jumps straight into contact collection.
	if !proactive && reply != "" {
		if intent := DetectBookingIntent(reply, doc.PreviousQuestions); intent.ShowScheduler(w.intentThreshold) {
			doc.RecordAnswer(slotBookingType, string(intent.BookingType))
			doc.WorkflowStep = session.StepHandoffName
			return StepResult{
				Messages:    []string{handoffIntentPrompt},
				Step:        session.StepHandoffName,
				BookingType: intent.BookingType,
			}
		}
	}

	switch doc.WorkflowStep {
	case session.StepIdle:
		return w.askNext(sec, doc, nil)
	case session.StepLeadQuestion, session.StepSalesQuestion:
		return w.questionTurn(sec, doc, reply)
	case session.StepFollowUpQuestion:
		return w.followUpTurn(sec, doc, reply)
	case session.StepLoopClosure:
		return w.closureTurn(doc, reply)
	default:
		return StepResult{Fallback: true}
	}
}

// retriesExhausted reports whether a prior turn already burned through the
// re-ask budget, making every later turn generic.
func (w *Workflow) retriesExhausted(doc *session.Session) bool {
	switch doc.WorkflowStep {
	case session.StepLeadQuestion, session.StepSalesQuestion:
		return doc.FollowUpCount >= w.maxFollowUps
	}
	return false
}

// askNext emits the next defined, unanswered stage in the chain
// lead -> sales -> follow-up -> closure, skipping stages the page does not
// define. pre carries messages to emit ahead of the stage's own text.
func (w *Workflow) askNext(sec *script.Section, doc *session.Session, pre []string) StepResult {
	if _, q, ok := nextUnanswered(doc, sec.LeadQuestions, "lead_q"); ok {
		doc.WorkflowStep = session.StepLeadQuestion
		doc.RecordQuestion(q.Text)
		return StepResult{
			Messages: append(pre, q.Text),
			Buttons:  q.Labels(),
			Step:     session.StepLeadQuestion,
		}
	}

	if _, q, ok := nextUnanswered(doc, sec.SalesQuestions, "sales_q"); ok {
		doc.WorkflowStep = session.StepSalesQuestion
		doc.RecordQuestion(q.Text)
		return StepResult{
			Messages: append(pre, q.Text),
			Buttons:  q.Labels(),
			Step:     session.StepSalesQuestion,
		}
	}

	if sec.Diagnostic.FollowUpQuestion != "" && doc.CollectedAnswers[slotFollowUp] == "" {
		doc.WorkflowStep = session.StepFollowUpQuestion
		doc.RecordQuestion(sec.Diagnostic.FollowUpQuestion)
		return StepResult{
			Messages: append(pre, sec.Diagnostic.FollowUpQuestion),
			Step:     session.StepFollowUpQuestion,
		}
	}

	if sec.Diagnostic.LoopClosure != "" {
		doc.WorkflowStep = session.StepLoopClosure
		return StepResult{
			Messages: append(pre, sec.Diagnostic.LoopClosure),
			Buttons:  closureButtons(doc),
			Step:     session.StepLoopClosure,
		}
	}

	// Nothing left that this page defines.
	return StepResult{Fallback: true}
}

// questionTurn handles a visitor reply while a lead or sales question is
// pending: option matching, escalation tagging and the bounded re-ask loop.
func (w *Workflow) questionTurn(sec *script.Section, doc *session.Session, reply string) StepResult {
	questions, prefix := sec.LeadQuestions, "lead_q"
	if doc.WorkflowStep == session.StepSalesQuestion {
		questions, prefix = sec.SalesQuestions, "sales_q"
	}

	i, q, ok := nextUnanswered(doc, questions, prefix)
	if !ok {
		// The script changed under the session; degrade forward.
		return w.askNext(sec, doc, nil)
	}

	if reply == "" {
		doc.RecordQuestion(q.Text)
		return StepResult{Messages: []string{q.Text}, Buttons: q.Labels(), Step: doc.WorkflowStep}
	}

	opt, matched := q.Match(reply)
	if !matched {
		doc.FollowUpCount++
		if doc.FollowUpCount >= w.maxFollowUps {
			return StepResult{Fallback: true}
		}
		text := q.Rephrase
		if text == "" {
			text = q.Text
		}
		doc.RecordQuestion(text)
		return StepResult{Messages: []string{text}, Buttons: q.Labels(), Step: doc.WorkflowStep}
	}

	doc.RecordAnswer(questionSlot(prefix, i, q), opt.Label)
	doc.FollowUpCount = 0
	if opt.HighRisk() {
		doc.Escalated = true
	}

	var pre []string
	if doc.WorkflowStep == session.StepSalesQuestion && sec.Diagnostic.Answer != "" {
		if _, _, more := nextUnanswered(doc, sec.SalesQuestions, "sales_q"); !more {
			pre = append(pre, sec.Diagnostic.Answer)
		}
	}
	return w.askNext(sec, doc, pre)
}

// followUpTurn accepts any non-empty reply and emits the feature-mapping
// answer plus loop closure as one compound turn.
func (w *Workflow) followUpTurn(sec *script.Section, doc *session.Session, reply string) StepResult {
	if reply == "" {
		doc.RecordQuestion(sec.Diagnostic.FollowUpQuestion)
		return StepResult{
			Messages: []string{sec.Diagnostic.FollowUpQuestion},
			Step:     session.StepFollowUpQuestion,
		}
	}

	doc.RecordAnswer(slotFollowUp, reply)

	var msgs []string
	if sec.Diagnostic.FeatureMappingAnswer != "" {
		msgs = append(msgs, sec.Diagnostic.FeatureMappingAnswer)
	}
	if sec.Diagnostic.LoopClosure != "" {
		msgs = append(msgs, sec.Diagnostic.LoopClosure)
	}
	if len(msgs) == 0 {
		return StepResult{Fallback: true}
	}

	doc.WorkflowStep = session.StepLoopClosure
	return StepResult{Messages: msgs, Buttons: closureButtons(doc), Step: session.StepLoopClosure}
}

// closureTurn decides between sales handoff and completion. Completion is
// terminal; whether a later turn may restart the script is page-scoped.
func (w *Workflow) closureTurn(doc *session.Session, reply string) StepResult {
	if reply == "" {
		return StepResult{Messages: []string{closureFarewell}, Step: session.StepLoopClosure}
	}

	if affirmativeRE.MatchString(reply) {
		doc.WorkflowStep = session.StepHandoffConfirm
		return StepResult{
			Messages: []string{handoffConfirmPrompt},
			Buttons:  []string{"Demo", "Call"},
			Step:     session.StepHandoffConfirm,
		}
	}

	doc.Completed = true
	return StepResult{
		Messages:        []string{closureFarewell},
		Step:            session.StepLoopClosure,
		SessionComplete: true,
	}
}

// handoffTurn collects one contact field per turn: booking type, name,
// email, details, timeline, then closes out and requests delivery.
func (w *Workflow) handoffTurn(doc *session.Session, message string) StepResult {
	reply := strings.TrimSpace(message)

	switch doc.WorkflowStep {
	case session.StepHandoffConfirm:
		if reply == "" {
			return StepResult{
				Messages: []string{handoffConfirmPrompt},
				Buttons:  []string{"Demo", "Call"},
				Step:     session.StepHandoffConfirm,
			}
		}
		doc.RecordAnswer(slotBookingType, string(deriveBookingType(reply)))
		doc.WorkflowStep = session.StepHandoffName
		return StepResult{Messages: []string{askNamePrompt}, Step: session.StepHandoffName}

	case session.StepHandoffName:
		if reply == "" {
			return StepResult{Messages: []string{askNamePrompt}, Step: session.StepHandoffName}
		}
		doc.RecordAnswer(slotName, reply)
		doc.WorkflowStep = session.StepHandoffEmail
		return StepResult{Messages: []string{askEmailPrompt}, Step: session.StepHandoffEmail}

	case session.StepHandoffEmail:
		if !handoff.ValidEmail(reply) {
			return StepResult{Messages: []string{invalidEmailPrompt}, Step: session.StepHandoffEmail}
		}
		doc.RecordAnswer(slotEmail, reply)
		doc.WorkflowStep = session.StepHandoffDetails
		return StepResult{Messages: []string{askDetailsPrompt}, Step: session.StepHandoffDetails}

	case session.StepHandoffDetails:
		if reply == "" {
			return StepResult{Messages: []string{askDetailsPrompt}, Step: session.StepHandoffDetails}
		}
		doc.RecordAnswer(slotDetails, reply)
		doc.WorkflowStep = session.StepHandoffTimeline
		return StepResult{Messages: []string{askTimelinePrompt}, Step: session.StepHandoffTimeline}

	case session.StepHandoffTimeline:
		if reply == "" {
			return StepResult{Messages: []string{askTimelinePrompt}, Step: session.StepHandoffTimeline}
		}
		doc.RecordAnswer(slotTimeline, reply)
		doc.WorkflowStep = session.StepHandoffEnd
		doc.BookingStatus = session.BookingPending
		return StepResult{
			Messages:            []string{handoffClosing},
			Step:                session.StepHandoffEnd,
			ShowBookingCalendar: true,
			BookingType:         w.bookingTypeOf(doc),
			HandoffReady:        true,
		}

	case session.StepHandoffEnd:
		// Undelivered handoffs get re-attempted on the next turn rather
		// than silently dropping the lead.
		if !doc.HandoffDelivered {
			return StepResult{
				Messages:            []string{handoffClosing},
				Step:                session.StepHandoffEnd,
				ShowBookingCalendar: true,
				BookingType:         w.bookingTypeOf(doc),
				HandoffReady:        true,
			}
		}
		return StepResult{Fallback: true}
	}

	return StepResult{Fallback: true}
}

// HandoffRecord assembles the collected contact fields for delivery.
func (w *Workflow) HandoffRecord(doc *session.Session) *handoff.Record {
	return &handoff.Record{
		OrgID:       doc.OrgID,
		SessionID:   doc.SessionID,
		Name:        doc.CollectedAnswers[slotName],
		Email:       doc.CollectedAnswers[slotEmail],
		Details:     doc.CollectedAnswers[slotDetails],
		Timeline:    doc.CollectedAnswers[slotTimeline],
		PageURL:     doc.PageURL,
		BookingType: string(w.bookingTypeOf(doc)),
		Escalated:   doc.Escalated,
	}
}

func (w *Workflow) bookingTypeOf(doc *session.Session) BookingType {
	if bt := doc.CollectedAnswers[slotBookingType]; bt != "" {
		return BookingType(bt)
	}
	return BookingCall
}

func closureButtons(doc *session.Session) []string {
	if doc.Escalated {
		return []string{talkToSalesLabel}
	}
	return nil
}

// questionSlot names the collectedAnswers key for a question, preferring the
// admin-assigned id over the positional default.
func questionSlot(prefix string, index int, q script.Question) string {
	if q.ID != "" {
		return q.ID
	}
	return fmt.Sprintf("%s%d", prefix, index+1)
}

// nextUnanswered returns the first question whose slot has no collected
// answer yet.
func nextUnanswered(doc *session.Session, questions []script.Question, prefix string) (int, script.Question, bool) {
	for i, q := range questions {
		if doc.CollectedAnswers[questionSlot(prefix, i, q)] == "" {
			return i, q, true
		}
	}
	return 0, script.Question{}, false
}
