package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leadrail/sitechat-platform/internal/fallback"
	"github.com/leadrail/sitechat-platform/internal/handoff"
	"github.com/leadrail/sitechat-platform/internal/script"
	"github.com/leadrail/sitechat-platform/internal/session"
)

type staticScripts struct {
	cfg *script.SiteScript
}

func (s staticScripts) Get(ctx context.Context, orgID string) (*script.SiteScript, error) {
	return s.cfg, nil
}

type stubResponder struct {
	answer string
	err    error
	calls  int
}

func (r *stubResponder) Answer(ctx context.Context, orgID, pageURL, message string) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.answer, nil
}

type stubWriter struct {
	records []*handoff.Record
	err     error
}

func (w *stubWriter) Create(ctx context.Context, rec *handoff.Record) (*handoff.Record, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.records = append(w.records, rec)
	return rec, nil
}

type memoryReporter struct {
	recorded map[string][]Signal
}

func (r *memoryReporter) Record(ctx context.Context, orgID, sessionID string, signals []Signal) error {
	if r.recorded == nil {
		r.recorded = make(map[string][]Signal)
	}
	key := orgID + "|" + sessionID
	r.recorded[key] = append(r.recorded[key], signals...)
	return nil
}

// stallingStore blocks reads until the caller's context expires.
type stallingStore struct {
	*session.MemoryStore
}

func (s *stallingStore) Get(ctx context.Context, orgID, sessionID string) (*session.Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// conflictStore loses the first compare-and-swap to a simulated race.
type conflictStore struct {
	*session.MemoryStore
	conflicts int
}

func (s *conflictStore) CompareAndSet(ctx context.Context, doc *session.Session, expectedVersion int64) error {
	if s.conflicts > 0 {
		s.conflicts--
		return session.ErrVersionConflict
	}
	return s.MemoryStore.CompareAndSet(ctx, doc, expectedVersion)
}

type engineFixture struct {
	engine    *Engine
	store     *session.MemoryStore
	responder *stubResponder
	writer    *stubWriter
	reporter  *memoryReporter
}

func newTestEngine(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:     session.NewMemoryStore(),
		responder: &stubResponder{answer: "Here is what I found on that page."},
		writer:    &stubWriter{},
		reporter:  &memoryReporter{},
	}
	resolver := script.NewResolver(staticScripts{cfg: &script.SiteScript{
		OrgID:    "org-1",
		Sections: []script.Section{*pricingSection()},
	}})
	f.engine = New(resolver, f.store, f.responder, f.writer, f.reporter, nil, nil, Config{
		MaxFollowUps:        2,
		IntentThreshold:     DefaultIntentThreshold,
		CollaboratorTimeout: time.Second,
	})
	return f
}

func turn(t *testing.T, e *Engine, question string, proactive bool) *TurnResponse {
	t.Helper()
	resp, err := e.Turn(context.Background(), TurnRequest{
		OrgID:     "org-1",
		SessionID: "sess-1",
		PageURL:   "/pricing",
		Question:  question,
		Proactive: proactive,
	})
	if err != nil {
		t.Fatalf("Turn(%q) returned error: %v", question, err)
	}
	return resp
}

func TestEngineRejectsMalformedRequests(t *testing.T) {
	f := newTestEngine(t)

	tests := []TurnRequest{
		{SessionID: "s", PageURL: "/"},
		{OrgID: "o", PageURL: "/"},
		{OrgID: "o", SessionID: "s"},
	}
	for _, req := range tests {
		if _, err := f.engine.Turn(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}

func TestEngineProactiveStartsScript(t *testing.T) {
	f := newTestEngine(t)

	resp := turn(t, f.engine, "", true)
	if resp.WorkflowStep != string(session.StepLeadQuestion) {
		t.Fatalf("expected lead_question, got %q", resp.WorkflowStep)
	}
	if len(resp.Buttons) != 2 {
		t.Fatalf("expected plan buttons, got %v", resp.Buttons)
	}

	doc, err := f.store.Get(context.Background(), "org-1", "sess-1")
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if doc.WorkflowStep != session.StepLeadQuestion {
		t.Fatalf("persisted step %s", doc.WorkflowStep)
	}
}

func TestEngineEndToEndHandoff(t *testing.T) {
	f := newTestEngine(t)

	turn(t, f.engine, "", true)
	turn(t, f.engine, "I'm looking for a Team plan", false)
	turn(t, f.engine, "11-50", false)
	turn(t, f.engine, "Yes, we need SSO", false)
	turn(t, f.engine, "Yes please", false)
	turn(t, f.engine, "A demo", false)
	turn(t, f.engine, "Dana Smith", false)
	turn(t, f.engine, "dana@example.com", false)
	turn(t, f.engine, "SSO rollout for 40 seats", false)
	resp := turn(t, f.engine, "Next quarter", false)

	if resp.WorkflowStep != string(session.StepHandoffEnd) {
		t.Fatalf("expected handoff end, got %q", resp.WorkflowStep)
	}
	if !resp.ShowBookingCalendar {
		t.Fatal("expected booking calendar flag")
	}
	if resp.BookingType != "demo" {
		t.Fatalf("expected demo booking type, got %q", resp.BookingType)
	}

	if len(f.writer.records) != 1 {
		t.Fatalf("expected one handoff record, got %d", len(f.writer.records))
	}
	rec := f.writer.records[0]
	if rec.Name != "Dana Smith" || rec.Email != "dana@example.com" || rec.Timeline != "Next quarter" {
		t.Fatalf("handoff record incomplete: %+v", rec)
	}

	doc, _ := f.store.Get(context.Background(), "org-1", "sess-1")
	if !doc.HandoffDelivered {
		t.Fatal("delivery flag not persisted")
	}
	if doc.BookingStatus != session.BookingConfirmed {
		t.Fatalf("expected confirmed booking status, got %s", doc.BookingStatus)
	}

	// Later turns on a delivered session are handled generically.
	resp = turn(t, f.engine, "One more thing, what about pricing?", false)
	if resp.WorkflowStep != "" {
		t.Fatalf("expected generic handling, got step %q", resp.WorkflowStep)
	}
}

func TestEngineUnscriptedPageFallsBack(t *testing.T) {
	f := newTestEngine(t)

	resp, err := f.engine.Turn(context.Background(), TurnRequest{
		OrgID:     "org-1",
		SessionID: "sess-2",
		PageURL:   "/careers",
		Question:  "Are you hiring?",
	})
	if err != nil {
		t.Fatalf("Turn returned error: %v", err)
	}
	if resp.WorkflowStep != "" {
		t.Fatalf("unscripted page must carry no workflow step, got %q", resp.WorkflowStep)
	}
	if resp.MainText != f.responder.answer {
		t.Fatalf("expected responder answer, got %q", resp.MainText)
	}
	if f.responder.calls != 1 {
		t.Fatalf("expected one responder call, got %d", f.responder.calls)
	}

	// No session document is created for unscripted pages.
	if _, err := f.store.Get(context.Background(), "org-1", "sess-2"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected no stored session, got %v", err)
	}
}

func TestEngineResponderFailureApologizes(t *testing.T) {
	f := newTestEngine(t)
	f.responder.err = errors.New("retrieval backend down")

	resp, err := f.engine.Turn(context.Background(), TurnRequest{
		OrgID:     "org-1",
		SessionID: "sess-3",
		PageURL:   "/careers",
		Question:  "Are you hiring?",
	})
	if err != nil {
		t.Fatalf("Turn returned error: %v", err)
	}
	if resp.MainText != fallback.Apology {
		t.Fatalf("expected apology, got %q", resp.MainText)
	}
}

func TestEngineWriterFailureRetainsHandoffEnd(t *testing.T) {
	f := newTestEngine(t)
	f.writer.err = errors.New("bookings db down")

	turn(t, f.engine, "", true)
	turn(t, f.engine, "Team", false)
	turn(t, f.engine, "11-50", false)
	turn(t, f.engine, "SSO", false)
	turn(t, f.engine, "Yes", false)
	turn(t, f.engine, "Demo", false)
	turn(t, f.engine, "Dana", false)
	turn(t, f.engine, "dana@example.com", false)
	turn(t, f.engine, "SSO rollout", false)
	resp := turn(t, f.engine, "Soon", false)

	if resp.MainText != handoffSoftError {
		t.Fatalf("expected soft error, got %q", resp.MainText)
	}
	if resp.ShowBookingCalendar {
		t.Fatal("failed delivery should not surface the calendar")
	}

	doc, _ := f.store.Get(context.Background(), "org-1", "sess-1")
	if doc.WorkflowStep != session.StepHandoffEnd {
		t.Fatalf("session should stay at handoff end, got %s", doc.WorkflowStep)
	}
	if doc.HandoffDelivered {
		t.Fatal("delivery flag must stay unset on failure")
	}

	// The next turn re-attempts delivery once the writer recovers.
	f.writer.err = nil
	resp = turn(t, f.engine, "Did that go through?", false)
	if len(f.writer.records) != 1 {
		t.Fatalf("expected re-attempted delivery, got %d records", len(f.writer.records))
	}
	if !resp.ShowBookingCalendar {
		t.Fatal("recovered delivery should surface the calendar")
	}
	doc, _ = f.store.Get(context.Background(), "org-1", "sess-1")
	if !doc.HandoffDelivered {
		t.Fatal("delivery flag should persist after recovery")
	}
}

func TestEngineRecordsQualificationSignals(t *testing.T) {
	f := newTestEngine(t)

	turn(t, f.engine, "", true)
	turn(t, f.engine, "We need the Team plan, budget is $500/mo", false)

	recorded := f.reporter.recorded["org-1|sess-1"]
	dims := make(map[Dimension]bool)
	for _, sig := range recorded {
		dims[sig.Dimension] = true
	}
	if !dims[DimBudget] || !dims[DimNeed] {
		t.Fatalf("expected budget and need signals, got %v", recorded)
	}

	doc, _ := f.store.Get(context.Background(), "org-1", "sess-1")
	if doc.CollectedAnswers["qual_budget"] == "" {
		t.Fatalf("qualification signals should merge into answers: %v", doc.CollectedAnswers)
	}
}

func TestEngineRetriesLostRaceOnce(t *testing.T) {
	f := newTestEngine(t)
	store := &conflictStore{MemoryStore: f.store, conflicts: 1}
	resolver := script.NewResolver(staticScripts{cfg: &script.SiteScript{
		OrgID:    "org-1",
		Sections: []script.Section{*pricingSection()},
	}})
	engine := New(resolver, store, f.responder, f.writer, f.reporter, nil, nil, Config{
		MaxFollowUps:        2,
		IntentThreshold:     DefaultIntentThreshold,
		CollaboratorTimeout: time.Second,
	})

	turn(t, engine, "", true)
	store.conflicts = 1
	resp := turn(t, engine, "Team", false)
	if resp.WorkflowStep != string(session.StepSalesQuestion) {
		t.Fatalf("retried turn should still advance, got %q", resp.WorkflowStep)
	}

	// A second consecutive loss surfaces a soft retry.
	store.conflicts = 2
	resp = turn(t, engine, "11-50", false)
	if resp.WorkflowStep != "" {
		t.Fatalf("double race loss must not claim an advance, got %q", resp.WorkflowStep)
	}
	if !strings.Contains(resp.MainText, "send it again") {
		t.Fatalf("expected retry prompt, got %q", resp.MainText)
	}
}

func TestEngineTimesOutStalledSessionStore(t *testing.T) {
	resolver := script.NewResolver(staticScripts{cfg: &script.SiteScript{
		OrgID:    "org-1",
		Sections: []script.Section{*pricingSection()},
	}})
	eng := New(resolver, &stallingStore{MemoryStore: session.NewMemoryStore()}, nil, nil, nil, nil, nil, Config{
		MaxFollowUps:        2,
		IntentThreshold:     DefaultIntentThreshold,
		CollaboratorTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	_, err := eng.Turn(context.Background(), TurnRequest{
		OrgID:     "org-1",
		SessionID: "sess-1",
		PageURL:   "/pricing",
		Question:  "Team",
	})
	if err == nil {
		t.Fatal("expected error from a stalled session store")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("turn blocked %s on the stalled store instead of timing out", elapsed)
	}
}

func TestEngineRetryMaxGoesGeneric(t *testing.T) {
	f := newTestEngine(t)

	turn(t, f.engine, "", true)
	resp := turn(t, f.engine, "the weather is nice", false)
	if resp.WorkflowStep == "" {
		t.Fatal("first miss should stay scripted")
	}
	resp = turn(t, f.engine, "still chatting about weather", false)
	if resp.WorkflowStep != "" {
		t.Fatalf("retry maximum should trigger fallback, got %q", resp.WorkflowStep)
	}

	// The burned budget persists: even a matching reply stays generic.
	resp = turn(t, f.engine, "Team", false)
	if resp.WorkflowStep != "" {
		t.Fatalf("exhausted session must stay generic, got %q", resp.WorkflowStep)
	}
}
