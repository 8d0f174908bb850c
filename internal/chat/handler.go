// Package chat exposes the widget turn endpoint and the admin read side of a
// conversation: qualification coverage and stored transcripts.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leadrail/sitechat-platform/internal/engine"
	"github.com/leadrail/sitechat-platform/internal/tenancy"
	"github.com/leadrail/sitechat-platform/internal/transcript"
	"github.com/leadrail/sitechat-platform/pkg/logging"
)

// TurnEngine processes one widget turn. Implemented by *engine.Engine.
type TurnEngine interface {
	Turn(ctx context.Context, req engine.TurnRequest) (*engine.TurnResponse, error)
}

// ReportReader exposes per-session qualification coverage for the admin API.
// Implemented by *engine.ReportStore.
type ReportReader interface {
	Observed(ctx context.Context, orgID, sessionID string) ([]engine.Dimension, error)
	Missing(ctx context.Context, orgID, sessionID string) ([]engine.Dimension, error)
}

// Handler serves widget turns and the admin conversation views.
type Handler struct {
	engine      TurnEngine
	transcripts *transcript.Store
	reports     ReportReader
	logger      *logging.Logger
}

// NewHandler creates a chat handler. transcripts and reports may be nil; the
// transcript side becomes a no-op and the report endpoint returns 404.
func NewHandler(eng TurnEngine, transcripts *transcript.Store, reports ReportReader, logger *logging.Logger) *Handler {
	if eng == nil {
		panic("chat: turn engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine:      eng,
		transcripts: transcripts,
		reports:     reports,
		logger:      logger.WithComponent("chat"),
	}
}

// Turn handles POST /chat/turn requests from the widget.
func (h *Handler) Turn(w http.ResponseWriter, r *http.Request) {
	var req engine.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// The tenancy header wins over whatever the widget put in the body.
	if orgID, ok := tenancy.OrgIDFromContext(r.Context()); ok {
		req.OrgID = orgID
	}

	resp, err := h.engine.Turn(r.Context(), req)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidRequest) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("turn failed", "error", err,
			"org_id", req.OrgID, "session_id", req.SessionID)
		http.Error(w, "failed to process turn", http.StatusInternalServerError)
		return
	}

	h.recordTranscript(r.Context(), req, resp)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// recordTranscript appends the visitor message and the bot reply. Failures
// are logged and never block the turn.
func (h *Handler) recordTranscript(ctx context.Context, req engine.TurnRequest, resp *engine.TurnResponse) {
	if h.transcripts == nil {
		return
	}

	convID := transcript.ConversationID(req.OrgID, req.SessionID)
	if req.Question != "" {
		err := h.transcripts.AppendMessage(ctx, convID, req.PageURL, transcript.Message{
			Role:    transcript.RoleVisitor,
			Content: req.Question,
		})
		if err != nil {
			h.logger.Warn("transcript append failed", "error", err, "org_id", req.OrgID)
		}
	}
	if resp.MainText != "" {
		err := h.transcripts.AppendMessage(ctx, convID, req.PageURL, transcript.Message{
			Role:         transcript.RoleBot,
			Content:      resp.MainText,
			WorkflowStep: resp.WorkflowStep,
		})
		if err != nil {
			h.logger.Warn("transcript append failed", "error", err, "org_id", req.OrgID)
		}
	}
}

// QualificationReport handles GET /admin/orgs/{orgID}/sessions/{sessionID}/qualification.
func (h *Handler) QualificationReport(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	sessionID := chi.URLParam(r, "sessionID")
	if orgID == "" || sessionID == "" {
		http.Error(w, "missing org_id or session_id", http.StatusBadRequest)
		return
	}
	if h.reports == nil {
		http.Error(w, "qualification reporting disabled", http.StatusNotFound)
		return
	}

	observed, err := h.reports.Observed(r.Context(), orgID, sessionID)
	if err != nil {
		h.logger.Error("failed to load qualification report", "error", err, "org_id", orgID)
		http.Error(w, "failed to load qualification report", http.StatusInternalServerError)
		return
	}
	missing, err := h.reports.Missing(r.Context(), orgID, sessionID)
	if err != nil {
		h.logger.Error("failed to load qualification report", "error", err, "org_id", orgID)
		http.Error(w, "failed to load qualification report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]engine.Dimension{
		"observed": nonNilDims(observed),
		"missing":  nonNilDims(missing),
	})
}

// Transcript handles GET /admin/orgs/{orgID}/sessions/{sessionID}/transcript.
func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	sessionID := chi.URLParam(r, "sessionID")
	if orgID == "" || sessionID == "" {
		http.Error(w, "missing org_id or session_id", http.StatusBadRequest)
		return
	}
	if h.transcripts == nil {
		http.Error(w, "transcript storage disabled", http.StatusNotFound)
		return
	}

	convID := transcript.ConversationID(orgID, sessionID)
	conv, err := h.transcripts.GetConversation(r.Context(), convID)
	if err != nil {
		h.logger.Error("failed to load conversation", "error", err, "org_id", orgID)
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	msgs, err := h.transcripts.GetMessages(r.Context(), convID, 200)
	if err != nil {
		h.logger.Error("failed to load messages", "error", err, "org_id", orgID)
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"conversation": conv,
		"messages":     msgs,
	})
}

func nonNilDims(dims []engine.Dimension) []engine.Dimension {
	if dims == nil {
		return []engine.Dimension{}
	}
	return dims
}
