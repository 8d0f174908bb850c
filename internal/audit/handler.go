package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leadrail/sitechat-platform/pkg/logging"
)

// Handler exposes the admin read side of the audit trail.
type Handler struct {
	trail  *Trail
	logger *logging.Logger
}

// NewHandler creates an audit handler. A nil trail serves empty results.
func NewHandler(trail *Trail, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{trail: trail, logger: logger.WithComponent("audit")}
}

// ListEvents handles GET /admin/orgs/{orgID}/audit requests.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if orgID == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	events, err := h.trail.ListEvents(r.Context(), orgID, limit)
	if err != nil {
		h.logger.Error("failed to list audit events", "error", err, "org_id", orgID)
		http.Error(w, "failed to list audit events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]Event{"events": events})
}
