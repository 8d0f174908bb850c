package script

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leadrail/sitechat-platform/internal/audit"
	httpmiddleware "github.com/leadrail/sitechat-platform/internal/http/middleware"
	"github.com/leadrail/sitechat-platform/pkg/logging"
)

// Handler exposes admin CRUD for per-org script configuration.
type Handler struct {
	store  *Store
	trail  *audit.Trail
	logger *logging.Logger
}

// NewHandler creates a script config handler. A nil trail disables auditing.
func NewHandler(store *Store, trail *audit.Trail, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, trail: trail, logger: logger.WithComponent("script_admin")}
}

// actor names the admin performing the request, from the JWT subject.
func actor(r *http.Request) string {
	if claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context()); ok {
		return claims.Subject
	}
	return ""
}

// GetConfig handles GET /admin/orgs/{orgID}/script requests.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if orgID == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}

	cfg, err := h.store.Get(r.Context(), orgID)
	if err != nil {
		h.logger.Error("failed to load script config", "error", err, "org_id", orgID)
		http.Error(w, "failed to load script config", http.StatusInternalServerError)
		return
	}
	if cfg == nil {
		http.Error(w, "no script configured", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

// PutConfig handles PUT /admin/orgs/{orgID}/script requests.
func (h *Handler) PutConfig(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if orgID == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}

	var cfg SiteScript
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.logger.Error("failed to decode script config", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cfg.OrgID = orgID

	if err := h.store.Set(r.Context(), &cfg); err != nil {
		h.logger.Error("failed to save script config", "error", err, "org_id", orgID)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("script config saved", "org_id", orgID, "sections", len(cfg.Sections))
	if err := h.trail.LogScriptUpdated(r.Context(), orgID, actor(r), len(cfg.Sections)); err != nil {
		h.logger.Warn("failed to audit script update", "error", err, "org_id", orgID)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&cfg)
}

// DeleteConfig handles DELETE /admin/orgs/{orgID}/script requests.
func (h *Handler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if orgID == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}

	if err := h.store.Delete(r.Context(), orgID); err != nil {
		h.logger.Error("failed to delete script config", "error", err, "org_id", orgID)
		http.Error(w, "failed to delete script config", http.StatusInternalServerError)
		return
	}
	if err := h.trail.LogScriptDeleted(r.Context(), orgID, actor(r)); err != nil {
		h.logger.Warn("failed to audit script delete", "error", err, "org_id", orgID)
	}
	w.WriteHeader(http.StatusNoContent)
}
