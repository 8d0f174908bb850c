// Package router wires the HTTP surface: the widget endpoints, the admin
// API, and the operational endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leadrail/sitechat-platform/internal/audit"
	"github.com/leadrail/sitechat-platform/internal/chat"
	httpmiddleware "github.com/leadrail/sitechat-platform/internal/http/middleware"
	"github.com/leadrail/sitechat-platform/internal/script"
	"github.com/leadrail/sitechat-platform/internal/webchat"
	"github.com/leadrail/sitechat-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	ChatHandler    *chat.Handler
	WebchatHandler *webchat.Handler
	ScriptHandler  *script.Handler
	AuditHandler   *audit.Handler
	MetricsHandler http.Handler

	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// Widget abuse protection, per client IP.
	WidgetRatePerSecond float64
	WidgetRateBurst     int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (widget assets, health, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/healthz", handleHealth)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WebchatHandler != nil {
			public.Get("/widget.js", cfg.WebchatHandler.HandleWidgetJS)
			public.Route("/webchat", func(r chi.Router) {
				if cfg.WidgetRatePerSecond > 0 {
					r.Use(httpmiddleware.RateLimit(cfg.WidgetRatePerSecond, cfg.WidgetRateBurst))
				}
				r.Get("/ws", cfg.WebchatHandler.HandleWebSocket)
				r.Post("/message", cfg.WebchatHandler.HandleMessage)
				r.Get("/history", cfg.WebchatHandler.HandleHistory)
			})
		}
	})

	// Tenant-scoped widget API
	if cfg.ChatHandler != nil {
		r.Group(func(tenant chi.Router) {
			tenant.Use(requireOrgID)
			if cfg.WidgetRatePerSecond > 0 {
				tenant.Use(httpmiddleware.RateLimit(cfg.WidgetRatePerSecond, cfg.WidgetRateBurst))
			}
			tenant.Post("/chat/turn", cfg.ChatHandler.Turn)
		})
	}

	// Admin routes (protected by HMAC JWT)
	if cfg.AdminJWTSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))
			admin.Route("/orgs/{orgID}", func(org chi.Router) {
				if cfg.ScriptHandler != nil {
					org.Get("/script", cfg.ScriptHandler.GetConfig)
					org.Put("/script", cfg.ScriptHandler.PutConfig)
					org.Delete("/script", cfg.ScriptHandler.DeleteConfig)
				}
				if cfg.AuditHandler != nil {
					org.Get("/audit", cfg.AuditHandler.ListEvents)
				}
				if cfg.ChatHandler != nil {
					org.Route("/sessions/{sessionID}", func(sess chi.Router) {
						sess.Get("/qualification", cfg.ChatHandler.QualificationReport)
						sess.Get("/transcript", cfg.ChatHandler.Transcript)
					})
				}
			})
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
