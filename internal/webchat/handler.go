// Package webchat serves the embeddable widget and its WebSocket channel.
// Each inbound visitor message is run through the guided conversation engine
// synchronously and the reply is pushed back on the same connection.
package webchat

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/leadrail/sitechat-platform/internal/engine"
	"github.com/leadrail/sitechat-platform/internal/transcript"
	"github.com/leadrail/sitechat-platform/pkg/logging"
)

//go:embed widget.js
var widgetJS []byte

// TurnEngine processes one widget turn. Implemented by *engine.Engine.
type TurnEngine interface {
	Turn(ctx context.Context, req engine.TurnRequest) (*engine.TurnResponse, error)
}

// Handler manages widget connections and messages.
type Handler struct {
	engine      TurnEngine
	transcripts *transcript.Store
	logger      *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*websocket.Conn // conversationID -> active connection
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type    string `json:"type"` // "message", "open", "ping"
	Text    string `json:"text,omitempty"`
	PageURL string `json:"page_url,omitempty"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type                string           `json:"type"` // "message", "typing", "history", "session", "pong", "error"
	Text                string           `json:"text,omitempty"`
	Role                string           `json:"role,omitempty"` // "bot" or "visitor"
	Buttons             []string         `json:"buttons,omitempty"`
	WorkflowStep        string           `json:"workflowStep,omitempty"`
	ShowBookingCalendar bool             `json:"showBookingCalendar,omitempty"`
	BookingType         string           `json:"bookingType,omitempty"`
	SessionID           string           `json:"session_id,omitempty"`
	Timestamp           string           `json:"timestamp,omitempty"`
	Messages            []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is a simplified message for history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates a webchat handler. transcripts may be nil.
func NewHandler(eng TurnEngine, transcripts *transcript.Store, logger *logging.Logger) *Handler {
	if eng == nil {
		panic("webchat: turn engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine:      eng,
		transcripts: transcripts,
		logger:      logger.WithComponent("webchat"),
		sessions:    make(map[string]*websocket.Conn),
	}
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	orgID := r.URL.Query().Get("org")
	if orgID == "" {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "missing org parameter"})
		return
	}

	sessionID := r.URL.Query().Get("session")
	resumed := sessionID != ""
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	pageURL := r.URL.Query().Get("page")

	convID := transcript.ConversationID(orgID, sessionID)

	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:      "session",
		SessionID: sessionID,
	})
	if resumed {
		h.sendHistory(r.Context(), conn, convID)
	}

	h.mu.Lock()
	h.sessions[convID] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.sessions[convID] == conn {
			delete(h.sessions, convID)
		}
		h.mu.Unlock()
	}()

	h.logger.Info("connection opened", "org_id", orgID, "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("connection closed", "org_id", orgID, "error", err)
			return
		}

		if msg.PageURL != "" {
			pageURL = msg.PageURL
		}

		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
		case "open":
			// Proactive first turn so scripted pages greet before any input.
			if !resumed {
				h.processTurn(r.Context(), convID, engine.TurnRequest{
					OrgID:     orgID,
					SessionID: sessionID,
					PageURL:   pageURL,
					Proactive: true,
				})
			}
		case "message":
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			h.processTurn(r.Context(), convID, engine.TurnRequest{
				OrgID:     orgID,
				SessionID: sessionID,
				PageURL:   pageURL,
				Question:  msg.Text,
			})
		}
	}
}

func (h *Handler) sendHistory(ctx context.Context, conn *websocket.Conn, convID string) {
	if h.transcripts == nil {
		return
	}
	msgs, err := h.transcripts.GetMessages(ctx, convID, 50)
	if err != nil || len(msgs) == 0 {
		return
	}
	history := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, HistoryMessage{
			Role:      m.Role,
			Text:      m.Content,
			Timestamp: m.CreatedAt.Format(time.RFC3339),
		})
	}
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: history})
}

// processTurn runs one turn through the engine and pushes the reply.
func (h *Handler) processTurn(ctx context.Context, convID string, req engine.TurnRequest) {
	if req.Question != "" {
		h.appendTranscript(ctx, convID, req.PageURL, transcript.Message{
			Role:    transcript.RoleVisitor,
			Content: req.Question,
		})
	}

	h.SendToSession(convID, OutboundMessage{Type: "typing"})

	resp, err := h.engine.Turn(ctx, req)
	if err != nil {
		h.logger.Error("turn failed", "error", err, "org_id", req.OrgID, "session_id", req.SessionID)
		h.SendToSession(convID, OutboundMessage{
			Type: "error",
			Text: "Sorry, something went wrong. Please try again.",
		})
		return
	}

	h.appendTranscript(ctx, convID, req.PageURL, transcript.Message{
		Role:         transcript.RoleBot,
		Content:      resp.MainText,
		WorkflowStep: resp.WorkflowStep,
	})

	h.SendToSession(convID, OutboundMessage{
		Type:                "message",
		Role:                transcript.RoleBot,
		Text:                resp.MainText,
		Buttons:             resp.Buttons,
		WorkflowStep:        resp.WorkflowStep,
		ShowBookingCalendar: resp.ShowBookingCalendar,
		BookingType:         resp.BookingType,
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) appendTranscript(ctx context.Context, convID, pageURL string, msg transcript.Message) {
	if h.transcripts == nil || msg.Content == "" {
		return
	}
	if err := h.transcripts.AppendMessage(ctx, convID, pageURL, msg); err != nil {
		h.logger.Warn("transcript append failed", "error", err, "conversation_id", convID)
	}
}

// SendToSession sends a message to an active WebSocket session.
func (h *Handler) SendToSession(convID string, msg OutboundMessage) {
	h.mu.RLock()
	conn, ok := h.sessions[convID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	_ = websocket.JSON.Send(conn, msg)
}

// HandleMessage is the HTTP fallback for widgets without WebSocket support.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgID     string `json:"org_id"`
		SessionID string `json:"session_id"`
		PageURL   string `json:"page_url"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OrgID == "" || req.PageURL == "" {
		http.Error(w, "org_id and page_url are required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	convID := transcript.ConversationID(req.OrgID, req.SessionID)
	if req.Text != "" {
		h.appendTranscript(r.Context(), convID, req.PageURL, transcript.Message{
			Role:    transcript.RoleVisitor,
			Content: req.Text,
		})
	}

	resp, err := h.engine.Turn(r.Context(), engine.TurnRequest{
		OrgID:     req.OrgID,
		SessionID: req.SessionID,
		PageURL:   req.PageURL,
		Question:  req.Text,
	})
	if err != nil {
		h.logger.Error("turn failed", "error", err, "org_id", req.OrgID)
		http.Error(w, "failed to process message", http.StatusInternalServerError)
		return
	}

	h.appendTranscript(r.Context(), convID, req.PageURL, transcript.Message{
		Role:         transcript.RoleBot,
		Content:      resp.MainText,
		WorkflowStep: resp.WorkflowStep,
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": req.SessionID,
		"reply":      resp,
	})
}

// HandleHistory returns chat history for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org")
	sessionID := r.URL.Query().Get("session")
	if orgID == "" || sessionID == "" {
		http.Error(w, "org and session parameters required", http.StatusBadRequest)
		return
	}

	history := []HistoryMessage{}
	if h.transcripts != nil {
		convID := transcript.ConversationID(orgID, sessionID)
		msgs, err := h.transcripts.GetMessages(r.Context(), convID, 100)
		if err != nil {
			h.logger.Error("failed to load history", "error", err)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		for _, m := range msgs {
			history = append(history, HistoryMessage{
				Role:      m.Role,
				Text:      m.Content,
				Timestamp: m.CreatedAt.Format(time.RFC3339),
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": history})
}

// HandleWidgetJS serves the embeddable widget JavaScript.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(widgetJS)
}
