package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/leadrail/sitechat-platform/internal/chat"
	"github.com/leadrail/sitechat-platform/internal/engine"
	"github.com/leadrail/sitechat-platform/internal/script"
	"github.com/leadrail/sitechat-platform/pkg/logging"
)

type stubEngine struct {
	lastReq engine.TurnRequest
}

func (s *stubEngine) Turn(_ context.Context, req engine.TurnRequest) (*engine.TurnResponse, error) {
	s.lastReq = req
	return &engine.TurnResponse{MainText: "ok", Buttons: []string{}}, nil
}

func newTestRouter(t *testing.T, secret string) (http.Handler, *stubEngine) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	eng := &stubEngine{}
	handler := New(&Config{
		Logger:         logging.New("error"),
		ChatHandler:    chat.NewHandler(eng, nil, nil, logging.New("error")),
		ScriptHandler:  script.NewHandler(script.NewStore(client), nil, logging.New("error")),
		AdminJWTSecret: secret,
	})
	return handler, eng
}

func adminToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health body %s", rr.Body.String())
	}
}

func TestChatTurnRequiresOrgHeader(t *testing.T) {
	router, _ := newTestRouter(t, "")

	body := `{"sessionId":"sess-1","pageUrl":"/pricing","question":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/chat/turn", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without org header, got %d", rr.Code)
	}
}

func TestChatTurnPropagatesOrgHeader(t *testing.T) {
	router, eng := newTestRouter(t, "")

	body := `{"sessionId":"sess-1","pageUrl":"/pricing","question":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/chat/turn", strings.NewReader(body))
	req.Header.Set(orgHeader, "org-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("turn status = %d, body %s", rr.Code, rr.Body.String())
	}
	if eng.lastReq.OrgID != "org-7" {
		t.Fatalf("expected header org forwarded, engine saw %q", eng.lastReq.OrgID)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	router, _ := newTestRouter(t, "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/admin/orgs/org-1/script", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
}

func TestAdminScriptRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t, "test-secret")
	token := adminToken(t, "test-secret")

	body := `{
		"sections": [
			{
				"url_pattern": "/pricing",
				"lead_questions": [
					{"text": "Which plan?", "options": [{"label": "Team"}]}
				]
			}
		]
	}`
	req := httptest.NewRequest(http.MethodPut, "/admin/orgs/org-1/script", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/orgs/org-1/script", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "/pricing") {
		t.Fatalf("expected stored script, got %s", rr.Body.String())
	}
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/admin/orgs/org-1/script", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when admin routes absent, got %d", rr.Code)
	}
}
