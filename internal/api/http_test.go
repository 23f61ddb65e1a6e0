package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/stepup/internal/auth"
)

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
	return body
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	e, _ := decodeBody(t, rec)["error"].(map[string]any)
	s, _ := e["type"].(string)
	return s
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	h := NewHTTPHandler(env.deps)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.initiate(t, "user-1", 100)

	rec := serve(NewHTTPHandler(env.deps), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "stepup_elicitations_created_total") {
		t.Error("expected elicitation metrics in exposition")
	}
}

func TestAuth_MissingAndWrongScope(t *testing.T) {
	env := newTestEnv(t)
	h := NewHTTPHandler(env.deps)
	st := env.initiate(t, "user-1", 100)

	rec := serve(h, authReq(http.MethodGet, "/elicitations/"+st.ID, "", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	readOnly := env.token(t, "user-1", auth.ScopeRead)
	rec = serve(h, authReq(http.MethodPost, "/elicitations/"+st.ID+"/respond", `{"user_input":{"confirmed":true}}`, readOnly))
	if rec.Code != http.StatusForbidden {
		t.Errorf("read-only respond: status = %d, want 403", rec.Code)
	}
}

func TestGetElicitation(t *testing.T) {
	env := newTestEnv(t)
	h := NewHTTPHandler(env.deps)
	st := env.initiate(t, "user-1", 1500)

	rec := serve(h, authReq(http.MethodGet, "/elicitations/"+st.ID, "", env.token(t, "user-1", auth.ScopeRead)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "pending" {
		t.Errorf("status = %v, want pending", body["status"])
	}
	if _, ok := body["suspended_tool_arguments"]; ok {
		t.Error("suspended arguments must not be exposed")
	}

	rec = serve(h, authReq(http.MethodGet, "/elicitations/"+st.ID, "", env.token(t, "user-2", auth.ScopeRead)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("other user: status = %d, want 404", rec.Code)
	}
}

func TestRespond_Completes(t *testing.T) {
	env := newTestEnv(t)
	h := NewHTTPHandler(env.deps)
	st := env.initiate(t, "user-1", 1500)
	tok := env.token(t, "user-1", auth.ScopeRead, auth.ScopeTransact)

	rec := serve(h, authReq(http.MethodPost, "/elicitations/"+st.ID+"/respond", `{"user_input":{"otp_code":"123456"},"platform":"web"}`, tok))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "completed" {
		t.Errorf("status = %v, want completed", body["status"])
	}
	result, _ := body["result"].(map[string]any)
	if cn, _ := result["confirmation_number"].(string); !strings.HasPrefix(cn, "TXN") {
		t.Errorf("confirmation_number = %v", result["confirmation_number"])
	}

	rec = serve(h, authReq(http.MethodPost, "/elicitations/"+st.ID+"/respond", `{"user_input":{"otp_code":"123456"}}`, tok))
	if rec.Code != http.StatusConflict {
		t.Errorf("second response: status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "completed") {
		t.Errorf("expected current status in message, got %s", rec.Body.String())
	}
}

func TestRespond_NumericOTP(t *testing.T) {
	env := newTestEnv(t)
	h := NewHTTPHandler(env.deps)
	st := env.initiate(t, "user-1", 2500)
	tok := env.token(t, "user-1", auth.ScopeTransact)

	rec := serve(h, authReq(http.MethodPost, "/elicitations/"+st.ID+"/respond", `{"user_input":{"otp_code":123456}}`, tok))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRespond_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		input    string
		advance  time.Duration
		wantCode int
		wantType string
	}{
		{"validation", 1500, `{"user_input":{"otp_code":"12"}}`, 0, http.StatusUnprocessableEntity, "validation_error"},
		{"wrong otp", 1500, `{"user_input":{"otp_code":"654321"}}`, 0, http.StatusBadGateway, "resume_failed"},
		{"expired", 1500, `{"user_input":{"otp_code":"123456"}}`, 301 * time.Second, http.StatusGone, "expired"},
		{"declined", 100, `{"user_input":{"confirmed":false}}`, 0, http.StatusConflict, "declined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			h := NewHTTPHandler(env.deps)
			st := env.initiate(t, "user-1", tt.amount)
			env.clock.Advance(tt.advance)

			rec := serve(h, authReq(http.MethodPost, "/elicitations/"+st.ID+"/respond", tt.input, env.token(t, "user-1", auth.ScopeTransact)))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := errorType(t, rec); got != tt.wantType {
				t.Errorf("error type = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestRespond_UnknownElicitation(t *testing.T) {
	env := newTestEnv(t)
	h := NewHTTPHandler(env.deps)

	rec := serve(h, authReq(http.MethodPost, "/elicitations/5f0c2d36-3c8f-4a53-9f3e-000000000000/respond", `{"user_input":{"confirmed":true}}`, env.token(t, "user-1", auth.ScopeTransact)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRespond_BadBody(t *testing.T) {
	env := newTestEnv(t)
	h := NewHTTPHandler(env.deps)
	st := env.initiate(t, "user-1", 100)
	tok := env.token(t, "user-1", auth.ScopeTransact)

	rec := serve(h, authReq(http.MethodPost, "/elicitations/"+st.ID+"/respond", `{not json`, tok))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	rec = serve(h, authReq(http.MethodPost, "/elicitations/"+st.ID+"/respond", `{}`, tok))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_input: status = %d, want 400", rec.Code)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	h := NewHTTPHandler(env.deps)
	st := env.initiate(t, "user-1", 100)
	tok := env.token(t, "user-1", auth.ScopeTransact)

	rec := serve(h, authReq(http.MethodPost, "/elicitations/"+st.ID+"/cancel", `{"reason":"changed my mind"}`, tok))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(h, authReq(http.MethodPost, "/elicitations/"+st.ID+"/cancel", "", tok))
	if rec.Code != http.StatusConflict {
		t.Errorf("second cancel: status = %d, want 409", rec.Code)
	}
}

func TestNextElicitation(t *testing.T) {
	env := newTestEnv(t)
	h := NewHTTPHandler(env.deps)
	first := env.initiate(t, "user-1", 100)
	env.initiate(t, "user-1", 200)
	tok := env.token(t, "user-1", auth.ScopeRead)

	rec := serve(h, authReq(http.MethodGet, "/sessions/sess-user-1/elicitations/next", "", tok))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if id := decodeBody(t, rec)["elicitation_id"]; id != first.ID {
		t.Errorf("next = %v, want %s", id, first.ID)
	}

	rec = serve(h, authReq(http.MethodGet, "/sessions/sess-nobody/elicitations/next", "", tok))
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty session: status = %d, want 404", rec.Code)
	}
}
