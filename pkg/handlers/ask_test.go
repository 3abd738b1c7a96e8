package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// Validation failures are rejected before the pipeline is consulted, so a
// nil pipeline is safe in these tests.
func newValidationHandler() *AskHandler {
	return NewAskHandler(nil, zap.NewNop())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func TestAsk_RejectsNonPost(t *testing.T) {
	handler := newValidationHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/ask", nil)
	rec := httptest.NewRecorder()

	handler.Ask(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestAsk_RejectsMalformedJSON(t *testing.T) {
	handler := newValidationHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	handler.Ask(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if body := decodeError(t, rec); body["error"] != "invalid_request" {
		t.Errorf("expected error 'invalid_request', got %q", body["error"])
	}
}

func TestAsk_RejectsMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no session", `{"district_key": "maple-usd", "question": "March hours"}`},
		{"no district", `{"session_id": "s-1", "question": "March hours"}`},
		{"no question", `{"session_id": "s-1", "district_key": "maple-usd"}`},
		{"blank question", `{"session_id": "s-1", "district_key": "maple-usd", "question": "   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newValidationHandler()

			req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			handler.Ask(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
		})
	}
}

func TestResetSession_RejectsNonDelete(t *testing.T) {
	handler := newValidationHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/s-1", nil)
	rec := httptest.NewRecorder()

	handler.ResetSession(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestResetSession_RejectsEmptyID(t *testing.T) {
	handler := newValidationHandler()

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/", nil)
	rec := httptest.NewRecorder()

	handler.ResetSession(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
