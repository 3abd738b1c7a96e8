package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/apperrors"
	"github.com/servicelens-inc/servicelens-engine/pkg/logging"
	"github.com/servicelens-inc/servicelens-engine/pkg/pipeline"
)

// AskHandler exposes the conversational analytics pipeline over HTTP.
type AskHandler struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

func NewAskHandler(p *pipeline.Pipeline, logger *zap.Logger) *AskHandler {
	return &AskHandler{pipeline: p, logger: logger.Named("ask-handler")}
}

// RegisterRoutes registers the ask handler's routes on the given mux.
func (h *AskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/ask", h.Ask)
	mux.HandleFunc("/api/sessions/", h.ResetSession)
}

// Ask handles POST /api/ask requests: one conversational turn.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.SessionID == "" || req.DistrictKey == "" || req.Question == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "session_id, district_key and question are required")
		return
	}

	resp, err := h.pipeline.Ask(r.Context(), &req)
	if err != nil {
		h.writeError(w, req.SessionID, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode ask response", zap.Error(err))
	}
}

// ResetSession handles DELETE /api/sessions/{id}: discards conversation
// state so the next turn starts fresh.
func (h *AskHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use DELETE")
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		WriteError(w, http.StatusBadRequest, "invalid_request", "session id is required")
		return
	}

	if err := h.pipeline.Reset(r.Context(), sessionID); err != nil {
		h.writeError(w, sessionID, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeError maps pipeline errors to HTTP statuses. Internal detail goes
// to the log; the response body carries only the user-safe message.
func (h *AskHandler) writeError(w http.ResponseWriter, sessionID string, err error) {
	h.logger.Warn("turn failed",
		zap.String("session_id", sessionID),
		zap.String("error", logging.SanitizeError(err)))

	switch {
	case errors.Is(err, apperrors.ErrTenantMismatch):
		WriteError(w, http.StatusForbidden, "tenant_mismatch", "this session belongs to a different district")
	case errors.Is(err, apperrors.ErrStateConflict):
		WriteError(w, http.StatusConflict, "state_conflict", "another request is updating this session, try again")
	case errors.Is(err, apperrors.ErrSessionNotFound):
		WriteError(w, http.StatusNotFound, "session_not_found", "no such session")
	default:
		switch apperrors.KindOf(err) {
		case apperrors.KindValidationRejected:
			WriteError(w, http.StatusUnprocessableEntity, "validation_rejected", apperrors.UserMessage(err))
		case apperrors.KindUpstreamModelFailure:
			WriteError(w, http.StatusBadGateway, "upstream_model_failure", apperrors.UserMessage(err))
		default:
			WriteError(w, http.StatusInternalServerError, "internal_error", "something went wrong processing the question")
		}
	}
}
