package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id,omitempty"`
}

// HandleAsk runs a natural language question through the workflow and
// returns the full response envelope.
func (s *Service) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result := s.Runner.Run(r.Context(), req.Query, req.ThreadID)
	writeJSON(w, http.StatusOK, result)
}
