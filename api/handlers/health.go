package handlers

import (
	"net/http"
)

// HealthResponse reports service liveness and database reachability.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HandleHealth reports whether the service and its database are reachable.
// A failing database degrades the status without failing the endpoint.
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "ok"}
	if _, err := s.Store.ListCollections(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
