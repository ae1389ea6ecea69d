// Package handlers implements the HTTP surface of the query service.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/luminalabs/askdb/agent/pkg/workflow"
)

// QueryRunner runs a natural language query through the workflow.
type QueryRunner interface {
	Run(ctx context.Context, userQuery, threadID string) *workflow.Result
}

// Store is the database surface the handlers need.
type Store interface {
	workflow.CollectionLister
	workflow.SchemaFetcher
}

// Service bundles the handler dependencies.
type Service struct {
	Runner QueryRunner
	Store  Store
}

func NewService(runner QueryRunner, store Store) *Service {
	return &Service{Runner: runner, Store: store}
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
