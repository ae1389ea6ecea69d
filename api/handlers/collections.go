package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CollectionsResponse lists the queryable collections.
type CollectionsResponse struct {
	Collections []string `json:"collections"`
	Count       int      `json:"count"`
}

// SchemaResponse carries the schema description of one collection.
type SchemaResponse struct {
	Collection string `json:"collection"`
	Schema     string `json:"schema"`
}

// HandleListCollections returns the non-system collections in the database.
func (s *Service) HandleListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := s.Store.ListCollections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, internalError("failed to list collections", err))
		return
	}
	if collections == nil {
		collections = []string{}
	}
	writeJSON(w, http.StatusOK, CollectionsResponse{Collections: collections, Count: len(collections)})
}

// HandleCollectionSchema returns the sampled schema of a single collection.
func (s *Service) HandleCollectionSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "collection name is required")
		return
	}

	schemas, err := s.Store.FetchSchema(r.Context(), []string{name})
	if err != nil {
		writeError(w, http.StatusInternalServerError, internalError("failed to fetch schema", err))
		return
	}
	schema, ok := schemas[name]
	if !ok {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}
	writeJSON(w, http.StatusOK, SchemaResponse{Collection: name, Schema: schema})
}
