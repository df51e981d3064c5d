package api

import (
	"net/http"

	"github.com/txn2/mcp-query-builder/pkg/query"
)

type schemaRequest struct {
	ConnectionID string `json:"connectionId"`
}

type schemaResponse struct {
	Tables []query.Table `json:"tables"`
}

type testConnectionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// fetchSchema handles POST /api/v1/schema.
func (h *Handler) fetchSchema(w http.ResponseWriter, r *http.Request) {
	var req schemaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}

	tables, err := h.deps.Schema.FetchSchema(r.Context(), req.ConnectionID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schemaResponse{Tables: tables})
}

// testConnection handles POST /api/v1/connections/test with unsaved
// credentials.
func (h *Handler) testConnection(w http.ResponseWriter, r *http.Request) {
	if _, err := userID(r); err != nil {
		writeFailure(w, r, err)
		return
	}

	var params query.ConnectionParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := params.Validate(); err != nil {
		writeFailure(w, r, invalidInput("%s", err.Error()))
		return
	}

	if err := h.deps.Tester.TestConnection(r.Context(), params); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testConnectionResponse{Success: true, Message: "Connection successful"})
}
