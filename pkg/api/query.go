package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/txn2/mcp-query-builder/pkg/export"
	"github.com/txn2/mcp-query-builder/pkg/query"
	"github.com/txn2/mcp-query-builder/pkg/querymodel"
	"github.com/txn2/mcp-query-builder/pkg/sqlgen"
	"github.com/txn2/mcp-query-builder/pkg/sqlguard"
)

type compileRequest struct {
	Config  querymodel.Config `json:"config"`
	MaxRows int               `json:"maxRows,omitempty"`
}

type compileResponse struct {
	SQL          string          `json:"sql"`
	FormattedSQL string          `json:"formattedSql"`
	Validation   sqlguard.Result `json:"validation"`
}

type validateRequest struct {
	SQL     string `json:"sql"`
	MaxRows int    `json:"maxRows,omitempty"`
}

func (h *Handler) maxRows(requested int) int {
	if requested <= 0 {
		requested = h.deps.DefaultMaxRows
	}
	return sqlguard.ClampRows(requested)
}

// compileQuery handles POST /api/v1/query/compile.
func (h *Handler) compileQuery(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}

	sql, err := sqlgen.Compile(req.Config)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, compileResponse{
		SQL:          sql,
		FormattedSQL: sqlgen.FormatSQL(sql),
		Validation:   sqlguard.Validate(sql, h.maxRows(req.MaxRows)),
	})
}

// validateSQL handles POST /api/v1/query/validate. An invalid statement is
// a successful response with valid=false.
func (h *Handler) validateSQL(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sqlguard.Validate(req.SQL, h.maxRows(req.MaxRows)))
}

// executeQuery handles POST /api/v1/query/execute. With ?format=csv|json the
// rows are streamed as a download instead of the JSON result envelope.
func (h *Handler) executeQuery(w http.ResponseWriter, r *http.Request) {
	var format export.Format
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := export.ParseFormat(f)
		if err != nil {
			writeFailure(w, r, invalidInput("%s", err.Error()))
			return
		}
		format = parsed
	}

	var req query.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	if req.MaxRows <= 0 {
		req.MaxRows = h.deps.DefaultMaxRows
	}

	result, err := h.deps.Executor.Execute(r.Context(), req)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	if format == "" {
		writeJSON(w, http.StatusOK, result)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="query-results.%s"`, format))
	w.WriteHeader(http.StatusOK)
	if err := export.Write(w, format, result); err != nil {
		slog.Warn("export write failed", "format", format, "error", err)
	}
}
