package api

import (
	"net/http"
	"strconv"

	"github.com/txn2/mcp-query-builder/pkg/audit"
)

const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 500
)

type executionListResponse struct {
	Data   []audit.Event `json:"data"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// listExecutions handles GET /api/v1/executions. Results are always
// scoped to the caller.
func (h *Handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := audit.QueryFilter{
		UserID:       uid,
		ConnectionID: q.Get("connectionId"),
		QueryID:      q.Get("queryId"),
		StartTime:    parseTimeParam(q, "start_time"),
		EndTime:      parseTimeParam(q, "end_time"),
		Limit:        parseIntParam(q, "limit"),
		Offset:       max(parseIntParam(q, "offset"), 0),
	}
	if v := q.Get("success"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.Success = &b
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultExecutionLimit
	}
	filter.Limit = min(filter.Limit, maxExecutionLimit)

	events, err := h.deps.Executions.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query executions")
		return
	}

	countFilter := filter
	countFilter.Limit = 0
	countFilter.Offset = 0
	total, err := h.deps.Executions.Count(r.Context(), countFilter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count executions")
		return
	}

	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, executionListResponse{
		Data:   events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// executionOverview handles GET /api/v1/executions/overview.
func (h *Handler) executionOverview(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	q := r.URL.Query()
	overview, err := h.deps.Metrics.Overview(r.Context(), audit.OverviewFilter{
		UserID:    uid,
		StartTime: parseTimeParam(q, "start_time"),
		EndTime:   parseTimeParam(q, "end_time"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute execution overview")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
