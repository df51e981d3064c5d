package api

import (
	"net/http"

	"github.com/txn2/mcp-query-builder/pkg/querymodel"
	"github.com/txn2/mcp-query-builder/pkg/savedquery"
)

type savedQueryRequest struct {
	ConnectionID string            `json:"connectionId"`
	Name         string            `json:"queryName"`
	Config       querymodel.Config `json:"queryConfig"`
}

type savedQueryListResponse struct {
	Data   []savedquery.SavedQuery `json:"data"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// prepare compiles the query and checks that its connection belongs to the
// caller.
func (h *Handler) prepare(r *http.Request, q *savedquery.SavedQuery) error {
	if err := q.Compile(); err != nil {
		if isBadRequest(err) {
			return err
		}
		return invalidInput("%s", err.Error())
	}
	if h.deps.Connections != nil {
		if _, err := h.deps.Connections.Get(r.Context(), q.ConnectionID, q.UserID); err != nil {
			return err
		}
	}
	return nil
}

// listSavedQueries handles GET /api/v1/queries.
func (h *Handler) listSavedQueries(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := savedquery.ListFilter{
		UserID:       uid,
		ConnectionID: q.Get("connectionId"),
		Limit:        parseIntParam(q, "limit"),
		Offset:       parseIntParam(q, "offset"),
	}

	list, err := h.deps.SavedQueries.List(r.Context(), filter)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if list == nil {
		list = []savedquery.SavedQuery{}
	}
	writeJSON(w, http.StatusOK, savedQueryListResponse{Data: list, Limit: filter.Limit, Offset: filter.Offset})
}

// createSavedQuery handles POST /api/v1/queries.
func (h *Handler) createSavedQuery(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	var req savedQueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}

	sq := &savedquery.SavedQuery{
		UserID:       uid,
		ConnectionID: req.ConnectionID,
		Name:         req.Name,
		Config:       req.Config,
	}
	if err := h.prepare(r, sq); err != nil {
		writeFailure(w, r, err)
		return
	}

	if err := h.deps.SavedQueries.Create(r.Context(), sq); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sq)
}

// getSavedQuery handles GET /api/v1/queries/{id}.
func (h *Handler) getSavedQuery(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	sq, err := h.deps.SavedQueries.Get(r.Context(), r.PathValue("id"), uid)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sq)
}

// updateSavedQuery handles PUT /api/v1/queries/{id}.
func (h *Handler) updateSavedQuery(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	var req savedQueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}

	sq, err := h.deps.SavedQueries.Get(r.Context(), r.PathValue("id"), uid)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	sq.Name = req.Name
	sq.ConnectionID = req.ConnectionID
	sq.Config = req.Config
	if err := h.prepare(r, sq); err != nil {
		writeFailure(w, r, err)
		return
	}

	if err := h.deps.SavedQueries.Update(r.Context(), sq); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sq)
}

// deleteSavedQuery handles DELETE /api/v1/queries/{id}.
func (h *Handler) deleteSavedQuery(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	if err := h.deps.SavedQueries.Delete(r.Context(), r.PathValue("id"), uid); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
