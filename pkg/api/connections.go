package api

import (
	"net/http"

	"github.com/txn2/mcp-query-builder/pkg/connections"
)

// connectionRequest is the create/update body. An empty password on update
// keeps the stored one.
type connectionRequest struct {
	Name         string `json:"connectionName"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	DatabaseName string `json:"databaseName"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseType string `json:"databaseType"`
	IsActive     *bool  `json:"isActive"`
}

func (req connectionRequest) apply(c *connections.Connection) {
	c.Name = req.Name
	c.Host = req.Host
	c.Port = req.Port
	c.DatabaseName = req.DatabaseName
	c.Username = req.Username
	c.DatabaseType = req.DatabaseType
	if c.DatabaseType == "" {
		c.DatabaseType = connections.TypePostgres
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
}

type connectionListResponse struct {
	Data []connections.Connection `json:"data"`
}

// listConnections handles GET /api/v1/connections.
func (h *Handler) listConnections(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	list, err := h.deps.Connections.List(r.Context(), uid)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if list == nil {
		list = []connections.Connection{}
	}
	writeJSON(w, http.StatusOK, connectionListResponse{Data: list})
}

// createConnection handles POST /api/v1/connections.
func (h *Handler) createConnection(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	var req connectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	if req.Password == "" {
		writeFailure(w, r, invalidInput("password is required"))
		return
	}

	c := &connections.Connection{UserID: uid, IsActive: true}
	req.apply(c)
	if err := c.Validate(); err != nil {
		writeFailure(w, r, invalidInput("%s", err.Error()))
		return
	}

	enc, err := h.deps.Cipher.Encrypt(req.Password)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	c.EncryptedPassword = enc

	if err := h.deps.Connections.Create(r.Context(), c); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// getConnection handles GET /api/v1/connections/{id}.
func (h *Handler) getConnection(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	c, err := h.deps.Connections.Get(r.Context(), r.PathValue("id"), uid)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// updateConnection handles PUT /api/v1/connections/{id}.
func (h *Handler) updateConnection(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	var req connectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}

	c, err := h.deps.Connections.Get(r.Context(), r.PathValue("id"), uid)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	req.apply(c)
	if err := c.Validate(); err != nil {
		writeFailure(w, r, invalidInput("%s", err.Error()))
		return
	}

	c.EncryptedPassword = ""
	if req.Password != "" {
		enc, err := h.deps.Cipher.Encrypt(req.Password)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		c.EncryptedPassword = enc
	}

	if err := h.deps.Connections.Update(r.Context(), c); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// deleteConnection handles DELETE /api/v1/connections/{id}.
func (h *Handler) deleteConnection(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	if err := h.deps.Connections.Delete(r.Context(), r.PathValue("id"), uid); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
