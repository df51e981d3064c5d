package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-query-builder/pkg/connections"
	"github.com/txn2/mcp-query-builder/pkg/query"
)

func TestFetchSchema(t *testing.T) {
	t.Run("returns tables", func(t *testing.T) {
		schema := &mockSchema{tables: []query.Table{{Name: "users", Columns: []query.Column{{Name: "id", DataType: "integer", IsPrimaryKey: true}}}}}
		h := NewHandler(Deps{Schema: schema}, asUser(testUserID))

		w := do(t, h, http.MethodPost, "/api/v1/schema", schemaRequest{ConnectionID: "c1"})
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody[schemaResponse](t, w)
		require.Len(t, body.Tables, 1)
		assert.Equal(t, "users", body.Tables[0].Name)
		assert.True(t, body.Tables[0].Columns[0].IsPrimaryKey)
	})

	t.Run("not found", func(t *testing.T) {
		h := NewHandler(Deps{Schema: &mockSchema{err: connections.ErrNotFound}}, asUser(testUserID))
		w := do(t, h, http.MethodPost, "/api/v1/schema", schemaRequest{ConnectionID: "nope"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unsupported database", func(t *testing.T) {
		h := NewHandler(Deps{Schema: &mockSchema{err: query.ErrUnsupportedDatabase}}, asUser(testUserID))
		w := do(t, h, http.MethodPost, "/api/v1/schema", schemaRequest{ConnectionID: "c1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, query.ErrUnsupportedDatabase.Error(), decodeBody[map[string]string](t, w)["error"])
	})
}

func TestTestConnection(t *testing.T) {
	params := query.ConnectionParams{Host: "db", Port: 5432, DatabaseName: "app", Username: "ro", Password: "pw", DatabaseType: "postgresql"}

	t.Run("success", func(t *testing.T) {
		tester := &mockTester{}
		h := NewHandler(Deps{Tester: tester}, asUser(testUserID))

		w := do(t, h, http.MethodPost, "/api/v1/connections/test", params)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, testConnectionResponse{Success: true, Message: "Connection successful"}, decodeBody[testConnectionResponse](t, w))
	})

	t.Run("invalid params never reach the tester", func(t *testing.T) {
		tester := &mockTester{}
		h := NewHandler(Deps{Tester: tester}, asUser(testUserID))

		bad := params
		bad.DatabaseType = "mysql"
		w := do(t, h, http.MethodPost, "/api/v1/connections/test", bad)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, tester.called)
	})

	t.Run("failure is mapped", func(t *testing.T) {
		tester := &mockTester{err: &query.ExecutionError{Category: query.CategoryCredentials, Message: query.MsgCredentials}}
		h := NewHandler(Deps{Tester: tester}, asUser(testUserID))

		w := do(t, h, http.MethodPost, "/api/v1/connections/test", params)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, query.MsgCredentials, decodeBody[map[string]string](t, w)["error"])
	})

	t.Run("requires a user", func(t *testing.T) {
		h := NewHandler(Deps{Tester: &mockTester{}}, nil)
		w := do(t, h, http.MethodPost, "/api/v1/connections/test", params)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
