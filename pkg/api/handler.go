// Package api provides the REST endpoints of the query builder: compile,
// validate and execute queries, introspect schemas, and manage saved
// connections, saved queries and execution history.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/txn2/mcp-query-builder/pkg/audit"
	"github.com/txn2/mcp-query-builder/pkg/auth"
	"github.com/txn2/mcp-query-builder/pkg/connections"
	"github.com/txn2/mcp-query-builder/pkg/query"
	"github.com/txn2/mcp-query-builder/pkg/querymodel"
	"github.com/txn2/mcp-query-builder/pkg/savedquery"
	"github.com/txn2/mcp-query-builder/pkg/sqlgen"
	"github.com/txn2/mcp-query-builder/pkg/sqlguard"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Deps holds the collaborators behind the endpoints. Routes whose
// collaborator is nil are not registered.
type Deps struct {
	Executor       query.Executor
	Schema         query.SchemaProvider
	Tester         query.ConnectionTester
	Connections    connections.Store
	Cipher         *connections.Cipher
	SavedQueries   savedquery.Store
	Executions     audit.Logger
	Metrics        audit.MetricsQuerier
	DefaultMaxRows int
}

// Handler serves the REST API.
type Handler struct {
	mux        *http.ServeMux
	deps       Deps
	authMiddle func(http.Handler) http.Handler
}

// NewHandler creates the API handler. authMiddle, when set, wraps every
// route and must attach an auth.UserContext.
func NewHandler(deps Deps, authMiddle func(http.Handler) http.Handler) *Handler {
	if deps.DefaultMaxRows <= 0 {
		deps.DefaultMaxRows = sqlguard.DefaultMaxRows
	}
	h := &Handler{
		mux:        http.NewServeMux(),
		deps:       deps,
		authMiddle: authMiddle,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.authMiddle != nil {
		h.authMiddle(h.mux).ServeHTTP(w, r)
		return
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("POST /api/v1/query/compile", h.compileQuery)
	h.mux.HandleFunc("POST /api/v1/query/validate", h.validateSQL)

	if h.deps.Executor != nil {
		h.mux.HandleFunc("POST /api/v1/query/execute", h.executeQuery)
	}
	if h.deps.Schema != nil {
		h.mux.HandleFunc("POST /api/v1/schema", h.fetchSchema)
	}
	if h.deps.Tester != nil {
		h.mux.HandleFunc("POST /api/v1/connections/test", h.testConnection)
	}
	if h.deps.Connections != nil && h.deps.Cipher != nil {
		h.mux.HandleFunc("GET /api/v1/connections", h.listConnections)
		h.mux.HandleFunc("POST /api/v1/connections", h.createConnection)
		h.mux.HandleFunc("GET /api/v1/connections/{id}", h.getConnection)
		h.mux.HandleFunc("PUT /api/v1/connections/{id}", h.updateConnection)
		h.mux.HandleFunc("DELETE /api/v1/connections/{id}", h.deleteConnection)
	}
	if h.deps.SavedQueries != nil {
		h.mux.HandleFunc("GET /api/v1/queries", h.listSavedQueries)
		h.mux.HandleFunc("POST /api/v1/queries", h.createSavedQuery)
		h.mux.HandleFunc("GET /api/v1/queries/{id}", h.getSavedQuery)
		h.mux.HandleFunc("PUT /api/v1/queries/{id}", h.updateSavedQuery)
		h.mux.HandleFunc("DELETE /api/v1/queries/{id}", h.deleteSavedQuery)
	}
	if h.deps.Executions != nil {
		h.mux.HandleFunc("GET /api/v1/executions", h.listExecutions)
	}
	if h.deps.Metrics != nil {
		h.mux.HandleFunc("GET /api/v1/executions/overview", h.executionOverview)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps err onto a status code. Only errors whose text is safe
// for the caller are echoed; anything else becomes a generic 500.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, query.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, connections.ErrNotFound):
		writeError(w, http.StatusNotFound, "Connection not found")
	case errors.Is(err, savedquery.ErrNotFound):
		writeError(w, http.StatusNotFound, "Saved query not found")
	case errors.Is(err, query.ErrExecutionFailed):
		var ee *query.ExecutionError
		if errors.As(err, &ee) {
			writeError(w, http.StatusBadRequest, ee.Message)
			return
		}
		writeError(w, http.StatusBadRequest, query.MsgUnknown)
	case isBadRequest(err):
		writeError(w, http.StatusBadRequest, badRequestMessage(err))
	default:
		slog.Error("api request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func isBadRequest(err error) bool {
	for _, target := range []error{
		sqlgen.ErrUnsafeIdentifier,
		sqlguard.ErrValidationFailed,
		querymodel.ErrInvalidConfig,
		query.ErrMissingConnection,
		query.ErrMissingSQL,
		query.ErrUnsupportedDatabase,
		errBadRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// badRequestMessage returns the innermost typed message so wrapping
// context from internal layers is not shown.
func badRequestMessage(err error) string {
	var uie *sqlgen.UnsafeIdentifierError
	if errors.As(err, &uie) {
		return uie.Error()
	}
	var ve *sqlguard.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return err.Error()
}

// errBadRequest marks input errors produced by the handlers themselves.
var errBadRequest = errors.New("bad request")

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }
func (badRequest) Unwrap() error   { return errBadRequest }

func invalidInput(format string, args ...any) error {
	return badRequest{msg: fmt.Sprintf(format, args...)}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalidInput("invalid request body")
	}
	return nil
}

// userID returns the authenticated caller or ErrUnauthenticated.
func userID(r *http.Request) (string, error) {
	uc := auth.GetUserContext(r.Context())
	if uc == nil || uc.UserID == "" {
		return "", query.ErrUnauthenticated
	}
	return uc.UserID, nil
}

func parseIntParam(q url.Values, key string) int {
	if v := q.Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func parseTimeParam(q url.Values, key string) *time.Time {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}
