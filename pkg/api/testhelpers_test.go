package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-query-builder/pkg/audit"
	"github.com/txn2/mcp-query-builder/pkg/auth"
	"github.com/txn2/mcp-query-builder/pkg/connections"
	"github.com/txn2/mcp-query-builder/pkg/query"
	"github.com/txn2/mcp-query-builder/pkg/savedquery"
)

const (
	testUserID  = "user-1"
	otherUserID = "user-2"
)

// --- Mock Executor / SchemaProvider / ConnectionTester ---

type mockExecutor struct {
	result  *query.Result
	err     error
	lastReq query.Request
}

func (m *mockExecutor) Execute(_ context.Context, req query.Request) (*query.Result, error) {
	m.lastReq = req
	return m.result, m.err
}

type mockSchema struct {
	tables []query.Table
	err    error
}

func (m *mockSchema) FetchSchema(context.Context, string) ([]query.Table, error) {
	return m.tables, m.err
}

type mockTester struct {
	err    error
	called bool
}

func (m *mockTester) TestConnection(context.Context, query.ConnectionParams) error {
	m.called = true
	return m.err
}

// --- In-memory connection store ---

type memConnectionStore struct {
	mu   sync.Mutex
	byID map[string]connections.Connection
	seq  int
}

func newMemConnectionStore() *memConnectionStore {
	return &memConnectionStore{byID: map[string]connections.Connection{}}
}

func (s *memConnectionStore) Create(_ context.Context, c *connections.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	c.ID = "conn-" + string(rune('0'+s.seq))
	s.byID[c.ID] = *c
	return nil
}

func (s *memConnectionStore) Get(_ context.Context, id, userID string) (*connections.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || c.UserID != userID {
		return nil, connections.ErrNotFound
	}
	return &c, nil
}

func (s *memConnectionStore) List(_ context.Context, userID string) ([]connections.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []connections.Connection
	for _, c := range s.byID {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memConnectionStore) Update(_ context.Context, c *connections.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[c.ID]
	if !ok || old.UserID != c.UserID {
		return connections.ErrNotFound
	}
	if c.EncryptedPassword == "" {
		c.EncryptedPassword = old.EncryptedPassword
	}
	s.byID[c.ID] = *c
	return nil
}

func (s *memConnectionStore) Delete(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || c.UserID != userID {
		return connections.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

// --- In-memory saved query store ---

type memSavedQueryStore struct {
	mu         sync.Mutex
	byID       map[string]savedquery.SavedQuery
	lastFilter savedquery.ListFilter
	seq        int
}

func newMemSavedQueryStore() *memSavedQueryStore {
	return &memSavedQueryStore{byID: map[string]savedquery.SavedQuery{}}
}

func (s *memSavedQueryStore) Create(_ context.Context, q *savedquery.SavedQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	q.ID = "q-" + string(rune('0'+s.seq))
	s.byID[q.ID] = *q
	return nil
}

func (s *memSavedQueryStore) Get(_ context.Context, id, userID string) (*savedquery.SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.byID[id]
	if !ok || q.UserID != userID {
		return nil, savedquery.ErrNotFound
	}
	return &q, nil
}

func (s *memSavedQueryStore) List(_ context.Context, f savedquery.ListFilter) ([]savedquery.SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	var out []savedquery.SavedQuery
	for _, q := range s.byID {
		if q.UserID == f.UserID && (f.ConnectionID == "" || q.ConnectionID == f.ConnectionID) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *memSavedQueryStore) Update(_ context.Context, q *savedquery.SavedQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[q.ID]; !ok || old.UserID != q.UserID {
		return savedquery.ErrNotFound
	}
	s.byID[q.ID] = *q
	return nil
}

func (s *memSavedQueryStore) Delete(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.byID[id]; !ok || q.UserID != userID {
		return savedquery.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (*memSavedQueryStore) TouchLastExecuted(context.Context, string, string, time.Time) error {
	return nil
}

// --- Mock audit ---

type mockExecutions struct {
	audit.NoopLogger
	events      []audit.Event
	total       int
	queryErr    error
	countErr    error
	lastFilter  audit.QueryFilter
	countFilter audit.QueryFilter
}

func (m *mockExecutions) Query(_ context.Context, f audit.QueryFilter) ([]audit.Event, error) {
	m.lastFilter = f
	return m.events, m.queryErr
}

func (m *mockExecutions) Count(_ context.Context, f audit.QueryFilter) (int, error) {
	m.countFilter = f
	return m.total, m.countErr
}

type mockMetrics struct {
	overview   *audit.Overview
	err        error
	lastFilter audit.OverviewFilter
}

func (m *mockMetrics) Overview(_ context.Context, f audit.OverviewFilter) (*audit.Overview, error) {
	m.lastFilter = f
	return m.overview, m.err
}

// --- Helpers ---

// asUser is auth middleware that attaches a fixed user.
func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithUserContext(r.Context(), &auth.UserContext{UserID: userID, AuthType: "apikey"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func testCipher(t *testing.T) *connections.Cipher {
	t.Helper()
	c, err := connections.NewCipher("api-test")
	require.NoError(t, err)
	return c
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}
