package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-query-builder/pkg/config"
)

const testAPIKey = "test-key-12345"

const baseConfig = `
auth:
  api_keys:
    keys:
      - key: test-key-12345
        name: ci
encryption:
  key: passphrase
`

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parsing config: %v", err)
	}
	return cfg
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestVersion(t *testing.T) {
	if Version != "dev" {
		t.Errorf("expected Version 'dev', got %q", Version)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, `
database:
  dsn: postgres://localhost/app
query:
  ssl_mode: sometimes
`)
	_, err := New(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"encryption.key", "ssl_mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestNew_WithoutDatabase(t *testing.T) {
	s, err := New(context.Background(), testConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = s.Close() }()

	if s.executor != nil {
		t.Error("executor must not be wired without a database")
	}
	if s.Config().Server.Name != "mcp-query-builder" {
		t.Errorf("unexpected server name %q", s.Config().Server.Name)
	}
}

func TestBuildAuthenticator(t *testing.T) {
	t.Run("jwt without signing key fails", func(t *testing.T) {
		_, err := buildAuthenticator(config.AuthConfig{JWT: config.JWTAuthConfig{Enabled: true, Issuer: "me"}})
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		a, err := buildAuthenticator(config.AuthConfig{AllowAnonymous: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		uc, err := a.Authenticate(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if uc.UserID != "anonymous" {
			t.Errorf("got user %q, want anonymous", uc.UserID)
		}
	})

	t.Run("nothing configured rejects", func(t *testing.T) {
		a, err := buildAuthenticator(config.AuthConfig{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := a.Authenticate(context.Background()); err == nil {
			t.Error("expected authentication to fail")
		}
	})
}

func TestHandler_WithoutDatabase(t *testing.T) {
	s, err := build(testConfig(t, baseConfig), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	h := s.Handler()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		token      string
		wantStatus int
	}{
		{"liveness is public", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"readiness before start", http.MethodGet, "/readyz", "", "", http.StatusServiceUnavailable},
		{"api requires a token", http.MethodPost, "/api/v1/query/validate", `{"sql":"SELECT 1"}`, "", http.StatusUnauthorized},
		{"api rejects an unknown key", http.MethodPost, "/api/v1/query/validate", `{"sql":"SELECT 1"}`, "nope", http.StatusUnauthorized},
		{"validate", http.MethodPost, "/api/v1/query/validate", `{"sql":"SELECT 1"}`, testAPIKey, http.StatusOK},
		{"compile", http.MethodPost, "/api/v1/query/compile", `{"config":{"selectedTables":["users"]}}`, testAPIKey, http.StatusOK},
		{"execute is not served", http.MethodPost, "/api/v1/query/execute", `{}`, testAPIKey, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body, tt.token)
			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	s.Health().SetReady()
	if rec := do(t, h, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("readiness after start: got %d", rec.Code)
	}
}

func TestHandler_WithDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	s, err := build(testConfig(t, baseConfig), db)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if s.executor == nil {
		t.Fatal("executor must be wired with a database")
	}
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/query/execute", `{}`, testAPIKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("execute without connection: got %d: %s", rec.Code, rec.Body.String())
	}

	s.Health().SetReady()
	mock.ExpectPing().WillReturnError(fmt.Errorf("connection refused"))
	rec = do(t, h, http.MethodGet, "/readyz", "", "")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "degraded") {
		t.Errorf("readiness with failing database: got %d %s", rec.Code, rec.Body.String())
	}

	mock.ExpectClose()
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// authRoundTripper adds an Authorization header to all outgoing requests.
type authRoundTripper struct {
	token string
	base  http.RoundTripper
}

func (a *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+a.token)
	resp, err := a.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("round trip: %w", err)
	}
	return resp, nil
}

func connectStreamable(t *testing.T, url, token string) *mcp.ClientSession {
	t.Helper()
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{
		Endpoint:   url,
		HTTPClient: &http.Client{Transport: &authRoundTripper{token: token, base: http.DefaultTransport}},
	}, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestStreamableHTTP_ValidateSQL(t *testing.T) {
	s, err := build(testConfig(t, baseConfig), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	httpServer := httptest.NewServer(s.Handler())
	defer httpServer.Close()

	t.Run("authenticated", func(t *testing.T) {
		session := connectStreamable(t, httpServer.URL+"/mcp", testAPIKey)
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name:      "validate_sql",
			Arguments: map[string]any{"sql": "SELECT id FROM users"},
		})
		if err != nil {
			t.Fatalf("CallTool failed: %v", err)
		}
		tc, ok := result.Content[0].(*mcp.TextContent)
		if !ok {
			t.Fatalf("expected TextContent, got %T", result.Content[0])
		}
		if result.IsError {
			t.Fatalf("tool returned error: %s", tc.Text)
		}
		if !strings.Contains(tc.Text, "SELECT id FROM users LIMIT 1000") {
			t.Errorf("unexpected result: %s", tc.Text)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		session := connectStreamable(t, httpServer.URL+"/mcp", "nope")
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name:      "validate_sql",
			Arguments: map[string]any{"sql": "SELECT 1"},
		})
		if err != nil {
			t.Fatalf("CallTool failed: %v", err)
		}
		if !result.IsError {
			t.Error("expected an error result")
		}
	})
}

func TestMCPServer_SessionToken(t *testing.T) {
	s, err := build(testConfig(t, baseConfig), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	t1, t2 := mcp.NewInMemoryTransports()
	if _, err := s.MCPServer(testAPIKey).Connect(context.Background(), t1, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(context.Background(), t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer func() { _ = session.Close() }()

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "compile_query",
		Arguments: map[string]any{"config": map[string]any{"selectedTables": []string{"users"}}},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result.Content)
	}
}
