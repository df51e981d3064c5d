// Package server wires configuration into the stores, services and the
// HTTP and MCP surfaces of the query builder.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver for the metadata database
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-query-builder/pkg/api"
	"github.com/txn2/mcp-query-builder/pkg/audit"
	auditpg "github.com/txn2/mcp-query-builder/pkg/audit/postgres"
	"github.com/txn2/mcp-query-builder/pkg/auth"
	"github.com/txn2/mcp-query-builder/pkg/config"
	"github.com/txn2/mcp-query-builder/pkg/connections"
	connpg "github.com/txn2/mcp-query-builder/pkg/connections/postgres"
	"github.com/txn2/mcp-query-builder/pkg/database/migrate"
	"github.com/txn2/mcp-query-builder/pkg/health"
	httpauth "github.com/txn2/mcp-query-builder/pkg/http"
	"github.com/txn2/mcp-query-builder/pkg/mcptools"
	qpg "github.com/txn2/mcp-query-builder/pkg/query/postgres"
	"github.com/txn2/mcp-query-builder/pkg/savedquery"
	sqpg "github.com/txn2/mcp-query-builder/pkg/savedquery/postgres"
)

// Version is set at build time.
var Version = "dev"

const (
	pingTimeout       = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server holds the wired components.
type Server struct {
	cfg           *config.Config
	db            *sql.DB
	authenticator auth.Authenticator
	health        *health.Checker

	connections connections.Store
	saved       savedquery.Store
	cipher      *connections.Cipher
	audit       audit.Logger
	executions  audit.Logger
	metrics     audit.MetricsQuerier
	executor    *qpg.Executor

	closeAudit func() error
}

// New validates cfg, opens the metadata database when one is configured,
// applies migrations and wires every component. Without a database only
// compilation and validation are served.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var db *sql.DB
	if cfg.Database.DSN != "" {
		var err error
		db, err = OpenDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := migrate.Run(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	s, err := build(cfg, db)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}
	return s, nil
}

// OpenDatabase opens the metadata database and verifies it is reachable.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// build wires components around an already migrated db, which may be nil.
func build(cfg *config.Config, db *sql.DB) (*Server, error) {
	authenticator, err := buildAuthenticator(cfg.Auth)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:           cfg,
		db:            db,
		authenticator: authenticator,
		health:        health.NewChecker(),
		audit:         audit.NoopLogger{},
		closeAudit:    func() error { return nil },
	}

	if db == nil {
		slog.Warn("no database configured; execution, schema and persistence are disabled")
		return s, nil
	}

	s.cipher, err = connections.NewCipher(cfg.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	s.connections = connpg.New(db)
	s.saved = sqpg.New(db)

	auditStore := auditpg.New(db, auditpg.Config{RetentionDays: cfg.Audit.RetentionDays})
	s.executions = auditStore
	s.metrics = auditStore
	if cfg.Audit.IsEnabled() {
		auditStore.StartCleanupRoutine(cfg.Audit.CleanupInterval)
		s.audit = auditStore
		s.closeAudit = auditStore.Close
	}

	s.executor = qpg.NewExecutor(qpg.Config{
		Connections:    s.connections,
		Cipher:         s.cipher,
		Audit:          s.audit,
		SavedQueries:   s.saved,
		DefaultTimeout: cfg.Query.DefaultTimeout,
		Dialer: qpg.NewPQDialer(qpg.DialerConfig{
			SSLMode:     cfg.Query.SSLMode,
			DialTimeout: cfg.Query.DialTimeout,
		}),
	})

	s.health.AddCheck("database", db.PingContext)
	return s, nil
}

func buildAuthenticator(cfg config.AuthConfig) (auth.Authenticator, error) {
	var chain []auth.Authenticator

	if len(cfg.APIKeys.Keys) > 0 {
		keys := make([]auth.APIKey, 0, len(cfg.APIKeys.Keys))
		for _, k := range cfg.APIKeys.Keys {
			keys = append(keys, auth.APIKey{Key: k.Key, KeyHash: k.KeyHash, Name: k.Name, Roles: k.Roles})
		}
		chain = append(chain, auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{Keys: keys}))
	}

	if cfg.JWT.Enabled {
		jwtAuth, err := auth.NewJWTAuthenticator(auth.JWTConfig{
			Issuer:     cfg.JWT.Issuer,
			SigningKey: []byte(cfg.JWT.SigningKey),
		})
		if err != nil {
			return nil, fmt.Errorf("creating jwt authenticator: %w", err)
		}
		chain = append(chain, jwtAuth)
	}

	if len(chain) == 0 && !cfg.AllowAnonymous {
		slog.Warn("no authenticators configured and anonymous access is disabled; every request will be rejected")
	}
	return auth.NewChainedAuthenticator(auth.ChainedAuthConfig{AllowAnonymous: cfg.AllowAnonymous}, chain...), nil
}

// Config returns the configuration the server was built from.
func (s *Server) Config() *config.Config {
	return s.cfg
}

// Health returns the readiness checker.
func (s *Server) Health() *health.Checker {
	return s.health
}

func (s *Server) apiDeps() api.Deps {
	deps := api.Deps{
		Connections:    s.connections,
		Cipher:         s.cipher,
		SavedQueries:   s.saved,
		Executions:     s.executions,
		Metrics:        s.metrics,
		DefaultMaxRows: s.cfg.Query.DefaultMaxRows,
	}
	if s.executor != nil {
		deps.Executor = s.executor
		deps.Schema = s.executor
		deps.Tester = s.executor
	}
	return deps
}

// MCPServer builds an MCP server exposing the query tools. sessionToken
// authenticates calls whose context carries no token, as on stdio.
func (s *Server) MCPServer(sessionToken string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: s.cfg.Server.Name, Version: Version}, nil)

	deps := mcptools.Deps{
		SavedQueries:   s.saved,
		DefaultMaxRows: s.cfg.Query.DefaultMaxRows,
	}
	if s.executor != nil {
		deps.Executor = s.executor
		deps.Schema = s.executor
	}
	mcptools.New(deps).Register(server)
	server.AddReceivingMiddleware(mcptools.AuthMiddleware(s.authenticator, sessionToken))
	return server
}

// Handler returns the HTTP surface: the REST API under /api/, MCP over
// streamable HTTP at /mcp and the health endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewHandler(s.apiDeps(), httpauth.Authenticate(s.authenticator)))

	mcpServer := s.MCPServer("")
	streamHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpServer }, nil)
	mux.Handle("/mcp", httpauth.AuthMiddleware(false)(streamHandler))

	mux.Handle("GET /healthz", s.health.LivenessHandler())
	mux.Handle("GET /readyz", s.health.ReadinessHandler())
	return mux
}

// ServeHTTP listens on the configured address until ctx is cancelled, then
// flips readiness to draining and shuts down gracefully.
func (s *Server) ServeHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Address,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "address", srv.Addr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.health.SetReady()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.health.SetDraining()
	slog.Info("shutting down http server", "timeout", s.cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// ServeMCP serves the MCP tools on stdin/stdout until ctx is cancelled or
// the client disconnects.
func (s *Server) ServeMCP(ctx context.Context) error {
	s.health.SetReady()
	if err := s.MCPServer(s.cfg.MCP.Token).Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// Close stops background work and releases the database.
func (s *Server) Close() error {
	var errs []error
	if err := s.closeAudit(); err != nil {
		errs = append(errs, fmt.Errorf("closing audit store: %w", err))
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	return errors.Join(errs...)
}
