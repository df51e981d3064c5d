package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/txn2/mcp-query-builder/pkg/audit"
	"github.com/txn2/mcp-query-builder/pkg/auth"
	"github.com/txn2/mcp-query-builder/pkg/connections"
	"github.com/txn2/mcp-query-builder/pkg/query"
	"github.com/txn2/mcp-query-builder/pkg/savedquery"
	"github.com/txn2/mcp-query-builder/pkg/sqlguard"
)

// defaultGrace is added to the statement timeout to bound the whole call,
// leaving time for the server to report its own timeout first.
const defaultGrace = 2 * time.Second

// Config wires an Executor.
type Config struct {
	Connections  connections.Store
	Cipher       *connections.Cipher
	Audit        audit.Logger
	SavedQueries savedquery.Store
	Dialer       Dialer
	Grace        time.Duration

	// DefaultTimeout applies to requests that name no timeout. It is
	// clamped like any requested timeout.
	DefaultTimeout time.Duration
}

// Executor runs user SQL on saved PostgreSQL connections. It implements
// query.Executor, query.SchemaProvider and query.ConnectionTester.
type Executor struct {
	connections connections.Store
	cipher      *connections.Cipher
	audit       audit.Logger
	saved       savedquery.Store
	dialer      Dialer
	grace       time.Duration
	defaultMS   int
	now         func() time.Time
}

// NewExecutor creates an Executor. A nil Audit discards events and a nil
// SavedQueries skips last-executed bookkeeping.
func NewExecutor(cfg Config) *Executor {
	if cfg.Audit == nil {
		cfg.Audit = audit.NoopLogger{}
	}
	if cfg.Grace <= 0 {
		cfg.Grace = defaultGrace
	}
	return &Executor{
		connections: cfg.Connections,
		cipher:      cfg.Cipher,
		audit:       cfg.Audit,
		saved:       cfg.SavedQueries,
		dialer:      cfg.Dialer,
		grace:       cfg.Grace,
		defaultMS:   int(cfg.DefaultTimeout.Milliseconds()),
		now:         time.Now,
	}
}

// Execute validates req.SQL independently of any earlier check, runs it on
// the caller's connection under a statement timeout and audits the outcome.
// Driver failures are returned as *query.ExecutionError.
func (e *Executor) Execute(ctx context.Context, req query.Request) (*query.Result, error) {
	uc := auth.GetUserContext(ctx)
	if uc == nil || uc.UserID == "" {
		return nil, query.ErrUnauthenticated
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.TimeoutMS <= 0 {
		req.TimeoutMS = e.defaultMS
	}
	timeout := req.Timeout()
	maxRows := sqlguard.ClampRows(req.MaxRows)
	stmt, err := sqlguard.ValidateStatement(req.SQL, maxRows)
	if err != nil {
		return nil, err
	}

	params, err := e.resolve(ctx, req.ConnectionID, uc.UserID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout+e.grace)
	defer cancel()

	start := e.now()
	result, err := e.run(runCtx, params, stmt, timeout, maxRows)
	elapsed := e.now().Sub(start).Milliseconds()

	event := audit.NewEvent(uc.UserID, req.ConnectionID, stmt).WithQuery(req.QueryID)
	if err != nil {
		ee := query.MapError(err)
		slog.Warn("query execution failed",
			"user_id", uc.UserID,
			"connection_id", req.ConnectionID,
			"category", ee.Category,
			"error", err)
		e.record(ctx, event.WithFailure(string(ee.Category), ee.Message, elapsed))
		return nil, ee
	}

	result.ExecutionTimeMS = elapsed
	if result.Truncated {
		slog.Warn("query result truncated at row cap",
			"user_id", uc.UserID,
			"connection_id", req.ConnectionID,
			"max_rows", maxRows)
	}
	slog.Info("query executed",
		"user_id", uc.UserID,
		"connection_id", req.ConnectionID,
		"result", result.Preview())
	e.record(ctx, event.WithResult(result.RowCount, elapsed))
	e.touch(ctx, req.QueryID, uc.UserID)

	return result, nil
}

// resolve loads the connection owned by userID and decrypts its password.
func (e *Executor) resolve(ctx context.Context, connectionID, userID string) (query.ConnectionParams, error) {
	conn, err := e.connections.Get(ctx, connectionID, userID)
	if err != nil {
		return query.ConnectionParams{}, fmt.Errorf("loading connection: %w", err)
	}
	return conn.Params(e.cipher)
}

// run opens one session, applies the statement timeout and collects at most
// maxRows rows. The session and handle are released on every return path.
func (e *Executor) run(ctx context.Context, params query.ConnectionParams, stmt string, timeout time.Duration, maxRows int) (*query.Result, error) {
	db, err := e.dialer.Open(ctx, params)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET statement_timeout = %d", timeout.Milliseconds())); err != nil {
		return nil, fmt.Errorf("configuring session: %w", err)
	}

	queryCtx, stop := context.WithCancel(ctx)
	defer stop()

	rows, err := conn.QueryContext(queryCtx, stmt)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result, err := collectRows(rows, maxRows)
	if err != nil {
		return nil, err
	}
	if result.Truncated {
		// Cancel rather than drain the rows past the cap.
		stop()
	}
	return result, nil
}

// collectRows reads up to maxRows rows. Reading one row past the cap marks
// the result truncated.
func collectRows(rows *sql.Rows, maxRows int) (*query.Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	result := &query.Result{Rows: []map[string]any{}, Columns: columns}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// record writes the audit event even when ctx has already expired.
func (e *Executor) record(ctx context.Context, event *audit.Event) {
	if err := e.audit.Log(context.WithoutCancel(ctx), *event); err != nil {
		slog.Error("failed to record query execution", "event_id", event.ID, "error", err)
	}
}

func (e *Executor) touch(ctx context.Context, queryID, userID string) {
	if queryID == "" || e.saved == nil {
		return
	}
	if err := e.saved.TouchLastExecuted(context.WithoutCancel(ctx), queryID, userID, e.now().UTC()); err != nil {
		slog.Warn("failed to update saved query last_executed", "query_id", queryID, "error", err)
	}
}

// Verify interface compliance.
var (
	_ query.Executor         = (*Executor)(nil)
	_ query.SchemaProvider   = (*Executor)(nil)
	_ query.ConnectionTester = (*Executor)(nil)
)
