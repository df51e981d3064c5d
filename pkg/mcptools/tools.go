// Package mcptools exposes the query builder as MCP tools: compiling
// query models, validating SQL, executing it on saved connections,
// introspecting schemas and listing saved queries.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-query-builder/pkg/auth"
	"github.com/txn2/mcp-query-builder/pkg/connections"
	"github.com/txn2/mcp-query-builder/pkg/query"
	"github.com/txn2/mcp-query-builder/pkg/querymodel"
	"github.com/txn2/mcp-query-builder/pkg/savedquery"
	"github.com/txn2/mcp-query-builder/pkg/sqlgen"
	"github.com/txn2/mcp-query-builder/pkg/sqlguard"
)

// Tool names.
const (
	ToolCompileQuery     = "compile_query"
	ToolValidateSQL      = "validate_sql"
	ToolExecuteQuery     = "execute_query"
	ToolFetchSchema      = "fetch_schema"
	ToolListSavedQueries = "list_saved_queries"
)

const defaultListLimit = 50

// Deps holds the collaborators behind the tools. Tools whose collaborator
// is nil are not registered.
type Deps struct {
	Executor       query.Executor
	Schema         query.SchemaProvider
	SavedQueries   savedquery.Store
	DefaultMaxRows int
}

// Toolset registers the query builder tools on an MCP server.
type Toolset struct {
	deps Deps
}

// New creates a Toolset.
func New(deps Deps) *Toolset {
	if deps.DefaultMaxRows <= 0 {
		deps.DefaultMaxRows = sqlguard.DefaultMaxRows
	}
	return &Toolset{deps: deps}
}

// compileQuerySchema is declared by hand so that every query model field
// stays optional for the client.
var compileQuerySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "config": {
      "type": "object",
      "description": "Query model: selectedTables, selectedColumns, whereConditions, joins, orderBy, groupBy, havingConditions, limit, offset"
    },
    "max_rows": {"type": "integer", "description": "Row cap applied during validation (1-1000)"}
  },
  "required": ["config"]
}`)

type compileInput struct {
	Config  querymodel.Config `json:"config"`
	MaxRows int               `json:"max_rows,omitempty"`
}

type compileOutput struct {
	SQL          string          `json:"sql"`
	FormattedSQL string          `json:"formatted_sql"`
	Validation   sqlguard.Result `json:"validation"`
}

type validateInput struct {
	SQL     string `json:"sql"`
	MaxRows int    `json:"max_rows,omitempty"`
}

type executeInput struct {
	ConnectionID string `json:"connection_id"`
	QueryID      string `json:"query_id,omitempty"`
	SQL          string `json:"sql"`
	TimeoutMS    int    `json:"timeout_ms,omitempty"`
	MaxRows      int    `json:"max_rows,omitempty"`
}

type fetchSchemaInput struct {
	ConnectionID string `json:"connection_id"`
}

type listSavedQueriesInput struct {
	ConnectionID string `json:"connection_id,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// Register adds the tools to server.
func (t *Toolset) Register(server *mcp.Server) {
	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}

	server.AddTool(&mcp.Tool{
		Name:        ToolCompileQuery,
		Title:       "Compile Query",
		Description: "Compile a visual query model into a PostgreSQL SELECT statement and validate it.",
		Annotations: readOnly,
		InputSchema: compileQuerySchema,
	}, t.handleCompile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolValidateSQL,
		Title:       "Validate SQL",
		Description: "Check that SQL is a single read-only SELECT and return the sanitized statement with its enforced LIMIT.",
		Annotations: readOnly,
	}, func(_ context.Context, _ *mcp.CallToolRequest, in validateInput) (*mcp.CallToolResult, any, error) {
		return jsonResult(sqlguard.Validate(in.SQL, t.maxRows(in.MaxRows)))
	})

	if t.deps.Executor != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        ToolExecuteQuery,
			Title:       "Execute Query",
			Description: "Run a SELECT statement on one of your saved PostgreSQL connections. Statements are re-validated and row-capped.",
			Annotations: readOnly,
		}, t.handleExecute)
	}

	if t.deps.Schema != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        ToolFetchSchema,
			Title:       "Fetch Schema",
			Description: "List the tables and columns of the public schema of a saved connection, with primary and foreign keys.",
			Annotations: readOnly,
		}, func(ctx context.Context, _ *mcp.CallToolRequest, in fetchSchemaInput) (*mcp.CallToolResult, any, error) {
			tables, err := t.deps.Schema.FetchSchema(ctx, in.ConnectionID)
			if err != nil {
				return errorResult(err), nil, nil
			}
			return jsonResult(map[string]any{"tables": tables})
		})
	}

	if t.deps.SavedQueries != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        ToolListSavedQueries,
			Title:       "List Saved Queries",
			Description: "List your saved queries with their query model and compiled SQL, newest first.",
			Annotations: readOnly,
		}, t.handleListSaved)
	}
}

func (t *Toolset) maxRows(requested int) int {
	if requested <= 0 {
		requested = t.deps.DefaultMaxRows
	}
	return sqlguard.ClampRows(requested)
}

func (t *Toolset) handleCompile(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in compileInput
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &in); err != nil {
			return textResult("invalid arguments: "+err.Error(), true), nil
		}
	}

	sql, err := sqlgen.Compile(in.Config)
	if err != nil {
		return errorResult(err), nil
	}

	res, _, err := jsonResult(compileOutput{
		SQL:          sql,
		FormattedSQL: sqlgen.FormatSQL(sql),
		Validation:   sqlguard.Validate(sql, t.maxRows(in.MaxRows)),
	})
	return res, err
}

func (t *Toolset) handleExecute(ctx context.Context, _ *mcp.CallToolRequest, in executeInput) (*mcp.CallToolResult, any, error) {
	result, err := t.deps.Executor.Execute(ctx, query.Request{
		ConnectionID: in.ConnectionID,
		QueryID:      in.QueryID,
		SQL:          in.SQL,
		TimeoutMS:    in.TimeoutMS,
		MaxRows:      t.maxRows(in.MaxRows),
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(result)
}

func (t *Toolset) handleListSaved(ctx context.Context, _ *mcp.CallToolRequest, in listSavedQueriesInput) (*mcp.CallToolResult, any, error) {
	uc := auth.GetUserContext(ctx)
	if uc == nil {
		return errorResult(query.ErrUnauthenticated), nil, nil
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	list, err := t.deps.SavedQueries.List(ctx, savedquery.ListFilter{
		UserID:       uc.UserID,
		ConnectionID: in.ConnectionID,
		Limit:        limit,
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	if list == nil {
		list = []savedquery.SavedQuery{}
	}
	return jsonResult(map[string]any{"queries": list})
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return textResult("Error: "+err.Error(), true), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return textResult(string(data), false), nil, nil
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

// errorResult reports err to the client without exposing internal detail.
func errorResult(err error) *mcp.CallToolResult {
	return textResult(safeMessage(err), true)
}

func safeMessage(err error) string {
	var (
		ee  *query.ExecutionError
		uie *sqlgen.UnsafeIdentifierError
		ve  *sqlguard.ValidationError
	)
	switch {
	case errors.As(err, &ee):
		return ee.Message
	case errors.As(err, &uie):
		return uie.Error()
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, query.ErrUnauthenticated):
		return "authentication required"
	case errors.Is(err, connections.ErrNotFound):
		return "Connection not found"
	case errors.Is(err, savedquery.ErrNotFound):
		return "Saved query not found"
	case errors.Is(err, query.ErrMissingConnection),
		errors.Is(err, query.ErrMissingSQL),
		errors.Is(err, query.ErrUnsupportedDatabase),
		errors.Is(err, querymodel.ErrInvalidConfig):
		return err.Error()
	}
	slog.Error("mcp tool failed", "error", err)
	return "internal error"
}
