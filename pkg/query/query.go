// Package query defines the execution boundary of the query builder: the
// request and result shapes, the schema model handed to clients, and the
// mapping of driver failures onto user-safe messages.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeout bounds in milliseconds. Requested timeouts are clamped into
// [MinTimeoutMS, MaxTimeoutMS].
const (
	DefaultTimeoutMS = 30000
	MinTimeoutMS     = 1000
	MaxTimeoutMS     = 30000
)

// DatabaseTypePostgres is the only database type that can be executed,
// introspected or tested.
const DatabaseTypePostgres = "postgresql"

var (
	// ErrUnauthenticated is returned when no caller identity is present.
	ErrUnauthenticated = errors.New("unauthorized")

	// ErrMissingConnection is returned when a request names no connection.
	ErrMissingConnection = errors.New("connectionId is required")

	// ErrMissingSQL is returned when a request carries no SQL text.
	ErrMissingSQL = errors.New("sql is required")

	// ErrUnsupportedDatabase is returned for connections of any type other
	// than DatabaseTypePostgres.
	ErrUnsupportedDatabase = errors.New("only PostgreSQL connections are supported")
)

// Request asks for one statement to be run on a stored connection.
type Request struct {
	ConnectionID string `json:"connectionId"`
	QueryID      string `json:"queryId,omitempty"`
	SQL          string `json:"sql"`
	TimeoutMS    int    `json:"timeoutMs,omitempty"`
	MaxRows      int    `json:"maxRows,omitempty"`
}

// Validate reports the first required field that is missing.
func (r Request) Validate() error {
	if r.ConnectionID == "" {
		return ErrMissingConnection
	}
	if r.SQL == "" {
		return ErrMissingSQL
	}
	return nil
}

// Timeout returns the clamped statement timeout of the request.
func (r Request) Timeout() time.Duration {
	return time.Duration(ClampTimeout(r.TimeoutMS)) * time.Millisecond
}

// ClampTimeout bounds a timeout in milliseconds. Zero or negative values
// fall back to DefaultTimeoutMS.
func ClampTimeout(ms int) int {
	if ms <= 0 {
		ms = DefaultTimeoutMS
	}
	return min(max(ms, MinTimeoutMS), MaxTimeoutMS)
}

// Result is the outcome of a successful execution. Rows map column names
// to values; Columns preserves the order reported by the driver.
type Result struct {
	Rows            []map[string]any `json:"rows"`
	RowCount        int              `json:"rowCount"`
	ExecutionTimeMS int64            `json:"executionTime"`
	Columns         []string         `json:"columns"`
	// Truncated is set when the statement produced more than the row cap
	// and the remainder was discarded.
	Truncated bool `json:"truncated,omitempty"`
}

// Preview summarizes r as "<rows> rows in <ms>ms".
func (r *Result) Preview() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%d rows in %dms", r.RowCount, r.ExecutionTimeMS)
}

// Reference is the target of a foreign key.
type Reference struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// Column describes one table column.
type Column struct {
	Name         string     `json:"name"`
	DataType     string     `json:"dataType"`
	Nullable     bool       `json:"nullable"`
	IsPrimaryKey bool       `json:"isPrimaryKey"`
	References   *Reference `json:"references"`
}

// Table describes one table and its columns in ordinal order.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// ConnectionParams are unsaved credentials used to test a connection.
type ConnectionParams struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	DatabaseName string `json:"databaseName"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseType string `json:"databaseType"`
}

// Validate checks that every field needed to open a session is present.
func (p ConnectionParams) Validate() error {
	if p.Host == "" || p.DatabaseName == "" || p.Username == "" {
		return errors.New("host, databaseName and username are required")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d", p.Port)
	}
	if p.DatabaseType != "" && p.DatabaseType != DatabaseTypePostgres {
		return ErrUnsupportedDatabase
	}
	return nil
}

// Executor runs validated SQL on behalf of the user found in ctx.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// SchemaProvider introspects a stored connection owned by the user in ctx.
type SchemaProvider interface {
	FetchSchema(ctx context.Context, connectionID string) ([]Table, error)
}

// ConnectionTester checks that unsaved credentials can open a session.
type ConnectionTester interface {
	TestConnection(ctx context.Context, params ConnectionParams) error
}
