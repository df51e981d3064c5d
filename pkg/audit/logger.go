// Package audit records every query execution: who ran what SQL on which
// connection, how many rows came back, how long it took and whether it
// failed.
package audit

import (
	"context"
	"time"
)

// Logger defines the interface for audit logging.
type Logger interface {
	// Log records an execution event.
	Log(ctx context.Context, event Event) error

	// Query retrieves events matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int, error)

	// Close releases resources.
	Close() error
}

// Event is one query execution.
type Event struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	UserID          string    `json:"userId"`
	QueryID         string    `json:"queryId,omitempty"`
	ConnectionID    string    `json:"connectionId"`
	ExecutedSQL     string    `json:"executedSql"`
	RowsReturned    int       `json:"rowsReturned"`
	ExecutionTimeMS int64     `json:"executionTimeMs"`
	Success         bool      `json:"success"`
	ErrorCategory   string    `json:"errorCategory,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
}

// QueryFilter defines criteria for querying audit events.
type QueryFilter struct {
	StartTime    *time.Time
	EndTime      *time.Time
	UserID       string
	ConnectionID string
	QueryID      string
	Success      *bool
	Limit        int
	Offset       int
}

// Config configures audit logging.
type Config struct {
	Enabled         bool
	RetentionDays   int
	CleanupInterval time.Duration
}

// NoopLogger discards events. It is used when auditing is disabled.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(context.Context, Event) error { return nil }

// Query returns no events.
func (NoopLogger) Query(context.Context, QueryFilter) ([]Event, error) { return []Event{}, nil }

// Count returns zero.
func (NoopLogger) Count(context.Context, QueryFilter) (int, error) { return 0, nil }

// Close does nothing.
func (NoopLogger) Close() error { return nil }

var _ Logger = NoopLogger{}
