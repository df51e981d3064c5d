package audit

import (
	"time"

	"github.com/google/uuid"
)

// NewEvent creates an event for sql run by userID on connectionID.
func NewEvent(userID, connectionID, sql string) *Event {
	return &Event{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		ConnectionID: connectionID,
		ExecutedSQL:  sql,
	}
}

// WithQuery links the event to a saved query.
func (e *Event) WithQuery(queryID string) *Event {
	e.QueryID = queryID
	return e
}

// WithResult marks the event successful.
func (e *Event) WithResult(rows int, durationMS int64) *Event {
	e.Success = true
	e.RowsReturned = rows
	e.ExecutionTimeMS = durationMS
	e.ErrorCategory = ""
	e.ErrorMessage = ""
	return e
}

// WithFailure marks the event failed. message must already be safe to
// show to the user.
func (e *Event) WithFailure(category, message string, durationMS int64) *Event {
	e.Success = false
	e.ErrorCategory = category
	e.ErrorMessage = message
	e.ExecutionTimeMS = durationMS
	return e
}
