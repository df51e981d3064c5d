// Package savedquery persists named query-builder configurations together
// with the SQL they last compiled to.
package savedquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/txn2/mcp-query-builder/pkg/querymodel"
	"github.com/txn2/mcp-query-builder/pkg/sqlgen"
)

// ErrNotFound is returned when a saved query does not exist or belongs to
// another user.
var ErrNotFound = errors.New("saved query not found")

// SavedQuery is a named, reloadable query model.
type SavedQuery struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	ConnectionID string            `json:"connectionId"`
	Name         string            `json:"queryName"`
	Config       querymodel.Config `json:"queryConfig"`
	GeneratedSQL string            `json:"generatedSql"`
	LastExecuted *time.Time        `json:"lastExecuted"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Compile validates q and sets GeneratedSQL from its config. A config that
// does not compile is never stored.
func (q *SavedQuery) Compile() error {
	if q.Name == "" {
		return errors.New("queryName is required")
	}
	if q.ConnectionID == "" {
		return errors.New("connectionId is required")
	}
	sql, err := sqlgen.Compile(q.Config)
	if err != nil {
		return fmt.Errorf("compiling saved query: %w", err)
	}
	q.GeneratedSQL = sql
	return nil
}

// ListFilter narrows List. An empty ConnectionID lists every query of the user.
type ListFilter struct {
	UserID       string
	ConnectionID string
	Limit        int
	Offset       int
}

// Store persists saved queries. Every read and write is scoped to a user.
type Store interface {
	Create(ctx context.Context, q *SavedQuery) error
	Get(ctx context.Context, id, userID string) (*SavedQuery, error)
	List(ctx context.Context, filter ListFilter) ([]SavedQuery, error)
	Update(ctx context.Context, q *SavedQuery) error
	Delete(ctx context.Context, id, userID string) error
	TouchLastExecuted(ctx context.Context, id, userID string, at time.Time) error
}
