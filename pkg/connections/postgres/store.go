// Package postgres provides PostgreSQL storage for saved connections.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/txn2/mcp-query-builder/pkg/connections"
)

const table = "database_connections"

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var connectionColumns = []string{
	"id", "user_id", "connection_name", "host", "port", "database_name",
	"username", "encrypted_password", "database_type", "is_active",
	"created_at", "updated_at",
}

// Store implements connections.Store using PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new PostgreSQL connection store.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts c, assigning its ID and timestamps.
func (s *Store) Create(ctx context.Context, c *connections.Connection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now

	query, args, err := psq.Insert(table).
		Columns(connectionColumns...).
		Values(c.ID, c.UserID, c.Name, c.Host, c.Port, c.DatabaseName,
			c.Username, c.EncryptedPassword, c.DatabaseType, c.IsActive,
			c.CreatedAt, c.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting connection: %w", err)
	}
	return nil
}

// Get returns the connection with id owned by userID.
func (s *Store) Get(ctx context.Context, id, userID string) (*connections.Connection, error) {
	query, args, err := psq.Select(connectionColumns...).
		From(table).
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	c, err := scanConnection(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, connections.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}
	return c, nil
}

// List returns the user's connections, most recently created first.
func (s *Store) List(ctx context.Context, userID string) ([]connections.Connection, error) {
	query, args, err := psq.Select(connectionColumns...).
		From(table).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []connections.Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connections: %w", err)
	}
	return out, nil
}

// Update writes the editable fields of c. The stored password is kept when
// c.EncryptedPassword is empty.
func (s *Store) Update(ctx context.Context, c *connections.Connection) error {
	c.UpdatedAt = s.now()

	qb := psq.Update(table).
		Set("connection_name", c.Name).
		Set("host", c.Host).
		Set("port", c.Port).
		Set("database_name", c.DatabaseName).
		Set("username", c.Username).
		Set("database_type", c.DatabaseType).
		Set("is_active", c.IsActive).
		Set("updated_at", c.UpdatedAt)
	if c.EncryptedPassword != "" {
		qb = qb.Set("encrypted_password", c.EncryptedPassword)
	}

	query, args, err := qb.Where(sq.Eq{"id": c.ID, "user_id": c.UserID}).ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating connection: %w", err)
	}
	return requireOneRow(res)
}

// Delete removes the connection with id owned by userID.
func (s *Store) Delete(ctx context.Context, id, userID string) error {
	query, args, err := psq.Delete(table).
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return connections.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (*connections.Connection, error) {
	var c connections.Connection
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &c.Host, &c.Port, &c.DatabaseName,
		&c.Username, &c.EncryptedPassword, &c.DatabaseType, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}
	return &c, nil
}

// Verify interface compliance.
var _ connections.Store = (*Store)(nil)
