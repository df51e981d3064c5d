// Package postgres provides PostgreSQL storage for saved queries.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/txn2/mcp-query-builder/pkg/savedquery"
)

const (
	table           = "saved_queries"
	defaultPageSize = 100
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var savedQueryColumns = []string{
	"id", "user_id", "connection_id", "query_name", "query_config",
	"generated_sql", "last_executed", "created_at", "updated_at",
}

// Store implements savedquery.Store using PostgreSQL. Configs are stored
// as JSONB.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new PostgreSQL saved query store.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts q, assigning its ID and timestamps.
func (s *Store) Create(ctx context.Context, q *savedquery.SavedQuery) error {
	cfg, err := json.Marshal(q.Config)
	if err != nil {
		return fmt.Errorf("encoding query config: %w", err)
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	now := s.now()
	q.CreatedAt, q.UpdatedAt = now, now

	query, args, err := psq.Insert(table).
		Columns(savedQueryColumns...).
		Values(q.ID, q.UserID, q.ConnectionID, q.Name, cfg,
			q.GeneratedSQL, q.LastExecuted, q.CreatedAt, q.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting saved query: %w", err)
	}
	return nil
}

// Get returns the saved query with id owned by userID.
func (s *Store) Get(ctx context.Context, id, userID string) (*savedquery.SavedQuery, error) {
	query, args, err := psq.Select(savedQueryColumns...).
		From(table).
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	q, err := scanSavedQuery(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, savedquery.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading saved query: %w", err)
	}
	return q, nil
}

// List returns the user's saved queries, most recently updated first.
func (s *Store) List(ctx context.Context, filter savedquery.ListFilter) ([]savedquery.SavedQuery, error) {
	qb := psq.Select(savedQueryColumns...).
		From(table).
		Where(sq.Eq{"user_id": filter.UserID})
	if filter.ConnectionID != "" {
		qb = qb.Where(sq.Eq{"connection_id": filter.ConnectionID})
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	qb = qb.OrderBy("updated_at DESC").Limit(uint64(limit))
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying saved queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]savedquery.SavedQuery, 0, limit)
	for rows.Next() {
		q, err := scanSavedQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning saved query: %w", err)
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating saved queries: %w", err)
	}
	return out, nil
}

// Update replaces name, connection, config and generated SQL of q.
func (s *Store) Update(ctx context.Context, q *savedquery.SavedQuery) error {
	cfg, err := json.Marshal(q.Config)
	if err != nil {
		return fmt.Errorf("encoding query config: %w", err)
	}
	q.UpdatedAt = s.now()

	query, args, err := psq.Update(table).
		Set("connection_id", q.ConnectionID).
		Set("query_name", q.Name).
		Set("query_config", cfg).
		Set("generated_sql", q.GeneratedSQL).
		Set("updated_at", q.UpdatedAt).
		Where(sq.Eq{"id": q.ID, "user_id": q.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating saved query: %w", err)
	}
	return requireOneRow(res)
}

// Delete removes the saved query with id owned by userID.
func (s *Store) Delete(ctx context.Context, id, userID string) error {
	query, args, err := psq.Delete(table).
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting saved query: %w", err)
	}
	return requireOneRow(res)
}

// TouchLastExecuted records that the saved query ran at at.
func (s *Store) TouchLastExecuted(ctx context.Context, id, userID string, at time.Time) error {
	query, args, err := psq.Update(table).
		Set("last_executed", at).
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("touching saved query: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return savedquery.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSavedQuery(row scanner) (*savedquery.SavedQuery, error) {
	var (
		q            savedquery.SavedQuery
		cfg          []byte
		lastExecuted sql.NullTime
	)
	err := row.Scan(
		&q.ID, &q.UserID, &q.ConnectionID, &q.Name, &cfg,
		&q.GeneratedSQL, &lastExecuted, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &q.Config); err != nil {
			return nil, fmt.Errorf("decoding query config: %w", err)
		}
	}
	if lastExecuted.Valid {
		t := lastExecuted.Time
		q.LastExecuted = &t
	}
	return &q, nil
}

// Verify interface compliance.
var _ savedquery.Store = (*Store)(nil)
