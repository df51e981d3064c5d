package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/txn2/mcp-query-builder/pkg/auth"
	"github.com/txn2/mcp-query-builder/pkg/query"
)

// schemaQuery lists every column of the public schema with its primary key
// flag and foreign key target, ordered by table then ordinal position.
const schemaQuery = `SELECT
  c.table_name,
  c.column_name,
  c.data_type,
  (c.is_nullable = 'YES') AS nullable,
  EXISTS (
    SELECT 1
    FROM information_schema.table_constraints pk
    JOIN information_schema.key_column_usage pkc
      ON pk.constraint_name = pkc.constraint_name
     AND pk.table_schema = pkc.table_schema
    WHERE pk.constraint_type = 'PRIMARY KEY'
      AND pk.table_schema = 'public'
      AND pkc.table_name = c.table_name
      AND pkc.column_name = c.column_name
  ) AS is_primary_key,
  ccu.table_name AS ref_table,
  ccu.column_name AS ref_column
FROM information_schema.columns c
LEFT JOIN information_schema.key_column_usage kcu
  ON c.table_schema = kcu.table_schema
 AND c.table_name = kcu.table_name
 AND c.column_name = kcu.column_name
LEFT JOIN information_schema.table_constraints tc
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
 AND tc.constraint_type = 'FOREIGN KEY'
LEFT JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name
 AND tc.table_schema = ccu.table_schema
WHERE c.table_schema = 'public'
ORDER BY c.table_name, c.ordinal_position`

// FetchSchema introspects the public schema of a connection owned by the
// caller. Tables keep the order in which they are first seen.
func (e *Executor) FetchSchema(ctx context.Context, connectionID string) ([]query.Table, error) {
	uc := auth.GetUserContext(ctx)
	if uc == nil || uc.UserID == "" {
		return nil, query.ErrUnauthenticated
	}
	if connectionID == "" {
		return nil, query.ErrMissingConnection
	}

	params, err := e.resolve(ctx, connectionID, uc.UserID)
	if err != nil {
		return nil, err
	}

	db, err := e.dialer.Open(ctx, params)
	if err != nil {
		return nil, query.MapError(err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, schemaQuery)
	if err != nil {
		return nil, query.MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tables, err := foldSchema(rows)
	if err != nil {
		return nil, query.MapError(err)
	}
	return tables, nil
}

func foldSchema(rows *sql.Rows) ([]query.Table, error) {
	tables := []query.Table{}
	index := map[string]int{}

	for rows.Next() {
		var (
			table, column, dataType string
			nullable, primaryKey    bool
			refTable, refColumn     sql.NullString
		)
		if err := rows.Scan(&table, &column, &dataType, &nullable, &primaryKey, &refTable, &refColumn); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}

		col := query.Column{
			Name:         column,
			DataType:     dataType,
			Nullable:     nullable,
			IsPrimaryKey: primaryKey,
		}
		if refTable.Valid && refColumn.Valid && refTable.String != "" && refColumn.String != "" {
			col.References = &query.Reference{Table: refTable.String, Column: refColumn.String}
		}

		i, ok := index[table]
		if !ok {
			i = len(tables)
			index[table] = i
			tables = append(tables, query.Table{Name: table, Columns: []query.Column{}})
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema rows: %w", err)
	}
	return tables, nil
}

// TestConnection opens a session with unsaved credentials and runs a
// trivial probe. Failures are returned as *query.ExecutionError.
func (e *Executor) TestConnection(ctx context.Context, params query.ConnectionParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	db, err := e.dialer.Open(ctx, params)
	if err != nil {
		return query.MapError(err)
	}
	defer func() { _ = db.Close() }()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return query.MapError(err)
	}
	return nil
}
