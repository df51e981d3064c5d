package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-query-builder/pkg/connections"
	"github.com/txn2/mcp-query-builder/pkg/query"
)

var schemaColumns = []string{"table_name", "column_name", "data_type", "nullable", "is_primary_key", "ref_table", "ref_column"}

func TestFetchSchema(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery("FROM information_schema.columns c").
		WillReturnRows(sqlmock.NewRows(schemaColumns).
			AddRow("users", "id", "integer", false, true, nil, nil).
			AddRow("users", "email", "text", true, false, nil, nil).
			AddRow("orders", "id", "integer", false, true, nil, nil).
			AddRow("orders", "user_id", "integer", false, false, "users", "id").
			AddRow("orders", "note", "text", true, false, "users", nil))

	tables, err := f.exec.FetchSchema(userCtx(testUserID), testConnID)
	require.NoError(t, err)

	require.Len(t, tables, 2)
	assert.Equal(t, "users", tables[0].Name)
	assert.Equal(t, "orders", tables[1].Name)

	assert.Equal(t, query.Column{Name: "id", DataType: "integer", IsPrimaryKey: true}, tables[0].Columns[0])
	assert.True(t, tables[0].Columns[1].Nullable)

	require.Len(t, tables[1].Columns, 3)
	assert.Equal(t, &query.Reference{Table: "users", Column: "id"}, tables[1].Columns[1].References)
	assert.Nil(t, tables[1].Columns[2].References, "a half-populated reference is dropped")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFetchSchema_Empty(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("information_schema").WillReturnRows(sqlmock.NewRows(schemaColumns))

	tables, err := f.exec.FetchSchema(userCtx(testUserID), testConnID)
	require.NoError(t, err)
	assert.NotNil(t, tables)
	assert.Empty(t, tables)
}

func TestFetchSchema_Errors(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.exec.FetchSchema(context.Background(), testConnID)
		assert.ErrorIs(t, err, query.ErrUnauthenticated)
	})

	t.Run("missing connection", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.exec.FetchSchema(userCtx(testUserID), "")
		assert.ErrorIs(t, err, query.ErrMissingConnection)
	})

	t.Run("not owned", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.exec.FetchSchema(userCtx("intruder"), testConnID)
		assert.ErrorIs(t, err, connections.ErrNotFound)
		assert.Zero(t, f.dialer.calls)
	})

	t.Run("unsupported type", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.exec.FetchSchema(userCtx(testUserID), "conn-mysql")
		assert.ErrorIs(t, err, query.ErrUnsupportedDatabase)
	})

	t.Run("driver failure", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery("information_schema").
			WillReturnError(&pq.Error{Code: "28P01", Message: "password authentication failed for user \"ro\""})

		_, err := f.exec.FetchSchema(userCtx(testUserID), testConnID)
		var ee *query.ExecutionError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, query.CategoryCredentials, ee.Category)
	})
}

func TestTestConnection(t *testing.T) {
	params := query.ConnectionParams{
		Host: "db", Port: 5432, DatabaseName: "app", Username: "ro", Password: "pw",
		DatabaseType: query.DatabaseTypePostgres,
	}

	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))

		require.NoError(t, f.exec.TestConnection(context.Background(), params))
		assert.Equal(t, params, f.dialer.params)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("invalid params", func(t *testing.T) {
		f := newFixture(t)
		bad := params
		bad.Port = 0
		assert.Error(t, f.exec.TestConnection(context.Background(), bad))

		bad = params
		bad.DatabaseType = "mysql"
		assert.ErrorIs(t, f.exec.TestConnection(context.Background(), bad), query.ErrUnsupportedDatabase)
		assert.Zero(t, f.dialer.calls)
	})

	t.Run("refused", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("dial tcp: connection refused"))

		err := f.exec.TestConnection(context.Background(), params)
		var ee *query.ExecutionError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, query.CategoryConnection, ee.Category)
		assert.Equal(t, query.MsgConnection, ee.Error())
	})
}
