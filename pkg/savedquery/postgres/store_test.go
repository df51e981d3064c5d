package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-query-builder/pkg/querymodel"
	"github.com/txn2/mcp-query-builder/pkg/savedquery"
)

const (
	testUserID  = "user-1"
	testQueryID = "q-1"
	testConfig  = `{"selectedTables":["users"],"selectedColumns":null,"whereConditions":null,"joins":null,"orderBy":null,"groupBy":null,"havingConditions":null,"limit":10,"offset":null}`
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func TestStore_Create(t *testing.T) {
	s, mock := newTestStore(t)

	q := &savedquery.SavedQuery{
		UserID: testUserID, ConnectionID: "c1", Name: "recent users",
		Config:       querymodel.Config{SelectedTables: []string{"users"}, Limit: querymodel.IntPtr(10)},
		GeneratedSQL: `SELECT * FROM "users" LIMIT 10`,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO saved_queries (id,user_id,connection_id,query_name,query_config,generated_sql,last_executed,created_at,updated_at)")).
		WithArgs(sqlmock.AnyArg(), testUserID, "c1", "recent users", []byte(testConfig), q.GeneratedSQL, nil, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Create(context.Background(), q))
	assert.NotEmpty(t, q.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get(t *testing.T) {
	s, mock := newTestStore(t)
	executed := fixedNow.Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM saved_queries WHERE id = $1 AND user_id = $2")).
		WithArgs(testQueryID, testUserID).
		WillReturnRows(sqlmock.NewRows(savedQueryColumns).
			AddRow(testQueryID, testUserID, "c1", "recent users", []byte(testConfig), "SELECT 1", executed, fixedNow, fixedNow))

	q, err := s.Get(context.Background(), testQueryID, testUserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, q.Config.SelectedTables)
	require.NotNil(t, q.Config.Limit)
	assert.Equal(t, 10, *q.Config.Limit)
	require.NotNil(t, q.LastExecuted)
	assert.Equal(t, executed, *q.LastExecuted)
}

func TestStore_Get_NotFound(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("FROM saved_queries").WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), testQueryID, "someone-else")
	assert.ErrorIs(t, err, savedquery.ErrNotFound)
}

func TestStore_Get_CorruptConfig(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("FROM saved_queries").
		WillReturnRows(sqlmock.NewRows(savedQueryColumns).
			AddRow(testQueryID, testUserID, "c1", "n", []byte("{not json"), "", nil, fixedNow, fixedNow))

	_, err := s.Get(context.Background(), testQueryID, testUserID)
	assert.ErrorContains(t, err, "decoding query config")
}

func TestStore_List(t *testing.T) {
	tests := []struct {
		name   string
		filter savedquery.ListFilter
		sql    string
		args   []driver.Value
	}{
		{
			name:   "all of user with default page",
			filter: savedquery.ListFilter{UserID: testUserID},
			sql:    "FROM saved_queries WHERE user_id = $1 ORDER BY updated_at DESC LIMIT 100",
			args:   []driver.Value{testUserID},
		},
		{
			name:   "by connection with paging",
			filter: savedquery.ListFilter{UserID: testUserID, ConnectionID: "c1", Limit: 5, Offset: 10},
			sql:    "FROM saved_queries WHERE user_id = $1 AND connection_id = $2 ORDER BY updated_at DESC LIMIT 5 OFFSET 10",
			args:   []driver.Value{testUserID, "c1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newTestStore(t)
			mock.ExpectQuery(regexp.QuoteMeta(tt.sql)).
				WithArgs(tt.args...).
				WillReturnRows(sqlmock.NewRows(savedQueryColumns).
					AddRow(testQueryID, testUserID, "c1", "n", []byte(testConfig), "", nil, fixedNow, fixedNow))

			list, err := s.List(context.Background(), tt.filter)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Nil(t, list[0].LastExecuted)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_Update(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE saved_queries SET connection_id = $1, query_name = $2, query_config = $3, generated_sql = $4, updated_at = $5 WHERE id = $6 AND user_id = $7")).
		WithArgs("c2", "renamed", []byte(testConfig), "SELECT 2", fixedNow, testQueryID, testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Update(context.Background(), &savedquery.SavedQuery{
		ID: testQueryID, UserID: testUserID, ConnectionID: "c2", Name: "renamed",
		Config:       querymodel.Config{SelectedTables: []string{"users"}, Limit: querymodel.IntPtr(10)},
		GeneratedSQL: "SELECT 2",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Update_NotFound(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec("UPDATE saved_queries").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Update(context.Background(), &savedquery.SavedQuery{ID: testQueryID, UserID: "x"})
	assert.ErrorIs(t, err, savedquery.ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM saved_queries WHERE id = $1 AND user_id = $2")).
		WithArgs(testQueryID, testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Delete(context.Background(), testQueryID, testUserID))
}

func TestStore_TouchLastExecuted(t *testing.T) {
	s, mock := newTestStore(t)
	at := fixedNow.Add(time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE saved_queries SET last_executed = $1 WHERE id = $2 AND user_id = $3")).
		WithArgs(at, testQueryID, testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.TouchLastExecuted(context.Background(), testQueryID, testUserID, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
