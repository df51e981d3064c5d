//go:build integration

package migrate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:16",
		postgres.WithDatabase("querybuilder"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`SELECT EXISTS (
		SELECT FROM information_schema.tables WHERE table_name = $1
	)`, name).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := startPostgres(t)

	t.Run("Run creates every table", func(t *testing.T) {
		require.NoError(t, Run(db))
		for _, table := range []string{"database_connections", "saved_queries", "query_executions"} {
			require.True(t, tableExists(t, db, table), "%s should exist", table)
		}

		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, uint(3), version)
	})

	t.Run("Run is idempotent", func(t *testing.T) {
		require.NoError(t, Run(db))
		version, _, err := Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(3), version)
	})

	t.Run("deleting a connection removes its saved queries", func(t *testing.T) {
		_, err := db.Exec(`INSERT INTO database_connections
			(id, user_id, connection_name, host, port, database_name, username, encrypted_password)
			VALUES ('c1', 'u1', 'prod', 'db', 5432, 'app', 'ro', 'n:c')`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO saved_queries
			(id, user_id, connection_id, query_name, query_config, generated_sql)
			VALUES ('q1', 'u1', 'c1', 'all users', '{"selectedTables":["users"]}', 'SELECT * FROM "users"')`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO query_executions
			(id, user_id, query_id, connection_id, executed_sql, success)
			VALUES ('e1', 'u1', 'q1', 'c1', 'SELECT 1 LIMIT 1000', TRUE)`)
		require.NoError(t, err)

		_, err = db.Exec(`DELETE FROM database_connections WHERE id = 'c1'`)
		require.NoError(t, err)

		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM saved_queries`).Scan(&n))
		require.Zero(t, n)
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM query_executions`).Scan(&n))
		require.Equal(t, 1, n, "audit records outlive the connection")
	})

	t.Run("Down drops every table", func(t *testing.T) {
		require.NoError(t, Down(db))
		require.False(t, tableExists(t, db, "database_connections"))
		require.False(t, tableExists(t, db, "query_executions"))
	})

	t.Run("Steps applies n migrations", func(t *testing.T) {
		require.NoError(t, Steps(db, 1))
		version, _, err := Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(1), version)

		require.NoError(t, Steps(db, 2))
		version, _, err = Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(3), version)
	})
}
