// Package postgres executes user SQL against PostgreSQL connections saved
// in the query builder, introspects their schema and tests credentials.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/txn2/mcp-query-builder/pkg/query"
)

// DefaultSSLMode is used when DialerConfig.SSLMode is empty.
const DefaultSSLMode = "require"

// Dialer opens a database handle for a set of connection parameters. The
// caller closes the handle.
type Dialer interface {
	Open(ctx context.Context, params query.ConnectionParams) (*sql.DB, error)
}

// DialerConfig configures PQDialer.
type DialerConfig struct {
	SSLMode     string
	DialTimeout time.Duration
}

// PQDialer opens single-connection handles through lib/pq.
type PQDialer struct {
	cfg DialerConfig
}

// NewPQDialer creates a dialer backed by lib/pq.
func NewPQDialer(cfg DialerConfig) *PQDialer {
	if cfg.SSLMode == "" {
		cfg.SSLMode = DefaultSSLMode
	}
	return &PQDialer{cfg: cfg}
}

// Open builds a connector for params. No network traffic happens until the
// handle is first used.
func (d *PQDialer) Open(_ context.Context, params query.ConnectionParams) (*sql.DB, error) {
	connector, err := pq.NewConnector(d.dsn(params))
	if err != nil {
		return nil, fmt.Errorf("creating connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

func (d *PQDialer) dsn(p query.ConnectionParams) string {
	kv := [][2]string{
		{"host", p.Host},
		{"port", strconv.Itoa(p.Port)},
		{"dbname", p.DatabaseName},
		{"user", p.Username},
		{"password", p.Password},
		{"sslmode", d.cfg.SSLMode},
		{"application_name", "mcp-query-builder"},
	}
	if d.cfg.DialTimeout > 0 {
		secs := max(int(d.cfg.DialTimeout/time.Second), 1)
		kv = append(kv, [2]string{"connect_timeout", strconv.Itoa(secs)})
	}

	parts := make([]string, len(kv))
	for i, pair := range kv {
		parts[i] = pair[0] + "=" + quoteDSNValue(pair[1])
	}
	return strings.Join(parts, " ")
}

// quoteDSNValue renders a value for a key=value connection string.
func quoteDSNValue(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
