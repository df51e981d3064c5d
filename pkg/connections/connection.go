// Package connections manages the database connection records users save
// and the cipher protecting their passwords.
package connections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/txn2/mcp-query-builder/pkg/query"
)

// ErrNotFound is returned when a connection does not exist or belongs to
// another user. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("connection not found")

// Supported values of Connection.DatabaseType.
const (
	TypePostgres = query.DatabaseTypePostgres
	TypeMySQL    = "mysql"
)

// Connection is a saved set of credentials owned by one user.
type Connection struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Name              string    `json:"connectionName"`
	Host              string    `json:"host"`
	Port              int       `json:"port"`
	DatabaseName      string    `json:"databaseName"`
	Username          string    `json:"username"`
	EncryptedPassword string    `json:"-"`
	DatabaseType      string    `json:"databaseType"`
	IsActive          bool      `json:"isActive"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Validate checks the fields a record needs before it is stored.
func (c *Connection) Validate() error {
	switch {
	case c.Name == "":
		return errors.New("connectionName is required")
	case c.Host == "" || c.DatabaseName == "" || c.Username == "":
		return errors.New("host, databaseName and username are required")
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.DatabaseType != TypePostgres && c.DatabaseType != TypeMySQL:
		return fmt.Errorf("unsupported database type %q", c.DatabaseType)
	}
	return nil
}

// Params decrypts the stored password and returns the parameters needed to
// open a session. Only PostgreSQL connections can be opened.
func (c *Connection) Params(cipher *Cipher) (query.ConnectionParams, error) {
	if c.DatabaseType != TypePostgres {
		return query.ConnectionParams{}, query.ErrUnsupportedDatabase
	}
	password, err := cipher.Decrypt(c.EncryptedPassword)
	if err != nil {
		return query.ConnectionParams{}, fmt.Errorf("decrypting password: %w", err)
	}
	return query.ConnectionParams{
		Host:         c.Host,
		Port:         c.Port,
		DatabaseName: c.DatabaseName,
		Username:     c.Username,
		Password:     password,
		DatabaseType: c.DatabaseType,
	}, nil
}

// Store persists connections. Every read and write is scoped to a user.
type Store interface {
	Create(ctx context.Context, c *Connection) error
	Get(ctx context.Context, id, userID string) (*Connection, error)
	List(ctx context.Context, userID string) ([]Connection, error)
	// Update replaces the editable fields. An empty EncryptedPassword keeps
	// the stored one.
	Update(ctx context.Context, c *Connection) error
	Delete(ctx context.Context, id, userID string) error
}
