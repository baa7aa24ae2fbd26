// Package client connects the engine to a database through database/sql. A
// Client and its transactions are query.Source implementations.
package client

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/dashing-go/dashing/query"
)

// Client is a database connection pool serving query rows.
type Client struct {
	db          *sql.DB
	provider    string
	middlewares []Middleware
	prepared    *stmtCache
}

var _ query.Source = (*Client)(nil)

// Open creates a client for a provider name (postgresql, mysql or sqlite)
// and a driver connection string.
func Open(provider string, connectionString string) (*Client, error) {
	driverName := DriverName(provider)
	if driverName == "" {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	db, err := sql.Open(driverName, connectionString)
	if err != nil {
		return nil, err
	}

	return &Client{db: db, provider: provider}, nil
}

// FromDB creates a client over an existing connection pool.
func FromDB(provider string, db *sql.DB) *Client {
	return &Client{db: db, provider: provider}
}

// DriverName maps provider names to database/sql driver names. It returns
// "" for unknown providers.
func DriverName(provider string) string {
	switch provider {
	case "postgresql", "postgres":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return ""
	}
}

// Connect verifies the connection.
func (c *Client) Connect(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes cached statements and the connection pool.
func (c *Client) Close() error {
	if c.prepared != nil {
		c.prepared.clear()
	}
	return c.db.Close()
}

// EnableStatementCache makes Rows prepare each distinct statement once and
// reuse it. It is not safe to call while the client is in use.
func (c *Client) EnableStatementCache() {
	if c.prepared == nil {
		c.prepared = &stmtCache{}
	}
}

// CachedStatements returns the number of prepared statements held.
func (c *Client) CachedStatements() int {
	if c.prepared == nil {
		return 0
	}
	return c.prepared.len()
}

// ClearStatementCache closes every cached prepared statement.
func (c *Client) ClearStatementCache() {
	if c.prepared != nil {
		c.prepared.clear()
	}
}

// DB returns the underlying connection pool.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Provider returns the provider name the client was opened with.
func (c *Client) Provider() string {
	return c.provider
}

// Rows runs a statement and returns every row it produces.
func (c *Client) Rows(ctx context.Context, statement string, args []any) ([]query.RawRow, error) {
	var out []query.RawRow
	err := runMiddlewares(ctx, c.middlewares, statement, args, func() error {
		var (
			rows *sql.Rows
			err  error
		)
		if c.prepared != nil {
			var stmt *sql.Stmt
			if stmt, err = c.prepared.get(ctx, c.db, statement); err != nil {
				return err
			}
			rows, err = stmt.QueryContext(ctx, args...)
		} else {
			rows, err = c.db.QueryContext(ctx, statement, args...)
		}
		if err != nil {
			return err
		}
		out, err = ScanRows(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, statement string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := runMiddlewares(ctx, c.middlewares, statement, args, func() error {
		var err error
		res, err = c.db.ExecContext(ctx, statement, args...)
		return err
	})
	return res, err
}
