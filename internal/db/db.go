// Package db opens the SQL database backing the bridge stores and applies migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/memohai/bridgebot/internal/config"
)

// Dialect names the SQL flavour of an open database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB is a *sql.DB tagged with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the database selected by cfg.Storage.Driver and verifies the connection.
func Open(ctx context.Context, cfg config.Config) (*DB, error) {
	var (
		conn    *sql.DB
		dialect Dialect
		err     error
	)
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		dialect = DialectSQLite
		conn, err = openSQLite(cfg.Storage.SQLitePath)
	case config.DriverPostgres:
		dialect = DialectPostgres
		conn, err = sql.Open("pgx", DSN(cfg.Postgres))
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", cfg.Storage.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return &DB{DB: conn, Dialect: dialect}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY between our own queries.
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// SQLiteDSN builds the modernc.org/sqlite connection string for a database file.
func SQLiteDSN(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// DSN builds a PostgreSQL connection string from config.
func DSN(cfg config.PostgresConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)
}

// Rebind rewrites '?' placeholders into the dialect's form.
func (d *DB) Rebind(query string) string {
	return Rebind(d.Dialect, query)
}

// Rebind rewrites '?' placeholders to $N for PostgreSQL and leaves SQLite queries unchanged.
func Rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
