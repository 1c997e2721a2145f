// Package schema connects to a relational database, discovers its schema and
// executes read-only statements against it.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/WessleyAI/nlq-engine/engine/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Options configures a Session.
type Options struct {
	MaxOpenConns     int
	StatementTimeout time.Duration
}

// DefaultOptions returns a pool of 10 connections and a 15s statement timeout.
func DefaultOptions() Options {
	return Options{MaxOpenConns: 10, StatementTimeout: 15 * time.Second}
}

type dialect struct {
	name       string
	driver     string
	readOnlyTx bool
	describe   func(ctx context.Context, db *sql.DB) (domain.Schema, error)
}

var (
	postgres = dialect{name: "postgres", driver: "pgx", readOnlyTx: true, describe: describePostgres}
	sqlite   = dialect{name: "sqlite", driver: "sqlite", describe: describeSQLite}
)

// resolve picks the dialect and driver DSN for a connection target.
func resolve(target string) (dialect, string, error) {
	lower := strings.ToLower(target)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return postgres, target, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return sqliteTarget(target[len("sqlite://"):])
	case strings.HasPrefix(lower, "file:"):
		return sqlite, sqliteDSN(target), nil
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return sqliteTarget(target)
	}
	return dialect{}, "", fmt.Errorf("%w: unsupported connection string", domain.ErrConnection)
}

// sqliteTarget requires the database file to exist; opening a missing path
// would silently create an empty database.
func sqliteTarget(path string) (dialect, string, error) {
	if _, err := os.Stat(path); err != nil {
		return dialect{}, "", fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	return sqlite, sqliteDSN(path), nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=query_only(1)&_pragma=busy_timeout(5000)"
}

// Session is an open, read-only connection with its discovered schema.
type Session struct {
	db      *sql.DB
	dialect dialect
	schema  domain.Schema
	timeout time.Duration
}

// Open connects to target and discovers its schema. Any failure wraps
// domain.ErrConnection.
func Open(ctx context.Context, target string, opts Options) (*Session, error) {
	if err := domain.ValidateConnectionTarget(target); err != nil {
		return nil, err
	}
	d, dsn, err := resolve(target)
	if err != nil {
		return nil, err
	}
	def := DefaultOptions()
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = def.MaxOpenConns
	}
	if opts.StatementTimeout <= 0 {
		opts.StatementTimeout = def.StatementTimeout
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w: %w", d.name, domain.ErrConnection, err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema: ping %s: %w: %w", d.name, domain.ErrConnection, err)
	}
	s, err := d.describe(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("schema: describe %s: %w: %w", d.name, domain.ErrConnection, err)
	}
	s.Dialect = d.name
	return &Session{db: db, dialect: d, schema: s, timeout: opts.StatementTimeout}, nil
}

// Describe connects to target, returns its schema and closes the connection.
func Describe(ctx context.Context, target string) (domain.Schema, error) {
	s, err := Open(ctx, target, DefaultOptions())
	if err != nil {
		return domain.Schema{}, err
	}
	defer s.Close()
	return s.Schema(), nil
}

// Schema returns the schema discovered at Open.
func (s *Session) Schema() domain.Schema { return s.schema }

// Close releases the connection pool.
func (s *Session) Close() error { return s.db.Close() }

// Execute runs stmt and returns its rows keyed by column name. Byte values
// are returned as strings. Callers are expected to have validated stmt.
func (s *Session) Execute(ctx context.Context, stmt string) ([]domain.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)
	if s.dialect.readOnlyTx {
		tx, txErr := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if txErr != nil {
			return nil, fmt.Errorf("schema: begin: %w", txErr)
		}
		defer tx.Rollback()
		rows, err = tx.QueryContext(ctx, stmt)
	} else {
		rows, err = s.db.QueryContext(ctx, stmt)
	}
	if err != nil {
		return nil, fmt.Errorf("schema: execute: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]domain.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("schema: columns: %w", err)
	}
	out := []domain.Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("schema: scan: %w", err)
		}
		row := make(domain.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema: rows: %w", err)
	}
	return out, nil
}
