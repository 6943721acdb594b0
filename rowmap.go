// Package rowmap maps declared record schemas to SQL. Queries are
// composed with a fluent builder, compile deterministically into one
// parameterized statement per dialect, execute through a narrow Querier
// interface and materialize rows back into maps, scalars or structs.
package rowmap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/rowmap/rowmap/dburl"
	"github.com/rowmap/rowmap/query/compile"
	"github.com/rowmap/rowmap/schema"
)

// Querier is the interface for executing queries.
// Both *sql.DB and *sql.Tx implement this interface.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Compile-time checks that *sql.DB and *sql.Tx implement Querier
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// DB couples a connection, a dialect and a schema registry. All SQL
// rendering targets the DB's dialect; pass the same registry to every
// DB that shares a schema.
type DB struct {
	q       Querier
	dialect compile.Dialect
	reg     *schema.Registry
	log     *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger. Compiled SQL is logged at Debug level.
func WithLogger(log *slog.Logger) Option {
	return func(db *DB) { db.log = log }
}

// NewDB wraps an existing connection. dialect is "postgres", "mysql" or
// "sqlite".
func NewDB(q Querier, dialect string, reg *schema.Registry, opts ...Option) (*DB, error) {
	d, err := compile.ByName(dialect)
	if err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("schema registry: %w", err)
	}
	db := &DB{q: q, dialect: d, reg: reg, log: slog.Default()}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Open connects using a database URL. The scheme selects both the
// dialect and the driver: postgres:// uses pgx, mysql:// uses
// go-sql-driver, sqlite: uses modernc.
func Open(dbURL string, reg *schema.Registry, opts ...Option) (*DB, error) {
	driver, dsn, err := dburl.DriverDSN(dbURL)
	if err != nil {
		return nil, err
	}
	dialect, err := dburl.InferDialectFromDBUrl(dbURL)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	return NewDB(conn, dialect, reg, opts...)
}

// WithTx returns a DB bound to the given transaction. Dialect, registry
// and logger carry over.
func (db *DB) WithTx(tx *sql.Tx) *DB {
	return &DB{q: tx, dialect: db.dialect, reg: db.reg, log: db.log}
}

// Conn returns the underlying Querier.
func (db *DB) Conn() Querier { return db.q }

// Dialect returns the dialect name.
func (db *DB) Dialect() string { return db.dialect.Name() }

// Registry returns the schema registry.
func (db *DB) Registry() *schema.Registry { return db.reg }
