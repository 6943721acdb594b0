package compile

import (
	"fmt"
	"strings"

	"github.com/rowmap/rowmap/query"
)

// Dialect defines the SQL dialect-specific behavior for compilation:
// identifier quoting, placeholders, literals and the handful of
// operators whose spelling differs between engines.
type Dialect interface {
	// Name returns the dialect name for debugging/logging.
	Name() string

	// QuoteIdentifier quotes a table name, column name or alias.
	QuoteIdentifier(name string) string

	// Placeholder returns the parameter placeholder for the given
	// 1-based index. Postgres uses $1, $2; MySQL and SQLite use ?.
	Placeholder(index int) string

	// ReusePlaceholders reports whether one placeholder may appear
	// several times for the same parameter slot. True for numbered
	// placeholders, false for bare ?.
	ReusePlaceholders() bool

	// BoolLiteral returns the SQL literal for a boolean value.
	BoolLiteral(val bool) string

	// BinaryOpSQL returns the dialect spelling of a binary operator,
	// or an error when the dialect cannot express it.
	BinaryOpSQL(op query.BinaryOp) (string, error)

	// PowAsFunc reports whether exponentiation renders as a function
	// call instead of an infix operator.
	PowAsFunc() (name string, asFunc bool)

	// ConcatAsFunc reports whether string concatenation renders as a
	// function call instead of ||.
	ConcatAsFunc() (name string, asFunc bool)

	// WriteJSONField writes extraction of a document property. docSQL
	// is the already-rendered document expression.
	WriteJSONField(b *strings.Builder, docSQL, key string)

	// CastType maps a semantic kind name to the dialect column type
	// used in casts.
	CastType(kind string) (string, error)

	// NoLimit returns the LIMIT value emitted when a query has an
	// OFFSET but no LIMIT, or "" when the dialect allows a bare
	// OFFSET.
	NoLimit() string

	// LikeEscape returns the ESCAPE clause appended to every LIKE,
	// declaring backslash as the escape character in the dialect's
	// string-literal spelling.
	LikeEscape() string

	// WriteCast writes a type cast of the already-rendered exprSQL.
	WriteCast(b *strings.Builder, exprSQL, sqlType string)
}

// =============================================================================
// Postgres
// =============================================================================

// PostgresDialect implements Dialect for PostgreSQL. It is the primary
// dialect: the operator contract (^ for exponentiation, # for bitwise
// xor, ->> for document extraction) is defined in its terms.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) ReusePlaceholders() bool { return true }

func (d *PostgresDialect) BoolLiteral(val bool) string {
	if val {
		return "TRUE"
	}
	return "FALSE"
}

func (d *PostgresDialect) BinaryOpSQL(op query.BinaryOp) (string, error) {
	return string(op), nil
}

func (d *PostgresDialect) PowAsFunc() (string, bool) { return "", false }

func (d *PostgresDialect) ConcatAsFunc() (string, bool) { return "", false }

func (d *PostgresDialect) WriteJSONField(b *strings.Builder, docSQL, key string) {
	b.WriteString(docSQL)
	b.WriteString("->>")
	b.WriteString(quoteStringLiteral(key))
}

func (d *PostgresDialect) CastType(kind string) (string, error) {
	return pgCastType(kind)
}

func (d *PostgresDialect) NoLimit() string { return "" }

func (d *PostgresDialect) LikeEscape() string { return ` ESCAPE '\'` }

func (d *PostgresDialect) WriteCast(b *strings.Builder, exprSQL, sqlType string) {
	b.WriteString("(")
	b.WriteString(exprSQL)
	b.WriteString(")::")
	b.WriteString(sqlType)
}

func pgCastType(kind string) (string, error) {
	switch kind {
	case "int":
		return "integer", nil
	case "float":
		return "double precision", nil
	case "string":
		return "text", nil
	case "bool":
		return "boolean", nil
	case "time":
		return "timestamp", nil
	case "date":
		return "date", nil
	case "uuid":
		return "uuid", nil
	case "json":
		return "jsonb", nil
	case "interval":
		return "interval", nil
	case "bytes":
		return "bytea", nil
	}
	return "", fmt.Errorf("no cast type for kind %q", kind)
}

// =============================================================================
// MySQL
// =============================================================================

// MySQLDialect implements Dialect for MySQL.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string { return "mysql" }

func (d *MySQLDialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

func (d *MySQLDialect) Placeholder(index int) string { return "?" }

func (d *MySQLDialect) ReusePlaceholders() bool { return false }

func (d *MySQLDialect) BoolLiteral(val bool) string {
	if val {
		return "1"
	}
	return "0"
}

func (d *MySQLDialect) BinaryOpSQL(op query.BinaryOp) (string, error) {
	switch op {
	case query.OpBitXor:
		return "^", nil
	case query.OpPow:
		// handled by PowAsFunc
		return "", fmt.Errorf("mysql renders exponentiation as POW()")
	case query.OpConcat:
		// handled by ConcatAsFunc
		return "", fmt.Errorf("mysql renders concatenation as CONCAT()")
	}
	return string(op), nil
}

func (d *MySQLDialect) PowAsFunc() (string, bool) { return "POW", true }

func (d *MySQLDialect) ConcatAsFunc() (string, bool) { return "CONCAT", true }

func (d *MySQLDialect) WriteJSONField(b *strings.Builder, docSQL, key string) {
	b.WriteString("JSON_UNQUOTE(JSON_EXTRACT(")
	b.WriteString(docSQL)
	b.WriteString(", ")
	b.WriteString(quoteStringLiteral("$." + key))
	b.WriteString("))")
}

func (d *MySQLDialect) CastType(kind string) (string, error) {
	switch kind {
	case "int":
		return "SIGNED", nil
	case "float":
		return "DOUBLE", nil
	case "string":
		return "CHAR", nil
	case "bool":
		return "SIGNED", nil
	case "time":
		return "DATETIME", nil
	case "date":
		return "DATE", nil
	case "json":
		return "JSON", nil
	case "bytes":
		return "BINARY", nil
	}
	return "", fmt.Errorf("no cast type for kind %q", kind)
}

// MySQL has no way to say "offset without limit".
func (d *MySQLDialect) NoLimit() string { return "18446744073709551615" }

// Backslash doubles because it escapes inside MySQL string literals.
func (d *MySQLDialect) LikeEscape() string { return ` ESCAPE '\\'` }

func (d *MySQLDialect) WriteCast(b *strings.Builder, exprSQL, sqlType string) {
	b.WriteString("CAST(")
	b.WriteString(exprSQL)
	b.WriteString(" AS ")
	b.WriteString(sqlType)
	b.WriteString(")")
}

// =============================================================================
// SQLite
// =============================================================================

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

func (d *SQLiteDialect) Placeholder(index int) string { return "?" }

func (d *SQLiteDialect) ReusePlaceholders() bool { return false }

func (d *SQLiteDialect) BoolLiteral(val bool) string {
	if val {
		return "1"
	}
	return "0"
}

func (d *SQLiteDialect) BinaryOpSQL(op query.BinaryOp) (string, error) {
	switch op {
	case query.OpBitXor:
		return "", fmt.Errorf("sqlite has no bitwise xor operator")
	case query.OpPow:
		return "", fmt.Errorf("sqlite renders exponentiation as pow()")
	}
	return string(op), nil
}

func (d *SQLiteDialect) PowAsFunc() (string, bool) { return "pow", true }

func (d *SQLiteDialect) ConcatAsFunc() (string, bool) { return "", false }

func (d *SQLiteDialect) WriteJSONField(b *strings.Builder, docSQL, key string) {
	b.WriteString("json_extract(")
	b.WriteString(docSQL)
	b.WriteString(", ")
	b.WriteString(quoteStringLiteral("$." + key))
	b.WriteString(")")
}

func (d *SQLiteDialect) CastType(kind string) (string, error) {
	switch kind {
	case "int", "bool":
		return "INTEGER", nil
	case "float":
		return "REAL", nil
	case "string", "time", "date", "uuid", "json":
		return "TEXT", nil
	case "bytes":
		return "BLOB", nil
	}
	return "", fmt.Errorf("no cast type for kind %q", kind)
}

func (d *SQLiteDialect) NoLimit() string { return "-1" }

func (d *SQLiteDialect) LikeEscape() string { return ` ESCAPE '\'` }

func (d *SQLiteDialect) WriteCast(b *strings.Builder, exprSQL, sqlType string) {
	b.WriteString("CAST(")
	b.WriteString(exprSQL)
	b.WriteString(" AS ")
	b.WriteString(sqlType)
	b.WriteString(")")
}

// quoteStringLiteral renders a single-quoted SQL string literal. It is
// used only for JSON path keys, which the resolver has already vetted
// as plain identifiers; values always travel as parameters.
func quoteStringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// =============================================================================
// Dialect singletons
// =============================================================================

var (
	// Postgres is the singleton PostgreSQL dialect.
	Postgres Dialect = &PostgresDialect{}

	// MySQL is the singleton MySQL dialect.
	MySQL Dialect = &MySQLDialect{}

	// SQLite is the singleton SQLite dialect.
	SQLite Dialect = &SQLiteDialect{}
)

// ByName returns the dialect registered under name.
func ByName(name string) (Dialect, error) {
	switch name {
	case "postgres":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite":
		return SQLite, nil
	}
	return nil, fmt.Errorf("unknown dialect %q", name)
}
