package rowmap

import (
	"errors"

	"github.com/rowmap/rowmap/query/compile"
)

// Sentinel errors. Resolution and typing problems surface when the
// offending expression is built or the query compiles, never during row
// iteration.
var (
	// ErrUnknownField reports a path segment that matches no declared
	// field or relation.
	ErrUnknownField = errors.New("unknown field")

	// ErrTypeMismatch reports an operand that is neither an expression
	// nor convertible to a literal, or an operator applied to a kind
	// that cannot carry it.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrAmbiguousAggregate reports an aggregate applied over an
	// expression that already aggregates.
	ErrAmbiguousAggregate = errors.New("ambiguous aggregate")

	// ErrImmutableQuery reports a structural call on a frozen query.
	ErrImmutableQuery = errors.New("query is frozen")

	// ErrNotFound reports that a single-row fetch matched nothing.
	ErrNotFound = errors.New("no rows found")

	// ErrCompilation re-exports the renderer's failure sentinel.
	ErrCompilation = compile.ErrCompilation
)
