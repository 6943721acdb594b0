package rowmap

import (
	"fmt"
	"sync"

	"github.com/rowmap/rowmap/query"
	"github.com/rowmap/rowmap/query/compile"
)

// Stmt is a frozen query: SQL text, parameter order and output shape
// are fixed. Only parameter values change, via Bind. Structural
// mutation is impossible by construction.
type Stmt struct {
	db      *DB
	res     compile.Result
	outputs []query.OutputField
	args    map[string]any
}

// Freeze compiles the query once and returns the frozen statement. The
// builder itself becomes immutable: structural calls after Freeze fail
// with ErrImmutableQuery.
func (q *Query) Freeze() (*Stmt, error) {
	res, err := q.compileSpec()
	if err != nil {
		return nil, err
	}
	q.frozen = true
	args := make(map[string]any, len(q.args))
	for k, v := range q.args {
		args[k] = v
	}
	return &Stmt{db: q.db, res: res, outputs: q.spec.Outputs(), args: args}, nil
}

// SQL returns the compiled statement text.
func (s *Stmt) SQL() string { return s.res.SQL }

// Params returns the parameter slot bound to each placeholder position.
func (s *Stmt) Params() []string {
	out := make([]string, len(s.res.Params))
	copy(out, s.res.Params)
	return out
}

// Describe returns the output fields without touching the database.
func (s *Stmt) Describe() []query.OutputField {
	out := make([]query.OutputField, len(s.outputs))
	copy(out, s.outputs)
	return out
}

// Bind sets a parameter value. The slot must exist in the compiled
// statement.
func (s *Stmt) Bind(name string, value any) error {
	if _, ok := s.args[name]; !ok {
		return fmt.Errorf("%w: no parameter %q in statement", ErrUnknownField, name)
	}
	s.args[name] = value
	return nil
}

// MustBind is Bind for fluent rebinding; it panics on unknown slots.
func (s *Stmt) MustBind(name string, value any) *Stmt {
	if err := s.Bind(name, value); err != nil {
		panic(err)
	}
	return s
}

// Clone snapshots the statement with its current bindings, so
// concurrent flows can rebind independently. The compiled SQL is
// shared.
func (s *Stmt) Clone() *Stmt {
	args := make(map[string]any, len(s.args))
	for k, v := range s.args {
		args[k] = v
	}
	return &Stmt{db: s.db, res: s.res, outputs: s.outputs, args: args}
}

// stmtCache holds statements frozen through Reuse, keyed by caller key.
var stmtCache sync.Map

// Reuse builds and freezes a query once per key and returns an
// independent clone of the cached statement on every call. The build
// function runs only until a statement lands in the cache.
func Reuse(key string, build func() (*Stmt, error)) (*Stmt, error) {
	if cached, ok := stmtCache.Load(key); ok {
		return cached.(*Stmt).Clone(), nil
	}
	stmt, err := build()
	if err != nil {
		return nil, err
	}
	cached, _ := stmtCache.LoadOrStore(key, stmt)
	return cached.(*Stmt).Clone(), nil
}

// ClearReuse drops every cached statement. Intended for tests.
func ClearReuse() {
	stmtCache.Range(func(k, _ any) bool {
		stmtCache.Delete(k)
		return true
	})
}
