package rowmap

import (
	"context"
	"fmt"

	"github.com/rowmap/rowmap/query"
	"github.com/rowmap/rowmap/query/compile"
)

// positionalArgs maps the compiled placeholder order to driver values.
func positionalArgs(res compile.Result, args map[string]any) ([]any, error) {
	out := make([]any, len(res.Params))
	for i, slot := range res.Params {
		val, ok := args[slot]
		if !ok {
			return nil, fmt.Errorf("%w: parameter %q is unbound", ErrUnknownField, slot)
		}
		out[i] = val
	}
	return out, nil
}

// run executes a compiled statement and wraps the driver rows.
func (db *DB) run(ctx context.Context, res compile.Result, args map[string]any, outputs []query.OutputField) (*Rows, error) {
	vals, err := positionalArgs(res, args)
	if err != nil {
		return nil, err
	}
	db.log.Debug("executing query", "sql", res.SQL, "args", len(vals))
	rows, err := db.q.QueryContext(ctx, res.SQL, vals...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &Rows{db: db, rows: rows, outputs: outputs}, nil
}

func (q *Query) rows(ctx context.Context) (*Rows, error) {
	res, err := q.compileSpec()
	if err != nil {
		return nil, err
	}
	return q.db.run(ctx, res, q.args, q.spec.Outputs())
}

func (s *Stmt) rows(ctx context.Context) (*Rows, error) {
	return s.db.run(ctx, s.res, s.args, s.outputs)
}

// =============================================================================
// Shared fetch helpers
// =============================================================================

func fetchAll(rows *Rows, err error) ([]*Row, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Row
	for rows.Next() {
		r, err := rows.Row()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func fetchOne(rows *Rows, err error) (*Row, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return rows.Row()
}

func fetchValue(rows *Rows, err error) (any, error) {
	r, err := fetchOne(rows, err)
	if err != nil {
		return nil, err
	}
	if r.Len() == 0 {
		return nil, fmt.Errorf("%w: query has no outputs", ErrUnknownField)
	}
	return r.ByIndex(0), nil
}

func fetchList(rows *Rows, err error, name string) ([]any, error) {
	all, err := fetchAll(rows, err)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(all))
	for _, r := range all {
		if name == "" {
			out = append(out, r.ByIndex(0))
			continue
		}
		v, ok := r.ByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: no output column %q", ErrUnknownField, name)
		}
		out = append(out, v)
	}
	return out, nil
}

func exists(rows *Rows, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	defer rows.Close()
	if rows.Next() {
		return true, nil
	}
	return false, rows.Err()
}

func execute(rows *Rows, err error, fn func(*Row) error) error {
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		r, err := rows.Row()
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// =============================================================================
// Query fetch surface
// =============================================================================

// FetchAll runs the query and materializes every row.
func (q *Query) FetchAll(ctx context.Context) ([]*Row, error) {
	r, err := q.rows(ctx)
	return fetchAll(r, err)
}

// FetchOne returns the first row. Zero rows is ErrNotFound.
func (q *Query) FetchOne(ctx context.Context) (*Row, error) {
	r, err := q.rows(ctx)
	return fetchOne(r, err)
}

// FetchValue returns the first output of the first row.
func (q *Query) FetchValue(ctx context.Context) (any, error) {
	r, err := q.rows(ctx)
	return fetchValue(r, err)
}

// FetchList returns one output column across all rows. An empty name
// selects the first output.
func (q *Query) FetchList(ctx context.Context, name string) ([]any, error) {
	r, err := q.rows(ctx)
	return fetchList(r, err, name)
}

// Exists reports whether the query matches at least one row.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	c := q.clone()
	c.spec.Sorts = nil
	one := 1
	c.spec.Offset, c.spec.Limit = nil, &one
	r, err := c.rows(ctx)
	return exists(r, err)
}

// Execute streams rows through fn without holding the full result set.
func (q *Query) Execute(ctx context.Context, fn func(*Row) error) error {
	r, err := q.rows(ctx)
	return execute(r, err, fn)
}

// =============================================================================
// Aggregate shortcuts
// =============================================================================

// fetchAggregate evaluates a single aggregate over the query's filtered
// row set, discarding outputs, sorting and windowing.
func (q *Query) fetchAggregate(ctx context.Context, name string, build func(*Query) V) (any, error) {
	c := q.clone()
	c.spec.Selects = nil
	c.spec.Sorts = nil
	c.spec.Groups = nil
	c.spec.Distinct = false
	c.spec.Offset, c.spec.Limit = nil, nil
	c.Select(name, build(c))
	return c.FetchValue(ctx)
}

// FetchCount counts the matching rows.
func (q *Query) FetchCount(ctx context.Context) (int64, error) {
	v, err := q.fetchAggregate(ctx, "count", func(*Query) V { return CountAll() })
	if err != nil {
		return 0, err
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, fmt.Errorf("%w: count returned %T", ErrTypeMismatch, v)
	}
	return n, nil
}

// FetchSum sums the field across matching rows; an empty set sums to
// zero.
func (q *Query) FetchSum(ctx context.Context, path string) (any, error) {
	return q.fetchAggregate(ctx, "sum", func(c *Query) V {
		v := c.F(path).Sum()
		if v.err != nil {
			return v
		}
		return V{
			expr: query.FuncExpr{Name: "coalesce", Args: []query.Expr{v.expr, query.LiteralExpr{Value: 0}}},
			kind: v.kind,
		}
	})
}

// FetchAvg averages the field; nil for an empty set.
func (q *Query) FetchAvg(ctx context.Context, path string) (any, error) {
	return q.fetchAggregate(ctx, "avg", func(c *Query) V { return c.F(path).Avg() })
}

// FetchMin returns the minimum field value; nil for an empty set.
func (q *Query) FetchMin(ctx context.Context, path string) (any, error) {
	return q.fetchAggregate(ctx, "min", func(c *Query) V { return c.F(path).Min() })
}

// FetchMax returns the maximum field value; nil for an empty set.
func (q *Query) FetchMax(ctx context.Context, path string) (any, error) {
	return q.fetchAggregate(ctx, "max", func(c *Query) V { return c.F(path).Max() })
}

// =============================================================================
// Stmt fetch surface
// =============================================================================

// FetchAll runs the frozen statement and materializes every row.
func (s *Stmt) FetchAll(ctx context.Context) ([]*Row, error) {
	r, err := s.rows(ctx)
	return fetchAll(r, err)
}

// FetchOne returns the first row. Zero rows is ErrNotFound.
func (s *Stmt) FetchOne(ctx context.Context) (*Row, error) {
	r, err := s.rows(ctx)
	return fetchOne(r, err)
}

// FetchValue returns the first output of the first row.
func (s *Stmt) FetchValue(ctx context.Context) (any, error) {
	r, err := s.rows(ctx)
	return fetchValue(r, err)
}

// FetchList returns one output column across all rows.
func (s *Stmt) FetchList(ctx context.Context, name string) ([]any, error) {
	r, err := s.rows(ctx)
	return fetchList(r, err, name)
}

// Exists reports whether the statement matches at least one row.
func (s *Stmt) Exists(ctx context.Context) (bool, error) {
	r, err := s.rows(ctx)
	return exists(r, err)
}

// Execute streams rows through fn.
func (s *Stmt) Execute(ctx context.Context, fn func(*Row) error) error {
	r, err := s.rows(ctx)
	return execute(r, err, fn)
}
