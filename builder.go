package rowmap

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/rowmap/rowmap/query"
	"github.com/rowmap/rowmap/query/compile"
	"github.com/rowmap/rowmap/schema"
)

// Query accumulates one SELECT statement. Structural methods return the
// receiver for chaining; the first error recorded sticks and surfaces
// when the query compiles or executes. A Query is not safe for
// concurrent use; freeze it into a Stmt to share across goroutines.
type Query struct {
	db    *DB
	spec  *query.Spec
	table *schema.Table

	args         map[string]any
	literalSlots map[any]string
	argN         int

	frozen bool
	err    error
}

// Query starts a builder rooted at the named table.
func (db *DB) Query(table string) *Query {
	q := db.QueryAny()
	t, ok := db.reg.Table(table)
	if !ok {
		q.setErr(fmt.Errorf("%w: no table %q registered", ErrUnknownField, table))
		return q
	}
	q.bindTable(t)
	return q
}

// QueryAny starts an unbound builder. The root binds to the first table
// a resolved path or attached subquery names.
func (db *DB) QueryAny() *Query {
	return &Query{
		db:           db,
		spec:         &query.Spec{},
		args:         make(map[string]any),
		literalSlots: make(map[any]string),
	}
}

// bindTable sets the root table and injects its discriminator filter.
func (q *Query) bindTable(t *schema.Table) {
	q.table = t
	q.spec.Table = t.Name
	q.spec.RootAlias = t.Name
	if t.Discriminator != nil {
		q.spec.Filters = append(q.spec.Filters, query.BinaryExpr{
			Left:  query.FieldExpr{Alias: t.Name, Column: t.Discriminator.Column},
			Op:    query.OpEq,
			Right: query.LiteralExpr{Value: t.Discriminator.Value},
		})
	}
}

// Err returns the first error recorded on the builder.
func (q *Query) Err() error { return q.err }

func (q *Query) setErr(err error) {
	if q.err == nil && err != nil {
		q.err = err
	}
}

// structural gates mutation: errors stick, frozen queries reject
// everything but rebinding and fetching.
func (q *Query) structural() bool {
	if q.err != nil {
		return false
	}
	if q.frozen {
		q.err = fmt.Errorf("%w: structure cannot change after Freeze", ErrImmutableQuery)
		return false
	}
	return true
}

// intake converts a structural argument to an expression. Strings are
// field paths; use Value for string literals.
func (q *Query) intake(v any) (query.Expr, query.OutputField, error) {
	switch x := v.(type) {
	case string:
		return q.resolvePath(x)
	case V:
		if x.err != nil {
			return nil, query.OutputField{}, x.err
		}
		out := x.out
		if out.Kind == "" {
			out.Kind = x.kind
		}
		return x.expr, out, nil
	case *CaseBuilder:
		cv := x.End()
		if cv.err != nil {
			return nil, query.OutputField{}, cv.err
		}
		return cv.expr, cv.out, nil
	}
	expr, kind, err := toExpr(v)
	return expr, query.OutputField{Kind: kind}, err
}

// Select adds one named output. The value may be a field path, a V
// expression or a literal.
func (q *Query) Select(name string, v any) *Query {
	if !q.structural() {
		return q
	}
	expr, out, err := q.intake(v)
	if err != nil {
		q.setErr(err)
		return q
	}
	out.Name = name
	q.spec.Selects = append(q.spec.Selects, query.SelectItem{
		Name:       name,
		Expr:       expr,
		Aggregated: query.HasAggregate(expr),
		Out:        out,
	})
	return q
}

// SelectFields adds outputs for several field paths at once, named
// after the path with dots replaced by double underscores.
func (q *Query) SelectFields(paths ...string) *Query {
	for _, p := range paths {
		q.Select(selectName(p), p)
	}
	return q
}

func selectName(path string) string {
	out := make([]byte, 0, len(path))
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, '_', '_')
		} else {
			out = append(out, path[i])
		}
	}
	return string(out)
}

// Filter restricts the result set. Aggregate-bearing predicates are
// routed to HAVING; plain predicates to WHERE.
func (q *Query) Filter(v any) *Query {
	if !q.structural() {
		return q
	}
	expr, _, err := q.intake(v)
	if err != nil {
		q.setErr(err)
		return q
	}
	if query.HasAggregate(expr) {
		q.spec.GroupFilters = append(q.spec.GroupFilters, expr)
	} else {
		q.spec.Filters = append(q.spec.Filters, expr)
	}
	return q
}

// Exclude is Filter with the predicate negated.
func (q *Query) Exclude(v any) *Query {
	if !q.structural() {
		return q
	}
	expr, _, err := q.intake(v)
	if err != nil {
		q.setErr(err)
		return q
	}
	return q.Filter(V{expr: query.UnaryExpr{Op: query.OpNot, Expr: expr}, kind: schema.KindBool})
}

// GroupBy adds explicit grouping expressions, suppressing implicit
// positional grouping.
func (q *Query) GroupBy(vals ...any) *Query {
	if !q.structural() {
		return q
	}
	for _, v := range vals {
		expr, _, err := q.intake(v)
		if err != nil {
			q.setErr(err)
			return q
		}
		q.spec.Groups = append(q.spec.Groups, expr)
	}
	return q
}

// SortBy adds ascending sort keys.
func (q *Query) SortBy(vals ...any) *Query { return q.sortBy(false, vals) }

// SortByDesc adds descending sort keys.
func (q *Query) SortByDesc(vals ...any) *Query { return q.sortBy(true, vals) }

func (q *Query) sortBy(desc bool, vals []any) *Query {
	if !q.structural() {
		return q
	}
	for _, v := range vals {
		expr, _, err := q.intake(v)
		if err != nil {
			q.setErr(err)
			return q
		}
		q.spec.Sorts = append(q.spec.Sorts, query.SortItem{Expr: expr, Desc: desc})
	}
	return q
}

// Distinct deduplicates result rows.
func (q *Query) Distinct() *Query {
	if !q.structural() {
		return q
	}
	q.spec.Distinct = true
	return q
}

// SetWindow restricts the result to limit rows starting at offset.
// Negative values clear the bound.
func (q *Query) SetWindow(offset, limit int) *Query {
	if !q.structural() {
		return q
	}
	q.spec.Offset, q.spec.Limit = nil, nil
	if offset >= 0 {
		q.spec.Offset = &offset
	}
	if limit >= 0 {
		q.spec.Limit = &limit
	}
	return q
}

// Chained turns the query into a recursive traversal: starting at the
// row whose idField equals start, rows are followed through nextField
// until the chain ends.
func (q *Query) Chained(idField, nextField string, start any) *Query {
	if !q.structural() {
		return q
	}
	if q.table == nil {
		q.setErr(fmt.Errorf("%w: chained traversal needs a bound table", ErrUnknownField))
		return q
	}
	id, ok := q.table.Field(idField)
	if !ok || id.InBody {
		q.setErr(fmt.Errorf("%w: %q has no column field %q", ErrUnknownField, q.table.Name, idField))
		return q
	}
	next, ok := q.table.Field(nextField)
	if !ok || next.InBody {
		q.setErr(fmt.Errorf("%w: %q has no column field %q", ErrUnknownField, q.table.Name, nextField))
		return q
	}
	// The recursion needs both link columns in the output.
	q.ensureSelected(id)
	q.ensureSelected(next)
	q.spec.Chained = &query.ChainSpec{
		IDColumn:   id.Column,
		NextColumn: next.Name,
		StartSlot:  q.argSlot(start),
	}
	return q
}

func (q *Query) ensureSelected(f *schema.Field) {
	for _, sel := range q.spec.Selects {
		if sel.Name == f.Name {
			return
		}
	}
	if len(q.spec.Selects) == 0 {
		// auto-select will cover it
		return
	}
	q.Select(f.Name, q.F(f.Name))
}

// Var declares a named rebindable parameter with an initial value and
// returns an expression referencing it.
func (q *Query) Var(name string, initial any) V {
	if q.err != nil {
		return errV(q.err)
	}
	q.args[name] = initial
	return V{expr: query.ParamExpr{Name: name}, kind: schema.KindAny}
}

// Bind sets the value of a declared parameter. Rebinding is not a
// structural change: it works before and after Freeze.
func (q *Query) Bind(name string, value any) error {
	if _, ok := q.args[name]; !ok {
		return fmt.Errorf("%w: no parameter %q declared", ErrUnknownField, name)
	}
	q.args[name] = value
	return nil
}

// Any OR-folds a list of predicates.
func Any(vals ...V) V {
	if len(vals) == 0 {
		return errV(fmt.Errorf("%w: Any needs at least one predicate", ErrTypeMismatch))
	}
	acc := vals[0]
	for _, v := range vals[1:] {
		acc = acc.Or(v)
	}
	return acc
}

// =============================================================================
// Subqueries
// =============================================================================

// WithQuery is a handle to an attached common table expression. Its
// columns are addressable in the outer query's expressions.
type WithQuery struct {
	name    string
	outputs []query.OutputField
}

// C references one output column of the subquery.
func (w *WithQuery) C(column string) V {
	kind := schema.KindAny
	for _, out := range w.outputs {
		if out.Name == column {
			kind = out.Kind
			break
		}
	}
	return V{expr: query.WithRefExpr{Name: w.name, Column: column}, kind: kind}
}

// subquery renders the handle as (SELECT * FROM name), for IN.
func (w *WithQuery) subquery() query.Expr {
	return query.SubqueryExpr{Spec: &query.Spec{
		Table:     w.name,
		RootAlias: w.name,
		Selects:   []query.SelectItem{{Expr: query.StarExpr{}}},
	}}
}

// With attaches another query as a named subquery. The subquery's
// builder-allocated parameters are renamed under the attachment name;
// user-declared parameters keep their names and must be bound on the
// outer query.
func (q *Query) With(name string, sub *Query) *WithQuery {
	return q.with(name, sub, false)
}

// WithNotMaterialized attaches a subquery the engine is asked not to
// materialize.
func (q *Query) WithNotMaterialized(name string, sub *Query) *WithQuery {
	return q.with(name, sub, true)
}

func (q *Query) with(name string, sub *Query, notMaterialized bool) *WithQuery {
	handle := &WithQuery{name: name}
	if !q.structural() {
		return handle
	}
	if err := compile.ValidateIdentifier(name); err != nil {
		q.setErr(fmt.Errorf("%w: subquery name: %v", ErrCompilation, err))
		return handle
	}
	if sub.db != q.db {
		q.setErr(fmt.Errorf("%w: subquery belongs to a different DB", ErrTypeMismatch))
		return handle
	}
	if err := sub.finalize(); err != nil {
		q.setErr(fmt.Errorf("subquery %q: %w", name, err))
		return handle
	}

	spec := sub.spec.Clone()
	rename := make(map[string]string, len(sub.args))
	for slot := range sub.args {
		if isBuilderSlot(slot) {
			rename[slot] = "_" + name + slot
		}
	}
	query.MapSpec(spec, func(e query.Expr) query.Expr {
		if p, ok := e.(query.ParamExpr); ok {
			if to, ok := rename[p.Name]; ok {
				return query.ParamExpr{Name: to}
			}
		}
		return e
	})
	if spec.Chained != nil {
		if to, ok := rename[spec.Chained.StartSlot]; ok {
			spec.Chained.StartSlot = to
		}
	}
	for slot, val := range sub.args {
		if to, ok := rename[slot]; ok {
			q.args[to] = val
		} else {
			q.args[slot] = val
		}
	}

	// Hoist nested WITH clauses to the top level.
	nested := spec.With
	spec.With = nil
	q.spec.With = append(q.spec.With, nested...)
	q.spec.With = append(q.spec.With, query.WithItem{Name: name, Spec: spec, NotMaterialized: notMaterialized})

	// An unbound query selecting from its first subquery roots there.
	if q.table == nil && q.spec.Table == "" {
		q.spec.Table = name
		q.spec.RootAlias = name
	}

	handle.outputs = spec.Outputs()
	return handle
}

// isBuilderSlot distinguishes builder-allocated literal slots from
// user-declared Var slots.
func isBuilderSlot(slot string) bool {
	return strings.HasPrefix(slot, "_arg_")
}

// =============================================================================
// Finalization and compilation
// =============================================================================

// argSlot binds a literal value to a parameter slot, reusing the slot
// of an identical value within this query.
func (q *Query) argSlot(value any) string {
	canKey := value == nil || reflect.TypeOf(value).Comparable()
	if canKey {
		if slot, ok := q.literalSlots[value]; ok {
			return slot
		}
	}
	q.argN++
	slot := fmt.Sprintf("_arg_%d", q.argN)
	q.args[slot] = value
	if canKey {
		q.literalSlots[value] = slot
	}
	return slot
}

// finalize completes the spec: default outputs, literal binding and
// aggregate promotion. It is idempotent.
func (q *Query) finalize() error {
	if q.err != nil {
		return q.err
	}

	if len(q.spec.Selects) == 0 && q.table != nil {
		for _, f := range q.table.Fields {
			if f.InBody {
				continue
			}
			q.Select(f.Name, q.F(f.Name))
		}
		if q.err != nil {
			return q.err
		}
	}

	query.MapSpec(q.spec, func(e query.Expr) query.Expr {
		if lit, ok := e.(query.LiteralExpr); ok {
			return query.ParamExpr{Name: q.argSlot(lit.Value)}
		}
		return e
	})

	// Any aggregate anywhere in the statement, a select, a sort or a
	// HAVING predicate, forces grouped form.
	q.spec.Aggregated = len(q.spec.GroupFilters) > 0
	for _, sel := range q.spec.Selects {
		if sel.Aggregated {
			q.spec.Aggregated = true
			break
		}
	}
	if !q.spec.Aggregated {
		for _, s := range q.spec.Sorts {
			if query.HasAggregate(s.Expr) {
				q.spec.Aggregated = true
				break
			}
		}
	}
	return nil
}

// compileSpec finalizes and renders the query for the DB's dialect.
func (q *Query) compileSpec() (compile.Result, error) {
	if err := q.finalize(); err != nil {
		return compile.Result{}, err
	}
	res, err := compile.NewCompiler(q.db.dialect).Compile(q.spec)
	if err != nil {
		return compile.Result{}, err
	}
	q.db.log.Debug("query compiled",
		"dialect", q.db.dialect.Name(),
		"sql", res.SQL,
		"params", res.Params,
	)
	return res, nil
}

// Describe returns the output fields the query will produce, without
// touching the database.
func (q *Query) Describe() ([]query.OutputField, error) {
	if err := q.finalize(); err != nil {
		return nil, err
	}
	return q.spec.Outputs(), nil
}

// clone snapshots the builder for derived statements. The clone shares
// no mutable state with the original.
func (q *Query) clone() *Query {
	c := &Query{
		db:           q.db,
		spec:         q.spec.Clone(),
		table:        q.table,
		args:         make(map[string]any, len(q.args)),
		literalSlots: make(map[any]string, len(q.literalSlots)),
		argN:         q.argN,
		err:          q.err,
	}
	for k, v := range q.args {
		c.args[k] = v
	}
	for k, v := range q.literalSlots {
		c.literalSlots[k] = v
	}
	return c
}
