package compile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rowmap/rowmap/query"
)

// ErrCompilation wraps every error returned from Compile, so callers
// can distinguish rendering failures from execution failures with one
// errors.Is check.
var ErrCompilation = errors.New("query compilation failed")

// chainTable is the recursive CTE name used for chained traversals.
const chainTable = "_chain"

// Result is a compiled query: the SQL text and the parameter slot name
// bound to each placeholder position, in order. With dialects that
// repeat ? per occurrence, the same slot name may appear several times.
type Result struct {
	SQL    string
	Params []string
}

// chain rendering modes for recursive traversals
const (
	chainNone = iota
	chainSeed // anchor branch: filter on the start value
	chainStep // recursive branch: join against the accumulated CTE
)

// Compiler renders a query spec to SQL for one dialect. A Compiler is
// single-use per Compile call; it is cheap to construct.
type Compiler struct {
	dialect Dialect

	params []string
	// slots maps a parameter slot to its placeholder index, for
	// dialects whose placeholders are numbered and reusable.
	slots map[string]int
}

// NewCompiler creates a compiler for the given dialect.
func NewCompiler(dialect Dialect) *Compiler {
	return &Compiler{dialect: dialect}
}

// Compile renders the spec. The spec is not mutated; the same spec may
// be compiled for several dialects.
func (c *Compiler) Compile(spec *query.Spec) (Result, error) {
	if err := ValidateSpec(spec); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCompilation, err)
	}

	c.params = nil
	c.slots = make(map[string]int)

	var b strings.Builder
	if err := c.compileRoot(spec, &b); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCompilation, err)
	}
	return Result{SQL: b.String(), Params: c.params}, nil
}

// compileRoot handles the statement-level shape: the WITH clause, the
// recursive chain wrapper, then the plain SELECT.
func (c *Compiler) compileRoot(spec *query.Spec, b *strings.Builder) error {
	if spec.Chained != nil {
		return c.compileChained(spec, b)
	}
	if len(spec.With) > 0 {
		if err := c.writeWith(b, spec.With, false); err != nil {
			return err
		}
	}
	return c.compileSelect(spec, b, chainNone)
}

// compileChained renders a recursive traversal. The spec's own SELECT
// becomes both branches of a WITH RECURSIVE CTE: the anchor filtered on
// the start value, the step joined against the rows found so far.
func (c *Compiler) compileChained(spec *query.Spec, b *strings.Builder) error {
	b.WriteString("WITH RECURSIVE ")
	c.writeIdentifier(b, chainTable)
	b.WriteString(" AS (")
	if err := c.compileSelect(spec, b, chainSeed); err != nil {
		return err
	}
	b.WriteString(" UNION ")
	if err := c.compileSelect(spec, b, chainStep); err != nil {
		return err
	}
	b.WriteString(")")
	if len(spec.With) > 0 {
		if err := c.writeWith(b, spec.With, true); err != nil {
			return err
		}
	}
	b.WriteString(" SELECT * FROM ")
	c.writeIdentifier(b, chainTable)
	return nil
}

func (c *Compiler) compileSelect(spec *query.Spec, b *strings.Builder, chainMode int) error {
	// SELECT clause
	b.WriteString("SELECT ")
	if spec.Distinct {
		b.WriteString("DISTINCT ")
	}
	for i, sel := range spec.Selects {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := c.writeExpr(b, sel.Expr); err != nil {
			return err
		}
		if _, star := sel.Expr.(query.StarExpr); star {
			continue
		}
		b.WriteString(" AS ")
		c.writeIdentifier(b, sel.Name)
	}

	// FROM clause
	if spec.Table != "" {
		b.WriteString(" FROM ")
		c.writeIdentifier(b, spec.Table)
		if spec.RootAlias != "" && spec.RootAlias != spec.Table {
			b.WriteString(" AS ")
			c.writeIdentifier(b, spec.RootAlias)
		}
	}

	// JOIN clauses
	for _, join := range spec.Joins {
		b.WriteString(" ")
		b.WriteString(string(join.Kind))
		b.WriteString(" JOIN ")
		c.writeIdentifier(b, join.Table)
		b.WriteString(" AS ")
		c.writeIdentifier(b, join.Alias)
		if join.On != nil {
			b.WriteString(" ON ")
			if err := c.writeExpr(b, join.On); err != nil {
				return err
			}
		}
	}
	if chainMode == chainStep {
		b.WriteString(" INNER JOIN ")
		c.writeIdentifier(b, chainTable)
		b.WriteString(" ON ")
		c.writeQualified(b, rootAlias(spec), spec.Chained.IDColumn)
		b.WriteString(" = ")
		c.writeQualified(b, chainTable, spec.Chained.NextColumn)
	}

	// WHERE clause
	filters := spec.Filters
	if chainMode == chainSeed {
		seed := query.BinaryExpr{
			Left:  query.FieldExpr{Alias: rootAlias(spec), Column: spec.Chained.IDColumn},
			Op:    query.OpEq,
			Right: query.ParamExpr{Name: spec.Chained.StartSlot},
		}
		filters = append([]query.Expr{seed}, filters...)
	}
	if len(filters) > 0 {
		b.WriteString(" WHERE ")
		for i, f := range filters {
			if i > 0 {
				b.WriteString(" AND ")
			}
			if err := c.writeExpr(b, f); err != nil {
				return err
			}
		}
	}

	// GROUP BY clause: explicit expressions, or the positional ordinals
	// of the non-aggregated outputs once any output aggregates.
	if len(spec.Groups) > 0 {
		b.WriteString(" GROUP BY ")
		for i, g := range spec.Groups {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := c.writeExpr(b, g); err != nil {
				return err
			}
		}
	} else if spec.Aggregated {
		var ordinals []int
		for i, sel := range spec.Selects {
			if !sel.Aggregated {
				ordinals = append(ordinals, i+1)
			}
		}
		if len(ordinals) > 0 {
			b.WriteString(" GROUP BY ")
			for i, ord := range ordinals {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(strconv.Itoa(ord))
			}
		}
	}

	// HAVING clause
	if len(spec.GroupFilters) > 0 {
		b.WriteString(" HAVING ")
		for i, f := range spec.GroupFilters {
			if i > 0 {
				b.WriteString(" AND ")
			}
			if err := c.writeExpr(b, f); err != nil {
				return err
			}
		}
	}

	// ORDER BY clause
	if len(spec.Sorts) > 0 {
		b.WriteString(" ORDER BY ")
		for i, s := range spec.Sorts {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := c.writeExpr(b, s.Expr); err != nil {
				return err
			}
			if s.Desc {
				b.WriteString(" DESC")
			}
		}
	}

	// LIMIT and OFFSET, in that order: MySQL accepts no other, and
	// MySQL and SQLite both require a LIMIT when OFFSET is present.
	if spec.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*spec.Limit))
	} else if spec.Offset != nil {
		if nl := c.dialect.NoLimit(); nl != "" {
			b.WriteString(" LIMIT ")
			b.WriteString(nl)
		}
	}
	if spec.Offset != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(*spec.Offset))
	}

	return nil
}

// rootAlias returns the alias the root table's columns are qualified
// with.
func rootAlias(spec *query.Spec) string {
	if spec.RootAlias != "" {
		return spec.RootAlias
	}
	return spec.Table
}

// =============================================================================
// Expression Writing
// =============================================================================

func (c *Compiler) writeExpr(b *strings.Builder, expr query.Expr) error {
	switch e := expr.(type) {
	case query.FieldExpr:
		c.writeQualified(b, e.Alias, e.Column)

	case query.ParamExpr:
		c.writeParam(b, e.Name)

	case query.LiteralExpr:
		if err := c.writeLiteral(b, e.Value); err != nil {
			return err
		}

	case query.BinaryExpr:
		return c.writeBinary(b, e)

	case query.UnaryExpr:
		if e.Op == query.OpIsNull || e.Op == query.OpNotNull {
			if err := c.writeExpr(b, e.Expr); err != nil {
				return err
			}
			b.WriteString(" ")
			b.WriteString(string(e.Op))
		} else {
			b.WriteString(string(e.Op))
			b.WriteString(" ")
			if err := c.writeExpr(b, e.Expr); err != nil {
				return err
			}
		}

	case query.FuncExpr:
		b.WriteString(e.Name)
		b.WriteString("(")
		for i, arg := range e.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := c.writeExpr(b, arg); err != nil {
				return err
			}
		}
		b.WriteString(")")

	case query.ListExpr:
		b.WriteString("(")
		for i, v := range e.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := c.writeExpr(b, v); err != nil {
				return err
			}
		}
		b.WriteString(")")

	case query.AggregateExpr:
		b.WriteString(string(e.Func))
		b.WriteString("(")
		if e.Distinct {
			b.WriteString("DISTINCT ")
		}
		if e.Arg == nil {
			b.WriteString("*")
		} else if err := c.writeExpr(b, e.Arg); err != nil {
			return err
		}
		b.WriteString(")")

	case query.CaseExpr:
		b.WriteString("CASE")
		for _, w := range e.Whens {
			b.WriteString(" WHEN ")
			if err := c.writeExpr(b, w.Cond); err != nil {
				return err
			}
			b.WriteString(" THEN ")
			if err := c.writeExpr(b, w.Result); err != nil {
				return err
			}
		}
		if e.Else != nil {
			b.WriteString(" ELSE ")
			if err := c.writeExpr(b, e.Else); err != nil {
				return err
			}
		}
		b.WriteString(" END")

	case query.IndexExpr:
		if _, ok := c.dialect.(*PostgresDialect); !ok {
			return fmt.Errorf("%s does not support array subscripts", c.dialect.Name())
		}
		b.WriteString("(")
		if err := c.writeExpr(b, e.Base); err != nil {
			return err
		}
		b.WriteString(")[")
		if err := c.writeExpr(b, e.Index); err != nil {
			return err
		}
		b.WriteString("]")

	case query.JSONFieldExpr:
		return c.writeJSONField(b, e)

	case query.SubqueryExpr:
		// Shares parameter state with the enclosing statement so
		// placeholder numbering stays correct.
		b.WriteString("(")
		if err := c.compileRoot(e.Spec, b); err != nil {
			return err
		}
		b.WriteString(")")

	case query.WithRefExpr:
		c.writeQualified(b, e.Name, e.Column)

	case query.StarExpr:
		b.WriteString("*")

	case query.CastExpr:
		sqlType, err := c.dialect.CastType(e.Kind)
		if err != nil {
			return err
		}
		var inner strings.Builder
		if err := c.writeExpr(&inner, e.Expr); err != nil {
			return err
		}
		c.dialect.WriteCast(b, inner.String(), sqlType)

	default:
		return fmt.Errorf("unknown expression type: %T", expr)
	}

	return nil
}

func (c *Compiler) writeBinary(b *strings.Builder, e query.BinaryExpr) error {
	if e.Op == query.OpIn {
		b.WriteString("(")
		if err := c.writeExpr(b, e.Left); err != nil {
			return err
		}
		b.WriteString(" IN ")
		switch right := e.Right.(type) {
		case query.ListExpr:
			// IN () is invalid SQL
			if len(right.Values) == 0 {
				return fmt.Errorf("IN requires at least one value")
			}
			if err := c.writeExpr(b, right); err != nil {
				return err
			}
		case query.SubqueryExpr:
			if err := c.writeExpr(b, right); err != nil {
				return err
			}
		case query.ParamExpr:
			// the bound value is expanded at bind time
			c.writeParam(b, right.Name)
		default:
			return fmt.Errorf("IN requires a list, subquery or parameter on the right side, got %T", e.Right)
		}
		b.WriteString(")")
		return nil
	}

	if e.Op == query.OpPow {
		if name, asFunc := c.dialect.PowAsFunc(); asFunc {
			return c.writeBinaryFunc(b, name, e.Left, e.Right)
		}
	}
	if e.Op == query.OpConcat {
		if name, asFunc := c.dialect.ConcatAsFunc(); asFunc {
			return c.writeBinaryFunc(b, name, e.Left, e.Right)
		}
	}

	op, err := c.dialect.BinaryOpSQL(e.Op)
	if err != nil {
		return err
	}
	b.WriteString("(")
	if err := c.writeExpr(b, e.Left); err != nil {
		return err
	}
	b.WriteString(" ")
	b.WriteString(op)
	b.WriteString(" ")
	if err := c.writeExpr(b, e.Right); err != nil {
		return err
	}
	if e.Op == query.OpLike {
		// Pin the escape character: SQLite has no default one, and
		// patterns from the substring helpers are backslash-escaped.
		b.WriteString(c.dialect.LikeEscape())
	}
	b.WriteString(")")
	return nil
}

func (c *Compiler) writeBinaryFunc(b *strings.Builder, name string, left, right query.Expr) error {
	b.WriteString(name)
	b.WriteString("(")
	if err := c.writeExpr(b, left); err != nil {
		return err
	}
	b.WriteString(", ")
	if err := c.writeExpr(b, right); err != nil {
		return err
	}
	b.WriteString(")")
	return nil
}

func (c *Compiler) writeJSONField(b *strings.Builder, e query.JSONFieldExpr) error {
	var doc strings.Builder
	if err := c.writeExpr(&doc, e.Doc); err != nil {
		return err
	}
	if e.Cast == "" || e.Cast == "string" {
		c.dialect.WriteJSONField(b, doc.String(), e.Key)
		return nil
	}
	sqlType, err := c.dialect.CastType(e.Cast)
	if err != nil {
		return err
	}
	var extracted strings.Builder
	c.dialect.WriteJSONField(&extracted, doc.String(), e.Key)
	c.dialect.WriteCast(b, extracted.String(), sqlType)
	return nil
}

func (c *Compiler) writeIdentifier(b *strings.Builder, name string) {
	b.WriteString(c.dialect.QuoteIdentifier(name))
}

func (c *Compiler) writeQualified(b *strings.Builder, alias, column string) {
	if alias != "" {
		c.writeIdentifier(b, alias)
		b.WriteString(".")
	}
	c.writeIdentifier(b, column)
}

// writeParam renders a placeholder for the named slot. Numbered
// placeholders are reused per slot; bare ? gets one entry per
// occurrence.
func (c *Compiler) writeParam(b *strings.Builder, name string) {
	if c.dialect.ReusePlaceholders() {
		if idx, ok := c.slots[name]; ok {
			b.WriteString(c.dialect.Placeholder(idx))
			return
		}
	}
	c.params = append(c.params, name)
	idx := len(c.params)
	if c.dialect.ReusePlaceholders() {
		c.slots[name] = idx
	}
	b.WriteString(c.dialect.Placeholder(idx))
}

// writeLiteral inlines the few literal kinds that are safe to embed in
// SQL text. Strings never appear here: the builder binds every string
// value to a parameter slot.
func (c *Compiler) writeLiteral(b *strings.Builder, val any) error {
	switch v := val.(type) {
	case nil:
		b.WriteString("NULL")
	case bool:
		b.WriteString(c.dialect.BoolLiteral(v))
	case int:
		fmt.Fprintf(b, "%d", v)
	case int32:
		fmt.Fprintf(b, "%d", v)
	case int64:
		fmt.Fprintf(b, "%d", v)
	case float64:
		fmt.Fprintf(b, "%g", v)
	default:
		return fmt.Errorf("literal of type %T must be bound to a parameter", val)
	}
	return nil
}

// =============================================================================
// WITH Clause
// =============================================================================

// writeWith renders attached common table expressions. continued marks
// that a WITH RECURSIVE chain block is already open, so the keyword is
// replaced by a separating comma.
func (c *Compiler) writeWith(b *strings.Builder, items []query.WithItem, continued bool) error {
	if continued {
		b.WriteString(", ")
	} else {
		b.WriteString("WITH ")
	}
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		c.writeIdentifier(b, item.Name)
		b.WriteString(" AS ")
		if item.NotMaterialized {
			b.WriteString("NOT MATERIALIZED ")
		}
		b.WriteString("(")
		if err := c.compileRoot(item.Spec, b); err != nil {
			return err
		}
		b.WriteString(")")
	}
	if !continued {
		b.WriteString(" ")
	}
	return nil
}
