package compile

import (
	"fmt"
	"strings"

	"github.com/rowmap/rowmap/query"
)

// CompileInsert renders an INSERT statement. Parameters behave as in
// Compile: Result.Params names the slot bound to each placeholder.
func (c *Compiler) CompileInsert(spec *query.InsertSpec) (Result, error) {
	if err := c.dmlReset(spec.Table); err != nil {
		return Result{}, err
	}
	if len(spec.Columns) == 0 {
		return Result{}, fmt.Errorf("%w: INSERT requires at least one column", ErrCompilation)
	}
	if len(spec.Columns) != len(spec.Values) {
		return Result{}, fmt.Errorf("%w: %d columns but %d values", ErrCompilation, len(spec.Columns), len(spec.Values))
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	c.writeIdentifier(&b, spec.Table)
	b.WriteString(" (")
	for i, col := range spec.Columns {
		if err := ValidateIdentifier(col); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrCompilation, err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		c.writeIdentifier(&b, col)
	}
	b.WriteString(") VALUES (")
	for i, v := range spec.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := c.writeExpr(&b, v); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrCompilation, err)
		}
	}
	b.WriteString(")")
	return Result{SQL: b.String(), Params: c.params}, nil
}

// CompileUpdate renders an UPDATE statement. An empty filter list is
// rejected: a full-table update must be spelled out by the caller with
// an always-true filter.
func (c *Compiler) CompileUpdate(spec *query.UpdateSpec) (Result, error) {
	if err := c.dmlReset(spec.Table); err != nil {
		return Result{}, err
	}
	if len(spec.Sets) == 0 {
		return Result{}, fmt.Errorf("%w: UPDATE requires at least one assignment", ErrCompilation)
	}
	if len(spec.Filters) == 0 {
		return Result{}, fmt.Errorf("%w: UPDATE requires a filter", ErrCompilation)
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	c.writeIdentifier(&b, spec.Table)
	b.WriteString(" SET ")
	for i, s := range spec.Sets {
		if err := ValidateIdentifier(s.Column); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrCompilation, err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		c.writeIdentifier(&b, s.Column)
		b.WriteString(" = ")
		if err := c.writeExpr(&b, s.Value); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrCompilation, err)
		}
	}
	if err := c.writeDMLFilters(&b, spec.Filters); err != nil {
		return Result{}, err
	}
	return Result{SQL: b.String(), Params: c.params}, nil
}

// CompileDelete renders a DELETE statement. As with update, a filter
// is mandatory.
func (c *Compiler) CompileDelete(spec *query.DeleteSpec) (Result, error) {
	if err := c.dmlReset(spec.Table); err != nil {
		return Result{}, err
	}
	if len(spec.Filters) == 0 {
		return Result{}, fmt.Errorf("%w: DELETE requires a filter", ErrCompilation)
	}

	var b strings.Builder
	b.WriteString("DELETE FROM ")
	c.writeIdentifier(&b, spec.Table)
	if err := c.writeDMLFilters(&b, spec.Filters); err != nil {
		return Result{}, err
	}
	return Result{SQL: b.String(), Params: c.params}, nil
}

func (c *Compiler) dmlReset(table string) error {
	if err := ValidateIdentifier(table); err != nil {
		return fmt.Errorf("%w: %v", ErrCompilation, err)
	}
	c.params = nil
	c.slots = make(map[string]int)
	return nil
}

func (c *Compiler) writeDMLFilters(b *strings.Builder, filters []query.Expr) error {
	b.WriteString(" WHERE ")
	for i, f := range filters {
		if i > 0 {
			b.WriteString(" AND ")
		}
		if err := c.writeExpr(b, f); err != nil {
			return fmt.Errorf("%w: %v", ErrCompilation, err)
		}
	}
	return nil
}
