package rowmap

import (
	"fmt"

	"github.com/rowmap/rowmap/query"
	"github.com/rowmap/rowmap/schema"
)

// CaseBuilder assembles an ordered CASE expression. Branches are tested
// in the order they were added; the default branch is required.
type CaseBuilder struct {
	q        *Query
	whens    []query.CaseWhen
	elseExpr query.Expr
	elseKind schema.Kind
	err      error
}

// Case starts a conditional expression. Pass the result to Select or
// Filter, or call End to use it as a value.
func (q *Query) Case() *CaseBuilder {
	return &CaseBuilder{q: q}
}

// When adds a branch: if cond holds, the expression yields result.
func (c *CaseBuilder) When(cond, result any) *CaseBuilder {
	if c.err != nil {
		return c
	}
	condExpr, _, err := c.q.intake(cond)
	if err != nil {
		c.err = err
		return c
	}
	resultExpr, _, err := c.q.intake(result)
	if err != nil {
		c.err = err
		return c
	}
	c.whens = append(c.whens, query.CaseWhen{Cond: condExpr, Result: resultExpr})
	return c
}

// Else sets the default branch.
func (c *CaseBuilder) Else(result any) *CaseBuilder {
	if c.err != nil {
		return c
	}
	expr, out, err := c.q.intake(result)
	if err != nil {
		c.err = err
		return c
	}
	c.elseExpr = expr
	c.elseKind = out.Kind
	return c
}

// End closes the expression.
func (c *CaseBuilder) End() V {
	if c.err != nil {
		return errV(c.err)
	}
	if c.elseExpr == nil {
		return errV(fmt.Errorf("%w: CASE needs a default branch", ErrTypeMismatch))
	}
	if len(c.whens) == 0 {
		// no branches: the default is the whole expression
		return V{expr: c.elseExpr, kind: c.elseKind}
	}
	return V{expr: query.CaseExpr{Whens: c.whens, Else: c.elseExpr}, kind: c.elseKind}
}
