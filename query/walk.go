package query

// Visitor is called for each expression during a walk. Return false to
// stop walking the current branch.
type Visitor func(expr Expr) bool

// Walk traverses an expression tree in depth-first order, calling the
// visitor for each node. If the visitor returns false, children of that
// node are not visited.
func Walk(expr Expr, visit Visitor) {
	if expr == nil {
		return
	}
	if !visit(expr) {
		return
	}
	switch e := expr.(type) {
	case BinaryExpr:
		Walk(e.Left, visit)
		Walk(e.Right, visit)
	case UnaryExpr:
		Walk(e.Expr, visit)
	case FuncExpr:
		for _, arg := range e.Args {
			Walk(arg, visit)
		}
	case ListExpr:
		for _, v := range e.Values {
			Walk(v, visit)
		}
	case AggregateExpr:
		Walk(e.Arg, visit)
	case CaseExpr:
		for _, w := range e.Whens {
			Walk(w.Cond, visit)
			Walk(w.Result, visit)
		}
		Walk(e.Else, visit)
	case IndexExpr:
		Walk(e.Base, visit)
		Walk(e.Index, visit)
	case JSONFieldExpr:
		Walk(e.Doc, visit)
	case CastExpr:
		Walk(e.Expr, visit)
	case SubqueryExpr:
		if e.Spec != nil {
			WalkSpec(e.Spec, visit)
		}
	}
	// FieldExpr, LiteralExpr, ParamExpr, WithRefExpr and StarExpr have
	// no children.
}

// WalkSpec traverses every expression a spec holds, in clause order.
func WalkSpec(s *Spec, visit Visitor) {
	if s == nil {
		return
	}
	for _, w := range s.With {
		WalkSpec(w.Spec, visit)
	}
	for _, sel := range s.Selects {
		Walk(sel.Expr, visit)
	}
	for _, j := range s.Joins {
		Walk(j.On, visit)
	}
	for _, f := range s.Filters {
		Walk(f, visit)
	}
	for _, g := range s.Groups {
		Walk(g, visit)
	}
	for _, f := range s.GroupFilters {
		Walk(f, visit)
	}
	for _, o := range s.Sorts {
		Walk(o.Expr, visit)
	}
}

// HasAggregate reports whether the tree contains an aggregate node. It
// does not descend into subqueries: an aggregate inside a sub-select
// does not aggregate the outer statement.
func HasAggregate(expr Expr) bool {
	found := false
	Walk(expr, func(e Expr) bool {
		switch e.(type) {
		case AggregateExpr:
			found = true
			return false
		case SubqueryExpr:
			return false
		}
		return true
	})
	return found
}

// ParamSlots returns parameter slot names in appearance order,
// including duplicates.
func ParamSlots(s *Spec) []string {
	var order []string
	WalkSpec(s, func(e Expr) bool {
		if p, ok := e.(ParamExpr); ok {
			order = append(order, p.Name)
		}
		return true
	})
	return order
}

// Rewriter transforms one node into another. Returning the node
// unchanged keeps it.
type Rewriter func(expr Expr) Expr

// Map rebuilds an expression tree bottom-up, applying the rewriter to
// every node after its children have been rebuilt. Subquery specs are
// not descended into; rewrite them with MapSpec if needed.
func Map(expr Expr, rw Rewriter) Expr {
	if expr == nil {
		return nil
	}
	switch e := expr.(type) {
	case BinaryExpr:
		e.Left = Map(e.Left, rw)
		e.Right = Map(e.Right, rw)
		return rw(e)
	case UnaryExpr:
		e.Expr = Map(e.Expr, rw)
		return rw(e)
	case FuncExpr:
		args := make([]Expr, len(e.Args))
		for i, arg := range e.Args {
			args[i] = Map(arg, rw)
		}
		e.Args = args
		return rw(e)
	case ListExpr:
		values := make([]Expr, len(e.Values))
		for i, v := range e.Values {
			values[i] = Map(v, rw)
		}
		e.Values = values
		return rw(e)
	case AggregateExpr:
		e.Arg = Map(e.Arg, rw)
		return rw(e)
	case CaseExpr:
		whens := make([]CaseWhen, len(e.Whens))
		for i, w := range e.Whens {
			whens[i] = CaseWhen{Cond: Map(w.Cond, rw), Result: Map(w.Result, rw)}
		}
		e.Whens = whens
		e.Else = Map(e.Else, rw)
		return rw(e)
	case IndexExpr:
		e.Base = Map(e.Base, rw)
		e.Index = Map(e.Index, rw)
		return rw(e)
	case JSONFieldExpr:
		e.Doc = Map(e.Doc, rw)
		return rw(e)
	case CastExpr:
		e.Expr = Map(e.Expr, rw)
		return rw(e)
	default:
		return rw(expr)
	}
}

// MapSpec rewrites every expression a spec holds in place. Attached
// WITH specs are not descended into; they are rewritten when attached.
func MapSpec(s *Spec, rw Rewriter) {
	if s == nil {
		return
	}
	for i := range s.Selects {
		s.Selects[i].Expr = Map(s.Selects[i].Expr, rw)
	}
	for _, j := range s.Joins {
		j.On = Map(j.On, rw)
	}
	for i := range s.Filters {
		s.Filters[i] = Map(s.Filters[i], rw)
	}
	for i := range s.Groups {
		s.Groups[i] = Map(s.Groups[i], rw)
	}
	for i := range s.GroupFilters {
		s.GroupFilters[i] = Map(s.GroupFilters[i], rw)
	}
	for i := range s.Sorts {
		s.Sorts[i].Expr = Map(s.Sorts[i].Expr, rw)
	}
}
