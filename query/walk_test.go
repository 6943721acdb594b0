package query

import (
	"reflect"
	"testing"
)

func TestWalkVisitsDepthFirst(t *testing.T) {
	expr := BinaryExpr{
		Left: FieldExpr{Alias: "t", Column: "a"},
		Op:   OpAdd,
		Right: FuncExpr{Name: "abs", Args: []Expr{
			FieldExpr{Alias: "t", Column: "b"},
		}},
	}

	var seen []string
	Walk(expr, func(e Expr) bool {
		switch x := e.(type) {
		case FieldExpr:
			seen = append(seen, x.Column)
		case FuncExpr:
			seen = append(seen, x.Name)
		case BinaryExpr:
			seen = append(seen, string(x.Op))
		}
		return true
	})
	want := []string{"+", "a", "abs", "b"}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("visit order: got %v, want %v", seen, want)
	}
}

func TestWalkPrunesBranch(t *testing.T) {
	expr := FuncExpr{Name: "abs", Args: []Expr{FieldExpr{Column: "x"}}}
	visited := 0
	Walk(expr, func(e Expr) bool {
		visited++
		_, isFunc := e.(FuncExpr)
		return !isFunc
	})
	if visited != 1 {
		t.Errorf("pruned walk visited %d nodes", visited)
	}
}

func TestHasAggregate(t *testing.T) {
	plain := BinaryExpr{
		Left:  FieldExpr{Column: "a"},
		Op:    OpGt,
		Right: ParamExpr{Name: "p"},
	}
	if HasAggregate(plain) {
		t.Error("plain expression reported as aggregated")
	}

	agg := BinaryExpr{
		Left:  AggregateExpr{Func: AggSum, Arg: FieldExpr{Column: "a"}},
		Op:    OpGt,
		Right: ParamExpr{Name: "p"},
	}
	if !HasAggregate(agg) {
		t.Error("aggregate not detected")
	}

	// an aggregate inside a subquery aggregates that statement, not
	// the enclosing one
	sub := BinaryExpr{
		Left: FieldExpr{Column: "a"},
		Op:   OpIn,
		Right: SubqueryExpr{Spec: &Spec{
			Table: "t",
			Selects: []SelectItem{
				{Name: "n", Expr: AggregateExpr{Func: AggCount}, Aggregated: true},
			},
		}},
	}
	if HasAggregate(sub) {
		t.Error("subquery aggregate leaked into the outer statement")
	}
}

func TestMapRewritesLeaves(t *testing.T) {
	expr := CaseExpr{
		Whens: []CaseWhen{{
			Cond:   BinaryExpr{Left: FieldExpr{Column: "a"}, Op: OpEq, Right: LiteralExpr{Value: 1}},
			Result: LiteralExpr{Value: "one"},
		}},
		Else: LiteralExpr{Value: "other"},
	}

	n := 0
	got := Map(expr, func(e Expr) Expr {
		if _, ok := e.(LiteralExpr); ok {
			n++
			return ParamExpr{Name: "p"}
		}
		return e
	})
	if n != 3 {
		t.Fatalf("rewrote %d literals", n)
	}

	remaining := 0
	Walk(got, func(e Expr) bool {
		if _, ok := e.(LiteralExpr); ok {
			remaining++
		}
		return true
	})
	if remaining != 0 {
		t.Errorf("%d literals survived the rewrite", remaining)
	}

	// the original tree is untouched
	Walk(expr, func(e Expr) bool {
		if _, ok := e.(ParamExpr); ok {
			t.Error("Map mutated its input")
		}
		return true
	})
}

func TestMapSpecCoversAllClauses(t *testing.T) {
	lit := func() Expr { return LiteralExpr{Value: 7} }
	s := &Spec{
		Table:        "t",
		Selects:      []SelectItem{{Name: "a", Expr: lit()}},
		Filters:      []Expr{lit()},
		GroupFilters: []Expr{lit()},
		Groups:       []Expr{lit()},
		Sorts:        []SortItem{{Expr: lit()}},
		Joins:        []*JoinSpec{{Alias: "j", On: lit()}},
	}

	MapSpec(s, func(e Expr) Expr {
		if _, ok := e.(LiteralExpr); ok {
			return ParamExpr{Name: "p"}
		}
		return e
	})

	count := 0
	WalkSpec(s, func(e Expr) bool {
		if _, ok := e.(ParamExpr); ok {
			count++
		}
		return true
	})
	if count != 6 {
		t.Errorf("rewrote %d of 6 clause expressions", count)
	}
}

func TestParamSlotsOrder(t *testing.T) {
	s := &Spec{
		Table: "t",
		Selects: []SelectItem{
			{Name: "a", Expr: ParamExpr{Name: "x"}},
		},
		Filters: []Expr{
			BinaryExpr{Left: FieldExpr{Column: "c"}, Op: OpEq, Right: ParamExpr{Name: "y"}},
			BinaryExpr{Left: FieldExpr{Column: "d"}, Op: OpEq, Right: ParamExpr{Name: "x"}},
		},
	}
	got := ParamSlots(s)
	want := []string{"x", "y", "x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSpecCloneIsDeep(t *testing.T) {
	limit := 5
	s := &Spec{
		Table:   "t",
		Selects: []SelectItem{{Name: "a", Expr: FieldExpr{Column: "a"}}},
		Joins:   []*JoinSpec{{Alias: "j", Kind: LeftJoin}},
		Limit:   &limit,
		Chained: &ChainSpec{IDColumn: "id", NextColumn: "next", StartSlot: "s"},
	}
	c := s.Clone()

	c.Selects[0].Name = "b"
	c.Joins[0].Kind = InnerJoin
	*c.Limit = 9
	c.Chained.StartSlot = "other"

	if s.Selects[0].Name != "a" || s.Joins[0].Kind != LeftJoin || *s.Limit != 5 || s.Chained.StartSlot != "s" {
		t.Errorf("clone shares state with original: %+v", s)
	}
}
