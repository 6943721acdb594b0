package query

import "github.com/rowmap/rowmap/schema"

// JoinKind identifies the join type.
type JoinKind string

const (
	InnerJoin JoinKind = "INNER"
	LeftJoin  JoinKind = "LEFT"
)

// JoinSpec is one planned join. Specs are keyed by (SourceAlias,
// Relation) so identical relation paths collapse to a single join.
type JoinSpec struct {
	SourceAlias string
	Relation    string
	Table       string
	Alias       string
	On          Expr
	Kind        JoinKind
}

// SelectItem is one named output expression.
type SelectItem struct {
	Name string
	Expr Expr
	// Aggregated records whether the expression subtree contains an
	// aggregate; non-aggregated items become implicit GROUP BY members
	// when the statement is grouped.
	Aggregated bool
	Out        OutputField
}

// OutputField describes one output column, available before execution.
type OutputField struct {
	Name     string
	Kind     schema.Kind
	Nullable bool
	// RefTable is set when the column carries a foreign key; the
	// materializer turns such columns into lazy references.
	RefTable string
}

// SortItem is one ORDER BY entry.
type SortItem struct {
	Expr Expr
	Desc bool
}

// WithItem is one attached WITH (common table expression) query.
type WithItem struct {
	Name            string
	Spec            *Spec
	NotMaterialized bool
}

// ChainSpec describes a recursive chained traversal: starting from the
// row whose IDColumn equals the start parameter, repeatedly follow the
// chain's next pointer back to IDColumn. NextColumn names the CTE
// output column holding the pointer, so it must appear in the selects.
type ChainSpec struct {
	IDColumn   string // root table column
	NextColumn string // output column of the recursive CTE
	StartSlot  string // parameter slot holding the start value
}

// Spec is the accumulated state of one query: everything the compiler
// needs to render a single SELECT statement. A Spec is owned by exactly
// one builder and is not safe for concurrent mutation.
type Spec struct {
	Table     string // root table name, "" for cross-table queries
	RootAlias string

	Selects      []SelectItem
	Filters      []Expr // AND-combined, aggregate-free
	GroupFilters []Expr // AND-combined, aggregate-bearing (HAVING)
	Groups       []Expr
	Sorts        []SortItem
	Joins        []*JoinSpec
	With         []WithItem
	Chained      *ChainSpec

	Distinct bool
	Offset   *int
	Limit    *int

	// Aggregated is set once any output, sort or group filter
	// aggregates; it drives implicit GROUP BY promotion.
	Aggregated bool
}

// Join returns the join spec for (sourceAlias, relation), if planned.
func (s *Spec) Join(sourceAlias, relation string) (*JoinSpec, bool) {
	for _, j := range s.Joins {
		if j.SourceAlias == sourceAlias && j.Relation == relation {
			return j, true
		}
	}
	return nil, false
}

// AddJoin appends a join spec. The caller is responsible for alias
// uniqueness; HasAlias supports that.
func (s *Spec) AddJoin(j *JoinSpec) {
	s.Joins = append(s.Joins, j)
}

// HasAlias reports whether an alias is already taken by the root table
// or a planned join.
func (s *Spec) HasAlias(alias string) bool {
	if alias == s.RootAlias && s.RootAlias != "" {
		return true
	}
	for _, j := range s.Joins {
		if j.Alias == alias {
			return true
		}
	}
	return false
}

// Outputs returns the output field descriptors in select order.
func (s *Spec) Outputs() []OutputField {
	out := make([]OutputField, len(s.Selects))
	for i, sel := range s.Selects {
		out[i] = sel.Out
	}
	return out
}

// Clone returns a deep copy of the spec. Expression nodes are immutable
// and shared; slices and join specs are copied.
func (s *Spec) Clone() *Spec {
	c := *s
	c.Selects = append([]SelectItem(nil), s.Selects...)
	c.Filters = append([]Expr(nil), s.Filters...)
	c.GroupFilters = append([]Expr(nil), s.GroupFilters...)
	c.Groups = append([]Expr(nil), s.Groups...)
	c.Sorts = append([]SortItem(nil), s.Sorts...)
	c.With = append([]WithItem(nil), s.With...)
	c.Joins = make([]*JoinSpec, len(s.Joins))
	for i, j := range s.Joins {
		jc := *j
		c.Joins[i] = &jc
	}
	if s.Chained != nil {
		ch := *s.Chained
		c.Chained = &ch
	}
	if s.Offset != nil {
		v := *s.Offset
		c.Offset = &v
	}
	if s.Limit != nil {
		v := *s.Limit
		c.Limit = &v
	}
	return &c
}
