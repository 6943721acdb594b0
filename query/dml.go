package query

// InsertSpec is one INSERT statement: column names paired positionally
// with value expressions.
type InsertSpec struct {
	Table   string
	Columns []string
	Values  []Expr
}

// SetItem is one SET assignment in an update.
type SetItem struct {
	Column string
	Value  Expr
}

// UpdateSpec is one UPDATE statement. Filters are AND-combined, like a
// select spec's.
type UpdateSpec struct {
	Table   string
	Sets    []SetItem
	Filters []Expr
}

// DeleteSpec is one DELETE statement.
type DeleteSpec struct {
	Table   string
	Filters []Expr
}
