// Package query holds the intermediate representation a builder
// accumulates: expression nodes, join specs and the query spec the SQL
// compiler renders. Nodes are immutable once constructed; composing
// operators allocates new nodes and never mutates operands.
package query

// Expr is the interface for all expression nodes.
type Expr interface {
	exprNode() // marker method to identify expression types
}

// FieldExpr references one column of an aliased table.
type FieldExpr struct {
	Alias  string
	Column string
}

func (FieldExpr) exprNode() {}

// LiteralExpr carries a Go value destined for a parameter slot. The
// compiler never interpolates the value into SQL text.
type LiteralExpr struct {
	Value any
}

func (LiteralExpr) exprNode() {}

// ParamExpr references a named parameter slot. Slots back both
// builder-allocated literals and user-declared variables.
type ParamExpr struct {
	Name string
}

func (ParamExpr) exprNode() {}

// BinaryExpr represents left op right.
type BinaryExpr struct {
	Left  Expr
	Op    BinaryOp
	Right Expr
}

func (BinaryExpr) exprNode() {}

// BinaryOp identifies binary operators. The values are the SQL
// spellings for the primary dialect; dialects may override rendering.
type BinaryOp string

const (
	OpAdd    BinaryOp = "+"
	OpSub    BinaryOp = "-"
	OpMul    BinaryOp = "*"
	OpDiv    BinaryOp = "/"
	OpMod    BinaryOp = "%"
	OpPow    BinaryOp = "^"
	OpEq     BinaryOp = "="
	OpNe     BinaryOp = "<>"
	OpLt     BinaryOp = "<"
	OpLe     BinaryOp = "<="
	OpGt     BinaryOp = ">"
	OpGe     BinaryOp = ">="
	OpAnd    BinaryOp = "AND"
	OpOr     BinaryOp = "OR"
	OpLike   BinaryOp = "LIKE"
	OpIn     BinaryOp = "IN"
	OpBitAnd BinaryOp = "&"
	OpBitOr  BinaryOp = "|"
	OpBitXor BinaryOp = "#"
	OpShl    BinaryOp = "<<"
	OpShr    BinaryOp = ">>"
	OpConcat BinaryOp = "||"
)

// UnaryExpr represents op expr.
type UnaryExpr struct {
	Op   UnaryOp
	Expr Expr
}

func (UnaryExpr) exprNode() {}

// UnaryOp identifies unary operators.
type UnaryOp string

const (
	OpNot     UnaryOp = "NOT"
	OpNeg     UnaryOp = "-"
	OpIsNull  UnaryOp = "IS NULL"
	OpNotNull UnaryOp = "IS NOT NULL"
)

// FuncExpr represents a function call.
type FuncExpr struct {
	Name string
	Args []Expr
}

func (FuncExpr) exprNode() {}

// ListExpr represents a parenthesized value list, as used with IN.
type ListExpr struct {
	Values []Expr
}

func (ListExpr) exprNode() {}

// AggregateFunc identifies an aggregate function.
type AggregateFunc string

const (
	AggCount AggregateFunc = "count"
	AggSum   AggregateFunc = "sum"
	AggAvg   AggregateFunc = "avg"
	AggMin   AggregateFunc = "min"
	AggMax   AggregateFunc = "max"
)

// AggregateExpr represents an aggregate call. Arg nil means count(*).
type AggregateExpr struct {
	Func     AggregateFunc
	Arg      Expr
	Distinct bool
}

func (AggregateExpr) exprNode() {}

// CaseExpr is an ordered CASE WHEN ... THEN ... chain with a required
// default branch.
type CaseExpr struct {
	Whens []CaseWhen
	Else  Expr
}

// CaseWhen is one predicate/result pair of a CaseExpr.
type CaseWhen struct {
	Cond   Expr
	Result Expr
}

func (CaseExpr) exprNode() {}

// IndexExpr is a 1-based array subscript.
type IndexExpr struct {
	Base  Expr
	Index Expr
}

func (IndexExpr) exprNode() {}

// JSONFieldExpr extracts a property from a JSON document column and
// casts it to the declared kind. Rendering is dialect-specific.
type JSONFieldExpr struct {
	Doc  Expr
	Key  string
	Cast string // target kind name, "" for no cast
}

func (JSONFieldExpr) exprNode() {}

// SubqueryExpr embeds a nested spec, rendered as a parenthesized
// sub-select sharing the outer parameter state.
type SubqueryExpr struct {
	Spec *Spec
}

func (SubqueryExpr) exprNode() {}

// WithRefExpr references one output column of an attached WITH query.
type WithRefExpr struct {
	Name   string // the WITH clause name
	Column string
}

func (WithRefExpr) exprNode() {}

// StarExpr is the bare * select item.
type StarExpr struct{}

func (StarExpr) exprNode() {}

// CastExpr renders a dialect type cast.
type CastExpr struct {
	Expr Expr
	Kind string // semantic kind name, mapped per dialect
}

func (CastExpr) exprNode() {}

// Compile-time verification that all node types implement Expr.
var (
	_ Expr = FieldExpr{}
	_ Expr = LiteralExpr{}
	_ Expr = ParamExpr{}
	_ Expr = BinaryExpr{}
	_ Expr = UnaryExpr{}
	_ Expr = FuncExpr{}
	_ Expr = ListExpr{}
	_ Expr = AggregateExpr{}
	_ Expr = CaseExpr{}
	_ Expr = IndexExpr{}
	_ Expr = JSONFieldExpr{}
	_ Expr = SubqueryExpr{}
	_ Expr = WithRefExpr{}
	_ Expr = StarExpr{}
	_ Expr = CastExpr{}
)
