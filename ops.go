package rowmap

import (
	"fmt"
	"time"

	"github.com/rowmap/rowmap/query"
	"github.com/rowmap/rowmap/schema"
)

// V wraps an expression under construction. Methods return new values
// and never mutate the receiver; a V carrying an error propagates it
// through every subsequent operation and surfaces it when the query
// compiles.
type V struct {
	expr query.Expr
	kind schema.Kind
	out  query.OutputField
	err  error
}

// Value lifts a Go value into an expression. The value becomes a bound
// parameter at compile time, never SQL text.
func Value(v any) V {
	expr, kind, err := toExpr(v)
	return V{expr: expr, kind: kind, err: err}
}

// Expr exposes the underlying expression node.
func (v V) Expr() query.Expr { return v.expr }

// Err returns the first error recorded while composing this value.
func (v V) Err() error { return v.err }

// errV propagates an error as a value.
func errV(err error) V { return V{err: err} }

// toExpr converts an operand to an expression node. Accepted operands
// are V values, raw expression nodes and plain Go values.
func toExpr(v any) (query.Expr, schema.Kind, error) {
	switch x := v.(type) {
	case V:
		return x.expr, x.kind, x.err
	case query.Expr:
		return x, schema.KindAny, nil
	case nil:
		return query.LiteralExpr{Value: nil}, schema.KindAny, nil
	case string:
		return query.LiteralExpr{Value: x}, schema.KindString, nil
	case bool:
		return query.LiteralExpr{Value: x}, schema.KindBool, nil
	case int:
		return query.LiteralExpr{Value: x}, schema.KindInt, nil
	case int32:
		return query.LiteralExpr{Value: int(x)}, schema.KindInt, nil
	case int64:
		return query.LiteralExpr{Value: x}, schema.KindInt, nil
	case float32:
		return query.LiteralExpr{Value: float64(x)}, schema.KindFloat, nil
	case float64:
		return query.LiteralExpr{Value: x}, schema.KindFloat, nil
	case time.Time:
		return query.LiteralExpr{Value: x}, schema.KindTime, nil
	case []byte:
		return query.LiteralExpr{Value: x}, schema.KindBytes, nil
	}
	return nil, schema.KindAny, fmt.Errorf("%w: operand %T is neither an expression nor a supported literal", ErrTypeMismatch, v)
}

func (v V) bin(op query.BinaryOp, other any, kind schema.Kind) V {
	if v.err != nil {
		return v
	}
	right, _, err := toExpr(other)
	if err != nil {
		return errV(err)
	}
	return V{expr: query.BinaryExpr{Left: v.expr, Op: op, Right: right}, kind: kind}
}

func (v V) fn(name string, kind schema.Kind, args ...any) V {
	if v.err != nil {
		return v
	}
	exprs := make([]query.Expr, 0, len(args)+1)
	exprs = append(exprs, v.expr)
	for _, a := range args {
		e, _, err := toExpr(a)
		if err != nil {
			return errV(err)
		}
		exprs = append(exprs, e)
	}
	return V{expr: query.FuncExpr{Name: name, Args: exprs}, kind: kind}
}

// Arithmetic

func (v V) Add(other any) V { return v.bin(query.OpAdd, other, v.kind) }
func (v V) Sub(other any) V { return v.bin(query.OpSub, other, v.kind) }
func (v V) Mul(other any) V { return v.bin(query.OpMul, other, v.kind) }
func (v V) Div(other any) V { return v.bin(query.OpDiv, other, v.kind) }
func (v V) Mod(other any) V { return v.bin(query.OpMod, other, schema.KindInt) }

// Pow is exponentiation.
func (v V) Pow(other any) V { return v.bin(query.OpPow, other, schema.KindFloat) }

// Neg negates the value.
func (v V) Neg() V {
	if v.err != nil {
		return v
	}
	return V{expr: query.UnaryExpr{Op: query.OpNeg, Expr: v.expr}, kind: v.kind}
}

func (v V) Abs() V             { return v.fn("abs", v.kind) }
func (v V) Round(digits int) V { return v.fn("round", v.kind, digits) }
func (v V) Trunc() V           { return v.fn("trunc", schema.KindInt) }

// Comparisons

func (v V) Eq(other any) V { return v.bin(query.OpEq, other, schema.KindBool) }
func (v V) Ne(other any) V { return v.bin(query.OpNe, other, schema.KindBool) }
func (v V) Lt(other any) V { return v.bin(query.OpLt, other, schema.KindBool) }
func (v V) Le(other any) V { return v.bin(query.OpLe, other, schema.KindBool) }
func (v V) Gt(other any) V { return v.bin(query.OpGt, other, schema.KindBool) }
func (v V) Ge(other any) V { return v.bin(query.OpGe, other, schema.KindBool) }

// Logical

func (v V) And(other any) V { return v.bin(query.OpAnd, other, schema.KindBool) }
func (v V) Or(other any) V  { return v.bin(query.OpOr, other, schema.KindBool) }

func (v V) Not() V {
	if v.err != nil {
		return v
	}
	return V{expr: query.UnaryExpr{Op: query.OpNot, Expr: v.expr}, kind: schema.KindBool}
}

// Bitwise

func (v V) BinAnd(other any) V { return v.bin(query.OpBitAnd, other, schema.KindInt) }
func (v V) BinOr(other any) V  { return v.bin(query.OpBitOr, other, schema.KindInt) }
func (v V) BinXor(other any) V { return v.bin(query.OpBitXor, other, schema.KindInt) }
func (v V) Shl(other any) V    { return v.bin(query.OpShl, other, schema.KindInt) }
func (v V) Shr(other any) V    { return v.bin(query.OpShr, other, schema.KindInt) }

// In tests membership. Accepts plain values, V values or an attached
// subquery handle.
func (v V) In(values ...any) V {
	if v.err != nil {
		return v
	}
	if len(values) == 1 {
		if w, ok := values[0].(*WithQuery); ok {
			return V{
				expr: query.BinaryExpr{Left: v.expr, Op: query.OpIn, Right: w.subquery()},
				kind: schema.KindBool,
			}
		}
	}
	list := query.ListExpr{Values: make([]query.Expr, len(values))}
	for i, val := range values {
		e, _, err := toExpr(val)
		if err != nil {
			return errV(err)
		}
		list.Values[i] = e
	}
	return V{expr: query.BinaryExpr{Left: v.expr, Op: query.OpIn, Right: list}, kind: schema.KindBool}
}

// Null checks

func (v V) IsNull() V {
	if v.err != nil {
		return v
	}
	return V{expr: query.UnaryExpr{Op: query.OpIsNull, Expr: v.expr}, kind: schema.KindBool}
}

func (v V) IsNotNull() V {
	if v.err != nil {
		return v
	}
	return V{expr: query.UnaryExpr{Op: query.OpNotNull, Expr: v.expr}, kind: schema.KindBool}
}

// Strings

// Like matches against a raw LIKE pattern.
func (v V) Like(pattern string) V { return v.bin(query.OpLike, pattern, schema.KindBool) }

// Contains matches rows whose value contains the substring. The
// pattern travels as a parameter value.
func (v V) Contains(sub string) V {
	return v.bin(query.OpLike, "%"+likeEscape(sub)+"%", schema.KindBool)
}

// StartsWith matches rows whose value begins with the prefix.
func (v V) StartsWith(prefix string) V {
	return v.bin(query.OpLike, likeEscape(prefix)+"%", schema.KindBool)
}

// EndsWith matches rows whose value ends with the suffix.
func (v V) EndsWith(suffix string) V {
	return v.bin(query.OpLike, "%"+likeEscape(suffix), schema.KindBool)
}

func (v V) Upper() V { return v.fn("upper", schema.KindString) }
func (v V) Lower() V { return v.fn("lower", schema.KindString) }

// Len is the character length of the value.
func (v V) Len() V { return v.fn("length", schema.KindInt) }

// Substr extracts length characters starting at the 1-based position.
func (v V) Substr(pos, length int) V {
	return v.fn("substr", schema.KindString, pos, length)
}

// Concat joins string values.
func (v V) Concat(other any) V { return v.bin(query.OpConcat, other, schema.KindString) }

// At is a 1-based array subscript.
func (v V) At(index any) V {
	if v.err != nil {
		return v
	}
	idx, _, err := toExpr(index)
	if err != nil {
		return errV(err)
	}
	return V{expr: query.IndexExpr{Base: v.expr, Index: idx}, kind: schema.KindAny}
}

// Cast converts to another kind.
func (v V) Cast(kind schema.Kind) V {
	if v.err != nil {
		return v
	}
	return V{expr: query.CastExpr{Expr: v.expr, Kind: string(kind)}, kind: kind}
}

// Aggregates

func (v V) agg(fn query.AggregateFunc, kind schema.Kind, distinct bool) V {
	if v.err != nil {
		return v
	}
	if query.HasAggregate(v.expr) {
		return errV(fmt.Errorf("%w: %s over an already aggregated expression", ErrAmbiguousAggregate, fn))
	}
	return V{expr: query.AggregateExpr{Func: fn, Arg: v.expr, Distinct: distinct}, kind: kind}
}

func (v V) Sum() V { return v.agg(query.AggSum, v.kind, false) }
func (v V) Avg() V { return v.agg(query.AggAvg, schema.KindFloat, false) }
func (v V) Min() V { return v.agg(query.AggMin, v.kind, false) }
func (v V) Max() V { return v.agg(query.AggMax, v.kind, false) }

// Count counts non-null occurrences of the value.
func (v V) Count() V { return v.agg(query.AggCount, schema.KindInt, false) }

// CountDistinct counts distinct non-null occurrences.
func (v V) CountDistinct() V { return v.agg(query.AggCount, schema.KindInt, true) }

// CountAll is the bare count(*).
func CountAll() V {
	return V{expr: query.AggregateExpr{Func: query.AggCount}, kind: schema.KindInt}
}

// likeEscape protects LIKE metacharacters inside a substring match.
func likeEscape(s string) string {
	var out []rune
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
