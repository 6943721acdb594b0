package rowmap

import (
	"fmt"
	"strings"

	"github.com/rowmap/rowmap/query"
	"github.com/rowmap/rowmap/schema"
)

// maxViewDepth bounds recursive view substitution so a cyclic view
// declaration fails instead of looping.
const maxViewDepth = 16

// F resolves a dotted field path into an expression. Every non-terminal
// segment must name a reference field or relation; traversals plan the
// joins they need as a side effect. The terminal segment may be a plain
// column, a document property, or a relation whose target declares a
// view.
func (q *Query) F(path string) V {
	if q.err != nil {
		return errV(q.err)
	}
	expr, out, err := q.resolvePath(path)
	if err != nil {
		q.setErr(err)
		return errV(err)
	}
	return V{expr: expr, kind: out.Kind, out: out}
}

func (q *Query) resolvePath(path string) (query.Expr, query.OutputField, error) {
	segments := strings.Split(path, ".")
	for _, s := range segments {
		if s == "" {
			return nil, query.OutputField{}, fmt.Errorf("%w: empty segment in path %q", ErrUnknownField, path)
		}
	}

	// An unbound query binds its root to the first segment.
	if q.table == nil {
		t, ok := q.db.reg.Table(segments[0])
		if !ok {
			return nil, query.OutputField{}, fmt.Errorf("%w: query is not bound and %q is not a table", ErrUnknownField, segments[0])
		}
		q.bindTable(t)
		if len(segments) == 1 {
			return nil, query.OutputField{}, fmt.Errorf("%w: path %q names a table but no field", ErrUnknownField, path)
		}
		segments = segments[1:]
	}

	return q.resolveFrom(q.spec.RootAlias, q.table, segments, false, 0)
}

func (q *Query) resolveFrom(alias string, t *schema.Table, segments []string, optional bool, depth int) (query.Expr, query.OutputField, error) {
	if depth > maxViewDepth {
		return nil, query.OutputField{}, fmt.Errorf("%w: view substitution too deep at %q", ErrUnknownField, t.Name)
	}

	for len(segments) > 1 {
		h, err := q.planHop(alias, t, segments[0], optional)
		if err != nil {
			return nil, query.OutputField{}, err
		}
		alias, t = h.alias, h.table
		optional = optional || h.optional
		segments = segments[1:]
	}

	last := segments[0]

	if f, ok := t.Field(last); ok {
		return q.fieldExpr(alias, t, f, optional)
	}

	if rel, ok := t.Relation(last); ok {
		// A bare relation is only addressable through the target's
		// declared view.
		target, tok := q.db.reg.Table(rel.Target)
		if !tok {
			return nil, query.OutputField{}, fmt.Errorf("%w: relation %q targets unknown table %q", ErrUnknownField, last, rel.Target)
		}
		if target.View == "" {
			return nil, query.OutputField{}, fmt.Errorf("%w: cannot select relation %q bare: %q declares no view; name a field", ErrTypeMismatch, last, target.Name)
		}
		h, err := q.planHop(alias, t, last, optional)
		if err != nil {
			return nil, query.OutputField{}, err
		}
		return q.resolveFrom(h.alias, h.table, strings.Split(target.View, "."), optional || h.optional, depth+1)
	}

	return nil, query.OutputField{}, fmt.Errorf("%w: %q has no field %q", ErrUnknownField, t.Name, last)
}

// fieldExpr renders the terminal field reference: a qualified column,
// or a document property extraction for body fields. A reference field
// yields its key column with the target recorded so materialization can
// produce a lazy reference.
func (q *Query) fieldExpr(alias string, t *schema.Table, f *schema.Field, optional bool) (query.Expr, query.OutputField, error) {
	out := query.OutputField{
		Name:     f.Name,
		Kind:     f.Kind,
		Nullable: f.Nullable || optional,
		RefTable: f.Ref,
	}
	if f.InBody {
		doc := query.FieldExpr{Alias: alias, Column: t.BodyColumn}
		return query.JSONFieldExpr{Doc: doc, Key: f.Column, Cast: string(f.Kind)}, out, nil
	}
	if f.Ref != "" {
		out.Kind = q.refKeyKind(f.Ref)
	}
	return query.FieldExpr{Alias: alias, Column: f.Column}, out, nil
}

// refKeyKind is the kind of the target table's primary key.
func (q *Query) refKeyKind(table string) schema.Kind {
	if t, ok := q.db.reg.Table(table); ok {
		return t.PK().Kind
	}
	return schema.KindAny
}
