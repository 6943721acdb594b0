package rowmap

import (
	"fmt"
	"strconv"

	"github.com/rowmap/rowmap/query"
	"github.com/rowmap/rowmap/schema"
)

// maxAliasLen is the Postgres identifier limit; generated join aliases
// are truncated to fit it.
const maxAliasLen = 63

// hop is the outcome of planning one relation traversal.
type hop struct {
	alias    string
	table    *schema.Table
	optional bool // reached through at least one LEFT join
	multi    bool // traversal can multiply rows
}

// planHop resolves one path segment from (sourceAlias, sourceTable)
// into a join, reusing an existing join for the same (source, relation)
// pair. forceOptional demotes required joins to LEFT when an ancestor
// hop is already optional.
func (q *Query) planHop(sourceAlias string, sourceTable *schema.Table, segment string, forceOptional bool) (hop, error) {
	if f, ok := sourceTable.Field(segment); ok && f.Ref != "" {
		return q.planRefHop(sourceAlias, f, forceOptional)
	}
	if rel, ok := sourceTable.Relation(segment); ok {
		switch rel.Kind {
		case schema.ReverseMany:
			return q.planReverseHop(sourceAlias, sourceTable, rel)
		case schema.ManyToMany:
			return q.planManyToManyHop(sourceAlias, sourceTable, rel)
		}
	}
	return hop{}, fmt.Errorf("%w: %q has no relation %q", ErrUnknownField, sourceTable.Name, segment)
}

func (q *Query) planRefHop(sourceAlias string, f *schema.Field, forceOptional bool) (hop, error) {
	target, ok := q.db.reg.Table(f.Ref)
	if !ok {
		return hop{}, fmt.Errorf("%w: field %q references unknown table %q", ErrUnknownField, f.Name, f.Ref)
	}
	optional := forceOptional || f.Nullable

	if existing, ok := q.spec.Join(sourceAlias, f.Name); ok {
		return hop{alias: existing.Alias, table: target, optional: existing.Kind == query.LeftJoin}, nil
	}

	alias := q.newAlias(sourceAlias, f.Name)
	kind := query.InnerJoin
	if optional {
		kind = query.LeftJoin
	}
	on := query.Expr(query.BinaryExpr{
		Left:  query.FieldExpr{Alias: sourceAlias, Column: f.Column},
		Op:    query.OpEq,
		Right: query.FieldExpr{Alias: alias, Column: target.PK().Column},
	})
	on = andDiscriminator(on, alias, target)
	q.spec.AddJoin(&query.JoinSpec{
		SourceAlias: sourceAlias,
		Relation:    f.Name,
		Table:       target.Name,
		Alias:       alias,
		On:          on,
		Kind:        kind,
	})
	return hop{alias: alias, table: target, optional: optional}, nil
}

func (q *Query) planReverseHop(sourceAlias string, sourceTable *schema.Table, rel *schema.Relation) (hop, error) {
	target, ok := q.db.reg.Table(rel.Target)
	if !ok {
		return hop{}, fmt.Errorf("%w: relation %q targets unknown table %q", ErrUnknownField, rel.Name, rel.Target)
	}

	if existing, ok := q.spec.Join(sourceAlias, rel.Name); ok {
		return hop{alias: existing.Alias, table: target, optional: true, multi: true}, nil
	}

	alias := q.newAlias(sourceAlias, rel.Name)
	on := query.Expr(query.BinaryExpr{
		Left:  query.FieldExpr{Alias: alias, Column: rel.TargetFK},
		Op:    query.OpEq,
		Right: query.FieldExpr{Alias: sourceAlias, Column: sourceTable.PK().Column},
	})
	on = andDiscriminator(on, alias, target)
	q.spec.AddJoin(&query.JoinSpec{
		SourceAlias: sourceAlias,
		Relation:    rel.Name,
		Table:       target.Name,
		Alias:       alias,
		On:          on,
		Kind:        query.LeftJoin,
	})
	return hop{alias: alias, table: target, optional: true, multi: true}, nil
}

func (q *Query) planManyToManyHop(sourceAlias string, sourceTable *schema.Table, rel *schema.Relation) (hop, error) {
	target, ok := q.db.reg.Table(rel.Target)
	if !ok {
		return hop{}, fmt.Errorf("%w: relation %q targets unknown table %q", ErrUnknownField, rel.Name, rel.Target)
	}
	via, ok := q.db.reg.Table(rel.Via)
	if !ok {
		return hop{}, fmt.Errorf("%w: relation %q goes via unknown table %q", ErrUnknownField, rel.Name, rel.Via)
	}

	if existing, ok := q.spec.Join(sourceAlias, rel.Name); ok {
		return hop{alias: existing.Alias, table: target, optional: true, multi: true}, nil
	}

	// Middle table first, then the far side. Both hops are one logical
	// relation; only the far join is keyed by the relation name.
	viaAlias := q.newAlias(sourceAlias, rel.Name+"_via")
	q.spec.AddJoin(&query.JoinSpec{
		SourceAlias: sourceAlias,
		Relation:    rel.Name + "_via",
		Table:       via.Name,
		Alias:       viaAlias,
		On: query.BinaryExpr{
			Left:  query.FieldExpr{Alias: viaAlias, Column: rel.ViaSource},
			Op:    query.OpEq,
			Right: query.FieldExpr{Alias: sourceAlias, Column: sourceTable.PK().Column},
		},
		Kind: query.LeftJoin,
	})

	alias := q.newAlias(sourceAlias, rel.Name)
	on := query.Expr(query.BinaryExpr{
		Left:  query.FieldExpr{Alias: alias, Column: target.PK().Column},
		Op:    query.OpEq,
		Right: query.FieldExpr{Alias: viaAlias, Column: rel.ViaTarget},
	})
	on = andDiscriminator(on, alias, target)
	q.spec.AddJoin(&query.JoinSpec{
		SourceAlias: sourceAlias,
		Relation:    rel.Name,
		Table:       target.Name,
		Alias:       alias,
		On:          on,
		Kind:        query.LeftJoin,
	})
	return hop{alias: alias, table: target, optional: true, multi: true}, nil
}

// newAlias derives a unique join alias source__relation, truncated to
// the identifier limit and disambiguated with a numeric suffix on
// collision.
func (q *Query) newAlias(sourceAlias, relation string) string {
	base := sourceAlias + "__" + relation
	if len(base) > maxAliasLen {
		base = base[:maxAliasLen]
	}
	alias := base
	for n := 2; q.spec.HasAlias(alias); n++ {
		suffix := strconv.Itoa(n)
		if len(base)+len(suffix) > maxAliasLen {
			alias = base[:maxAliasLen-len(suffix)] + suffix
		} else {
			alias = base + suffix
		}
	}
	return alias
}

// andDiscriminator narrows a join condition to the target's subtype
// rows when the target table is discriminated.
func andDiscriminator(on query.Expr, alias string, t *schema.Table) query.Expr {
	if t.Discriminator == nil {
		return on
	}
	disc := query.BinaryExpr{
		Left:  query.FieldExpr{Alias: alias, Column: t.Discriminator.Column},
		Op:    query.OpEq,
		Right: query.LiteralExpr{Value: t.Discriminator.Value},
	}
	return query.BinaryExpr{Left: on, Op: query.OpAnd, Right: disc}
}
