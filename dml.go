package rowmap

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rowmap/rowmap/query"
	"github.com/rowmap/rowmap/query/compile"
)

// Insert accumulates one INSERT statement. Document properties
// collected through Set are assembled into the table's body column on
// Exec.
type Insert struct {
	q    *Query
	cols []string
	vals []query.Expr
	body map[string]any
}

// InsertInto starts an insert into the named table.
func (db *DB) InsertInto(table string) *Insert {
	return &Insert{q: db.Query(table)}
}

// Set assigns a value to a declared field. Reference fields accept the
// raw key or a *Ref.
func (ins *Insert) Set(field string, value any) *Insert {
	t := ins.q.table
	if t == nil {
		return ins
	}
	f, ok := t.Field(field)
	if !ok {
		ins.q.setErr(fmt.Errorf("%w: %q has no field %q", ErrUnknownField, t.Name, field))
		return ins
	}
	if r, ok := value.(*Ref); ok {
		value = r.key
	}
	if f.InBody {
		if ins.body == nil {
			ins.body = make(map[string]any)
		}
		ins.body[f.Name] = value
		return ins
	}
	ins.cols = append(ins.cols, f.Column)
	ins.vals = append(ins.vals, query.ParamExpr{Name: ins.q.argSlot(value)})
	return ins
}

// Exec runs the insert. The discriminator column of a polymorphic
// table is filled in automatically unless Set named it.
func (ins *Insert) Exec(ctx context.Context) (sql.Result, error) {
	q := ins.q
	if q.err != nil {
		return nil, q.err
	}
	cols, vals := ins.cols, ins.vals
	if t := q.table; t.Discriminator != nil && !containsColumn(cols, t.Discriminator.Column) {
		cols = append(cols, t.Discriminator.Column)
		vals = append(vals, query.ParamExpr{Name: q.argSlot(t.Discriminator.Value)})
	}
	if len(ins.body) > 0 {
		doc, err := json.Marshal(ins.body)
		if err != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrTypeMismatch, err)
		}
		cols = append(cols, q.table.BodyColumn)
		vals = append(vals, query.ParamExpr{Name: q.argSlot(string(doc))})
	}
	res, err := compile.NewCompiler(q.db.dialect).CompileInsert(&query.InsertSpec{
		Table:   q.table.Name,
		Columns: cols,
		Values:  vals,
	})
	if err != nil {
		return nil, err
	}
	return q.db.exec(ctx, res, q.args)
}

func containsColumn(cols []string, col string) bool {
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}

// Update accumulates one UPDATE statement. Filters use the same V
// surface as queries but may not cross relations or aggregate; a
// polymorphic table's discriminator filter applies automatically.
type Update struct {
	q    *Query
	sets []query.SetItem
}

// Update starts an update of the named table.
func (db *DB) Update(table string) *Update {
	return &Update{q: db.Query(table)}
}

// F resolves a field of the updated table for use in Filter.
func (u *Update) F(path string) V { return u.q.F(path) }

// Set assigns a value to a plain column field. Document properties
// cannot be assigned individually; update the row's whole body instead.
func (u *Update) Set(field string, value any) *Update {
	t := u.q.table
	if t == nil {
		return u
	}
	f, ok := t.Field(field)
	if !ok {
		u.q.setErr(fmt.Errorf("%w: %q has no field %q", ErrUnknownField, t.Name, field))
		return u
	}
	if f.InBody {
		u.q.setErr(fmt.Errorf("%w: %q is a document property; assign the body column", ErrTypeMismatch, field))
		return u
	}
	if r, ok := value.(*Ref); ok {
		value = r.key
	}
	u.sets = append(u.sets, query.SetItem{
		Column: f.Column,
		Value:  query.ParamExpr{Name: u.q.argSlot(value)},
	})
	return u
}

// Filter restricts the rows to update.
func (u *Update) Filter(v any) *Update {
	u.q.Filter(v)
	return u
}

// Exec runs the update and returns the number of affected rows.
func (u *Update) Exec(ctx context.Context) (int64, error) {
	filters, err := dmlFilters(u.q)
	if err != nil {
		return 0, err
	}
	res, err := compile.NewCompiler(u.q.db.dialect).CompileUpdate(&query.UpdateSpec{
		Table:   u.q.table.Name,
		Sets:    u.sets,
		Filters: filters,
	})
	if err != nil {
		return 0, err
	}
	return execAffected(ctx, u.q, res)
}

// Delete accumulates one DELETE statement, with the same filter rules
// as Update.
type Delete struct {
	q *Query
}

// DeleteFrom starts a delete from the named table.
func (db *DB) DeleteFrom(table string) *Delete {
	return &Delete{q: db.Query(table)}
}

// F resolves a field of the deleted-from table for use in Filter.
func (d *Delete) F(path string) V { return d.q.F(path) }

// Filter restricts the rows to delete.
func (d *Delete) Filter(v any) *Delete {
	d.q.Filter(v)
	return d
}

// Exec runs the delete and returns the number of affected rows.
func (d *Delete) Exec(ctx context.Context) (int64, error) {
	filters, err := dmlFilters(d.q)
	if err != nil {
		return 0, err
	}
	res, err := compile.NewCompiler(d.q.db.dialect).CompileDelete(&query.DeleteSpec{
		Table:   d.q.table.Name,
		Filters: filters,
	})
	if err != nil {
		return 0, err
	}
	return execAffected(ctx, d.q, res)
}

// dmlFilters checks the builder state a DML statement can carry and
// binds filter literals to parameter slots.
func dmlFilters(q *Query) ([]query.Expr, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(q.spec.Joins) > 0 {
		return nil, fmt.Errorf("%w: filters may not cross relations here", ErrTypeMismatch)
	}
	if len(q.spec.GroupFilters) > 0 {
		return nil, fmt.Errorf("%w: aggregate filter outside a select", ErrAmbiguousAggregate)
	}
	for i, f := range q.spec.Filters {
		q.spec.Filters[i] = query.Map(f, func(e query.Expr) query.Expr {
			if lit, ok := e.(query.LiteralExpr); ok {
				return query.ParamExpr{Name: q.argSlot(lit.Value)}
			}
			return e
		})
	}
	return q.spec.Filters, nil
}

func execAffected(ctx context.Context, q *Query, res compile.Result) (int64, error) {
	r, err := q.db.exec(ctx, res, q.args)
	if err != nil {
		return 0, err
	}
	return r.RowsAffected()
}

// exec runs a compiled DML statement.
func (db *DB) exec(ctx context.Context, res compile.Result, args map[string]any) (sql.Result, error) {
	vals, err := positionalArgs(res, args)
	if err != nil {
		return nil, err
	}
	db.log.Debug("executing statement", "sql", res.SQL, "args", len(vals))
	r, err := db.q.ExecContext(ctx, res.SQL, vals...)
	if err != nil {
		return nil, fmt.Errorf("statement failed: %w", err)
	}
	return r, nil
}
