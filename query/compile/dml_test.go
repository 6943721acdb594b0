package compile

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rowmap/rowmap/query"
)

func TestCompileInsert(t *testing.T) {
	spec := &query.InsertSpec{
		Table:   "customers",
		Columns: []string{"id", "name", "city"},
		Values: []query.Expr{
			query.ParamExpr{Name: "_arg_1"},
			query.ParamExpr{Name: "_arg_2"},
			query.ParamExpr{Name: "_arg_3"},
		},
	}

	result, err := NewCompiler(Postgres).CompileInsert(spec)
	if err != nil {
		t.Fatalf("CompileInsert failed: %v", err)
	}

	want := `INSERT INTO "customers" ("id", "name", "city") VALUES ($1, $2, $3)`
	if result.SQL != want {
		t.Errorf("SQL mismatch:\ngot:  %s\nwant: %s", result.SQL, want)
	}
	if !reflect.DeepEqual(result.Params, []string{"_arg_1", "_arg_2", "_arg_3"}) {
		t.Errorf("Params = %v", result.Params)
	}
}

func TestCompileInsertRejectsMismatch(t *testing.T) {
	_, err := NewCompiler(SQLite).CompileInsert(&query.InsertSpec{
		Table:   "customers",
		Columns: []string{"id", "name"},
		Values:  []query.Expr{query.ParamExpr{Name: "_arg_1"}},
	})
	if !errors.Is(err, ErrCompilation) {
		t.Fatalf("err = %v, want ErrCompilation", err)
	}

	_, err = NewCompiler(SQLite).CompileInsert(&query.InsertSpec{Table: "customers"})
	if !errors.Is(err, ErrCompilation) {
		t.Fatalf("empty insert: err = %v, want ErrCompilation", err)
	}
}

func TestCompileUpdate(t *testing.T) {
	spec := &query.UpdateSpec{
		Table: "customers",
		Sets: []query.SetItem{
			{Column: "city", Value: query.ParamExpr{Name: "_arg_1"}},
			{Column: "vip", Value: query.ParamExpr{Name: "_arg_2"}},
		},
		Filters: []query.Expr{
			query.BinaryExpr{
				Left:  field("customers", "id"),
				Op:    query.OpEq,
				Right: query.ParamExpr{Name: "_arg_3"},
			},
		},
	}

	result, err := NewCompiler(Postgres).CompileUpdate(spec)
	if err != nil {
		t.Fatalf("CompileUpdate failed: %v", err)
	}

	want := `UPDATE "customers" SET "city" = $1, "vip" = $2 WHERE ("customers"."id" = $3)`
	if result.SQL != want {
		t.Errorf("SQL mismatch:\ngot:  %s\nwant: %s", result.SQL, want)
	}
	if !reflect.DeepEqual(result.Params, []string{"_arg_1", "_arg_2", "_arg_3"}) {
		t.Errorf("Params = %v", result.Params)
	}
}

func TestCompileUpdateRequiresFilter(t *testing.T) {
	_, err := NewCompiler(MySQL).CompileUpdate(&query.UpdateSpec{
		Table: "customers",
		Sets:  []query.SetItem{{Column: "city", Value: query.ParamExpr{Name: "_arg_1"}}},
	})
	if !errors.Is(err, ErrCompilation) {
		t.Fatalf("err = %v, want ErrCompilation", err)
	}
}

func TestCompileDelete(t *testing.T) {
	spec := &query.DeleteSpec{
		Table: "orders",
		Filters: []query.Expr{
			query.BinaryExpr{
				Left:  field("orders", "total"),
				Op:    query.OpLt,
				Right: query.ParamExpr{Name: "_arg_1"},
			},
			query.BinaryExpr{
				Left:  field("orders", "customer_id"),
				Op:    query.OpEq,
				Right: query.ParamExpr{Name: "_arg_2"},
			},
		},
	}

	result, err := NewCompiler(MySQL).CompileDelete(spec)
	if err != nil {
		t.Fatalf("CompileDelete failed: %v", err)
	}

	want := "DELETE FROM `orders` WHERE (`orders`.`total` < ?) AND (`orders`.`customer_id` = ?)"
	if result.SQL != want {
		t.Errorf("SQL mismatch:\ngot:  %s\nwant: %s", result.SQL, want)
	}
}

func TestCompileDeleteRequiresFilter(t *testing.T) {
	_, err := NewCompiler(SQLite).CompileDelete(&query.DeleteSpec{Table: "orders"})
	if !errors.Is(err, ErrCompilation) {
		t.Fatalf("err = %v, want ErrCompilation", err)
	}
}

func TestCompileDMLRejectsBadIdentifier(t *testing.T) {
	_, err := NewCompiler(Postgres).CompileInsert(&query.InsertSpec{
		Table:   `cust"omers`,
		Columns: []string{"id"},
		Values:  []query.Expr{query.ParamExpr{Name: "_arg_1"}},
	})
	if !errors.Is(err, ErrCompilation) {
		t.Fatalf("table: err = %v, want ErrCompilation", err)
	}

	_, err = NewCompiler(Postgres).CompileUpdate(&query.UpdateSpec{
		Table:   "customers",
		Sets:    []query.SetItem{{Column: "ci;ty", Value: query.ParamExpr{Name: "_arg_1"}}},
		Filters: []query.Expr{query.BinaryExpr{Left: field("customers", "id"), Op: query.OpEq, Right: query.ParamExpr{Name: "_arg_2"}}},
	})
	if !errors.Is(err, ErrCompilation) {
		t.Fatalf("column: err = %v, want ErrCompilation", err)
	}
}
