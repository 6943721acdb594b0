package rowmap

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/rowmap/rowmap/schema"
)

// openFixtureDB provisions an in-memory SQLite database with the test
// schema and a small data set.
func openFixtureDB(t *testing.T) *DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	// one in-memory database, one connection
	conn.SetMaxOpenConns(1)

	reg := testRegistry(t)
	db, err := NewDB(conn, "sqlite", reg)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}

	ctx := context.Background()
	for _, name := range reg.Tables() {
		tbl, _ := reg.Table(name)
		ddl, err := schema.CreateTableSQL(schema.DialectSQLite, reg, tbl)
		if err != nil {
			t.Fatalf("ddl %s: %v", name, err)
		}
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	stmts := []string{
		`INSERT INTO customers (id, name, city, vip, body) VALUES
			(1, 'Ada', 'Berlin', 1, '{"nickname":"ada","discount":2.5}'),
			(2, 'Bob', 'Paris', 0, '{"nickname":"bobby","discount":0}'),
			(3, 'Cleo', NULL, 0, '{}')`,
		`INSERT INTO orders (id, customer_id, total, created) VALUES
			(10, 1, 100, '2024-01-05 10:00:00'),
			(11, 1, 50, '2024-02-05 10:00:00'),
			(12, 2, 25, '2024-03-05 10:00:00')`,
		`INSERT INTO employees (id, name, boss_id, next_id) VALUES
			(1, 'root', NULL, 2),
			(2, 'mid', 1, 3),
			(3, 'leaf', 1, NULL)`,
		`INSERT INTO managers (id, name, role) VALUES
			(1, 'Mia', 'manager'),
			(2, 'Ned', 'intern')`,
	}
	for _, s := range stmts {
		if _, err := conn.ExecContext(ctx, s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return db
}

func TestFetchAllRows(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("customers")
	q.SelectFields("id", "name", "vip").SortBy("id")

	rows, err := q.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0].Get("name") != "Ada" || rows[0].Get("id") != int64(1) {
		t.Errorf("first row: %v", rows[0].Map())
	}
	if rows[0].Get("vip") != true || rows[1].Get("vip") != false {
		t.Errorf("bool normalization: %v %v", rows[0].Get("vip"), rows[1].Get("vip"))
	}
}

func TestFetchOneAndNotFound(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("customers")
	q.SelectFields("name").Filter(q.F("id").Eq(2))
	row, err := q.FetchOne(ctx)
	if err != nil {
		t.Fatalf("FetchOne: %v", err)
	}
	if row.Get("name") != "Bob" {
		t.Errorf("row: %v", row.Map())
	}

	q2 := db.Query("customers")
	q2.SelectFields("name").Filter(q2.F("id").Eq(99))
	if _, err := q2.FetchOne(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchValueAndList(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("customers")
	q.Select("name", "name").Filter(q.F("id").Eq(1))
	v, err := q.FetchValue(ctx)
	if err != nil {
		t.Fatalf("FetchValue: %v", err)
	}
	if v != "Ada" {
		t.Errorf("value: %v", v)
	}

	q2 := db.Query("customers")
	q2.SelectFields("name").SortBy("name")
	names, err := q2.FetchList(ctx, "name")
	if err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	if len(names) != 3 || names[0] != "Ada" || names[2] != "Cleo" {
		t.Errorf("names: %v", names)
	}
}

func TestAggregateFetches(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("orders")
	n, err := q.FetchCount(ctx)
	if err != nil {
		t.Fatalf("FetchCount: %v", err)
	}
	if n != 3 {
		t.Errorf("count: %d", n)
	}

	sum, err := q.FetchSum(ctx, "total")
	if err != nil {
		t.Fatalf("FetchSum: %v", err)
	}
	if f, _ := toFloat64(sum); f != 175 {
		t.Errorf("sum: %v", sum)
	}

	// the aggregate runs over the filtered set
	q2 := db.Query("orders")
	q2.Filter(q2.F("customer.name").Eq("Ada"))
	sum2, err := q2.FetchSum(ctx, "total")
	if err != nil {
		t.Fatalf("filtered FetchSum: %v", err)
	}
	if f, _ := toFloat64(sum2); f != 150 {
		t.Errorf("filtered sum: %v", sum2)
	}

	// an empty set sums to zero, not NULL
	q3 := db.Query("orders")
	q3.Filter(q3.F("total").Gt(10000))
	sum3, err := q3.FetchSum(ctx, "total")
	if err != nil {
		t.Fatalf("empty FetchSum: %v", err)
	}
	if f, ok := toFloat64(sum3); !ok || f != 0 {
		t.Errorf("empty sum: %v", sum3)
	}

	max, err := db.Query("orders").FetchMax(ctx, "total")
	if err != nil {
		t.Fatalf("FetchMax: %v", err)
	}
	if f, _ := toFloat64(max); f != 100 {
		t.Errorf("max: %v", max)
	}
}

func TestExistsAndExecute(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("customers")
	q.Filter(q.F("vip").Eq(true))
	ok, err := q.Exists(ctx)
	if err != nil || !ok {
		t.Errorf("Exists vip: %v %v", ok, err)
	}

	q2 := db.Query("customers")
	q2.Filter(q2.F("name").Eq("Zed"))
	ok, err = q2.Exists(ctx)
	if err != nil || ok {
		t.Errorf("Exists absent: %v %v", ok, err)
	}

	seen := 0
	q3 := db.Query("orders")
	q3.SelectFields("id")
	if err := q3.Execute(ctx, func(r *Row) error {
		seen++
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen != 3 {
		t.Errorf("streamed %d rows", seen)
	}
}

func TestJoinedFetch(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("orders")
	q.Select("buyer", "customer.name").
		Select("total", "total").
		SortByDesc("total")

	rows, err := q.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0].Get("buyer") != "Ada" {
		t.Errorf("top row: %v", rows[0].Map())
	}
}

func TestGroupedFetch(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("customers")
	q.Select("name", "name").
		Select("spent", q.F("orders.total").Sum()).
		Filter(q.F("orders.total").Sum().Gt(30)).
		SortByDesc(q.F("orders.total").Sum())

	rows, err := q.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows: %v", len(rows), rows)
	}
	if rows[0].Get("name") != "Ada" {
		t.Errorf("row: %v", rows[0].Map())
	}
	if f, _ := toFloat64(rows[0].Get("spent")); f != 150 {
		t.Errorf("spent: %v", rows[0].Get("spent"))
	}
}

func TestAggregateFilterOnlyFetch(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	// The aggregate appears only in the filter; the statement must
	// still group on the plain select.
	q := db.Query("customers")
	q.Select("name", "name").Filter(q.F("orders.total").Sum().Gt(30))

	names, err := q.FetchList(ctx, "name")
	if err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	if len(names) != 1 || names[0] != "Ada" {
		t.Errorf("names: %v", names)
	}
}

func TestBodyPropertyFetch(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("customers")
	q.Select("nick", "nickname").
		Select("disc", "discount").
		Filter(q.F("id").Eq(1))

	row, err := q.FetchOne(ctx)
	if err != nil {
		t.Fatalf("FetchOne: %v", err)
	}
	if row.Get("nick") != "ada" {
		t.Errorf("nickname: %v", row.Get("nick"))
	}
	if f, _ := toFloat64(row.Get("disc")); f != 2.5 {
		t.Errorf("discount: %v", row.Get("disc"))
	}
}

func TestDiscriminatorFetch(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	rows, err := db.Query("managers").FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 1 || rows[0].Get("name") != "Mia" {
		t.Errorf("discriminated rows: %d", len(rows))
	}
}

func TestLazyRefFetch(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("orders")
	q.SelectFields("id", "customer").Filter(q.F("id").Eq(10))
	row, err := q.FetchOne(ctx)
	if err != nil {
		t.Fatalf("FetchOne: %v", err)
	}

	ref, ok := row.Get("customer").(*Ref)
	if !ok {
		t.Fatalf("expected *Ref, got %T", row.Get("customer"))
	}
	if ref.Key() != int64(1) {
		t.Errorf("key: %v", ref.Key())
	}

	target, err := ref.Fetch(ctx)
	if err != nil {
		t.Fatalf("Ref.Fetch: %v", err)
	}
	if target.Get("name") != "Ada" {
		t.Errorf("target: %v", target.Map())
	}

	// memoized: a second fetch returns the same row
	again, err := ref.Fetch(ctx)
	if err != nil || again != target {
		t.Errorf("memoization: %v %v", again, err)
	}
}

func TestChainedFetch(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("employees")
	q.SelectFields("id", "name", "next").Chained("id", "next", 1)

	rows, err := q.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	got := map[any]bool{}
	for _, r := range rows {
		got[r.Get("id")] = true
	}
	if len(rows) != 3 || !got[int64(1)] || !got[int64(2)] || !got[int64(3)] {
		t.Errorf("chain rows: %v", got)
	}
}

func TestFrozenStatementFetch(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("orders")
	min := q.Var("min_total", 40)
	q.SelectFields("id").Filter(q.F("total").Ge(min)).SortBy("id")
	st, err := q.Freeze()
	if err != nil {
		t.Fatalf("Freeze: %v", err)
	}

	rows, err := st.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("min 40: %d rows", len(rows))
	}

	if err := st.Bind("min_total", 100); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	rows, err = st.FetchAll(ctx)
	if err != nil {
		t.Fatalf("rebound FetchAll: %v", err)
	}
	if len(rows) != 1 || rows[0].Get("id") != int64(10) {
		t.Errorf("min 100: %v", rows)
	}
}

func TestWithSubqueryFetch(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	sub := db.Query("customers")
	sub.SelectFields("id").Filter(sub.F("vip").Eq(true))

	q := db.Query("orders")
	w := q.With("vips", sub)
	q.SelectFields("id").Filter(q.F("customer").In(w)).SortBy("id")

	ids, err := q.FetchList(ctx, "id")
	if err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	if len(ids) != 2 || ids[0] != int64(10) || ids[1] != int64(11) {
		t.Errorf("ids: %v", ids)
	}
}

func TestScanThroughFetch(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("orders")
	q.Select("id", "id").
		Select("buyer_name", "customer.name").
		Select("total", "total").
		Filter(q.F("id").Eq(12))
	row, err := q.FetchOne(ctx)
	if err != nil {
		t.Fatalf("FetchOne: %v", err)
	}

	var out struct {
		ID        int64
		BuyerName string
		Total     float64
	}
	if err := row.Scan(&out); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if out.ID != 12 || out.BuyerName != "Bob" || out.Total != 25 {
		t.Errorf("scanned: %+v", out)
	}
}

func TestInsertRoundTrip(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	_, err := db.InsertInto("customers").
		Set("id", 4).
		Set("name", "Dana").
		Set("city", "Oslo").
		Set("vip", true).
		Set("nickname", "dee").
		Set("discount", 1.5).
		Exec(ctx)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	q := db.Query("customers")
	q.Select("nick", "nickname").
		Select("city", "city").
		Filter(q.F("id").Eq(4))
	row, err := q.FetchOne(ctx)
	if err != nil {
		t.Fatalf("FetchOne: %v", err)
	}
	if row.Get("nick") != "dee" {
		t.Errorf("nickname: %v", row.Get("nick"))
	}
	if row.Get("city") != "Oslo" {
		t.Errorf("city: %v", row.Get("city"))
	}
}

func TestInsertAcceptsRefValue(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	q := db.Query("orders")
	q.SelectFields("id", "customer").Filter(q.F("id").Eq(10))
	row, err := q.FetchOne(ctx)
	if err != nil {
		t.Fatalf("FetchOne: %v", err)
	}
	buyer := row.Get("customer").(*Ref)

	if _, err := db.InsertInto("orders").
		Set("id", 13).
		Set("customer", buyer).
		Set("total", 75.0).
		Set("created", "2024-04-05 10:00:00").
		Exec(ctx); err != nil {
		t.Fatalf("insert: %v", err)
	}

	q2 := db.Query("orders")
	sum, err := q2.Filter(q2.F("customer.name").Eq("Ada")).FetchSum(ctx, "total")
	if err != nil {
		t.Fatalf("FetchSum: %v", err)
	}
	if f, _ := toFloat64(sum); f != 225 {
		t.Errorf("sum = %v, want 225", sum)
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	upd := db.Update("customers").Set("city", "Lyon").Set("vip", true)
	n, err := upd.Filter(upd.F("name").Eq("Bob")).Exec(ctx)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 1 {
		t.Errorf("affected = %d, want 1", n)
	}

	q := db.Query("customers")
	row, err := q.Filter(q.F("id").Eq(2)).FetchOne(ctx)
	if err != nil {
		t.Fatalf("FetchOne: %v", err)
	}
	if row.Get("city") != "Lyon" {
		t.Errorf("city: %v", row.Get("city"))
	}
}

func TestDeleteRoundTrip(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	del := db.DeleteFrom("orders")
	n, err := del.Filter(del.F("total").Lt(60)).Exec(ctx)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Errorf("affected = %d, want 2", n)
	}

	ids, err := db.Query("orders").FetchList(ctx, "id")
	if err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	if len(ids) != 1 || ids[0] != int64(10) {
		t.Errorf("surviving orders: %v", ids)
	}
}

func TestDiscriminatorScopedDML(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	// insert fills the discriminator column on its own
	if _, err := db.InsertInto("managers").
		Set("id", 3).
		Set("name", "Olga").
		Exec(ctx); err != nil {
		t.Fatalf("insert: %v", err)
	}

	names, err := db.Query("managers").SortBy("id").FetchList(ctx, "name")
	if err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	if len(names) != 2 || names[0] != "Mia" || names[1] != "Olga" {
		t.Errorf("managers: %v", names)
	}

	// an unfiltered delete on a discriminated table only reaches
	// rows of that discriminator value
	n, err := db.DeleteFrom("managers").Exec(ctx)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Errorf("affected = %d, want 2", n)
	}

	var left int
	if err := db.Conn().QueryRowContext(ctx, "SELECT count(*) FROM managers").Scan(&left); err != nil {
		t.Fatalf("count: %v", err)
	}
	if left != 1 {
		t.Errorf("rows left = %d, want the intern only", left)
	}
}

func TestSubstringMatchWithMetacharacters(t *testing.T) {
	db := openFixtureDB(t)
	ctx := context.Background()

	if _, err := db.InsertInto("customers").
		Set("id", 5).
		Set("name", "100% Juice Ltd").
		Set("vip", false).
		Exec(ctx); err != nil {
		t.Fatalf("insert: %v", err)
	}

	q := db.Query("customers")
	names, err := q.Filter(q.F("name").Contains("100%")).FetchList(ctx, "name")
	if err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	if len(names) != 1 || names[0] != "100% Juice Ltd" {
		t.Errorf("contains: %v", names)
	}

	q2 := db.Query("customers")
	names, err = q2.Filter(q2.F("name").StartsWith("100%")).FetchList(ctx, "name")
	if err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	if len(names) != 1 || names[0] != "100% Juice Ltd" {
		t.Errorf("starts-with: %v", names)
	}

	q3 := db.Query("customers")
	names, err = q3.Filter(q3.F("name").EndsWith("b")).FetchList(ctx, "name")
	if err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	if len(names) != 1 || names[0] != "Bob" {
		t.Errorf("ends-with: %v", names)
	}
}
