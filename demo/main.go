// A small end-to-end tour: declare a schema registry, open an
// in-memory SQLite database, create the tables, seed a few rows and
// run queries through the builder, frozen statements and lazy refs.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/rowmap/rowmap"
	"github.com/rowmap/rowmap/logging"
	"github.com/rowmap/rowmap/schema"
)

func petstoreRegistry() *schema.Registry {
	reg := schema.NewRegistry()

	reg.MustRegister(&schema.Table{
		Name:       "owners",
		BodyColumn: "body",
		View:       "name",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.KindInt, PK: true},
			{Name: "name", Kind: schema.KindString},
			{Name: "city", Kind: schema.KindString, Nullable: true},
			{Name: "newsletter", Kind: schema.KindBool},
			{Name: "referral", Kind: schema.KindString, InBody: true},
		},
		Relations: []*schema.Relation{
			{Name: "pets", Kind: schema.ReverseMany, Target: "pets", TargetFK: "owner_id"},
		},
	})

	reg.MustRegister(&schema.Table{
		Name: "pets",
		View: "name",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.KindInt, PK: true},
			{Name: "name", Kind: schema.KindString},
			{Name: "species", Kind: schema.KindString},
			{Name: "weight", Kind: schema.KindFloat},
			{Name: "owner", Column: "owner_id", Kind: schema.KindInt, Ref: "owners"},
		},
	})

	return reg
}

func setup(ctx context.Context, db *rowmap.DB) error {
	reg := db.Registry()
	for _, name := range reg.Tables() {
		t, _ := reg.Table(name)
		ddl, err := schema.CreateTableSQL(db.Dialect(), reg, t)
		if err != nil {
			return err
		}
		if _, err := db.Conn().ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		for _, idx := range schema.CreateIndexSQL(db.Dialect(), t) {
			if _, err := db.Conn().ExecContext(ctx, idx); err != nil {
				return fmt.Errorf("index %s: %w", name, err)
			}
		}
	}

	seed := []*rowmap.Insert{
		db.InsertInto("owners").Set("id", 1).Set("name", "Ada").
			Set("city", "Berlin").Set("newsletter", true).Set("referral", "friend"),
		db.InsertInto("owners").Set("id", 2).Set("name", "Bob").
			Set("city", "Paris").Set("newsletter", false),
		db.InsertInto("pets").Set("id", 1).Set("name", "Rex").
			Set("species", "dog").Set("weight", 24.5).Set("owner", 1),
		db.InsertInto("pets").Set("id", 2).Set("name", "Mia").
			Set("species", "cat").Set("weight", 4.2).Set("owner", 1),
		db.InsertInto("pets").Set("id", 3).Set("name", "Gil").
			Set("species", "fish").Set("weight", 0.1).Set("owner", 2),
	}
	for _, ins := range seed {
		if _, err := ins.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func run(ctx context.Context) error {
	db, err := rowmap.Open("sqlite::memory:", petstoreRegistry(),
		rowmap.WithLogger(logging.QueryLogger(os.Stderr)))
	if err != nil {
		return err
	}
	conn := db.Conn().(*sql.DB)
	defer conn.Close()
	// In-memory SQLite vanishes when a second connection opens.
	conn.SetMaxOpenConns(1)

	if err := setup(ctx, db); err != nil {
		return err
	}

	// Builder query with a join hop through the owner ref.
	pets, err := db.Query("pets").
		SelectFields("name", "species", "owner.name").
		SortBy("name").
		FetchAll(ctx)
	if err != nil {
		return err
	}
	fmt.Println("pets and their owners:")
	for _, row := range pets {
		fmt.Printf("  %v (%v) belongs to %v\n",
			row.Get("name"), row.Get("species"), row.Get("owner__name"))
	}

	// Aggregate over a filter.
	ada := db.Query("pets")
	total, err := ada.Filter(ada.F("owner.name").Eq("Ada")).FetchSum(ctx, "weight")
	if err != nil {
		return err
	}
	fmt.Printf("Ada's pets weigh %v kg in total\n", total)

	// Document property extracted from the JSON body.
	q := db.Query("owners")
	referral, err := q.Filter(q.F("referral").Eq("friend")).FetchList(ctx, "name")
	if err != nil {
		return err
	}
	fmt.Printf("owners referred by a friend: %v\n", referral)

	// Freeze once, rebind and re-run with a different threshold.
	heavy := db.Query("pets").SelectFields("name", "weight")
	heavy.Filter(heavy.F("weight").Gt(heavy.Var("min_weight", 10.0)))
	st, err := heavy.Freeze()
	if err != nil {
		return err
	}
	for _, min := range []float64{10, 1} {
		rows, err := st.MustBind("min_weight", min).FetchAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pets above %v kg: %d\n", min, len(rows))
	}

	// Lazy ref: the owner column materializes as a handle, fetched on
	// demand and memoized.
	rex := db.Query("pets").SelectFields("name", "owner")
	row, err := rex.Filter(rex.F("name").Eq("Rex")).FetchOne(ctx)
	if err != nil {
		return err
	}
	ref := row.Get("owner").(*rowmap.Ref)
	owner, err := ref.Fetch(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Rex's owner resolved lazily: %v\n", owner.Get("name"))

	// A post-checkup weigh-in.
	upd := db.Update("pets").Set("weight", 25.0)
	n, err := upd.Filter(upd.F("name").Eq("Rex")).Exec(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("updated %d row(s)\n", n)

	return nil
}

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}
