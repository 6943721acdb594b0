package schema

import (
	"strings"
	"testing"
)

func ddlRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister(&Table{
		Name: "authors",
		Fields: []*Field{
			{Name: "id", Kind: KindInt, PK: true},
			{Name: "name", Kind: KindString},
		},
	})
	reg.MustRegister(&Table{
		Name:       "books",
		BodyColumn: "body",
		Fields: []*Field{
			{Name: "id", Kind: KindInt, PK: true},
			{Name: "title", Kind: KindString, Indexed: true},
			{Name: "isbn", Kind: KindString, Unique: true, Indexed: true},
			{Name: "author", Column: "author_id", Kind: KindInt, Ref: "authors"},
			{Name: "pages", Kind: KindInt, Nullable: true},
			{Name: "blurb", Kind: KindString, InBody: true},
		},
	})
	return reg
}

func TestCreateTableSQLPostgres(t *testing.T) {
	reg := ddlRegistry(t)
	books, _ := reg.Table("books")

	sql, err := CreateTableSQL(DialectPostgres, reg, books)
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "books" (`,
		`"id" serial PRIMARY KEY`,
		`"title" text NOT NULL`,
		`"isbn" text NOT NULL UNIQUE`,
		`"author_id" integer NOT NULL REFERENCES "authors" ("id")`,
		`"pages" integer`,
		`"body" jsonb`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("missing %q in:\n%s", want, sql)
		}
	}
	if strings.Contains(sql, "blurb") {
		t.Errorf("body property must not become a column:\n%s", sql)
	}
	if strings.Contains(sql, `"pages" integer NOT NULL`) {
		t.Errorf("nullable column rendered NOT NULL:\n%s", sql)
	}
}

func TestCreateTableSQLSQLite(t *testing.T) {
	reg := ddlRegistry(t)
	books, _ := reg.Table("books")

	sql, err := CreateTableSQL(DialectSQLite, reg, books)
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	if !strings.Contains(sql, `"id" integer PRIMARY KEY AUTOINCREMENT`) {
		t.Errorf("sqlite pk: %s", sql)
	}
	if !strings.Contains(sql, `"body" text`) {
		t.Errorf("sqlite body column: %s", sql)
	}
}

func TestCreateTableSQLMySQL(t *testing.T) {
	reg := ddlRegistry(t)
	books, _ := reg.Table("books")

	sql, err := CreateTableSQL(DialectMySQL, reg, books)
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	if !strings.Contains(sql, "`id` bigint AUTO_INCREMENT PRIMARY KEY") {
		t.Errorf("mysql pk: %s", sql)
	}
	if !strings.Contains(sql, "`author_id` integer NOT NULL REFERENCES `authors` (`id`)") {
		t.Errorf("mysql ref: %s", sql)
	}
}

func TestCreateIndexSQL(t *testing.T) {
	reg := ddlRegistry(t)
	books, _ := reg.Table("books")

	stmts := CreateIndexSQL(DialectPostgres, books)
	if len(stmts) != 2 {
		t.Fatalf("got %d index statements: %v", len(stmts), stmts)
	}
	if !strings.Contains(stmts[0], `CREATE INDEX IF NOT EXISTS "books_title_idx" ON "books" ("title")`) {
		t.Errorf("title index: %s", stmts[0])
	}
	if !strings.HasPrefix(stmts[1], "CREATE UNIQUE INDEX") {
		t.Errorf("unique index: %s", stmts[1])
	}
}
