package schema

import (
	"fmt"
	"strings"
)

// SQL dialect names accepted by CreateTableSQL. They match the dialect
// names used by the query compiler.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// columnType maps a field to a column type for the given dialect.
func columnType(dialect string, f *Field) (string, error) {
	if f.PK && f.Kind == KindInt {
		switch dialect {
		case DialectPostgres:
			return "serial", nil
		case DialectMySQL:
			return "bigint AUTO_INCREMENT", nil
		case DialectSQLite:
			return "integer", nil
		}
	}
	switch f.Kind {
	case KindInt:
		return "integer", nil
	case KindFloat:
		return "double precision", nil
	case KindString:
		return "text", nil
	case KindBool:
		return "boolean", nil
	case KindBytes:
		if dialect == DialectPostgres {
			return "bytea", nil
		}
		return "blob", nil
	case KindTime:
		return "timestamp", nil
	case KindDate:
		return "date", nil
	case KindInterval:
		if dialect == DialectPostgres {
			return "interval", nil
		}
		return "bigint", nil
	case KindUUID:
		if dialect == DialectPostgres {
			return "uuid", nil
		}
		return "text", nil
	case KindJSON:
		if dialect == DialectPostgres {
			return "jsonb", nil
		}
		return "text", nil
	}
	return "", fmt.Errorf("no %s column type for kind %q", dialect, f.Kind)
}

func quoteIdent(dialect, name string) string {
	if dialect == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// CreateTableSQL renders a CREATE TABLE IF NOT EXISTS statement for the
// table. It exists to provision fixture schemas in tests and demos; it
// is not a migration engine.
func CreateTableSQL(dialect string, reg *Registry, t *Table) (string, error) {
	cols := make([]string, 0, len(t.Fields)+1)
	seenBody := false
	for _, f := range t.Fields {
		if f.InBody {
			seenBody = true
			continue
		}
		typ := ""
		var err error
		if f.Ref != "" {
			target, ok := reg.Table(f.Ref)
			if !ok {
				return "", fmt.Errorf("table %s: field %s references unknown table %s", t.Name, f.Name, f.Ref)
			}
			refKind := target.PK().Kind
			// Referencing columns never auto-increment.
			typ, err = columnType(dialect, &Field{Kind: refKind})
		} else {
			typ, err = columnType(dialect, f)
		}
		if err != nil {
			return "", err
		}
		def := quoteIdent(dialect, f.Column) + " " + typ
		if f.PK {
			def += " PRIMARY KEY"
			if dialect == DialectSQLite && f.Kind == KindInt {
				def += " AUTOINCREMENT"
			}
		} else if !f.Nullable {
			def += " NOT NULL"
		}
		if f.Unique && !f.PK {
			def += " UNIQUE"
		}
		if f.Ref != "" {
			target, _ := reg.Table(f.Ref)
			def += fmt.Sprintf(" REFERENCES %s (%s)",
				quoteIdent(dialect, target.Name), quoteIdent(dialect, target.PK().Column))
		}
		cols = append(cols, def)
	}
	if seenBody || t.BodyColumn != "" {
		if t.BodyColumn == "" {
			return "", fmt.Errorf("table %s: body fields without a body column", t.Name)
		}
		bodyType := "text"
		if dialect == DialectPostgres {
			bodyType = "jsonb"
		}
		cols = append(cols, quoteIdent(dialect, t.BodyColumn)+" "+bodyType)
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("table %s has no columns", t.Name)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdent(dialect, t.Name), strings.Join(cols, ", ")), nil
}

// CreateIndexSQL renders CREATE INDEX statements for every indexed
// field of the table.
func CreateIndexSQL(dialect string, t *Table) []string {
	var out []string
	for _, f := range t.Fields {
		if !f.Indexed || f.PK || f.InBody {
			continue
		}
		unique := ""
		if f.Unique {
			unique = "UNIQUE "
		}
		out = append(out, fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			unique,
			quoteIdent(dialect, t.Name+"_"+f.Column+"_idx"),
			quoteIdent(dialect, t.Name),
			quoteIdent(dialect, f.Column)))
	}
	return out
}
