// Package schema holds declared table metadata: fields, relations,
// discriminators and presentation paths. The query builder resolves
// dotted field paths against a Registry; nothing here touches the
// database.
package schema

import (
	"fmt"
	"sort"

	"github.com/rowmap/rowmap/dbstrings"
)

// Kind is the semantic type of a column or expression result.
type Kind string

const (
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindString   Kind = "string"
	KindBool     Kind = "bool"
	KindBytes    Kind = "bytes"
	KindTime     Kind = "time"
	KindDate     Kind = "date"
	KindInterval Kind = "interval"
	KindUUID     Kind = "uuid"
	KindJSON     Kind = "json"
	KindAny      Kind = "any"
)

// Field describes one declared column.
//
// A field with Ref set is a foreign key: its column stores the primary
// key of a row in the Ref table. A field with InBody set has no column
// of its own; its value lives as a property inside the table's body
// document column.
type Field struct {
	Name     string
	Column   string // defaults to Name
	Kind     Kind
	PK       bool
	Nullable bool
	Indexed  bool
	Unique   bool
	InBody   bool
	Ref      string // target table name for reference fields
}

// RelKind distinguishes how a relation is stored.
type RelKind string

const (
	// RefRelation is a single-valued reference held by a foreign-key
	// field on the source table. It is derived from Field.Ref and never
	// declared directly.
	RefRelation RelKind = "ref"
	// ReverseMany is the reverse side of a RefRelation: zero or more
	// target rows point back at the source row.
	ReverseMany RelKind = "reverse_many"
	// ManyToMany links through a middle table holding one foreign key
	// to each side.
	ManyToMany RelKind = "many_to_many"
)

// Relation describes a declared multi-valued relation.
type Relation struct {
	Name      string
	Kind      RelKind
	Target    string // target table name
	TargetFK  string // ReverseMany: column on target pointing at source PK
	Via       string // ManyToMany: middle table name
	ViaSource string // ManyToMany: middle-table column pointing at source PK
	ViaTarget string // ManyToMany: middle-table column pointing at target PK
}

// Discriminator distinguishes logical entity subtypes that share one
// physical table. Queries against a discriminated table implicitly
// filter on Column = Value.
type Discriminator struct {
	Column string
	Value  string
}

// Table is the declared metadata for one table.
type Table struct {
	Name          string
	Fields        []*Field
	Relations     []*Relation
	BodyColumn    string // column holding the JSON document for InBody fields
	Discriminator *Discriminator
	// View is a field path on this table substituted when a bare
	// reference to a related row appears in an expression without
	// naming a specific field, e.g. "name".
	View string

	fieldsByName map[string]*Field
	relsByName   map[string]*Relation
	pk           *Field
}

// PK returns the primary-key field.
func (t *Table) PK() *Field { return t.pk }

// Field looks up a declared field by name.
func (t *Table) Field(name string) (*Field, bool) {
	f, ok := t.fieldsByName[name]
	return f, ok
}

// Relation looks up a declared multi-valued relation by name.
func (t *Table) Relation(name string) (*Relation, bool) {
	r, ok := t.relsByName[name]
	return r, ok
}

// index builds the lookup maps and validates local invariants.
func (t *Table) index() error {
	if t.Name == "" {
		return fmt.Errorf("table has no name")
	}
	t.fieldsByName = make(map[string]*Field, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("table %s: field has no name", t.Name)
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		if f.Kind == "" {
			f.Kind = KindAny
		}
		if _, dup := t.fieldsByName[f.Name]; dup {
			return fmt.Errorf("table %s: duplicate field %s", t.Name, f.Name)
		}
		t.fieldsByName[f.Name] = f
		if f.PK {
			if t.pk != nil {
				return fmt.Errorf("table %s: multiple primary keys", t.Name)
			}
			t.pk = f
		}
		if f.InBody && t.BodyColumn == "" {
			return fmt.Errorf("table %s: field %s is in body but table has no body column", t.Name, f.Name)
		}
	}
	if t.pk == nil {
		return fmt.Errorf("table %s: no primary key declared", t.Name)
	}
	t.relsByName = make(map[string]*Relation, len(t.Relations))
	for _, r := range t.Relations {
		if r.Name == "" {
			return fmt.Errorf("table %s: relation has no name", t.Name)
		}
		if _, shadow := t.fieldsByName[r.Name]; shadow {
			return fmt.Errorf("table %s: relation %s shadows a field", t.Name, r.Name)
		}
		if _, dup := t.relsByName[r.Name]; dup {
			return fmt.Errorf("table %s: duplicate relation %s", t.Name, r.Name)
		}
		switch r.Kind {
		case ReverseMany:
			if r.Target == "" || r.TargetFK == "" {
				return fmt.Errorf("table %s: relation %s needs Target and TargetFK", t.Name, r.Name)
			}
		case ManyToMany:
			if r.Target == "" || r.Via == "" || r.ViaSource == "" || r.ViaTarget == "" {
				return fmt.Errorf("table %s: relation %s needs Target, Via, ViaSource and ViaTarget", t.Name, r.Name)
			}
		default:
			return fmt.Errorf("table %s: relation %s has unknown kind %q", t.Name, r.Name, r.Kind)
		}
		t.relsByName[r.Name] = r
	}
	return nil
}

// Registry is the set of declared tables a query can reference.
type Registry struct {
	tables map[string]*Table
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Register validates and adds a table. Reference targets are checked
// lazily by Resolve so tables may be registered in any order.
func (r *Registry) Register(t *Table) error {
	if err := t.index(); err != nil {
		return err
	}
	if _, dup := r.tables[t.Name]; dup {
		return fmt.Errorf("table %s already registered", t.Name)
	}
	r.tables[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister is Register for init-time declarations.
func (r *Registry) MustRegister(t *Table) *Table {
	if err := r.Register(t); err != nil {
		panic(err)
	}
	return t
}

// Table looks up a registered table by name.
func (r *Registry) Table(name string) (*Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Tables returns registered table names in registration order.
func (r *Registry) Tables() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Validate checks cross-table invariants: every reference field and
// relation must point at a registered table.
func (r *Registry) Validate() error {
	names := make([]string, 0, len(r.tables))
	for n := range r.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		t := r.tables[n]
		for _, f := range t.Fields {
			if f.Ref == "" {
				continue
			}
			if _, ok := r.tables[f.Ref]; !ok {
				return fmt.Errorf("table %s: field %s references unknown table %s", t.Name, f.Name, f.Ref)
			}
		}
		for _, rel := range t.Relations {
			if _, ok := r.tables[rel.Target]; !ok {
				return fmt.Errorf("table %s: relation %s targets unknown table %s", t.Name, rel.Name, rel.Target)
			}
			if rel.Kind == ManyToMany {
				if _, ok := r.tables[rel.Via]; !ok {
					return fmt.Errorf("table %s: relation %s goes via unknown table %s", t.Name, rel.Name, rel.Via)
				}
			}
		}
	}
	return nil
}

// TableNameFor derives the conventional table name for a Go type name:
// snake case, pluralized. "SaleItem" becomes "sale_items".
func TableNameFor(goName string) string {
	return dbstrings.ToPlural(dbstrings.ToSnakeCase(goName))
}
