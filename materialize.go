package rowmap

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rowmap/rowmap/query"
	"github.com/rowmap/rowmap/schema"
)

// Row is one materialized result row. Values are normalized to Go types
// by output kind; reference columns become *Ref handles.
type Row struct {
	outputs []query.OutputField
	values  []any
	index   map[string]int
}

// Len returns the number of output columns.
func (r *Row) Len() int { return len(r.values) }

// Names returns the output column names in select order.
func (r *Row) Names() []string {
	out := make([]string, len(r.outputs))
	for i, o := range r.outputs {
		out[i] = o.Name
	}
	return out
}

// ByIndex returns the value at the given output position.
func (r *Row) ByIndex(i int) any { return r.values[i] }

// ByName returns the value of the named output.
func (r *Row) ByName(name string) (any, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Get is ByName without the presence flag; missing names yield nil.
func (r *Row) Get(name string) any {
	v, _ := r.ByName(name)
	return v
}

// Map copies the row into a name-keyed map.
func (r *Row) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for i, o := range r.outputs {
		out[o.Name] = r.values[i]
	}
	return out
}

// Scan copies the row into a struct pointer. Fields match outputs by
// `db` tag, or by the snake-cased field name when untagged. Outputs
// with no matching field are skipped.
func (r *Row) Scan(dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: Scan needs a struct pointer, got %T", ErrTypeMismatch, dest)
	}
	sv := rv.Elem()
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("db")
		if name == "-" {
			continue
		}
		if name == "" {
			name = fieldOutputName(f.Name)
		}
		val, ok := r.ByName(name)
		if !ok {
			continue
		}
		if err := assign(sv.Field(i), val); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return nil
}

// fieldOutputName maps an untagged Go field name to an output name.
// Unlike dbstrings.ToSnakeCase it treats an uppercase run as one word,
// so ID becomes id and PhotoURL becomes photo_url.
func fieldOutputName(name string) string {
	rs := []rune(name)
	var b strings.Builder
	for i, r := range rs {
		if unicode.IsUpper(r) {
			startsWord := i > 0 && !unicode.IsUpper(rs[i-1])
			endsRun := i > 0 && i+1 < len(rs) && unicode.IsUpper(rs[i-1]) && unicode.IsLower(rs[i+1])
			if startsWord || endsRun {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// assign stores a normalized value into a struct field, converting
// between compatible numeric and pointer shapes.
func assign(field reflect.Value, val any) error {
	if val == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	vv := reflect.ValueOf(val)
	ft := field.Type()
	if vv.Type().AssignableTo(ft) {
		field.Set(vv)
		return nil
	}
	if ft.Kind() == reflect.Pointer {
		elem := reflect.New(ft.Elem())
		if err := assign(elem.Elem(), val); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}
	if vv.Type().ConvertibleTo(ft) {
		switch ft.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64, reflect.String, reflect.Bool:
			field.Set(vv.Convert(ft))
			return nil
		}
	}
	return fmt.Errorf("%w: cannot store %T into %s", ErrTypeMismatch, val, ft)
}

// Rows iterates a result set, materializing one Row per Next/Row pair.
// Close must be called unless iteration runs to completion.
type Rows struct {
	db      *DB
	rows    *sql.Rows
	outputs []query.OutputField
	index   map[string]int
}

// Next advances to the next row.
func (rs *Rows) Next() bool { return rs.rows.Next() }

// Err returns the error that ended iteration, if any.
func (rs *Rows) Err() error { return rs.rows.Err() }

// Close releases the underlying result set.
func (rs *Rows) Close() error { return rs.rows.Close() }

// Row materializes the current row.
func (rs *Rows) Row() (*Row, error) {
	raw := make([]any, len(rs.outputs))
	ptrs := make([]any, len(rs.outputs))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rs.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("row scan failed: %w", err)
	}
	if rs.index == nil {
		rs.index = make(map[string]int, len(rs.outputs))
		for i, o := range rs.outputs {
			rs.index[o.Name] = i
		}
	}
	values := make([]any, len(raw))
	for i, v := range raw {
		nv, err := rs.db.normalize(v, rs.outputs[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", rs.outputs[i].Name, err)
		}
		values[i] = nv
	}
	return &Row{outputs: rs.outputs, values: values, index: rs.index}, nil
}

// normalize converts a driver value to the Go shape its output kind
// promises. Reference columns wrap the key in a lazy Ref.
func (db *DB) normalize(v any, out query.OutputField) (any, error) {
	if v == nil {
		return nil, nil
	}
	if out.RefTable != "" {
		return &Ref{db: db, table: out.RefTable, key: denormRef(v)}, nil
	}
	switch out.Kind {
	case schema.KindInt:
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not an integer", ErrTypeMismatch, v)
		}
		return n, nil
	case schema.KindFloat:
		f, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a float", ErrTypeMismatch, v)
		}
		return f, nil
	case schema.KindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case []byte:
			return string(x) == "1" || string(x) == "true", nil
		}
		return nil, fmt.Errorf("%w: %T is not a bool", ErrTypeMismatch, v)
	case schema.KindString, schema.KindUUID, schema.KindJSON:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
		return fmt.Sprint(v), nil
	case schema.KindBytes:
		if b, ok := v.([]byte); ok {
			out := make([]byte, len(b))
			copy(out, b)
			return out, nil
		}
		return nil, fmt.Errorf("%w: %T is not a byte slice", ErrTypeMismatch, v)
	case schema.KindTime, schema.KindDate:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			return parseTime(x)
		case []byte:
			return parseTime(string(x))
		}
		return nil, fmt.Errorf("%w: %T is not a timestamp", ErrTypeMismatch, v)
	}
	// KindAny and the rest pass through, with byte slices copied: the
	// driver may reuse the buffer on the next row.
	if b, ok := v.([]byte); ok {
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	}
	return v, nil
}

// denormRef normalizes a foreign-key value for use as a lookup key.
func denormRef(v any) any {
	if n, ok := toInt64(v); ok {
		return n
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// timeLayouts covers the textual timestamp shapes the supported drivers
// emit.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a timestamp", ErrTypeMismatch, s)
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		return int64(x), true
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case []byte:
		f, err := strconv.ParseFloat(string(x), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

// =============================================================================
// Lazy references
// =============================================================================

// Ref is a lazy handle to a referenced row. The target is fetched on
// first use and memoized; concurrent fetches are serialized.
type Ref struct {
	db    *DB
	table string
	key   any

	mu     sync.Mutex
	row    *Row
	err    error
	loaded bool
}

// Table returns the referenced table name.
func (r *Ref) Table() string { return r.table }

// Key returns the referenced primary-key value without fetching.
func (r *Ref) Key() any { return r.key }

// Fetch loads the referenced row, once. Later calls return the
// memoized result.
func (r *Ref) Fetch(ctx context.Context) (*Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return r.row, r.err
	}
	t, ok := r.db.reg.Table(r.table)
	if !ok || t.PK() == nil {
		r.loaded = true
		r.err = fmt.Errorf("%w: no table %q registered", ErrUnknownField, r.table)
		return nil, r.err
	}
	q := r.db.Query(r.table)
	r.row, r.err = q.Filter(q.F(t.PK().Name).Eq(r.key)).FetchOne(ctx)
	r.loaded = true
	return r.row, r.err
}

func (r *Ref) String() string {
	return fmt.Sprintf("Ref(%s:%v)", r.table, r.key)
}
