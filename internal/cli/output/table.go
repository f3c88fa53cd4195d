package output

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode"
)

// TableFormatter renders values as aligned columns.
type TableFormatter struct {
	Wide      bool
	NoHeaders bool
}

// Format writes data as a table. A *Table or Table is written as is.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	var t *Table
	switch d := data.(type) {
	case nil:
		return nil
	case *Table:
		t = d
	case Table:
		t = &d
	default:
		var ok bool
		if t, ok = buildTable(reflect.ValueOf(data), f.Wide); !ok {
			return writeJSON(w, data)
		}
	}
	return t.write(w, !f.NoHeaders)
}

// Table is a header row plus body rows.
type Table struct {
	Headers []string
	Rows    [][]string
}

// SetHeaders replaces the header row.
func (t *Table) SetHeaders(headers ...string) { t.Headers = headers }

// AddRow appends a body row.
func (t *Table) AddRow(cells ...string) { t.Rows = append(t.Rows, cells) }

// Render writes the table with its header row.
func (t *Table) Render(w io.Writer) error { return t.write(w, true) }

func (t *Table) write(w io.Writer, headers bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if headers && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// column is one displayable struct field.
type column struct {
	header string
	index  int
}

// columnsOf lists the fields of struct type typ that a table shows.
func columnsOf(typ reflect.Type, wide bool) []column {
	var cols []column
	for i := range typ.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		switch tag := field.Tag.Get("table"); {
		case tag == "-":
			continue
		case tag == "wide" && !wide:
			continue
		}
		cols = append(cols, column{header: headerName(field), index: i})
	}
	return cols
}

func buildTable(v reflect.Value, wide bool) (*Table, bool) {
	v = indirect(v)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return sliceTable(v, wide), true
	case reflect.Map:
		return mapTable(v), true
	case reflect.Struct:
		return structTable(v), true
	}
	return nil, false
}

func sliceTable(v reflect.Value, wide bool) *Table {
	t := &Table{}
	if v.Len() == 0 {
		return t
	}

	elem := v.Type().Elem()
	for elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		t.Headers = []string{"VALUE"}
		for i := range v.Len() {
			t.AddRow(cell(v.Index(i)))
		}
		return t
	}

	cols := columnsOf(elem, wide)
	for _, c := range cols {
		t.Headers = append(t.Headers, c.header)
	}
	for i := range v.Len() {
		row := indirect(v.Index(i))
		cells := make([]string, len(cols))
		for j, c := range cols {
			if row.IsValid() {
				cells[j] = cell(row.Field(c.index))
			}
		}
		t.AddRow(cells...)
	}
	return t
}

func mapTable(v reflect.Value) *Table {
	t := &Table{Headers: []string{"KEY", "VALUE"}}
	for it := v.MapRange(); it.Next(); {
		t.AddRow(cell(it.Key()), cell(it.Value()))
	}
	slices.SortFunc(t.Rows, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	return t
}

// structTable lists every visible field. Wide fields are always shown since
// a single record has room for them.
func structTable(v reflect.Value) *Table {
	t := &Table{Headers: []string{"FIELD", "VALUE"}}
	for _, c := range columnsOf(v.Type(), true) {
		t.AddRow(tagName(v.Type().Field(c.index)), cell(v.Field(c.index)))
	}
	return t
}

var timeType = reflect.TypeFor[time.Time]()

// cell formats one value for display. Empty strings and collections show
// as "-".
func cell(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}
	if v.Type() == timeType {
		ts := v.Interface().(time.Time)
		if ts.IsZero() {
			return "-"
		}
		return ts.Local().Format(time.DateTime)
	}

	switch v.Kind() {
	case reflect.String:
		return orDash(v.String())
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', 2, 64)
	case reflect.Slice, reflect.Array:
		switch {
		case v.Len() == 0:
			return "-"
		case v.Type().Elem().Kind() == reflect.Uint8:
			return fmt.Sprintf("[%d bytes]", v.Len())
		case v.Type().Elem().Kind() == reflect.String:
			parts := make([]string, v.Len())
			for i := range parts {
				parts[i] = v.Index(i).String()
			}
			return strings.Join(parts, " ")
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "-"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	}
	return fmt.Sprint(v.Interface())
}

// indirect follows pointers and interfaces. It returns the zero Value for
// nil.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// tagName is the field's first json, yaml or codec name, else its Go name.
func tagName(field reflect.StructField) string {
	for _, key := range []string{"json", "yaml", "codec"} {
		name, _, _ := strings.Cut(field.Tag.Get(key), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}

// headerName upper-cases tagName, splitting Go names at capitals:
// "FileType" becomes "FILE_TYPE".
func headerName(field reflect.StructField) string {
	name := tagName(field)
	var b strings.Builder
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
