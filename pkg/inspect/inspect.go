// Package inspect finds one row of a table and prints its non-empty fields
package inspect

import (
	"fmt"
	"io"
	"strings"

	"github.com/ajitpratap0/foodsample/pkg/table"
)

// Predicate selects rows by index
type Predicate func(tbl *table.Table, row int) bool

// ColumnEquals matches rows whose column renders as value
func ColumnEquals(column, value string) Predicate {
	return func(tbl *table.Table, row int) bool {
		v, ok := tbl.Value(row, column)
		return ok && v != nil && table.Format(v) == value
	}
}

// Field is one column of a found row
type Field struct {
	Name  string
	Value any
}

// Row is a found row in column order
type Row struct {
	Index  int
	Values []Field
}

// Inspect returns the first row matching match, or the first row when match
// is nil. found is false when no row matches.
func Inspect(tbl *table.Table, match Predicate) (row *Row, found bool) {
	for i := 0; i < tbl.NumRows(); i++ {
		if match != nil && !match(tbl, i) {
			continue
		}
		r := &Row{Index: i}
		for j, v := range tbl.Row(i) {
			r.Values = append(r.Values, Field{Name: tbl.ColumnAt(j).Name, Value: v})
		}
		return r, true
	}
	return nil, false
}

// Fields returns the fields worth displaying: null values and values that
// render as blank text are left out
func (r *Row) Fields() []Field {
	var out []Field
	for _, f := range r.Values {
		if f.Value == nil || strings.TrimSpace(table.Format(f.Value)) == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Print writes a title line followed by one "name: value" line per
// displayable field
func Print(w io.Writer, title string, r *Row) error {
	if _, err := fmt.Fprintf(w, "\n%s:\n", title); err != nil {
		return err
	}
	for _, f := range r.Fields() {
		if _, err := fmt.Fprintf(w, "%s: %s\n", f.Name, table.Format(f.Value)); err != nil {
			return err
		}
	}
	return nil
}
