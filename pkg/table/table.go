// Package table provides the in-memory tabular buffer passed between
// pipeline stages: an ordered set of uniquely named columns of equal length
// holding scalar values (string, int64, float64, bool or nil for null).
//
// Stages never modify a table they received; each stage builds a new one.
package table

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ajitpratap0/foodsample/pkg/errors"
)

// Column is a named sequence of scalar values
type Column struct {
	Name   string
	Values []any
}

// Table is an ordered collection of equal-length columns
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New creates an empty table with the given column names and no rows
func New(names ...string) (*Table, error) {
	t := &Table{index: make(map[string]int, len(names))}
	for _, name := range names {
		if err := t.AddColumn(name, nil); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AddColumn appends a column. The first column fixes the row count; every
// later column must match it. Values are normalized with Normalize.
func (t *Table) AddColumn(name string, values []any) error {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if name == "" {
		return errors.New(errors.ErrorTypeValidation, "column name is empty")
	}
	if _, exists := t.index[name]; exists {
		return errors.New(errors.ErrorTypeValidation, "duplicate column name").
			WithDetail("column", name)
	}
	if len(t.columns) > 0 && len(values) != t.rows {
		return errors.Newf(errors.ErrorTypeValidation,
			"column %q has %d values, table has %d rows", name, len(values), t.rows)
	}

	normalized := make([]any, len(values))
	for i, v := range values {
		nv, err := Normalize(v)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "unsupported value").
				WithDetail("column", name).
				WithDetail("row", i)
		}
		normalized[i] = nv
	}

	if len(t.columns) == 0 {
		t.rows = len(values)
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, &Column{Name: name, Values: normalized})
	return nil
}

// AppendRow appends one value per column, in column order
func (t *Table) AppendRow(values ...any) error {
	if len(values) != len(t.columns) {
		return errors.Newf(errors.ErrorTypeValidation,
			"row has %d values, table has %d columns", len(values), len(t.columns))
	}
	row := make([]any, len(values))
	for i, v := range values {
		nv, err := Normalize(v)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "unsupported value").
				WithDetail("column", t.columns[i].Name)
		}
		row[i] = nv
	}
	for i, c := range t.columns {
		c.Values = append(c.Values, row[i])
	}
	t.rows++
	return nil
}

// NumRows returns the number of rows
func (t *Table) NumRows() int { return t.rows }

// NumColumns returns the number of columns
func (t *Table) NumColumns() int { return len(t.columns) }

// Names returns the column names in order
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the table has a column with the given name
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column. The returned values must not be modified.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// ColumnAt returns the i-th column
func (t *Table) ColumnAt(i int) *Column {
	return t.columns[i]
}

// Value returns the value at row, column name
func (t *Table) Value(row int, name string) (any, bool) {
	c, ok := t.Column(name)
	if !ok || row < 0 || row >= t.rows {
		return nil, false
	}
	return c.Values[row], true
}

// Row returns a copy of the values of one row in column order
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.columns))
	for j, c := range t.columns {
		row[j] = c.Values[i]
	}
	return row
}

// Head returns a new table holding at most n leading rows
func (t *Table) Head(n int) *Table {
	if n > t.rows {
		n = t.rows
	}
	if n < 0 {
		n = 0
	}
	out := &Table{index: make(map[string]int, len(t.columns)), rows: n}
	for i, c := range t.columns {
		vals := make([]any, n)
		copy(vals, c.Values[:n])
		out.index[c.Name] = i
		out.columns = append(out.columns, &Column{Name: c.Name, Values: vals})
	}
	return out
}

// Validate checks the buffer invariants: unique names and equal column lengths
func (t *Table) Validate() error {
	seen := make(map[string]struct{}, len(t.columns))
	for _, c := range t.columns {
		if _, dup := seen[c.Name]; dup {
			return errors.New(errors.ErrorTypeValidation, "duplicate column name").
				WithDetail("column", c.Name)
		}
		seen[c.Name] = struct{}{}
		if len(c.Values) != t.rows {
			return errors.Newf(errors.ErrorTypeValidation,
				"column %q has %d values, table has %d rows", c.Name, len(c.Values), t.rows)
		}
	}
	return nil
}

// Normalize converts v to one of the scalar types a table holds
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, int64, float64, bool:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("uint64 %d is out of int64 range", x)
		}
		return int64(x), nil
	case float32:
		return float64(x), nil
	case []byte:
		return string(x), nil
	default:
		return nil, fmt.Errorf("unsupported scalar type %T", v)
	}
}

// Format renders a scalar as text the way it is written to delimited output.
// Null renders as the empty string.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
