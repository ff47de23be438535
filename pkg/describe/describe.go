// Package describe summarizes a table as one (name, example) pair per column,
// the example being the column's value in the first row.
package describe

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/foodsample/pkg/formats/csv"
	"github.com/ajitpratap0/foodsample/pkg/table"
)

// Field is one described column
type Field struct {
	Name    string
	Example string
}

// Descriptor lists the fields of a table in column order
type Descriptor struct {
	Fields []Field
}

// Describe builds a descriptor from the first row of tbl. Null examples
// render as the empty string. A table without rows yields an empty
// descriptor and a warning, not an error.
func Describe(tbl *table.Table, logger *zap.Logger) *Descriptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Descriptor{}
	if tbl.NumRows() == 0 {
		logger.Warn("cannot describe a table without rows",
			zap.Int("columns", tbl.NumColumns()))
		return d
	}
	for i, v := range tbl.Row(0) {
		d.Fields = append(d.Fields, Field{
			Name:    tbl.ColumnAt(i).Name,
			Example: table.Format(v),
		})
	}
	return d
}

// Table renders the descriptor as a two-column table (name, example)
func (d *Descriptor) Table() (*table.Table, error) {
	tbl, err := table.New("name", "example")
	if err != nil {
		return nil, err
	}
	for _, f := range d.Fields {
		if err := tbl.AppendRow(f.Name, f.Example); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// SchemaPath names the descriptor file of a data file:
// dir/food_sample.csv.gz -> dir/food_sample_schema.csv
func SchemaPath(dir, dataPath string) string {
	base := filepath.Base(dataPath)
	for ext := filepath.Ext(base); ext != ""; ext = filepath.Ext(base) {
		base = strings.TrimSuffix(base, ext)
	}
	return filepath.Join(dir, base+"_schema.csv")
}

// WriteFile writes the descriptor as delimited text with a name,example header
func (d *Descriptor) WriteFile(path string) error {
	tbl, err := d.Table()
	if err != nil {
		return err
	}
	return csv.WriteFile(path, tbl, csv.Options{})
}
