package inspect

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/foodsample/pkg/table"
)

func products(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New("code", "product_name", "brands", "ecoscore_score")
	require.NoError(t, err)
	require.NoError(t, tbl.AppendRow("0000101209159", "Véritable pâte à tartiner", "  ", int64(42)))
	require.NoError(t, tbl.AppendRow("3017620422003", "Nutella", "Ferrero", nil))
	return tbl
}

func TestInspectFirstRow(t *testing.T) {
	row, found := Inspect(products(t), nil)
	require.True(t, found)
	assert.Equal(t, 0, row.Index)
	assert.Len(t, row.Values, 4)

	assert.Equal(t, []Field{
		{Name: "code", Value: "0000101209159"},
		{Name: "product_name", Value: "Véritable pâte à tartiner"},
		{Name: "ecoscore_score", Value: int64(42)},
	}, row.Fields())
}

func TestInspectByColumn(t *testing.T) {
	row, found := Inspect(products(t), ColumnEquals("code", "3017620422003"))
	require.True(t, found)
	assert.Equal(t, 1, row.Index)

	_, found = Inspect(products(t), ColumnEquals("code", "missing"))
	assert.False(t, found)

	_, found = Inspect(products(t), ColumnEquals("no_such_column", "x"))
	assert.False(t, found)
}

func TestInspectEmptyTable(t *testing.T) {
	tbl, err := table.New("code")
	require.NoError(t, err)
	_, found := Inspect(tbl, nil)
	assert.False(t, found)
}

func TestColumnEqualsRendersNumbers(t *testing.T) {
	tbl, err := table.New("code")
	require.NoError(t, err)
	require.NoError(t, tbl.AppendRow(float64(3017620422003)))
	_, found := Inspect(tbl, ColumnEquals("code", "3017620422003"))
	assert.True(t, found)
}

func TestPrint(t *testing.T) {
	row, _ := Inspect(products(t), ColumnEquals("code", "3017620422003"))
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, "Product properties", row))
	assert.Equal(t, "\nProduct properties:\ncode: 3017620422003\nproduct_name: Nutella\nbrands: Ferrero\n", buf.String())
}
