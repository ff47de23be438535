// Package testutil provides testing utilities for foodsample
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/foodsample/pkg/formats/parquet"
	"github.com/ajitpratap0/foodsample/pkg/table"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout that is
// cancelled when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// FoodColumns are the raw dataset columns the built-in ruleset reads
var FoodColumns = []string{
	"code", "creator", "created_t", "last_modified_t", "last_modified_by",
	"product_name", "quantity", "packagings", "packaging_tags",
	"brands", "brands_tags", "categories", "categories_tags",
	"origins_tags", "manufacturing_places", "manufacturing_places_tags",
	"labels", "labels_tags", "emb_codes", "emb_codes_tags",
	"countries_tags", "ingredients_text", "nova_groups_tags",
	"food_groups_tags", "states_tags", "ecoscore_score", "ecoscore_grade",
	"completeness", "last_image_t",
}

// FoodRow returns one raw product row in the shape the Parquet decoder
// produces: nested values already rendered as JSON text.
func FoodRow(i int) []any {
	return []any{
		fmt.Sprintf("%013d", 3017620422003+int64(i)),
		"openfoodfacts-contributors",
		int64(1_600_000_000 + i),
		int64(1_700_000_000 + i),
		"kiliweb",
		fmt.Sprintf(`[{"lang":"main","text":"Product %d"},{"lang":"fr","text":"Produit %d"}]`, i, i),
		"400 g",
		`[{"material":"en:glass","shape":"en:jar"}]`,
		`["en:glass","en:jar"]`,
		"Ferrero",
		`["ferrero"]`,
		"Spreads, Sweet spreads",
		`["en:spreads","fr:pates-a-tartiner"]`,
		`["en:italy"]`,
		"Italie",
		`["italie"]`,
		"Sans gluten",
		`["en:no-gluten","fr:sans-gluten"]`,
		"EMB 72264",
		`["emb-72264"]`,
		`["en:france","en:italy"]`,
		"sugar, palm oil, hazelnuts",
		`["en:4-ultra-processed-food-and-drink-products"]`,
		`["en:sweets","en:sugary-snacks"]`,
		`["en:to-be-completed","en:nutrition-facts-completed"]`,
		int64(20 + i%10),
		"e",
		0.875,
		int64(1_650_000_000 + i),
	}
}

// FoodTable returns a raw product table with n rows
func FoodTable(t *testing.T, n int) *table.Table {
	t.Helper()
	tbl, err := table.New(FoodColumns...)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, tbl.AppendRow(FoodRow(i)...))
	}
	return tbl
}

// ParquetBytes encodes tbl as an in-memory Parquet object
func ParquetBytes(t *testing.T, tbl *table.Table) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, parquet.Write(&buf, tbl, parquet.WriteOptions{}))
	return buf.Bytes()
}
