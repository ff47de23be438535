package transform

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/foodsample/pkg/errors"
	"github.com/ajitpratap0/foodsample/pkg/table"
	"github.com/ajitpratap0/foodsample/pkg/testutil"
)

func singleColumn(t *testing.T, name string, values ...any) *table.Table {
	t.Helper()
	tbl, err := table.New()
	require.NoError(t, err)
	require.NoError(t, tbl.AddColumn(name, values))
	return tbl
}

func apply(t *testing.T, in *table.Table, rules ...Rule) (*table.Table, *Report) {
	t.Helper()
	out, report, err := Transform(context.Background(), in, rules, testutil.TestLogger(t))
	require.NoError(t, err)
	require.Equal(t, in.NumRows(), out.NumRows())
	return out, report
}

func values(t *testing.T, tbl *table.Table, name string) []any {
	t.Helper()
	col, ok := tbl.Column(name)
	require.True(t, ok, name)
	return col.Values
}

func TestDigits(t *testing.T) {
	in := singleColumn(t, "quantity", "400 g", "abc", nil, "", "1.5 kg", "99999999999999999999999")
	out, report := apply(t, in, Digits("product_quantity", "quantity"))

	assert.Equal(t, []any{int64(400), int64(0), int64(0), int64(0), int64(15), int64(0)},
		values(t, out, "product_quantity"))
	assert.Equal(t, 1, report.Fallbacks["product_quantity"])
}

func TestLocaleTags(t *testing.T) {
	in := singleColumn(t, "categories_tags",
		"[en:produce,fr:legume]",
		`["en:produce","fr:legume","en:fresh-vegetables"]`,
		"",
		nil,
		"[fr:legume]",
		"[ en:a , en:b ]",
	)
	out, _ := apply(t, in, LocaleTags("categories_en", "categories_tags", "en"))

	assert.Equal(t, []any{
		`["produce"]`,
		`["produce","fresh-vegetables"]`,
		"[]",
		"[]",
		"[]",
		`["a","b"]`,
	}, values(t, out, "categories_en"))
}

func TestLocaleTagsOtherLocale(t *testing.T) {
	in := singleColumn(t, "labels_tags", "[en:organic,fr:bio]")
	out, _ := apply(t, in, LocaleTags("labels_fr", "labels_tags", "fr"))
	assert.Equal(t, []any{`["bio"]`}, values(t, out, "labels_fr"))
}

func TestJSONFirst(t *testing.T) {
	in := singleColumn(t, "product_name",
		`[{"text":"Milk"}]`,
		`[{"lang":"main","text":"Pâte à tartiner <bio>"},{"lang":"fr","text":"Autre"}]`,
		"not json",
		"[]",
		nil,
		`[{"lang":"main"}]`,
		`["plain"]`,
	)
	out, report := apply(t, in, JSONFirst("product_name", "product_name", "text"))

	assert.Equal(t, []any{"Milk", "Pâte à tartiner <bio>", "", "", "", "", ""},
		values(t, out, "product_name"))
	assert.Equal(t, 1, report.Fallbacks["product_name"])
}

func TestJSONFirstKeepsLargeNumbers(t *testing.T) {
	in := singleColumn(t, "ids", `[12345678901234567890]`, `[{"n":9007199254740993}]`, `[2.50]`)
	out, _ := apply(t, in,
		JSONFirst("first_id", "ids", ""),
		JSONFirst("first_n", "ids", "n"),
	)

	assert.Equal(t, []any{"12345678901234567890", `{"n":9007199254740993}`, "2.50"}, values(t, out, "first_id"))
	assert.Equal(t, []any{"", "9007199254740993", ""}, values(t, out, "first_n"))
}

func TestJSONFirstWholeElementAndStrip(t *testing.T) {
	in, err := table.New("packagings", "nova_groups_tags")
	require.NoError(t, err)
	require.NoError(t, in.AppendRow(`[{"material":"en:glass"}]`, `["en:4-ultra-processed"]`))
	require.NoError(t, in.AppendRow(`[{"material":{"id":"en:pet"}}]`, `[4]`))

	out, _ := apply(t, in,
		Rule{Name: "packaging_en", Kind: KindJSONFirst, Source: "packagings", Field: "material", Strip: "en:"},
		JSONFirst("nova_group", "nova_groups_tags", ""),
	)

	assert.Equal(t, []any{"glass", `{"id":"pet"}`}, values(t, out, "packaging_en"))
	assert.Equal(t, []any{"en:4-ultra-processed", "4"}, values(t, out, "nova_group"))
}

func TestCast(t *testing.T) {
	in := singleColumn(t, "v", "42", " 7 ", "2.5", "-2.5", "abc", nil, int64(9), 3.4, true)

	out, report := apply(t, in,
		Cast("as_int", "v", CastInt, OnErrorDefault, 0),
		Cast("as_int_null", "v", CastInt, OnErrorNull, nil),
		Cast("as_float", "v", CastFloat, OnErrorNull, nil),
		Cast("as_string", "v", CastString, OnErrorNull, nil),
	)

	assert.Equal(t, []any{int64(42), int64(7), int64(3), int64(-3), int64(0), nil, int64(9), int64(3), int64(1)},
		values(t, out, "as_int"))
	assert.Equal(t, []any{int64(42), int64(7), int64(3), int64(-3), nil, nil, int64(9), int64(3), int64(1)},
		values(t, out, "as_int_null"))
	assert.Equal(t, []any{42.0, 7.0, 2.5, -2.5, nil, nil, 9.0, 3.4, 1.0},
		values(t, out, "as_float"))
	assert.Equal(t, []any{"42", " 7 ", "2.5", "-2.5", "abc", nil, "9", "3.4", "true"},
		values(t, out, "as_string"))

	assert.Equal(t, 1, report.Fallbacks["as_int"])
	assert.Equal(t, 1, report.Fallbacks["as_float"])
	assert.Zero(t, report.Fallbacks["as_string"])
}

func TestCastOutOfRangeUsesDefault(t *testing.T) {
	in := singleColumn(t, "v",
		"9223372036854775807",
		"9223372036854775808",
		"-9223372036854775809",
		"9.3e18",
		9223372036854775808.0,
		"NaN",
	)
	out, report := apply(t, in, Cast("as_int", "v", CastInt, OnErrorDefault, -1))

	assert.Equal(t, []any{int64(math.MaxInt64), int64(-1), int64(-1), int64(-1), int64(-1), int64(-1)},
		values(t, out, "as_int"))
	assert.Equal(t, 5, report.Fallbacks["as_int"])
}

func TestCastRejectsNonFiniteFloats(t *testing.T) {
	in := singleColumn(t, "v", "NaN", "Inf", "-inf", "1e400", "1e300")
	out, report := apply(t, in, Cast("as_float", "v", CastFloat, OnErrorDefault, 0))

	assert.Equal(t, []any{0.0, 0.0, 0.0, 0.0, 1e300}, values(t, out, "as_float"))
	assert.Equal(t, 4, report.Fallbacks["as_float"])
}

func TestCastLeadingZerosAreDecimal(t *testing.T) {
	in := singleColumn(t, "code", "0123")
	out, _ := apply(t, in, Cast("code", "code", CastInt, OnErrorNull, nil))
	assert.Equal(t, []any{int64(123)}, values(t, out, "code"))
}

func TestCastFailAborts(t *testing.T) {
	in := singleColumn(t, "v", "1", "x")
	_, _, err := Transform(context.Background(), in,
		[]Rule{Cast("v", "v", CastInt, OnErrorFail, nil)}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCast))
}

func TestCastDefaultMustConvert(t *testing.T) {
	in := singleColumn(t, "v", "1")
	_, _, err := Transform(context.Background(), in,
		[]Rule{Cast("v", "v", CastInt, OnErrorDefault, "n/a")}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestFormatPropagatesNull(t *testing.T) {
	in := singleColumn(t, "code", "3017620422003", nil)
	out, _ := apply(t, in, Format("url", ProductURLTemplate))
	assert.Equal(t, []any{"http://world-en.openfoodfacts.org/product/3017620422003", nil},
		values(t, out, "url"))
}

func TestCoalesceAndConstant(t *testing.T) {
	in, err := table.New("a", "b")
	require.NoError(t, err)
	require.NoError(t, in.AppendRow(nil, "b1"))
	require.NoError(t, in.AppendRow("a2", nil))
	require.NoError(t, in.AppendRow(nil, nil))

	out, _ := apply(t, in,
		Coalesce("first", "none", "a", "b"),
		Coalesce("only_a", "", "a"),
		Constant("countries", "en:france"),
		Constant("additives_n", 0),
		Column("copy", "b"),
	)
	assert.Equal(t, []any{"b1", "a2", "none"}, values(t, out, "first"))
	assert.Equal(t, []any{"", "a2", ""}, values(t, out, "only_a"))
	assert.Equal(t, []any{"en:france", "en:france", "en:france"}, values(t, out, "countries"))
	assert.Equal(t, []any{int64(0), int64(0), int64(0)}, values(t, out, "additives_n"))
	assert.Equal(t, []any{"b1", nil, nil}, values(t, out, "copy"))
}

func TestCompileErrors(t *testing.T) {
	input := []string{"code", "quantity"}
	tests := []struct {
		name  string
		rules []Rule
		typ   errors.ErrorType
	}{
		{"empty", nil, errors.ErrorTypeValidation},
		{"missing column", []Rule{Passthrough("brands")}, errors.ErrorTypeSchema},
		{"missing template column", []Rule{Format("url", "x/{barcode}")}, errors.ErrorTypeSchema},
		{"duplicate output", []Rule{Passthrough("code"), Cast("code", "code", CastInt, "", nil)}, errors.ErrorTypeValidation},
		{"unknown kind", []Rule{{Name: "x", Kind: "lookup", Source: "code"}}, errors.ErrorTypeValidation},
		{"unknown cast", []Rule{Cast("x", "code", "decimal", "", nil)}, errors.ErrorTypeValidation},
		{"unknown policy", []Rule{Cast("x", "code", CastInt, "retry", nil)}, errors.ErrorTypeValidation},
		{"no source", []Rule{{Name: "x", Kind: KindDigits}}, errors.ErrorTypeValidation},
		{"unclosed template", []Rule{Format("url", "x/{code")}, errors.ErrorTypeValidation},
		{"unnamed", []Rule{{Kind: KindConstant, Value: 1}}, errors.ErrorTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.rules, input, nil)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.typ), err.Error())
		})
	}
}

func TestApplyRejectsOtherLayout(t *testing.T) {
	p, err := Compile([]Rule{Passthrough("code")}, []string{"code"}, nil)
	require.NoError(t, err)

	_, _, err = p.Apply(context.Background(), singleColumn(t, "quantity", "1"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchema))
}

func TestApplyHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := singleColumn(t, "code", "1")
	_, _, err := Transform(ctx, in, []Rule{Passthrough("code")}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFoodFacts(t *testing.T) {
	in := testutil.FoodTable(t, 100)
	out, report := apply(t, in, FoodFacts()...)

	assert.Equal(t, Names(FoodFacts()), out.Names())
	assert.Equal(t, 100, out.NumRows())
	assert.Zero(t, report.TotalFallbacks())

	urls := values(t, out, "url")
	for i, u := range urls {
		assert.Equal(t, fmt.Sprintf("http://world-en.openfoodfacts.org/product/%013d", 3017620422003+int64(i)), u)
	}

	row := func(name string) any {
		v, ok := out.Value(0, name)
		require.True(t, ok, name)
		return v
	}
	assert.Equal(t, float64(3017620422003), row("code"))
	assert.Equal(t, "Product 0", row("product_name"))
	assert.Equal(t, "en:glass", row("packaging"))
	assert.Equal(t, "glass", row("packaging_en"))
	assert.Equal(t, `["spreads"]`, row("categories_en"))
	assert.Equal(t, `["italy"]`, row("origins_en"))
	assert.Equal(t, `["no-gluten"]`, row("labels_en"))
	assert.Equal(t, `["france","italy"]`, row("countries_en"))
	assert.Equal(t, `["sweets","sugary-snacks"]`, row("food_groups_en"))
	assert.Equal(t, "en:sweets", row("food_groups"))
	assert.Equal(t, "en:4-ultra-processed-food-and-drink-products", row("nova_group"))
	assert.Equal(t, "", row("origins"))
	assert.Equal(t, "en:france", row("countries"))
	assert.Equal(t, "unknown", row("pnns_groups_1"))
	assert.Equal(t, int64(400), row("product_quantity"))
	assert.Equal(t, int64(20), row("ecoscore_score"))
	assert.Equal(t, "1600000000", row("created_datetime"))
	assert.Equal(t, row("states_tags"), row("states_en"))
}

func TestFoodFactsAfterCSVRoundTrip(t *testing.T) {
	// After a CSV round trip every value is text and empty cells are null
	in, err := table.New(testutil.FoodColumns...)
	require.NoError(t, err)
	row := make([]any, len(testutil.FoodColumns))
	for i, v := range testutil.FoodRow(0) {
		row[i] = table.Format(v)
	}
	require.NoError(t, in.AppendRow(row...))
	blank := make([]any, len(testutil.FoodColumns))
	blank[0] = "abc"
	blank[6] = "about a kilo"
	require.NoError(t, in.AppendRow(blank...))

	out, report := apply(t, in, FoodFacts()...)

	v, _ := out.Value(0, "created_t")
	assert.Equal(t, int64(1600000000), v)
	v, _ = out.Value(0, "ecoscore_score")
	assert.Equal(t, int64(20), v)

	v, _ = out.Value(1, "code")
	assert.Nil(t, v)
	v, _ = out.Value(1, "product_quantity")
	assert.Equal(t, int64(0), v)
	v, _ = out.Value(1, "ecoscore_score")
	assert.Nil(t, v)
	v, _ = out.Value(1, "ingredients_text")
	assert.Equal(t, "", v)
	v, _ = out.Value(1, "categories_en")
	assert.Equal(t, "[]", v)
	v, _ = out.Value(1, "product_name")
	assert.Equal(t, "", v)

	assert.Equal(t, 1, report.Fallbacks["code"])
}

func TestFoodFactsMissingColumn(t *testing.T) {
	in := singleColumn(t, "code", "1")
	_, _, err := Transform(context.Background(), in, FoodFacts(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchema))
}

func TestRulesFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, SaveRules(path, FoodFacts()))

	loaded, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, loaded, len(FoodFacts()))

	in := testutil.FoodTable(t, 3)
	want, _ := apply(t, in, FoodFacts()...)
	got, _ := apply(t, in, loaded...)
	for _, name := range want.Names() {
		assert.Equal(t, values(t, want, name), values(t, got, name), name)
	}
}

func TestLoadRulesRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, SaveRules(path, nil))

	_, err := LoadRules(path)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
