package parquet

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/foodsample/pkg/errors"
	"github.com/ajitpratap0/foodsample/pkg/table"
)

func productsTable(t *testing.T, n int) *table.Table {
	t.Helper()
	tbl, err := table.New("code", "created_t", "ecoscore", "complete", "quantity")
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		var qty any = fmt.Sprintf("%d g", 100+i)
		if i%3 == 0 {
			qty = nil
		}
		require.NoError(t, tbl.AppendRow(fmt.Sprintf("%013d", i), int64(1600000000+i), float64(i)/2, i%2 == 0, qty))
	}
	return tbl
}

func TestWriteThenReadTable(t *testing.T) {
	mem := memory.NewGoAllocator()

	in := productsTable(t, 250)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, in, WriteOptions{Allocator: mem}))

	out, err := ReadTable(context.Background(), bytes.NewReader(buf.Bytes()), 100, ReadOptions{Allocator: mem})
	require.NoError(t, err)

	assert.Equal(t, in.Names(), out.Names())
	assert.Equal(t, 100, out.NumRows())
	for i := 0; i < 100; i++ {
		assert.Equal(t, in.Row(i), out.Row(i), "row %d", i)
	}
}

func TestReadTableFewerRowsThanLimit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, productsTable(t, 7), WriteOptions{Compression: "zstd"}))

	out, err := ReadTable(context.Background(), bytes.NewReader(buf.Bytes()), 100, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 7, out.NumRows())
}

func TestReadTableRejectsBadInput(t *testing.T) {
	_, err := ReadTable(context.Background(), bytes.NewReader([]byte("not parquet at all")), 10, ReadOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRetrieval))

	_, err = ReadTable(context.Background(), bytes.NewReader(nil), 0, ReadOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestReadTableNestedValuesBecomeJSON(t *testing.T) {
	mem := memory.NewGoAllocator()
	textType := arrow.StructOf(
		arrow.Field{Name: "lang", Type: arrow.BinaryTypes.String, Nullable: true},
		arrow.Field{Name: "text", Type: arrow.BinaryTypes.String, Nullable: true},
	)
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "product_name", Type: arrow.ListOf(textType), Nullable: true},
		{Name: "categories_tags", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
	}, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	names := b.Field(0).(*array.ListBuilder)
	structs := names.ValueBuilder().(*array.StructBuilder)
	names.Append(true)
	structs.Append(true)
	structs.FieldBuilder(0).(*array.StringBuilder).Append("main")
	structs.FieldBuilder(1).(*array.StringBuilder).Append("Milk")
	names.AppendNull()

	tags := b.Field(1).(*array.ListBuilder)
	tagValues := tags.ValueBuilder().(*array.StringBuilder)
	tags.Append(true)
	tagValues.Append("en:produce")
	tagValues.Append("fr:legume")
	tags.Append(true)

	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	fw, err := pqarrow.NewFileWriter(schema, &buf, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	require.NoError(t, err)
	require.NoError(t, fw.Write(rec))
	require.NoError(t, fw.Close())

	out, err := ReadTable(context.Background(), bytes.NewReader(buf.Bytes()), 10, ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())

	assert.Equal(t, []any{`[{"lang":"main","text":"Milk"}]`, `["en:produce","fr:legume"]`}, out.Row(0))
	assert.Equal(t, []any{nil, `[]`}, out.Row(1))
}

func TestStat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, productsTable(t, 12), WriteOptions{}))

	info, err := Stat(bytes.NewReader(buf.Bytes()), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.NumRows)
	assert.Equal(t, 1, info.NumRowGroups)
	assert.Equal(t, 5, info.Schema.NumFields())
}

func TestInferType(t *testing.T) {
	assert.Equal(t, arrow.PrimitiveTypes.Int64, inferType([]any{int64(1), nil}))
	assert.Equal(t, arrow.PrimitiveTypes.Float64, inferType([]any{int64(1), 2.5}))
	assert.Equal(t, arrow.FixedWidthTypes.Boolean, inferType([]any{true, nil}))
	assert.Equal(t, arrow.BinaryTypes.String, inferType([]any{"a", int64(1)}))
	assert.Equal(t, arrow.BinaryTypes.String, inferType([]any{nil}))
}

func TestReadTableLargeUnsignedValues(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "counter", Type: arrow.PrimitiveTypes.Uint64, Nullable: true},
	}, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Uint64Builder).AppendValues([]uint64{42, math.MaxUint64}, nil)
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	fw, err := pqarrow.NewFileWriter(schema, &buf, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	require.NoError(t, err)
	require.NoError(t, fw.Write(rec))
	require.NoError(t, fw.Close())

	out, err := ReadTable(context.Background(), bytes.NewReader(buf.Bytes()), 100, ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())
	assert.Equal(t, []any{int64(42)}, out.Row(0))
	assert.Equal(t, []any{"18446744073709551615"}, out.Row(1))
}
