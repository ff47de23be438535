// Package parquet decodes the leading rows of a Parquet object into a table
// and encodes tables as Parquet, using the Arrow Parquet implementation.
package parquet

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/foodsample/pkg/errors"
	"github.com/ajitpratap0/foodsample/pkg/json"
	"github.com/ajitpratap0/foodsample/pkg/table"
)

const maxBatchSize = 64 * 1024

// ReadOptions configure ReadTable
type ReadOptions struct {
	// Allocator backs Arrow buffers, memory.DefaultAllocator when nil
	Allocator memory.Allocator
}

// FileInfo summarizes a Parquet object without decoding rows
type FileInfo struct {
	NumRows      int64
	NumRowGroups int
	Schema       *arrow.Schema
}

// Stat reads the footer of a Parquet object
func Stat(r parquet.ReaderAtSeeker, opts ReadOptions) (*FileInfo, error) {
	mem := allocator(opts)
	rdr, err := file.NewParquetReader(r, file.WithReadProps(parquet.NewReaderProperties(mem)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to read parquet footer")
	}
	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to open parquet file")
	}
	schema, err := fr.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to convert parquet schema")
	}
	return &FileInfo{
		NumRows:      rdr.NumRows(),
		NumRowGroups: rdr.NumRowGroups(),
		Schema:       schema,
	}, nil
}

// ReadTable decodes at most limit rows, in file order, from the start of a
// Parquet object. Only the row groups needed to cover limit are read.
//
// The underlying reader is not closed; the caller owns it.
func ReadTable(ctx context.Context, r parquet.ReaderAtSeeker, limit int, opts ReadOptions) (*table.Table, error) {
	if limit <= 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "row limit must be positive").
			WithDetail("limit", limit)
	}

	mem := allocator(opts)
	rdr, err := file.NewParquetReader(r, file.WithReadProps(parquet.NewReaderProperties(mem)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to read parquet footer")
	}

	var (
		rowGroups []int
		covered   int64
	)
	for i := 0; i < rdr.NumRowGroups() && covered < int64(limit); i++ {
		rowGroups = append(rowGroups, i)
		covered += rdr.RowGroup(i).NumRows()
	}

	batchSize := int64(limit)
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: batchSize}, mem)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to open parquet file")
	}
	schema, err := fr.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to convert parquet schema")
	}

	columns := make([][]any, schema.NumFields())
	if len(rowGroups) > 0 {
		rr, err := fr.GetRecordReader(ctx, nil, rowGroups)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to create record reader")
		}
		defer rr.Release()

		taken := 0
		for taken < limit && rr.Next() {
			rec := rr.Record()
			n := int(rec.NumRows())
			if n > limit-taken {
				n = limit - taken
			}
			for c := 0; c < int(rec.NumCols()); c++ {
				col := rec.Column(c)
				for i := 0; i < n; i++ {
					v, err := scalarValue(col, i)
					if err != nil {
						return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to decode value").
							WithDetail("column", schema.Field(c).Name)
					}
					columns[c] = append(columns[c], v)
				}
			}
			taken += n
		}
		// the record reader reports io.EOF once the row groups are exhausted
		if err := rr.Err(); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to read parquet rows")
		}
	}

	tbl := &table.Table{}
	for c, field := range schema.Fields() {
		if columns[c] == nil {
			columns[c] = []any{}
		}
		if err := tbl.AddColumn(field.Name, columns[c]); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

func allocator(opts ReadOptions) memory.Allocator {
	if opts.Allocator != nil {
		return opts.Allocator
	}
	return memory.DefaultAllocator
}

// scalarValue converts one cell to a table scalar. Nested values become
// compact JSON text.
func scalarValue(arr arrow.Array, i int) (any, error) {
	if arr.IsNull(i) {
		return nil, nil
	}
	switch arr.DataType().ID() {
	case arrow.LIST, arrow.LARGE_LIST, arrow.FIXED_SIZE_LIST, arrow.STRUCT, arrow.MAP:
		v := nestedValue(arr, i)
		return json.MarshalString(v)
	}
	return nestedValue(arr, i), nil
}

// nestedValue extracts a value as plain Go data suitable for JSON encoding
func nestedValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		v := a.Value(i)
		if v > math.MaxInt64 {
			return strconv.FormatUint(v, 10)
		}
		return int64(v)
	case *array.Float16:
		return float64(a.Value(i).Float32())
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return string(a.Value(i))
	case *array.LargeBinary:
		return string(a.Value(i))
	case *array.Date32:
		return a.Value(i).ToTime().Format("2006-01-02")
	case *array.Date64:
		return a.Value(i).ToTime().Format("2006-01-02")
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC().Format(time.RFC3339Nano)
	case *array.Map:
		keys, items := a.Keys(), a.Items()
		start, end := a.ValueOffsets(i)
		out := make(map[string]any, end-start)
		for j := start; j < end; j++ {
			out[fmt.Sprint(nestedValue(keys, int(j)))] = nestedValue(items, int(j))
		}
		return out
	case array.ListLike:
		values := a.ListValues()
		start, end := a.ValueOffsets(i)
		out := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, nestedValue(values, int(j)))
		}
		return out
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		out := make(map[string]any, st.NumFields())
		for f := 0; f < st.NumFields(); f++ {
			out[st.Field(f).Name] = nestedValue(a.Field(f), i)
		}
		return out
	default:
		return arr.ValueStr(i)
	}
}
