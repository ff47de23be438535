package parquet

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/foodsample/pkg/table"
)

// WriteOptions configure Write
type WriteOptions struct {
	Allocator memory.Allocator
	// Compression codec for column chunks, Snappy when empty
	Compression string
}

// Write encodes tbl as a single Parquet row group. Each column's Arrow type is
// inferred from its non-null values: all int64 -> int64, numeric -> float64,
// all bool -> boolean, anything else -> string.
func Write(w io.Writer, tbl *table.Table, opts WriteOptions) error {
	mem := opts.Allocator
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	fields := make([]arrow.Field, tbl.NumColumns())
	for i := range fields {
		col := tbl.ColumnAt(i)
		fields[i] = arrow.Field{Name: col.Name, Type: inferType(col.Values), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()
	for i := range fields {
		appendColumn(builder.Field(i), tbl.ColumnAt(i).Values)
	}
	rec := builder.NewRecord()
	defer rec.Release()

	codec, err := compressionCodec(opts.Compression)
	if err != nil {
		return err
	}
	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithAllocator(mem),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(mem),
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(schema, nopCloser{w}, props, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create Parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return nil
}

// nopCloser keeps the Parquet writer from closing the caller's sink
type nopCloser struct {
	io.Writer
}

func compressionCodec(name string) (compress.Compression, error) {
	switch name {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "lz4":
		return compress.Codecs.Lz4Raw, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported parquet compression: %s", name)
	}
}

func inferType(values []any) arrow.DataType {
	var ints, floats, bools, others int
	for _, v := range values {
		switch v.(type) {
		case nil:
		case int64:
			ints++
		case float64:
			floats++
		case bool:
			bools++
		default:
			others++
		}
	}
	switch {
	case others > 0:
		return arrow.BinaryTypes.String
	case bools > 0 && ints+floats == 0:
		return arrow.FixedWidthTypes.Boolean
	case bools > 0:
		return arrow.BinaryTypes.String
	case floats > 0:
		return arrow.PrimitiveTypes.Float64
	case ints > 0:
		return arrow.PrimitiveTypes.Int64
	default:
		return arrow.BinaryTypes.String
	}
}

func appendColumn(b array.Builder, values []any) {
	for _, v := range values {
		if v == nil {
			b.AppendNull()
			continue
		}
		switch bb := b.(type) {
		case *array.Int64Builder:
			bb.Append(v.(int64))
		case *array.Float64Builder:
			switch x := v.(type) {
			case int64:
				bb.Append(float64(x))
			case float64:
				bb.Append(x)
			}
		case *array.BooleanBuilder:
			bb.Append(v.(bool))
		case *array.StringBuilder:
			bb.Append(table.Format(v))
		}
	}
}
