// Package csv reads and writes tables as comma-separated text with a header
// row. Writing renders every value as text; reading returns every non-empty
// field as a string and every empty field as null, so a round trip keeps the
// column set and row count but not native typing.
package csv

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/foodsample/pkg/compression"
	"github.com/ajitpratap0/foodsample/pkg/errors"
	"github.com/ajitpratap0/foodsample/pkg/table"
)

// Options control the delimited-text dialect
type Options struct {
	// Delimiter separates fields, ',' when zero
	Delimiter rune
	// Compression overrides the algorithm inferred from the file extension
	Compression compression.Algorithm
	// Level is the compression level for writers
	Level compression.Level
}

func (o Options) delimiter() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// Write writes tbl to w with a header row
func Write(w io.Writer, tbl *table.Table, opts Options) error {
	cw := csv.NewWriter(w)
	cw.Comma = opts.delimiter()

	if err := cw.Write(tbl.Names()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	record := make([]string, tbl.NumColumns())
	for i := 0; i < tbl.NumRows(); i++ {
		for j := range record {
			record[j] = table.Format(tbl.ColumnAt(j).Values[i])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Read parses delimited text with a header row into a table
func Read(r io.Reader, opts Options) (*table.Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = opts.delimiter()
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrorTypeSchema, "delimited input has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	names := make([]string, len(header))
	copy(names, header)
	tbl, err := table.New(names...)
	if err != nil {
		return nil, err
	}

	row := make([]any, len(names))
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", tbl.NumRows()+1, err)
		}
		for i, field := range record {
			if field == "" {
				row[i] = nil
			} else {
				row[i] = field
			}
		}
		if err := tbl.AppendRow(row...); err != nil {
			return nil, err
		}
	}

	return tbl, nil
}

// WriteFile writes tbl to path, creating parent directories. The file is
// compressed when the extension names a codec.
func WriteFile(path string, tbl *table.Table, opts Options) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.ErrorTypeIO, "failed to create output directory").
				WithDetail("path", dir)
		}
	}

	f, err := os.Create(path) //nolint:gosec // G304: output path comes from configuration
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to create output file").
			WithDetail("path", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrorTypeIO, "failed to close output file").
				WithDetail("path", path)
		}
	}()

	alg := opts.Compression
	if alg == "" {
		alg = compression.AlgorithmForPath(path)
	}
	bw := bufio.NewWriter(f)
	zw, err := compression.NewWriter(bw, alg, opts.Level)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid output compression").
			WithDetail("path", path)
	}

	if err := Write(zw, tbl, opts); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write delimited output").
			WithDetail("path", path)
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to finish compressed output").
			WithDetail("path", path)
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to flush output file").
			WithDetail("path", path)
	}
	return nil
}

// ReadFile reads a delimited file, decompressing it when the extension names a codec
func ReadFile(path string, opts Options) (*table.Table, error) {
	f, err := os.Open(path) //nolint:gosec // G304: input path comes from configuration
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to open delimited input").
			WithDetail("path", path)
	}
	defer f.Close()

	alg := opts.Compression
	if alg == "" {
		alg = compression.AlgorithmForPath(path)
	}
	zr, err := compression.NewReader(bufio.NewReader(f), alg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to open compressed input").
			WithDetail("path", path)
	}
	defer zr.Close()

	tbl, err := Read(zr, opts)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeSchema) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to parse delimited input").
			WithDetail("path", path)
	}
	return tbl, nil
}
