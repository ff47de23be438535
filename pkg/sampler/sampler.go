// Package sampler takes the first rows of the remote product dataset and
// keeps them as a local delimited file, so later stages never touch the
// network.
package sampler

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/foodsample/pkg/engine"
	"github.com/ajitpratap0/foodsample/pkg/table"
)

// Config configures a Sampler
type Config struct {
	// URI of the Parquet dataset
	URI string
	// RowLimit is how many leading rows to take
	RowLimit int
	// OutputPath receives the sample
	OutputPath string
}

// Sampler fetches and persists a bounded sample
type Sampler struct {
	engine *engine.Engine
	cfg    Config
	logger *zap.Logger
	out    io.Writer
}

// New creates a sampler. out receives the column report and may be nil.
func New(eng *engine.Engine, cfg Config, logger *zap.Logger, out io.Writer) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Sampler{
		engine: eng,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "sampler")),
		out:    out,
	}
}

// Fetch returns the first RowLimit rows of the dataset in file order
func (s *Sampler) Fetch(ctx context.Context) (*table.Table, error) {
	return Fetch(ctx, s.engine, s.cfg.URI, s.cfg.RowLimit)
}

// Fetch returns at most limit rows from the start of the Parquet object at
// uri. Only the row groups covering limit rows are transferred.
func Fetch(ctx context.Context, eng *engine.Engine, uri string, limit int) (tbl *table.Table, err error) {
	sess, err := eng.Acquire(ctx, "sample")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			sess.Fail(err)
		}
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return sess.FetchParquet(uri, limit)
}

// Run fetches the sample, writes it to OutputPath and reports its columns
func (s *Sampler) Run(ctx context.Context) (*table.Table, error) {
	s.logger.Info("creating local sample",
		zap.String("uri", s.cfg.URI),
		zap.Int("row_limit", s.cfg.RowLimit))
	fmt.Fprintln(s.out, "Creating local sample...")

	tbl, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(s.out, "Saving sample to %s...\n", s.cfg.OutputPath)
	if err := s.save(ctx, tbl); err != nil {
		return nil, err
	}
	s.logger.Info("sample saved",
		zap.String("path", s.cfg.OutputPath),
		zap.Int("rows", tbl.NumRows()))

	if err := PrintColumns(s.out, tbl.Names()); err != nil {
		return nil, err
	}
	return tbl, nil
}

func (s *Sampler) save(ctx context.Context, tbl *table.Table) (err error) {
	sess, err := s.engine.Acquire(ctx, "save_sample")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			sess.Fail(err)
		}
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return sess.WriteTable(s.cfg.OutputPath, tbl)
}

// PrintColumns writes a numbered list of column names
func PrintColumns(w io.Writer, names []string) error {
	if _, err := fmt.Fprintln(w, "\nColumns in the dataset:"); err != nil {
		return err
	}
	for i, name := range names {
		if _, err := fmt.Fprintf(w, "%d. %s\n", i+1, name); err != nil {
			return err
		}
	}
	return nil
}
