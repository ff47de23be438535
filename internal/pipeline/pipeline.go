// Package pipeline runs the sampling, transformation, description and
// inspection stages in sequence.
//
// A run, driven by configuration:
//
//  1. if the sample file is missing, sample the dataset into it
//  2. transform the sample into the transformed file
//  3. describe both files into the schema directory
//  4. print the first (or the selected) row of the transformed file
//
// Stages share nothing but files, so each one can also be run on its own.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/foodsample/pkg/config"
	"github.com/ajitpratap0/foodsample/pkg/describe"
	"github.com/ajitpratap0/foodsample/pkg/engine"
	"github.com/ajitpratap0/foodsample/pkg/errors"
	"github.com/ajitpratap0/foodsample/pkg/inspect"
	"github.com/ajitpratap0/foodsample/pkg/logger"
	"github.com/ajitpratap0/foodsample/pkg/metrics"
	"github.com/ajitpratap0/foodsample/pkg/sampler"
	"github.com/ajitpratap0/foodsample/pkg/table"
	"github.com/ajitpratap0/foodsample/pkg/transform"
)

// Stage names used in logs, spans and metrics
const (
	StageSample    = "sample"
	StageTransform = "transform"
	StageDescribe  = "describe"
	StageInspect   = "inspect"
)

// Options configure a Pipeline
type Options struct {
	Config *config.Config
	Engine *engine.Engine
	// Rules replace the rules named by the configuration when set
	Rules   []transform.Rule
	Metrics *metrics.Collector
	Logger  *zap.Logger
	// Out receives the operator report; discarded when nil
	Out io.Writer
}

// Pipeline holds the collaborators shared by the stages
type Pipeline struct {
	cfg     *config.Config
	engine  *engine.Engine
	rules   []transform.Rule
	metrics *metrics.Collector
	logger  *zap.Logger
	out     io.Writer
}

// Result summarizes a complete run
type Result struct {
	// Sampled is true when the sample had to be fetched
	Sampled         bool
	SampleRows      int
	TransformedRows int
	Fallbacks       int
	SchemaFiles     []string
	Row             *inspect.Row
}

// New creates a pipeline. The rule list is resolved here, so a bad rule file
// fails before any stage runs.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "pipeline needs a configuration")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Engine == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "pipeline needs an engine")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewCollector()
	}

	rules := opts.Rules
	if rules == nil {
		var err error
		if rules, err = Rules(opts.Config); err != nil {
			return nil, err
		}
	}

	return &Pipeline{
		cfg:     opts.Config,
		engine:  opts.Engine,
		rules:   rules,
		metrics: m,
		logger:  log,
		out:     out,
	}, nil
}

// Rules returns the rules named by cfg: the rule file when one is set, the
// built-in Open Food Facts rules otherwise
func Rules(cfg *config.Config) ([]transform.Rule, error) {
	if cfg.Transform.RulesFile == "" {
		return transform.FoodFacts(), nil
	}
	return transform.LoadRules(cfg.Transform.RulesFile)
}

// Metrics returns the collector the stages record into
func (p *Pipeline) Metrics() *metrics.Collector {
	return p.metrics
}

// Run executes every stage in order. The first structural error aborts the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	sampled, err := p.EnsureSample(ctx)
	if err != nil {
		return nil, err
	}
	res.Sampled = sampled

	sample, out, report, err := p.Transform(ctx)
	if err != nil {
		return nil, err
	}
	res.SampleRows = sample.NumRows()
	res.TransformedRows = out.NumRows()
	res.Fallbacks = report.TotalFallbacks()

	if res.SchemaFiles, err = p.Describe(ctx, p.cfg.Paths.Sample, p.cfg.Paths.Transformed); err != nil {
		return nil, err
	}

	row, _, err := p.Inspect(ctx, p.cfg.Paths.Transformed, p.cfg.Inspect.Key, p.cfg.Inspect.Value)
	if err != nil {
		return nil, err
	}
	res.Row = row

	p.logger.Info("run complete",
		zap.Bool("sampled", res.Sampled),
		zap.Int("rows", res.TransformedRows),
		zap.Int("fallbacks", res.Fallbacks))
	return res, nil
}

// EnsureSample samples the dataset unless the sample file already exists.
// It reports whether a sample was fetched.
func (p *Pipeline) EnsureSample(ctx context.Context) (sampled bool, err error) {
	exists, err := p.exists(ctx, p.cfg.Paths.Sample)
	if err != nil {
		return false, err
	}
	if exists {
		p.logger.Info("using existing sample", zap.String("path", p.cfg.Paths.Sample))
		return false, nil
	}
	if _, err := p.Sample(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Sample fetches the leading rows of the dataset and writes the sample file
func (p *Pipeline) Sample(ctx context.Context) (tbl *table.Table, err error) {
	ctx, done := p.stage(ctx, StageSample)
	defer func() { done(err) }()

	s := sampler.New(p.engine, sampler.Config{
		URI:        p.cfg.Source.URI,
		RowLimit:   p.cfg.Source.RowLimit,
		OutputPath: p.cfg.Paths.Sample,
	}, p.logger.With(zap.String("stage", StageSample)), p.out)

	tbl, err = s.Run(ctx)
	if err != nil {
		return nil, err
	}
	p.metrics.RowsSampled(tbl.NumRows())
	return tbl, nil
}

// Transform reads the sample file, applies the rules and writes the
// transformed file. It returns the input, the output and the fallback report.
func (p *Pipeline) Transform(ctx context.Context) (in, out *table.Table, report *transform.Report, err error) {
	ctx, done := p.stage(ctx, StageTransform)
	defer func() { done(err) }()

	sess, err := p.engine.Acquire(ctx, StageTransform)
	if err != nil {
		return nil, nil, nil, err
	}
	defer closeSession(sess, &err)

	fmt.Fprintln(p.out, "Transforming data to match target schema...")
	in, err = sess.ReadTable(p.cfg.Paths.Sample)
	if err != nil {
		return nil, nil, nil, err
	}

	prog, err := transform.Compile(p.rules, in.Names(), p.logger.With(zap.String("stage", StageTransform)))
	if err != nil {
		return nil, nil, nil, err
	}
	out, report, err = prog.Apply(sess.Context(), in)
	if err != nil {
		return nil, nil, nil, err
	}

	fmt.Fprintf(p.out, "Saving transformed data to %s...\n", p.cfg.Paths.Transformed)
	if err := sess.WriteTable(p.cfg.Paths.Transformed, out); err != nil {
		return nil, nil, nil, err
	}

	p.metrics.RowsTransformed(out.NumRows())
	for _, rule := range report.FallbackRules() {
		p.metrics.CastFallbacks(rule, report.Fallbacks[rule])
	}
	return in, out, report, nil
}

// Describe writes one schema file per data file into the schema directory
// and returns their paths
func (p *Pipeline) Describe(ctx context.Context, paths ...string) (written []string, err error) {
	ctx, done := p.stage(ctx, StageDescribe)
	defer func() { done(err) }()

	sess, err := p.engine.Acquire(ctx, StageDescribe)
	if err != nil {
		return nil, err
	}
	defer closeSession(sess, &err)

	for _, path := range paths {
		tbl, err := sess.ReadTable(path)
		if err != nil {
			return nil, err
		}
		target := describe.SchemaPath(p.cfg.Paths.SchemaDir, path)
		d := describe.Describe(tbl, p.logger.With(zap.String("stage", StageDescribe), zap.String("path", path)))
		if err := d.WriteFile(target); err != nil {
			return nil, err
		}
		p.logger.Info("schema written",
			zap.String("data", path),
			zap.String("schema", target),
			zap.Int("fields", len(d.Fields)))
		written = append(written, target)
	}
	return written, nil
}

// Inspect prints the first row of the file at path whose key column equals
// value, or the first row when key is empty. found is false when nothing
// matched; that is reported to the operator, not returned as an error.
func (p *Pipeline) Inspect(ctx context.Context, path, key, value string) (row *inspect.Row, found bool, err error) {
	ctx, done := p.stage(ctx, StageInspect)
	defer func() { done(err) }()

	sess, err := p.engine.Acquire(ctx, StageInspect)
	if err != nil {
		return nil, false, err
	}
	defer closeSession(sess, &err)

	tbl, err := sess.ReadTable(path)
	if err != nil {
		return nil, false, err
	}

	var match inspect.Predicate
	title := "First row properties"
	if key != "" {
		if !tbl.Has(key) {
			return nil, false, errors.New(errors.ErrorTypeSchema, "input is missing column").
				WithDetail("column", key).
				WithDetail("path", path)
		}
		fmt.Fprintf(p.out, "\nLooking up %s: %s\n", key, value)
		match = inspect.ColumnEquals(key, value)
		title = "Product properties"
	} else {
		fmt.Fprintf(p.out, "\nReading first row from %s\n", path)
	}

	row, found = inspect.Inspect(tbl, match)
	if !found {
		if key != "" {
			fmt.Fprintf(p.out, "No row with %s %s in %s.\n", key, value, path)
		} else {
			fmt.Fprintf(p.out, "No data found in %s\n", path)
		}
		return nil, false, nil
	}
	if err := inspect.Print(p.out, title, row); err != nil {
		return nil, false, errors.Wrap(err, errors.ErrorTypeIO, "failed to print row")
	}
	return row, true, nil
}

// WriteMetrics writes the collected metrics when a metrics file is configured
func (p *Pipeline) WriteMetrics() error {
	if p.cfg.Metrics.File == "" {
		return nil
	}
	return p.metrics.WriteFile(p.cfg.Metrics.File)
}

func (p *Pipeline) exists(ctx context.Context, path string) (ok bool, err error) {
	sess, err := p.engine.Acquire(ctx, "stat")
	if err != nil {
		return false, err
	}
	defer closeSession(sess, &err)
	return sess.Exists(path)
}

// stage tags ctx with the stage name and returns a function that records the
// stage duration and outcome
func (p *Pipeline) stage(ctx context.Context, name string) (context.Context, func(error)) {
	ctx = context.WithValue(ctx, logger.StageKey, name)
	timer := metrics.NewTimer(name)
	log := p.logger.With(zap.String("stage", name))
	log.Debug("stage started")
	return ctx, func(err error) {
		d := timer.Stop()
		p.metrics.ObserveStage(name, d)
		if err != nil {
			log.Error("stage failed", zap.Duration("duration", d), zap.Error(err))
			return
		}
		log.Info("stage finished", zap.Duration("duration", d))
	}
}

// closeSession releases sess, recording *err as its outcome and keeping the
// first error
func closeSession(sess *engine.Session, err *error) {
	if *err != nil {
		sess.Fail(*err)
	}
	if cerr := sess.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
