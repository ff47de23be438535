package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/foodsample/internal/pipeline"
	"github.com/ajitpratap0/foodsample/pkg/config"
	"github.com/ajitpratap0/foodsample/pkg/engine"
	"github.com/ajitpratap0/foodsample/pkg/logger"
	"github.com/ajitpratap0/foodsample/pkg/observability"
	"github.com/ajitpratap0/foodsample/pkg/source"
	"github.com/ajitpratap0/foodsample/pkg/transform"
)

// flagKeys maps persistent flags to configuration keys
var flagKeys = map[string]string{
	"source":           "source.uri",
	"row-limit":        "source.row_limit",
	"region":           "source.region",
	"credentials-file": "source.credentials_file",
	"http-timeout":     "source.http_timeout",
	"max-retries":      "source.max_retries",
	"sample":           "paths.sample",
	"transformed":      "paths.transformed",
	"schema-dir":       "paths.schema_dir",
	"rules":            "transform.rules_file",
	"log-level":        "log.level",
	"log-encoding":     "log.encoding",
	"metrics-file":     "metrics.file",
	"trace":            "tracing.enabled",
	"trace-file":       "tracing.file",
}

func newRootCmd(out io.Writer) *cobra.Command {
	v := config.NewViper()
	var configFile string

	root := &cobra.Command{
		Use:   "foodsample",
		Short: "Sample and reshape the Open Food Facts product dataset",
		Long: `foodsample takes the first rows of the Open Food Facts Parquet dataset,
keeps them as a local CSV sample, reshapes the sample to the Open Food Facts
CSV export layout and writes a schema description of both files.

With no arguments it runs every stage, like "foodsample run".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ReadFile(v, configFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, out, func(ctx context.Context, a *app) error {
				_, err := a.pipeline.Run(ctx)
				return err
			})
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	flags.String("source", "", "dataset URI (https://, s3://, gs://, file:// or a path)")
	flags.Int("row-limit", 0, "number of leading rows to sample")
	flags.String("region", "", "AWS region for s3:// sources")
	flags.String("credentials-file", "", "GCS service account key for gs:// sources")
	flags.Duration("http-timeout", 0, "timeout of each HTTP request")
	flags.Int("max-retries", 0, "retries of a failed HTTP request")
	flags.String("sample", "", "sample CSV path")
	flags.String("transformed", "", "transformed CSV path")
	flags.String("schema-dir", "", "directory receiving schema files")
	flags.String("rules", "", "YAML rule file replacing the built-in rules")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-encoding", "", "log encoding (console, json)")
	flags.String("metrics-file", "", "write Prometheus metrics to this file")
	flags.Bool("trace", false, "export spans")
	flags.String("trace-file", "", "write spans to this file instead of stderr")
	for name, key := range flagKeys {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(
		newRunCmd(v, out),
		newSampleCmd(v, out),
		newTransformCmd(v, out),
		newDescribeCmd(v, out),
		newInspectCmd(v, out),
		newRulesCmd(v, out),
		newVersionCmd(out),
	)
	return root
}

func newRunCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sample if needed, transform, describe and print the first row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, out, func(ctx context.Context, a *app) error {
				_, err := a.pipeline.Run(ctx)
				return err
			})
		},
	}
}

func newSampleCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Fetch the leading rows of the dataset into the sample file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, out, func(ctx context.Context, a *app) error {
				_, err := a.pipeline.Sample(ctx)
				return err
			})
		},
	}
}

func newTransformCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "transform",
		Short: "Reshape the sample file into the transformed file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, out, func(ctx context.Context, a *app) error {
				_, _, _, err := a.pipeline.Transform(ctx)
				return err
			})
		},
	}
}

func newDescribeCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "describe [file...]",
		Short: "Write schema files for the sample and transformed files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, out, func(ctx context.Context, a *app) error {
				paths := args
				if len(paths) == 0 {
					paths = []string{a.cfg.Paths.Sample, a.cfg.Paths.Transformed}
				}
				written, err := a.pipeline.Describe(ctx, paths...)
				for _, p := range written {
					fmt.Fprintln(out, p)
				}
				return err
			})
		},
	}
}

func newInspectCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print one row of a table file",
		Long: `Print the non-empty fields of one row. With --key and --value the first row
whose column equals the value is printed, otherwise the first row.

Example:
  foodsample inspect --file food_sample.csv --key code --value 0000101209159`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, out, func(ctx context.Context, a *app) error {
				path := file
				if path == "" {
					path = a.cfg.Paths.Transformed
				}
				_, _, err := a.pipeline.Inspect(ctx, path, a.cfg.Inspect.Key, a.cfg.Inspect.Value)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "table file to read (default: the transformed file)")
	cmd.Flags().String("key", "", "column to match")
	cmd.Flags().String("value", "", "value the column must equal")
	_ = v.BindPFlag("inspect.key", cmd.Flags().Lookup("key"))
	_ = v.BindPFlag("inspect.value", cmd.Flags().Lookup("value"))
	return cmd
}

func newRulesCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the active column rules as YAML",
		Long: `Print the column rules in the rule file format. The output can be edited
and passed back with --rules.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			rules, err := pipeline.Rules(cfg)
			if err != nil {
				return err
			}
			if output != "" {
				return transform.SaveRules(output, rules)
			}
			return config.Encode(out, transform.RuleSet{Version: 1, Rules: rules})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the rules to this file instead of stdout")
	return cmd
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(out, "foodsample v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// app holds the collaborators of one command invocation
type app struct {
	cfg      *config.Config
	engine   *engine.Engine
	tracing  *observability.Tracing
	pipeline *pipeline.Pipeline
	log      *zap.Logger
	closers  []func() error
}

func withApp(cmd *cobra.Command, v *viper.Viper, out io.Writer, fn func(context.Context, *app) error) error {
	ctx := context.WithValue(cmd.Context(), logger.RunIDKey, uuid.NewString())
	a, err := newApp(ctx, v, out)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if runErr != nil {
		a.log.Error("command failed", zap.String("command", cmd.Name()), zap.Error(runErr))
	}
	if err := a.close(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newApp(ctx context.Context, v *viper.Viper, out io.Writer) (*app, error) {
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding}); err != nil {
		return nil, err
	}
	log := logger.WithContext(ctx)
	a := &app{cfg: cfg, log: log}

	traceCfg := observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceVersion: version,
	}
	if cfg.Tracing.Enabled && cfg.Tracing.File != "" {
		f, err := os.Create(cfg.Tracing.File) //nolint:gosec // G304: path comes from configuration
		if err != nil {
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		traceCfg.Writer = f
		a.closers = append(a.closers, f.Close)
	}
	if a.tracing, err = observability.NewTracing(traceCfg); err != nil {
		a.closeFiles()
		return nil, err
	}

	a.engine, err = engine.New(engine.Options{
		Source: source.Config{
			HTTPTimeout:     cfg.Source.HTTPTimeout,
			MaxRetries:      cfg.Source.MaxRetries,
			Region:          cfg.Source.Region,
			CredentialsFile: cfg.Source.CredentialsFile,
		},
		Logger:  log,
		Tracing: a.tracing,
	})
	if err != nil {
		a.closeFiles()
		return nil, err
	}

	a.pipeline, err = pipeline.New(pipeline.Options{
		Config: cfg,
		Engine: a.engine,
		Logger: log,
		Out:    out,
	})
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) close(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if a.pipeline != nil {
		keep(a.pipeline.WriteMetrics())
	}
	if a.engine != nil {
		keep(a.engine.Close())
	}
	if a.tracing != nil {
		keep(a.tracing.Shutdown(ctx))
	}
	keep(a.closeFiles())
	_ = logger.Sync()
	return first
}

func (a *app) closeFiles() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
