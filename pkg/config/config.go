// Package config provides the configuration of foodsample.
//
// The configuration is organized into sections:
//   - Source: where the raw dataset lives and how much of it to read
//   - Paths: where the sample, transformed output and schema files go
//   - Transform: an optional rule file replacing the built-in rules
//   - Inspect: the row the final report prints
//   - Log, Metrics, Tracing: observability
//
// Values are resolved by viper in order of precedence: command-line flags,
// FOODSAMPLE_* environment variables, an optional YAML file, then defaults.
// With the defaults a run samples 100 rows of the public dataset into the
// working directory.
//
// Example usage:
//
//	v := config.NewViper()
//	if err := config.ReadFile(v, "foodsample.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := config.FromViper(v)
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/foodsample/pkg/errors"
)

const (
	// DefaultSourceURI is the public Open Food Facts product dataset
	DefaultSourceURI = "https://huggingface.co/datasets/openfoodfacts/product-database/resolve/main/food.parquet"
	// DefaultRowLimit is the number of leading rows sampled
	DefaultRowLimit = 100
	// EnvPrefix prefixes environment overrides, e.g. FOODSAMPLE_SOURCE_URI
	EnvPrefix = "FOODSAMPLE"
)

// Config is the complete configuration of one run
type Config struct {
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Transform TransformConfig `yaml:"transform" mapstructure:"transform"`
	Inspect   InspectConfig   `yaml:"inspect" mapstructure:"inspect"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing" mapstructure:"tracing"`
}

// SourceConfig locates the raw dataset
type SourceConfig struct {
	// URI of the Parquet object: https://, s3://, gs://, file:// or a path
	URI string `yaml:"uri" mapstructure:"uri"`
	// RowLimit is how many leading rows to sample
	RowLimit int `yaml:"row_limit" mapstructure:"row_limit"`
	// Region for s3:// objects
	Region string `yaml:"region" mapstructure:"region"`
	// CredentialsFile for gs:// objects
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	// HTTPTimeout bounds each HTTP request, zero for none
	HTTPTimeout time.Duration `yaml:"http_timeout" mapstructure:"http_timeout"`
	// MaxRetries is how often a failed HTTP request is retried
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
}

// PathsConfig names the files a run reads and writes
type PathsConfig struct {
	Sample      string `yaml:"sample" mapstructure:"sample"`
	Transformed string `yaml:"transformed" mapstructure:"transformed"`
	SchemaDir   string `yaml:"schema_dir" mapstructure:"schema_dir"`
}

// TransformConfig selects the column rules
type TransformConfig struct {
	// RulesFile is a YAML rule file; empty uses the built-in rules
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// InspectConfig selects the row printed at the end of a run. An empty key
// prints the first row.
type InspectConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Value string `yaml:"value" mapstructure:"value"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level    string `yaml:"level" mapstructure:"level"`
	Encoding string `yaml:"encoding" mapstructure:"encoding"`
}

// MetricsConfig configures the metrics text file
type MetricsConfig struct {
	// File receives the run's metrics in Prometheus text format; empty disables it
	File string `yaml:"file" mapstructure:"file"`
}

// TracingConfig configures span export
type TracingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// File receives spans as JSON lines; empty writes to stderr
	File string `yaml:"file" mapstructure:"file"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			URI:         DefaultSourceURI,
			RowLimit:    DefaultRowLimit,
			HTTPTimeout: 5 * time.Minute,
			MaxRetries:  3,
		},
		Paths: PathsConfig{
			Sample:      "food_sample.csv",
			Transformed: "food_sample_transformed.csv",
			SchemaDir:   "schemas",
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// NewViper returns a viper instance carrying the defaults and reading
// FOODSAMPLE_* environment overrides
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("source.uri", d.Source.URI)
	v.SetDefault("source.row_limit", d.Source.RowLimit)
	v.SetDefault("source.region", d.Source.Region)
	v.SetDefault("source.credentials_file", d.Source.CredentialsFile)
	v.SetDefault("source.http_timeout", d.Source.HTTPTimeout)
	v.SetDefault("source.max_retries", d.Source.MaxRetries)
	v.SetDefault("paths.sample", d.Paths.Sample)
	v.SetDefault("paths.transformed", d.Paths.Transformed)
	v.SetDefault("paths.schema_dir", d.Paths.SchemaDir)
	v.SetDefault("transform.rules_file", "")
	v.SetDefault("inspect.key", "")
	v.SetDefault("inspect.value", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", d.Log.Encoding)
	v.SetDefault("metrics.file", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("source.row_limit", EnvPrefix+"_SOURCE_ROW_LIMIT", EnvPrefix+"_ROW_LIMIT")
	return v
}

// ReadFile merges a YAML configuration file into v
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to read configuration file").
			WithDetail("path", path)
	}
	return nil
}

// FromViper decodes and validates the configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration for correctness
func (c *Config) Validate() error {
	if c.Source.URI == "" {
		return errors.New(errors.ErrorTypeConfig, "source.uri must not be empty")
	}
	if c.Source.RowLimit <= 0 {
		return errors.New(errors.ErrorTypeConfig, "source.row_limit must be positive").
			WithDetail("row_limit", c.Source.RowLimit)
	}
	if c.Source.HTTPTimeout < 0 {
		return errors.New(errors.ErrorTypeConfig, "source.http_timeout must not be negative")
	}
	if c.Source.MaxRetries < 0 {
		return errors.New(errors.ErrorTypeConfig, "source.max_retries must not be negative")
	}
	for key, path := range map[string]string{
		"paths.sample":      c.Paths.Sample,
		"paths.transformed": c.Paths.Transformed,
		"paths.schema_dir":  c.Paths.SchemaDir,
	} {
		if path == "" {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("%s must not be empty", key))
		}
	}
	if c.Paths.Sample == c.Paths.Transformed {
		return errors.New(errors.ErrorTypeConfig, "paths.sample and paths.transformed must differ")
	}
	if c.Inspect.Value != "" && c.Inspect.Key == "" {
		return errors.New(errors.ErrorTypeConfig, "inspect.value needs inspect.key")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid log.level").
			WithDetail("level", c.Log.Level)
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		return errors.New(errors.ErrorTypeConfig, "log.encoding must be json or console").
			WithDetail("encoding", c.Log.Encoding)
	}
	return nil
}
