// Package foodsample samples the Open Food Facts product dataset and reshapes
// the sample to the layout of the Open Food Facts CSV export.
//
// A run has four stages:
//
//  1. Sample: read the first rows of the Parquet dataset through HTTP range
//     requests (or S3, GCS, a local file) and save them as food_sample.csv.
//     An existing sample is reused.
//  2. Transform: apply an ordered list of column rules to the sample and save
//     food_sample_transformed.csv.
//  3. Describe: write one (name, example) schema file per data file.
//  4. Inspect: print the non-empty fields of one row.
//
// # Quick Start
//
//	go run ./cmd/foodsample
//
// runs every stage with the defaults. The individual stages are available as
// subcommands:
//
//	foodsample sample --row-limit 500
//	foodsample transform --rules my_rules.yaml
//	foodsample describe
//	foodsample inspect --key code --value 0000101209159
//
// foodsample rules prints the built-in rules in the rule file format.
//
// # Packages
//
//   - pkg/source: range readers over http(s), s3, gs and file URIs
//   - pkg/engine: sessions tying a source, an allocator and a span together
//   - pkg/formats/parquet, pkg/formats/csv: table codecs
//   - pkg/table: the in-memory table passed between stages
//   - pkg/sampler, pkg/transform, pkg/describe, pkg/inspect: the stages
//   - internal/pipeline: the orchestrator
//   - pkg/config, pkg/logger, pkg/errors, pkg/metrics, pkg/observability:
//     configuration and observability
package foodsample
