// Package engine provides scoped access to the resources a pipeline stage
// needs: a memory allocator for columnar buffers, the remote objects it opens,
// and a tracing span.
//
// Every operation acquires a Session and releases it when done, whether the
// operation succeeded or not:
//
//	sess, err := eng.Acquire(ctx, "sample")
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//	tbl, err := sess.FetchParquet(uri, 100)
package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/foodsample/pkg/errors"
	"github.com/ajitpratap0/foodsample/pkg/formats/csv"
	"github.com/ajitpratap0/foodsample/pkg/formats/parquet"
	"github.com/ajitpratap0/foodsample/pkg/observability"
	"github.com/ajitpratap0/foodsample/pkg/source"
	"github.com/ajitpratap0/foodsample/pkg/table"
)

// Options configure an Engine
type Options struct {
	Source source.Config
	Logger *zap.Logger
	// Tracing starts session spans; a disabled tracer when nil
	Tracing *observability.Tracing
	// Allocator backs columnar buffers of every session, a Go allocator when nil
	Allocator memory.Allocator
	// Registry overrides the source registry built from Source
	Registry *source.Registry
}

// Engine hands out sessions
type Engine struct {
	registry *source.Registry
	tracing  *observability.Tracing
	mem      memory.Allocator
	logger   *zap.Logger
	active   atomic.Int64
}

// New creates an engine
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracing := opts.Tracing
	if tracing == nil {
		var err error
		if tracing, err = observability.NewTracing(observability.TracingConfig{}); err != nil {
			return nil, err
		}
	}
	mem := opts.Allocator
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	registry := opts.Registry
	if registry == nil {
		registry = source.NewRegistry(opts.Source, logger)
	}
	return &Engine{
		registry: registry,
		tracing:  tracing,
		mem:      mem,
		logger:   logger.With(zap.String("component", "engine")),
	}, nil
}

// Acquire opens a session for one named operation
func (e *Engine) Acquire(ctx context.Context, operation string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := e.tracing.StartSpan(ctx, operation)
	span.SetAttribute("operation", operation)
	e.active.Add(1)
	e.logger.Debug("session acquired", zap.String("operation", operation))
	return &Session{
		ctx:       ctx,
		engine:    e,
		operation: operation,
		span:      span,
	}, nil
}

// Active returns the number of sessions not yet closed
func (e *Engine) Active() int64 {
	return e.active.Load()
}

// Close releases the source clients
func (e *Engine) Close() error {
	if n := e.active.Load(); n > 0 {
		e.logger.Warn("engine closed with open sessions", zap.Int64("sessions", n))
	}
	return e.registry.Close()
}

// Session is the scoped resource of one operation
type Session struct {
	ctx       context.Context
	engine    *Engine
	operation string
	span      *observability.Span

	mu      sync.Mutex
	objects []source.Object
	closed  bool
	err     error
}

// Context returns the session context, carrying its span
func (s *Session) Context() context.Context {
	return s.ctx
}

// Allocator returns the allocator backing columnar buffers
func (s *Session) Allocator() memory.Allocator {
	return s.engine.mem
}

// Fail records err as the outcome reported when the session closes
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// FetchParquet reads the first limit rows, in file order, of the Parquet
// object at uri
func (s *Session) FetchParquet(uri string, limit int) (*table.Table, error) {
	if limit <= 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "row limit must be positive").
			WithDetail("limit", limit)
	}
	obj, err := s.open(uri)
	if err != nil {
		return nil, err
	}

	tbl, err := parquet.ReadTable(s.ctx, obj, limit, parquet.ReadOptions{Allocator: s.engine.mem})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to read parquet object").
			WithDetail("uri", uri)
	}

	stats := obj.Stats()
	s.span.SetAttribute("source.requests", stats.Requests)
	s.span.SetAttribute("source.bytes", stats.BytesRead)
	s.span.SetAttribute("rows", tbl.NumRows())
	s.engine.logger.Info("parquet sample read",
		zap.String("uri", uri),
		zap.Int("rows", tbl.NumRows()),
		zap.Int("columns", tbl.NumColumns()),
		zap.Int64("requests", stats.Requests),
		zap.Int64("bytes", stats.BytesRead))
	return tbl, nil
}

// ReadTable reads a local table file. Files ending in .parquet are decoded
// in full; anything else is read as delimited text.
func (s *Session) ReadTable(path string) (*table.Table, error) {
	if !isParquet(path) {
		return csv.ReadFile(path, csv.Options{})
	}
	obj, err := s.open(path)
	if err != nil {
		return nil, err
	}
	info, err := parquet.Stat(obj, parquet.ReadOptions{Allocator: s.engine.mem})
	if err != nil {
		return nil, err
	}
	limit := int(info.NumRows)
	if limit == 0 {
		limit = 1
	}
	return parquet.ReadTable(s.ctx, obj, limit, parquet.ReadOptions{Allocator: s.engine.mem})
}

// WriteTable writes tbl to path as Parquet when the extension is .parquet and
// as delimited text otherwise, compressed according to the extension
func (s *Session) WriteTable(path string, tbl *table.Table) error {
	if !isParquet(path) {
		return csv.WriteFile(path, tbl, csv.Options{})
	}
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
	if err := parquet.Write(f, tbl, parquet.WriteOptions{Allocator: s.engine.mem}); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write parquet output").
			WithDetail("path", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to close output file").
			WithDetail("path", path)
	}
	return nil
}

// Exists reports whether a local file exists
func (s *Session) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.Wrap(err, errors.ErrorTypeIO, "failed to stat file").
			WithDetail("path", path)
	}
}

// Close releases every object the session opened and ends its span. It is
// safe to call more than once; only the first call has an effect.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var first error
	released := len(s.objects)
	for i := len(s.objects) - 1; i >= 0; i-- {
		if err := s.objects[i].Close(); err != nil && first == nil {
			first = errors.Wrap(err, errors.ErrorTypeIO, "failed to release object")
		}
	}
	s.objects = nil

	s.span.SetAttribute("objects.released", released)
	s.span.End(s.err)
	s.engine.active.Add(-1)
	s.engine.logger.Debug("session released", zap.String("operation", s.operation))
	return first
}

func (s *Session) open(uri string) (source.Object, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New(errors.ErrorTypeInternal, "session is closed").
			WithDetail("operation", s.operation)
	}
	s.mu.Unlock()

	obj, err := s.engine.registry.Open(s.ctx, uri)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.objects = append(s.objects, obj)
	s.mu.Unlock()
	return obj, nil
}

func isParquet(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".parquet")
}
