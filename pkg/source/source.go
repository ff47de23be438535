// Package source opens remote and local objects for random access, so that a
// Parquet footer and the first row groups can be read without downloading the
// whole object.
//
// Supported URI schemes:
//
//	https://host/path, http://host/path   HTTP range requests
//	s3://bucket/key                       ranged S3 GetObject
//	gs://bucket/object                    GCS range readers
//	file:///abs/path, relative/path       local files
package source

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/foodsample/pkg/errors"
)

// Object is a random-access view of one object. ReadAt and Seek together
// satisfy the Parquet reader's ReaderAtSeeker.
type Object interface {
	io.ReaderAt
	io.Seeker
	// Size returns the object length in bytes
	Size() int64
	// Stats reports how much was transferred so far
	Stats() Stats
	// Close releases the object; calling it more than once is safe
	Close() error
}

// Stats counts the transfers an object performed
type Stats struct {
	Requests  int64
	BytesRead int64
}

// Opener opens objects for one URI scheme
type Opener interface {
	Open(ctx context.Context, uri *url.URL) (Object, error)
}

// Config configures the built-in openers
type Config struct {
	// HTTPTimeout bounds each HTTP request
	HTTPTimeout time.Duration
	// MaxRetries is how often a failed HTTP request is retried
	MaxRetries int
	// Region is the AWS region for s3:// objects
	Region string
	// CredentialsFile is a GCS service account key for gs:// objects
	CredentialsFile string
}

// Registry dispatches URIs to openers by scheme
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
	logger  *zap.Logger
}

// NewRegistry creates a registry with the http, https, s3, gs and file openers
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		openers: make(map[string]Opener),
		logger:  logger.With(zap.String("component", "source")),
	}
	retry := DefaultRetryPolicy()
	retry.MaxRetries = cfg.MaxRetries
	httpOpener := NewHTTPOpener(cfg.HTTPTimeout, r.logger).WithRetry(retry)
	r.Register("http", httpOpener)
	r.Register("https", httpOpener)
	r.Register("s3", NewS3Opener(cfg.Region, r.logger))
	r.Register("gs", NewGCSOpener(cfg.CredentialsFile, r.logger))
	r.Register("file", FileOpener{})
	return r
}

// Register adds or replaces the opener for a scheme
func (r *Registry) Register(scheme string, o Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[strings.ToLower(scheme)] = o
}

// Open parses rawURI and opens it with the opener registered for its scheme.
// A URI without a scheme is treated as a local path.
func (r *Registry) Open(ctx context.Context, rawURI string) (Object, error) {
	u, err := parseURI(rawURI)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	o, ok := r.openers[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrorTypeConfig, "unsupported source scheme").
			WithDetail("scheme", u.Scheme).
			WithDetail("uri", rawURI)
	}

	r.logger.Debug("opening object", zap.String("uri", rawURI))
	obj, err := o.Open(ctx, u)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeRetrieval) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to open source").
			WithDetail("uri", rawURI)
	}
	return obj, nil
}

func parseURI(rawURI string) (*url.URL, error) {
	if rawURI == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "source URI is empty")
	}
	if !strings.Contains(rawURI, "://") {
		return &url.URL{Scheme: "file", Path: rawURI}, nil
	}
	u, err := url.Parse(rawURI)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid source URI").
			WithDetail("uri", rawURI)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

// bucketAndKey splits s3://bucket/key and gs://bucket/object URIs
func bucketAndKey(u *url.URL) (string, string, error) {
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", errors.New(errors.ErrorTypeConfig, "object URI needs a bucket and a key").
			WithDetail("uri", u.String())
	}
	return u.Host, key, nil
}

// rangeFunc returns a reader over [off, off+n) of an object
type rangeFunc func(ctx context.Context, off, n int64) (io.ReadCloser, error)

// rangeObject turns a ranged-read primitive into an Object
type rangeObject struct {
	ctx    context.Context
	name   string
	size   int64
	fetch  rangeFunc
	pos    int64
	closed atomic.Bool
	reqs   atomic.Int64
	bytes  atomic.Int64
}

func newRangeObject(ctx context.Context, name string, size int64, fetch rangeFunc) *rangeObject {
	return &rangeObject{ctx: ctx, name: name, size: size, fetch: fetch}
}

func (o *rangeObject) Size() int64 { return o.size }

func (o *rangeObject) Stats() Stats {
	return Stats{Requests: o.reqs.Load(), BytesRead: o.bytes.Load()}
}

func (o *rangeObject) ReadAt(p []byte, off int64) (int, error) {
	if o.closed.Load() {
		return 0, errors.New(errors.ErrorTypeRetrieval, "read from closed object").
			WithDetail("object", o.name)
	}
	if off < 0 {
		return 0, errors.New(errors.ErrorTypeValidation, "negative read offset")
	}
	if off >= o.size {
		return 0, io.EOF
	}
	want := int64(len(p))
	if remaining := o.size - off; want > remaining {
		want = remaining
	}
	if want == 0 {
		return 0, nil
	}

	rc, err := o.fetch(o.ctx, off, want)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	o.reqs.Add(1)

	n, err := io.ReadFull(rc, p[:want])
	o.bytes.Add(int64(n))
	if err != nil {
		return n, errors.Wrap(err, errors.ErrorTypeRetrieval, "short range read").
			WithDetail("object", o.name).
			WithDetail("offset", off)
	}
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

func (o *rangeObject) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = o.pos + offset
	case io.SeekEnd:
		abs = o.size + offset
	default:
		return 0, errors.New(errors.ErrorTypeValidation, "invalid seek whence")
	}
	if abs < 0 {
		return 0, errors.New(errors.ErrorTypeValidation, "negative seek position")
	}
	o.pos = abs
	return abs, nil
}

func (o *rangeObject) Close() error {
	o.closed.Store(true)
	return nil
}

// Close releases openers that hold clients
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	seen := make(map[Opener]bool)
	for _, o := range r.openers {
		if seen[o] {
			continue
		}
		seen[o] = true
		if c, ok := o.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
