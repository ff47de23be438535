package source

import (
	"context"
	"io"
	"net/url"
	"sync"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/foodsample/pkg/errors"
)

// GCSOpener reads gs://bucket/object objects with range readers.
// The client is created on first use.
type GCSOpener struct {
	credentialsFile string
	logger          *zap.Logger

	dial    func(ctx context.Context) (*storage.Client, error)
	once    sync.Once
	client  *storage.Client
	initErr error
}

// NewGCSOpener creates an opener; an empty credentials file uses application default credentials
func NewGCSOpener(credentialsFile string, logger *zap.Logger) *GCSOpener {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &GCSOpener{credentialsFile: credentialsFile, logger: logger}
	o.dial = o.defaultClient
	return o
}

func (o *GCSOpener) defaultClient(ctx context.Context) (*storage.Client, error) {
	var opts []option.ClientOption
	if o.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(o.credentialsFile))
	}
	return storage.NewClient(ctx, opts...)
}

// init builds the client once. Token refreshes run under the context the
// client was built with, so it is never an operation's context.
func (o *GCSOpener) init() error {
	o.once.Do(func() {
		client, err := o.dial(context.Background())
		if err != nil {
			o.initErr = errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
			return
		}
		o.client = client
	})
	return o.initErr
}

// Open reads the object attributes and returns a ranged reader over it
func (o *GCSOpener) Open(ctx context.Context, u *url.URL) (Object, error) {
	bucket, name, err := bucketAndKey(u)
	if err != nil {
		return nil, err
	}
	if err := o.init(); err != nil {
		return nil, err
	}

	handle := o.client.Bucket(bucket).Object(name)
	attrs, err := handle.Attrs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to stat GCS object").
			WithDetail("bucket", bucket).
			WithDetail("object", name)
	}
	o.logger.Debug("gcs object", zap.String("bucket", bucket), zap.String("object", name), zap.Int64("size", attrs.Size))

	return newRangeObject(ctx, u.String(), attrs.Size, func(ctx context.Context, off, n int64) (io.ReadCloser, error) {
		r, err := handle.NewRangeReader(ctx, off, n)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to read GCS range").
				WithDetail("bucket", bucket).
				WithDetail("object", name).
				WithDetail("offset", off)
		}
		return r, nil
	}), nil
}

// Close releases the GCS client if one was created
func (o *GCSOpener) Close() error {
	if o.client != nil {
		return o.client.Close()
	}
	return nil
}
