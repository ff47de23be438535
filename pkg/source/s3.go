package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/foodsample/pkg/errors"
)

// S3API is the subset of the S3 client the opener uses
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Opener reads s3://bucket/key objects with ranged GetObject calls.
// The client is created from the default AWS credential chain on first use.
type S3Opener struct {
	region string
	logger *zap.Logger

	dial    func(ctx context.Context) (S3API, error)
	once    sync.Once
	client  S3API
	initErr error
}

// NewS3Opener creates an opener for the given region (empty uses the SDK default)
func NewS3Opener(region string, logger *zap.Logger) *S3Opener {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &S3Opener{region: region, logger: logger}
	o.dial = o.defaultClient
	return o
}

// NewS3OpenerWithClient creates an opener around an existing client
func NewS3OpenerWithClient(client S3API, logger *zap.Logger) *S3Opener {
	o := NewS3Opener("", logger)
	o.once.Do(func() { o.client = client })
	return o
}

func (o *S3Opener) defaultClient(ctx context.Context) (S3API, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if o.region != "" {
		opts = append(opts, awsconfig.WithRegion(o.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

// init builds the client once. The client outlives the operation that
// first needs it, so it never sees that operation's context.
func (o *S3Opener) init() error {
	o.once.Do(func() {
		client, err := o.dial(context.Background())
		if err != nil {
			o.initErr = errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
			return
		}
		o.client = client
	})
	return o.initErr
}

// Open looks up the object size and returns a ranged reader over it
func (o *S3Opener) Open(ctx context.Context, u *url.URL) (Object, error) {
	bucket, key, err := bucketAndKey(u)
	if err != nil {
		return nil, err
	}
	if err := o.init(); err != nil {
		return nil, err
	}

	head, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to stat S3 object").
			WithDetail("bucket", bucket).
			WithDetail("key", key)
	}
	size := aws.ToInt64(head.ContentLength)
	o.logger.Debug("s3 object", zap.String("bucket", bucket), zap.String("key", key), zap.Int64("size", size))

	return newRangeObject(ctx, u.String(), size, func(ctx context.Context, off, n int64) (io.ReadCloser, error) {
		out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+n-1)),
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to read S3 range").
				WithDetail("bucket", bucket).
				WithDetail("key", key).
				WithDetail("offset", off)
		}
		return out.Body, nil
	}), nil
}
