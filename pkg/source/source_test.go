package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/foodsample/pkg/errors"
	"github.com/ajitpratap0/foodsample/pkg/testutil"
)

var payload = []byte("PAR1" + strings.Repeat("0123456789", 100) + "PAR1")

func rangeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/food.parquet" {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "food.parquet", time.Time{}, bytes.NewReader(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPObjectReadAt(t *testing.T) {
	srv := rangeServer(t)
	reg := NewRegistry(Config{HTTPTimeout: 5 * time.Second}, testutil.TestLogger(t))

	obj, err := reg.Open(context.Background(), srv.URL+"/food.parquet")
	require.NoError(t, err)
	defer obj.Close()

	assert.Equal(t, int64(len(payload)), obj.Size())

	buf := make([]byte, 10)
	n, err := obj.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "0123456789", string(buf))

	// tail read crossing the end returns the remainder and io.EOF
	n, err = obj.ReadAt(buf, int64(len(payload)-4))
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "PAR1", string(buf[:n]))

	end, err := obj.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), end)

	stats := obj.Stats()
	assert.Equal(t, int64(2), stats.Requests)
	assert.Equal(t, int64(14), stats.BytesRead)

	require.NoError(t, obj.Close())
	require.NoError(t, obj.Close())
	_, err = obj.ReadAt(buf, 0)
	assert.Error(t, err)
}

func TestHTTPServerIgnoringRanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	obj, err := NewHTTPOpenerWithClient(srv.Client(), nil).Open(context.Background(), mustParse(t, srv.URL+"/x"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	_, err = obj.ReadAt(buf, 14)
	require.NoError(t, err)
	assert.Equal(t, "01234", string(buf))
}

func TestHTTPMissingObject(t *testing.T) {
	srv := rangeServer(t)
	reg := NewRegistry(Config{}, nil)

	_, err := reg.Open(context.Background(), srv.URL+"/missing.parquet")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRetrieval))
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPUnreachable(t *testing.T) {
	srv := rangeServer(t)
	url := srv.URL
	srv.Close()

	_, err := NewRegistry(Config{HTTPTimeout: time.Second}, nil).Open(context.Background(), url+"/food.parquet")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRetrieval))
}

func TestFileObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "food.parquet")
	require.NoError(t, os.WriteFile(path, payload, 0o644))
	reg := NewRegistry(Config{}, nil)

	for _, uri := range []string{path, "file://" + path} {
		obj, err := reg.Open(context.Background(), uri)
		require.NoError(t, err, uri)
		assert.Equal(t, int64(len(payload)), obj.Size())

		buf := make([]byte, 4)
		_, err = obj.ReadAt(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, "PAR1", string(buf))
		assert.Equal(t, int64(1), obj.Stats().Requests)
		require.NoError(t, obj.Close())
		require.NoError(t, obj.Close())
	}

	_, err := reg.Open(context.Background(), filepath.Join(t.TempDir(), "absent.parquet"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRetrieval))
}

func TestRegistryRejectsUnknownScheme(t *testing.T) {
	reg := NewRegistry(Config{}, nil)
	_, err := reg.Open(context.Background(), "ftp://example.com/food.parquet")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = reg.Open(context.Background(), "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	assert.NoError(t, reg.Close())
}

type fakeS3 struct {
	data   []byte
	ranges []string
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if aws.ToString(in.Key) != "food.parquet" {
		return nil, fmt.Errorf("NoSuchKey")
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(f.data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	rng := aws.ToString(in.Range)
	f.ranges = append(f.ranges, rng)
	var start, end int
	if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.data[start : end+1]))}, nil
}

func TestS3Object(t *testing.T) {
	fake := &fakeS3{data: payload}
	reg := NewRegistry(Config{}, nil)
	reg.Register("s3", NewS3OpenerWithClient(fake, nil))

	obj, err := reg.Open(context.Background(), "s3://datasets/food.parquet")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), obj.Size())

	buf := make([]byte, 3)
	_, err = obj.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "012", string(buf))
	assert.Equal(t, []string{"bytes=4-6"}, fake.ranges)

	_, err = reg.Open(context.Background(), "s3://datasets/other.parquet")
	assert.True(t, errors.IsType(err, errors.ErrorTypeRetrieval))

	_, err = reg.Open(context.Background(), "s3://datasets")
	assert.True(t, errors.IsType(err, errors.ErrorTypeRetrieval))
}

func TestS3ClientIgnoresOperationContext(t *testing.T) {
	fake := &fakeS3{data: payload}
	o := NewS3Opener("eu-west-1", nil)
	var dials []context.Context
	o.dial = func(ctx context.Context) (S3API, error) {
		dials = append(dials, ctx)
		return fake, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	u, err := url.Parse("s3://datasets/food.parquet")
	require.NoError(t, err)

	_, err = o.Open(ctx, u)
	require.NoError(t, err)
	_, err = o.Open(context.Background(), u)
	require.NoError(t, err)

	require.Len(t, dials, 1)
	assert.NoError(t, dials[0].Err())
}

func TestGCSClientIgnoresOperationContext(t *testing.T) {
	o := NewGCSOpener("", nil)
	var dialCtx context.Context
	o.dial = func(ctx context.Context) (*storage.Client, error) {
		dialCtx = ctx
		return storage.NewClient(ctx, option.WithoutAuthentication(), option.WithEndpoint("http://127.0.0.1:1"))
	}
	t.Cleanup(func() { _ = o.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	u, err := url.Parse("gs://datasets/food.parquet")
	require.NoError(t, err)

	_, err = o.Open(ctx, u)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRetrieval))
	require.NotNil(t, dialCtx)
	assert.NoError(t, dialCtx.Err())
}

func TestContentRangeTotal(t *testing.T) {
	assert.Equal(t, int64(12345), contentRangeTotal("bytes 0-0/12345"))
	assert.Equal(t, int64(-1), contentRangeTotal("bytes 0-0/*"))
	assert.Equal(t, int64(-1), contentRangeTotal(""))
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
