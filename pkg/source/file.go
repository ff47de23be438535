package source

import (
	"context"
	"net/url"
	"os"
	"sync/atomic"

	"github.com/ajitpratap0/foodsample/pkg/errors"
)

// FileOpener opens local files
type FileOpener struct{}

// Open opens the file named by the URI path
func (FileOpener) Open(_ context.Context, u *url.URL) (Object, error) {
	path := u.Path
	if u.Host != "" && u.Host != "localhost" {
		// file://relative/path parses the first segment as a host
		path = u.Host + u.Path
	}
	f, err := os.Open(path) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to open local object").
			WithDetail("path", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeRetrieval, "failed to stat local object").
			WithDetail("path", path)
	}
	return &fileObject{File: f, size: info.Size()}, nil
}

type fileObject struct {
	*os.File
	size   int64
	reads  atomic.Int64
	bytes  atomic.Int64
	closed atomic.Bool
}

func (f *fileObject) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.File.ReadAt(p, off)
	f.reads.Add(1)
	f.bytes.Add(int64(n))
	return n, err
}

func (f *fileObject) Size() int64 { return f.size }

func (f *fileObject) Stats() Stats {
	return Stats{Requests: f.reads.Load(), BytesRead: f.bytes.Load()}
}

func (f *fileObject) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	return f.File.Close()
}
