package testutil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// IntegrationTest marks a test that reaches the public dataset
func IntegrationTest(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("FOODSAMPLE_INTEGRATION") == "" {
		t.Skip("Set FOODSAMPLE_INTEGRATION=1 to run against the public dataset")
	}
}

// ObjectServer serves one in-memory object with Range support and counts requests
type ObjectServer struct {
	*httptest.Server
	requests atomic.Int64
}

// ServeObject starts a server answering every path with data
func ServeObject(t *testing.T, name string, data []byte) *ObjectServer {
	t.Helper()
	s := &ObjectServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(s.Close)
	return s
}

// ObjectURL returns the URL of the served object
func (s *ObjectServer) ObjectURL() string {
	return s.Server.URL + "/food.parquet"
}

// Requests returns the number of requests served so far
func (s *ObjectServer) Requests() int64 {
	return s.requests.Load()
}
