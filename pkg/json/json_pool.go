// Package json provides JSON helpers backed by goccy/go-json with pooled
// buffers. Tag lists and nested Parquet values are encoded through here, and
// the transformer decodes JSON cells with UnmarshalString and UnmarshalNumber.
package json

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	gojson "github.com/goccy/go-json"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	// Oversized buffers are dropped rather than pinned in the pool
	if buf.Cap() > 64*1024 {
		return
	}
	bufferPool.Put(buf)
}

// MarshalString encodes v and returns the result as a string
func MarshalString(v interface{}) (string, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder terminates every value with a newline
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// UnmarshalString decodes s into v
func UnmarshalString(s string, v interface{}) error {
	return gojson.Unmarshal([]byte(s), v)
}

// Number is a JSON number literal kept as text
type Number = gojson.Number

// UnmarshalNumber decodes s into v like UnmarshalString, but numbers held in
// interface values decode as Number so large integers keep every digit
func UnmarshalNumber(s string, v interface{}) error {
	if !gojson.Valid([]byte(s)) {
		return fmt.Errorf("invalid JSON: %.40q", s)
	}
	dec := gojson.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	return dec.Decode(v)
}
