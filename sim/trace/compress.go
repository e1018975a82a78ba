package trace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression is picked from the file extension.
const (
	extGzip   = ".gz"
	extZstd   = ".zst"
	extSnappy = ".sz"
)

type multiCloser struct {
	io.Reader
	io.Writer
	closers []func() error
}

func (m *multiCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openFile opens path for reading, transparently decompressing .gz, .zst
// and .sz (framed snappy) files.
func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace %q: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case extGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("opening gzip trace %q: %w", path, err)
		}
		return &multiCloser{Reader: zr, closers: []func() error{zr.Close, f.Close}}, nil
	case extZstd:
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("opening zstd trace %q: %w", path, err)
		}
		return &multiCloser{Reader: dec, closers: []func() error{
			func() error { dec.Close(); return nil },
			f.Close,
		}}, nil
	case extSnappy:
		return &multiCloser{Reader: snappy.NewReader(f), closers: []func() error{f.Close}}, nil
	}
	return f, nil
}

// createFile creates path for writing, compressing by extension like
// openFile. Closing the returned writer flushes the compressor first.
func createFile(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trace %q: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case extGzip:
		zw := gzip.NewWriter(f)
		return &multiCloser{Writer: zw, closers: []func() error{zw.Close, f.Close}}, nil
	case extZstd:
		enc, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("creating zstd trace %q: %w", path, err)
		}
		return &multiCloser{Writer: enc, closers: []func() error{enc.Close, f.Close}}, nil
	case extSnappy:
		sw := snappy.NewBufferedWriter(f)
		return &multiCloser{Writer: sw, closers: []func() error{sw.Close, f.Close}}, nil
	}
	return f, nil
}
