package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Ext is the suffix of persisted metadata files.
const Ext = ".gz"

// maxRecordSize bounds the decompressed size of a persisted record.
const maxRecordSize = 64 << 20

// Save writes r as gzip-compressed JSON. Ext is appended to path when
// missing. The write goes to a temporary file in the same directory which
// is then renamed into place. Returns the path actually written.
func Save(path string, r *FileRecord) (string, error) {
	if !strings.HasSuffix(path, Ext) {
		path += Ext
	}
	data, err := Marshal(r)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("metadata: gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("metadata: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("metadata: compress: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("metadata: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".meta-*")
	if err != nil {
		return "", fmt.Errorf("metadata: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return "", fmt.Errorf("metadata: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("metadata: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("metadata: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("metadata: rename: %w", err)
	}
	return path, nil
}

// Load reads a record written by Save. When path lacks Ext and does not
// exist, path+Ext is tried instead.
func Load(path string) (*FileRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) && !strings.HasSuffix(path, Ext) {
		f, err = os.Open(path + Ext)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("metadata: open: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a gzip-compressed record from r.
func Read(r io.Reader) (*FileRecord, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, maxRecordSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(data) > maxRecordSize {
		return nil, fmt.Errorf("%w: record exceeds %d bytes", ErrDecode, maxRecordSize)
	}
	return Unmarshal(data)
}
