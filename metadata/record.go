// Package metadata defines the durable record that describes how to
// reassemble a stored file, and its serialization, persistence and signing.
package metadata

import (
	"fmt"

	"github.com/bitfsorg/libbabel-go/storage"
)

const (
	// ProtocolVersion is written into every new record.
	ProtocolVersion = "v5"

	// LegacyVersion is assumed for records persisted without a version tag.
	LegacyVersion = "legacy"
)

// ChunkRecord describes one chunk of the compressed stream.
type ChunkRecord struct {
	Index   int
	Size    int              // bytes of this chunk
	Hash    string           // hex SHA-256 of the chunk bytes
	Address *storage.Address // nil until the chunk is confirmed in the store
}

// Stored reports whether the chunk has a confirmed address.
func (c ChunkRecord) Stored() bool {
	return c.Address != nil
}

// FileRecord describes a stored file. It is built in full before upload;
// only chunk addresses and the signature are filled in afterwards.
type FileRecord struct {
	Filename     string
	OriginalSize int64  // bytes before compression
	FileHash     string // hex SHA-256 of the original bytes
	ChunkCount   int
	Version      string
	Chunks       []ChunkRecord
	Signature    string // base64 RSA-PSS signature over Canonical; optional
}

// New builds a record for a file whose compressed stream was split into
// chunks. No chunk has an address yet.
func New(filename string, originalSize int64, fileHash string, chunks []storage.Chunk) *FileRecord {
	rec := &FileRecord{
		Filename:     filename,
		OriginalSize: originalSize,
		FileHash:     fileHash,
		ChunkCount:   len(chunks),
		Version:      ProtocolVersion,
		Chunks:       make([]ChunkRecord, len(chunks)),
	}
	for i, c := range chunks {
		rec.Chunks[i] = ChunkRecord{
			Index: c.Index,
			Size:  len(c.Data),
			Hash:  storage.ComputeDigest(c.Data),
		}
	}
	return rec
}

// CompressedSize returns the total size of all chunks.
func (r *FileRecord) CompressedSize() int64 {
	var n int64
	for _, c := range r.Chunks {
		n += int64(c.Size)
	}
	return n
}

// Missing returns the indices of chunks without an address.
func (r *FileRecord) Missing() []int {
	var idx []int
	for _, c := range r.Chunks {
		if !c.Stored() {
			idx = append(idx, c.Index)
		}
	}
	return idx
}

// Complete reports whether every chunk has a confirmed address.
func (r *FileRecord) Complete() bool {
	return len(r.Missing()) == 0
}

// Validate checks the structural invariants: chunk count, contiguous
// indices, digest formats and complete addresses.
func Validate(r *FileRecord) error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if r.Filename == "" {
		return fmt.Errorf("%w: empty filename", ErrInvalidRecord)
	}
	if r.OriginalSize < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidRecord, r.OriginalSize)
	}
	if !isDigest(r.FileHash) {
		return fmt.Errorf("%w: file hash %q is not a SHA-256 hex digest", ErrInvalidRecord, r.FileHash)
	}
	if r.ChunkCount != len(r.Chunks) {
		return fmt.Errorf("%w: chunk count %d, %d chunk entries", ErrInvalidRecord, r.ChunkCount, len(r.Chunks))
	}
	for i, c := range r.Chunks {
		if c.Index != i {
			return fmt.Errorf("%w: chunk at position %d has index %d", ErrInvalidRecord, i, c.Index)
		}
		if c.Size <= 0 {
			return fmt.Errorf("%w: chunk %d has size %d", ErrInvalidRecord, i, c.Size)
		}
		if !isDigest(c.Hash) {
			return fmt.Errorf("%w: chunk %d hash %q is not a SHA-256 hex digest", ErrInvalidRecord, i, c.Hash)
		}
		if c.Address != nil {
			if err := c.Address.Validate(); err != nil {
				return fmt.Errorf("%w: chunk %d: %w", ErrInvalidRecord, i, err)
			}
		}
	}
	return nil
}

func isDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
