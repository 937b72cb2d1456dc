package transfer

import (
	"time"

	"github.com/bitfsorg/libbabel-go/codec"
)

// Per-chunk figures used by Estimate.
const (
	uploadTimePerChunk   = 2 * time.Second
	downloadTimePerChunk = time.Second
	addressBytesPerChunk = 50
)

// Estimate summarizes what storing a file would take.
type Estimate struct {
	OriginalSize   int
	CompressedSize int
	ChunkSize      int
	ChunkCount     int
	EncodedSize    int // estimated symbols across all pages
	UploadTime     time.Duration
	DownloadTime   time.Duration
	MetadataSize   int // estimated bytes of stored addresses
}

// Estimate compresses data and reports the resulting chunk count, encoded
// size and rough transfer times. Nothing is stored.
func (o *Orchestrator) Estimate(data []byte) (*Estimate, error) {
	compressed, err := o.compressor.Compress(data)
	if err != nil {
		return nil, err
	}
	n := (len(compressed) + o.opts.ChunkSize - 1) / o.opts.ChunkSize
	return &Estimate{
		OriginalSize:   len(data),
		CompressedSize: len(compressed),
		ChunkSize:      o.opts.ChunkSize,
		ChunkCount:     n,
		EncodedSize:    codec.EstimateEncodedSize(len(compressed)),
		UploadTime:     time.Duration(n) * uploadTimePerChunk,
		DownloadTime:   time.Duration(n) * downloadTimePerChunk,
		MetadataSize:   n * addressBytesPerChunk,
	}, nil
}
