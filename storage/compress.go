package storage

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// MaxDecompressedSize bounds the output of Decompress (1 GB).
const MaxDecompressedSize = 1 << 30

// DefaultZstdLevel is the zstd level files are compressed at.
const DefaultZstdLevel = 19

// Compressor turns a file into the byte stream that gets chunked and back.
// Decompress must invert Compress exactly.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// ZstdCompressor compresses with zstd. It is safe for concurrent use.
type ZstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var _ Compressor = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a compressor for the given zstd level (1-22).
// Levels are mapped onto the closest speed setting the encoder supports.
func NewZstdCompressor(level int) (*ZstdCompressor, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(MaxDecompressedSize),
		zstd.WithDecoderConcurrency(0),
	)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("storage: zstd decoder: %w", err)
	}
	return &ZstdCompressor{encoder: enc, decoder: dec}, nil
}

// Compress returns the zstd frame for data. Empty input stays empty.
func (z *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	return z.encoder.EncodeAll(data, nil), nil
}

// Decompress decodes a stream produced by Compress.
func (z *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	out, err := z.decoder.DecodeAll(data, nil)
	if err != nil {
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
			return nil, ErrDecompressedTooLarge
		}
		return nil, fmt.Errorf("%w: %w", ErrDecompressFailed, err)
	}
	return out, nil
}

// Close releases encoder and decoder resources.
func (z *ZstdCompressor) Close() error {
	z.decoder.Close()
	return z.encoder.Close()
}

// NopCompressor passes data through unchanged.
type NopCompressor struct{}

var _ Compressor = NopCompressor{}

// Compress returns data unchanged.
func (NopCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

// Decompress returns data unchanged.
func (NopCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
