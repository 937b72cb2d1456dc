package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"github.com/bitfsorg/libbabel-go/codec"
)

const (
	// DefaultPageBudget is the encoded length chunks are sized against. It
	// stays below MaxPageSize to leave room for the codec header.
	DefaultPageBudget = 3000

	// DefaultSafetyMargin is subtracted from the raw chunk size to reserve
	// room for the structural header.
	DefaultSafetyMargin = 8
)

// DefaultChunkSize is ChunkSizeLimit(DefaultPageBudget, DefaultSafetyMargin).
var DefaultChunkSize = ChunkSizeLimit(DefaultPageBudget, DefaultSafetyMargin)

// Chunk is one slice of a compressed stream.
type Chunk struct {
	Index int
	Data  []byte
}

// ChunkSizeLimit returns the largest raw chunk size whose encoding fits in
// pageBudget symbols: floor(pageBudget / codec.ExpansionFactor()) - margin.
// The result may be zero or negative for tiny budgets; SplitIntoChunks
// rejects those.
func ChunkSizeLimit(pageBudget, margin int) int {
	return int(math.Floor(float64(pageBudget)/codec.ExpansionFactor())) - margin
}

// SplitIntoChunks splits data into fixed-size chunks indexed from zero.
// The last chunk may be smaller than chunkSize. Empty data yields no chunks.
func SplitIntoChunks(data []byte, chunkSize int) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, chunkSize)
	}
	if len(data) == 0 {
		return nil, nil
	}
	chunks := make([]Chunk, 0, (len(data)+chunkSize-1)/chunkSize)
	for i := 0; i < len(data); i += chunkSize {
		end := min(i+chunkSize, len(data))
		chunk := make([]byte, end-i)
		copy(chunk, data[i:end])
		chunks = append(chunks, Chunk{Index: len(chunks), Data: chunk})
	}
	return chunks, nil
}

// ComputeDigest returns the lowercase hex SHA-256 of data. The same digest is
// used for chunks and for whole files.
func ComputeDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RecombineChunks concatenates chunks in index order. The indices must be
// exactly 0..count-1, in any arrival order.
func RecombineChunks(chunks []Chunk, count int) ([]byte, error) {
	if len(chunks) != count {
		return nil, fmt.Errorf("%w: have %d chunks, want %d", ErrChunkIndex, len(chunks), count)
	}
	ordered := make([]Chunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var buf bytes.Buffer
	for i, c := range ordered {
		if c.Index != i {
			return nil, fmt.Errorf("%w: position %d holds index %d", ErrChunkIndex, i, c.Index)
		}
		buf.Write(c.Data)
	}
	return buf.Bytes(), nil
}
