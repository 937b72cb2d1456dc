package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreTransient indicates one store attempt failed: a store error,
	// a timeout, a missing or malformed address, or a verification mismatch.
	ErrStoreTransient = errors.New("transfer: transient store failure")

	// ErrStoreExhausted indicates every attempt to store a chunk failed.
	ErrStoreExhausted = errors.New("transfer: store retries exhausted")

	// ErrStore indicates a chunk could not be read back during download.
	ErrStore = errors.New("transfer: store read failed")

	// ErrIntegrity indicates a digest mismatch, a missing chunk address or
	// a stream that does not decompress.
	ErrIntegrity = errors.New("transfer: integrity check failed")

	// ErrChunkTooLarge indicates an encoded chunk exceeds the page limit.
	// It is a configuration error and is never retried.
	ErrChunkTooLarge = errors.New("transfer: encoded chunk exceeds page limit")

	// ErrUnknownTransfer indicates no progress entry exists for an id.
	ErrUnknownTransfer = errors.New("transfer: unknown transfer id")
)

// ChunkError is a terminal failure tied to one chunk.
type ChunkError struct {
	Index    int   // chunk index
	Attempts int   // store attempts made; zero when the chunk never reached the store
	Err      error // cause, wrapping one of the package sentinels
}

func (e *ChunkError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("chunk %d (attempt %d): %v", e.Index, e.Attempts, e.Err)
	}
	return fmt.Sprintf("chunk %d: %v", e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
