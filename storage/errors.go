package storage

import "errors"

var (
	// ErrNotFound indicates no text exists at the given address.
	ErrNotFound = errors.New("storage: text not found")

	// ErrInvalidAddress indicates address coordinates are missing or out of range.
	ErrInvalidAddress = errors.New("storage: invalid address")

	// ErrInvalidText indicates text contains symbols outside the store alphabet.
	ErrInvalidText = errors.New("storage: text contains invalid symbols")

	// ErrTextTooLong indicates text exceeds the store's page limit.
	ErrTextTooLong = errors.New("storage: text exceeds page limit")

	// ErrIOFailure indicates a file read/write error.
	ErrIOFailure = errors.New("storage: I/O failure")

	// ErrEmptyContent indicates an attempt to store empty text.
	ErrEmptyContent = errors.New("storage: content is empty")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("storage: invalid base directory")

	// ErrDecompressFailed indicates the compressed stream could not be decoded.
	ErrDecompressFailed = errors.New("storage: decompression failed")

	// ErrDecompressedTooLarge indicates decompressed data exceeds the safety limit.
	ErrDecompressedTooLarge = errors.New("storage: decompressed data exceeds maximum size")

	// ErrInvalidChunkSize indicates the chunk size is not a positive integer.
	ErrInvalidChunkSize = errors.New("storage: chunk size must be positive")

	// ErrChunkIndex indicates chunk indices are not exactly 0..n-1.
	ErrChunkIndex = errors.New("storage: chunk indices are not contiguous")
)
