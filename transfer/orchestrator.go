// Package transfer moves files in and out of a TextStore: compression,
// chunking, encoding, verify-on-write with retries, and integrity-checked
// reassembly.
package transfer

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bitfsorg/libbabel-go/codec"
	"github.com/bitfsorg/libbabel-go/metadata"
	"github.com/bitfsorg/libbabel-go/storage"
)

// Config holds the collaborators of an Orchestrator. Only Store is required.
type Config struct {
	Store      storage.TextStore
	Compressor storage.Compressor // nil selects zstd at storage.DefaultZstdLevel
	Options    Options
	Logger     *slog.Logger // nil discards
	Sleeper    Sleeper      // nil selects SleepContext
	Registry   *Registry    // nil creates a private registry
}

// Orchestrator runs the upload and download pipelines. Chunks of one
// transfer are handled strictly in sequence; separate transfers may run
// concurrently on the same Orchestrator.
type Orchestrator struct {
	store      storage.TextStore
	compressor storage.Compressor
	opts       Options
	log        *slog.Logger
	sleep      Sleeper
	registry   *Registry
	owned      io.Closer // compressor created by New
}

// UploadResult reports how a chunked upload went.
type UploadResult struct {
	Attempts []int // store attempts used per chunk; zero for chunks skipped as already stored
}

// DownloadOptions control the download pipeline.
type DownloadOptions struct {
	Strict    bool           // abort on a chunk digest mismatch instead of warning
	PublicKey *rsa.PublicKey // when set, the record signature must verify
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("transfer: nil store")
	}
	o := &Orchestrator{
		store:      cfg.Store,
		compressor: cfg.Compressor,
		opts:       cfg.Options.withDefaults(),
		log:        cfg.Logger,
		sleep:      cfg.Sleeper,
		registry:   cfg.Registry,
	}
	if o.compressor == nil {
		z, err := storage.NewZstdCompressor(storage.DefaultZstdLevel)
		if err != nil {
			return nil, err
		}
		o.compressor, o.owned = z, z
	}
	if o.log == nil {
		o.log = slog.New(slog.DiscardHandler)
	}
	if o.sleep == nil {
		o.sleep = SleepContext
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	return o, nil
}

// Close releases a compressor created by New.
func (o *Orchestrator) Close() error {
	if o.owned != nil {
		return o.owned.Close()
	}
	return nil
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options { return o.opts }

// Registry returns the progress registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Prepare compresses data, splits it into chunks and builds the record.
// No chunk has an address yet.
func (o *Orchestrator) Prepare(filename string, data []byte) (*metadata.FileRecord, []storage.Chunk, error) {
	compressed, err := o.compressor.Compress(data)
	if err != nil {
		return nil, nil, fmt.Errorf("transfer: compress: %w", err)
	}
	chunks, err := storage.SplitIntoChunks(compressed, o.opts.ChunkSize)
	if err != nil {
		return nil, nil, err
	}
	rec := metadata.New(filename, int64(len(data)), storage.ComputeDigest(data), chunks)
	return rec, chunks, nil
}

// Upload stores every chunk not yet stored and records its address on
// rec. Chunks are attempted in index order; the first chunk that cannot
// be stored aborts the upload, leaving earlier addresses in place.
func (o *Orchestrator) Upload(ctx context.Context, rec *metadata.FileRecord, chunks []storage.Chunk) (*UploadResult, error) {
	return o.upload(ctx, "", rec, chunks)
}

func (o *Orchestrator) upload(ctx context.Context, id string, rec *metadata.FileRecord, chunks []storage.Chunk) (*UploadResult, error) {
	if len(chunks) != len(rec.Chunks) {
		return nil, fmt.Errorf("%w: %d chunks for a record of %d", metadata.ErrInvalidRecord, len(chunks), len(rec.Chunks))
	}
	res := &UploadResult{Attempts: make([]int, len(chunks))}
	total := len(chunks)

	for i, c := range chunks {
		if c.Index != i {
			return res, fmt.Errorf("%w: chunk at position %d has index %d", metadata.ErrInvalidRecord, i, c.Index)
		}
		if rec.Chunks[i].Stored() {
			continue
		}
		o.registry.Update(id, Status{
			State:        StateUploading,
			Progress:     percent(i, total),
			CurrentChunk: i + 1,
			TotalChunks:  total,
			Attempt:      1,
			Message:      fmt.Sprintf("uploading chunk %d/%d", i+1, total),
		})

		text, err := codec.Encode(c.Data)
		if err != nil {
			return res, &ChunkError{Index: i, Err: err}
		}
		if len(text) > o.opts.PageLimit {
			return res, &ChunkError{Index: i, Err: fmt.Errorf("%w: %d symbols, limit %d", ErrChunkTooLarge, len(text), o.opts.PageLimit)}
		}

		addr, attempts, err := o.storeChunk(ctx, id, i, total, text)
		res.Attempts[i] = attempts
		if err != nil {
			return res, err
		}
		rec.Chunks[i].Address = &addr
		o.log.Info("chunk stored", "file", rec.Filename, "chunk", i, "of", total, "address", addr.String(), "attempts", attempts)

		if i < total-1 {
			if err := o.sleep(ctx, o.opts.Throttle); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// storeChunk writes text and reads it back, retrying with exponential
// backoff. Returns the confirmed address and the attempts used.
func (o *Orchestrator) storeChunk(ctx context.Context, id string, index, total int, text string) (storage.Address, int, error) {
	var last error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			o.registry.Update(id, Status{
				State:        StateUploading,
				Progress:     percent(index, total),
				CurrentChunk: index + 1,
				TotalChunks:  total,
				Attempt:      attempt,
				Message:      fmt.Sprintf("retrying chunk %d/%d (attempt %d)", index+1, total, attempt),
			})
		}

		addr, err := o.putVerified(ctx, text)
		if err == nil {
			return addr, attempt, nil
		}
		if ctx.Err() != nil {
			return storage.Address{}, attempt, ctx.Err()
		}
		last = err
		o.log.Warn("chunk attempt failed", "chunk", index, "attempt", attempt, "max", o.opts.MaxAttempts, "error", err)

		if attempt < o.opts.MaxAttempts {
			if err := o.sleep(ctx, o.opts.backoff(attempt)); err != nil {
				return storage.Address{}, attempt, err
			}
		}
	}
	return storage.Address{}, o.opts.MaxAttempts, &ChunkError{
		Index:    index,
		Attempts: o.opts.MaxAttempts,
		Err:      fmt.Errorf("%w: %w", ErrStoreExhausted, last),
	}
}

// putVerified makes one store attempt: put, then read back and compare.
// Every failure wraps ErrStoreTransient.
func (o *Orchestrator) putVerified(ctx context.Context, text string) (storage.Address, error) {
	putCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	addr, err := o.store.Put(putCtx, text)
	cancel()
	if err != nil {
		return storage.Address{}, fmt.Errorf("%w: put: %w", ErrStoreTransient, err)
	}
	if addr.IsZero() {
		return storage.Address{}, fmt.Errorf("%w: store returned no address", ErrStoreTransient)
	}
	if err := addr.Validate(); err != nil {
		return storage.Address{}, fmt.Errorf("%w: %w", ErrStoreTransient, err)
	}

	getCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	got, err := o.store.Get(getCtx, addr)
	cancel()
	if err != nil {
		return storage.Address{}, fmt.Errorf("%w: verification read: %w", ErrStoreTransient, err)
	}
	if !strings.HasPrefix(codec.StripLineBreaks(got), text) {
		return storage.Address{}, fmt.Errorf("%w: verification mismatch at %s", ErrStoreTransient, addr)
	}
	return addr, nil
}

// Download fetches, checks and reassembles the file rec describes. The
// whole-file digest is always checked; opts.Strict only governs chunk
// digests.
func (o *Orchestrator) Download(ctx context.Context, rec *metadata.FileRecord, opts DownloadOptions) ([]byte, error) {
	return o.download(ctx, "", rec, opts)
}

func (o *Orchestrator) download(ctx context.Context, id string, rec *metadata.FileRecord, opts DownloadOptions) ([]byte, error) {
	if opts.PublicKey != nil {
		if err := metadata.RequireSignature(rec, opts.PublicKey); err != nil {
			return nil, err
		}
		o.log.Info("signature verified", "file", rec.Filename)
	}
	if rec.ChunkCount != len(rec.Chunks) {
		return nil, fmt.Errorf("%w: chunk count %d, %d chunk entries", ErrIntegrity, rec.ChunkCount, len(rec.Chunks))
	}

	total := len(rec.Chunks)
	parts := make([]storage.Chunk, 0, total)
	for i, c := range rec.Chunks {
		o.registry.Update(id, Status{
			State:        StateDownloading,
			Progress:     percent(i, total),
			CurrentChunk: i + 1,
			TotalChunks:  total,
			Message:      fmt.Sprintf("downloading chunk %d/%d", i+1, total),
		})

		data, err := o.fetchChunk(ctx, c, opts.Strict)
		if err != nil {
			return nil, err
		}
		parts = append(parts, storage.Chunk{Index: c.Index, Data: data})
	}

	compressed, err := storage.RecombineChunks(parts, total)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	out, err := o.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	if got := storage.ComputeDigest(out); got != rec.FileHash {
		return nil, fmt.Errorf("%w: file digest %s, want %s", ErrIntegrity, got, rec.FileHash)
	}
	o.log.Info("file verified", "file", rec.Filename, "bytes", len(out))
	return out, nil
}

// fetchChunk reads one chunk, truncates it to its declared size and checks
// its digest.
func (o *Orchestrator) fetchChunk(ctx context.Context, c metadata.ChunkRecord, strict bool) ([]byte, error) {
	if !c.Stored() {
		return nil, &ChunkError{Index: c.Index, Err: fmt.Errorf("%w: no address", ErrIntegrity)}
	}
	if c.Size <= 0 {
		return nil, &ChunkError{Index: c.Index, Err: fmt.Errorf("%w: declared size %d", ErrIntegrity, c.Size)}
	}

	getCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	text, err := o.store.Get(getCtx, *c.Address)
	cancel()
	if err != nil {
		return nil, &ChunkError{Index: c.Index, Attempts: 1, Err: fmt.Errorf("%w: %w", ErrStore, err)}
	}
	if text == "" {
		return nil, &ChunkError{Index: c.Index, Attempts: 1, Err: fmt.Errorf("%w: empty page", ErrStore)}
	}

	data, err := codec.Decode(text)
	if err != nil {
		return nil, &ChunkError{Index: c.Index, Err: fmt.Errorf("%w: %w", ErrIntegrity, err)}
	}
	if len(data) > c.Size {
		data = data[:c.Size]
	}

	if got := storage.ComputeDigest(data); got != c.Hash {
		if strict {
			return nil, &ChunkError{Index: c.Index, Err: fmt.Errorf("%w: chunk digest %s, want %s", ErrIntegrity, got, c.Hash)}
		}
		o.log.Warn("chunk digest mismatch", "chunk", c.Index, "got", got, "want", c.Hash)
	}
	return data, nil
}
