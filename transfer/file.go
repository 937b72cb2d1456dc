package transfer

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/libbabel-go/metadata"
)

// UploadOptions control UploadFile.
type UploadOptions struct {
	MetadataPath string          // where to save the record; defaults to <file>.meta beside the file
	PrivateKey   *rsa.PrivateKey // when set, the record is signed before saving
	TransferID   string          // progress id; StartUpload assigns one when empty
}

// FileResult describes a completed file upload.
type FileResult struct {
	Record       *metadata.FileRecord
	MetadataPath string // path actually written, including the .gz suffix
	Attempts     []int
}

// UploadFile reads path, uploads it, signs the record when a key is given
// and saves it. The record is persisted only after every chunk is stored.
func (o *Orchestrator) UploadFile(ctx context.Context, path string, opts UploadOptions) (*FileResult, error) {
	res, err := o.uploadFile(ctx, opts.TransferID, path, opts)
	if err != nil {
		o.registry.Update(opts.TransferID, Status{State: StateError, Message: err.Error(), Err: err})
		return nil, err
	}
	o.registry.Update(opts.TransferID, Status{
		State:        StateCompleted,
		Progress:     100,
		CurrentChunk: res.Record.ChunkCount,
		TotalChunks:  res.Record.ChunkCount,
		Message:      "upload complete",
		MetadataPath: res.MetadataPath,
	})
	return res, nil
}

func (o *Orchestrator) uploadFile(ctx context.Context, id, path string, opts UploadOptions) (*FileResult, error) {
	o.registry.Update(id, Status{State: StateInitializing, Message: "preparing " + filepath.Base(path)})

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("transfer: read %s: %w", path, err)
	}
	rec, chunks, err := o.Prepare(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	o.log.Info("uploading", "file", rec.Filename, "bytes", rec.OriginalSize, "sha256", rec.FileHash, "chunks", rec.ChunkCount)

	up, err := o.upload(ctx, id, rec, chunks)
	if err != nil {
		return nil, err
	}

	o.registry.Update(id, Status{
		State:        StateVerifying,
		Progress:     100,
		CurrentChunk: rec.ChunkCount,
		TotalChunks:  rec.ChunkCount,
		Message:      "saving metadata",
	})
	if opts.PrivateKey != nil {
		if err := metadata.Sign(rec, opts.PrivateKey); err != nil {
			return nil, err
		}
	}
	metaPath := opts.MetadataPath
	if metaPath == "" {
		metaPath = path + ".meta"
	}
	written, err := metadata.Save(metaPath, rec)
	if err != nil {
		return nil, err
	}
	o.log.Info("upload complete", "file", rec.Filename, "metadata", written, "signed", rec.Signature != "")
	return &FileResult{Record: rec, MetadataPath: written, Attempts: up.Attempts}, nil
}

// StartUpload runs UploadFile in its own goroutine and returns the transfer
// id to poll with Registry().Observe.
func (o *Orchestrator) StartUpload(ctx context.Context, path string, opts UploadOptions) string {
	if opts.TransferID == "" {
		opts.TransferID = uuid.NewString()
	}
	o.registry.Update(opts.TransferID, Status{State: StateInitializing, Message: "queued"})
	go func() {
		_, _ = o.UploadFile(ctx, path, opts)
	}()
	return opts.TransferID
}

// UploadMany uploads files concurrently, at most limit at a time (no limit
// when limit <= 0). Each record is saved in dir as <base>.meta.gz. A failed
// file does not stop the others; results hold nil for failed files and the
// returned error joins every failure. A non-nil key signs every record.
func (o *Orchestrator) UploadMany(ctx context.Context, paths []string, dir string, limit int, key *rsa.PrivateKey) ([]*FileResult, error) {
	results := make([]*FileResult, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, p := range paths {
		g.Go(func() error {
			res, err := o.UploadFile(ctx, p, UploadOptions{
				MetadataPath: filepath.Join(dir, filepath.Base(p)+".meta"),
				PrivateKey:   key,
			})
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", p, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// DownloadFile loads the record at metadataPath, downloads the file and
// writes it to outputPath through a temporary file and rename.
func (o *Orchestrator) DownloadFile(ctx context.Context, metadataPath, outputPath string, opts DownloadOptions) (*metadata.FileRecord, error) {
	rec, err := metadata.Load(metadataPath)
	if err != nil {
		return nil, err
	}
	o.log.Info("downloading", "file", rec.Filename, "sha256", rec.FileHash, "chunks", rec.ChunkCount)

	data, err := o.download(ctx, "", rec, opts)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(outputPath, data); err != nil {
		return nil, err
	}
	o.log.Info("download complete", "output", outputPath)
	return rec, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("transfer: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("transfer: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("transfer: close: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("transfer: chmod: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("transfer: rename: %w", err)
	}
	return nil
}
