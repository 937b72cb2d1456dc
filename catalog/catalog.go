// Package catalog indexes uploaded files in a local bbolt database so they
// can be listed, looked up and deleted by id.
package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libbabel-go/metadata"
)

// FileName is the catalog database name inside a data directory.
const FileName = "catalog.db"

var (
	bucketFiles       = []byte("files")
	bucketFilesByTime = []byte("files_by_time")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic("catalog: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("catalog: CBOR decoder initialization failed: " + err.Error())
	}
}

// Entry describes one uploaded file.
type Entry struct {
	ID           string    `cbor:"id"`
	Filename     string    `cbor:"filename"`
	OriginalSize int64     `cbor:"size"`
	ChunkCount   int       `cbor:"chunks"`
	FileHash     string    `cbor:"hash"`
	MetadataPath string    `cbor:"metadata"`
	Signed       bool      `cbor:"signed"`
	UploadedAt   time.Time `cbor:"uploaded_at"`
}

// NewEntry builds an entry for a record saved at metadataPath, with a
// fresh id.
func NewEntry(rec *metadata.FileRecord, metadataPath string, at time.Time) *Entry {
	return &Entry{
		ID:           uuid.NewString(),
		Filename:     rec.Filename,
		OriginalSize: rec.OriginalSize,
		ChunkCount:   rec.ChunkCount,
		FileHash:     rec.FileHash,
		MetadataPath: metadataPath,
		Signed:       rec.Signature != "",
		UploadedAt:   at.UTC(),
	}
}

// Catalog wraps a bbolt database of entries.
type Catalog struct {
	db *bbolt.DB
}

// Open opens or creates the catalog database at dbPath.
// The parent directory is created if it does not exist.
func Open(dbPath string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("catalog: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("catalog: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketFiles, bucketFilesByTime} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("catalog: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Catalog{db: db}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error { return c.db.Close() }

// timeKey orders entries by upload time, then id.
func timeKey(e *Entry) []byte {
	k := make([]byte, 8, 8+len(e.ID))
	binary.BigEndian.PutUint64(k, uint64(e.UploadedAt.UnixNano()))
	return append(k, e.ID...)
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Put stores e, replacing any entry with the same id.
func (c *Catalog) Put(e *Entry) error {
	if e == nil {
		return ErrNilEntry
	}
	if err := validateID(e.ID); err != nil {
		return err
	}
	data, err := encMode.Marshal(e)
	if err != nil {
		return fmt.Errorf("catalog: encode entry: %w", err)
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		byTime := tx.Bucket(bucketFilesByTime)

		if old := files.Get([]byte(e.ID)); old != nil {
			var prev Entry
			if err := decMode.Unmarshal(old, &prev); err == nil {
				if err := byTime.Delete(timeKey(&prev)); err != nil {
					return fmt.Errorf("catalog: delete time index: %w", err)
				}
			}
		}
		if err := files.Put([]byte(e.ID), data); err != nil {
			return fmt.Errorf("catalog: put entry: %w", err)
		}
		if err := byTime.Put(timeKey(e), []byte(e.ID)); err != nil {
			return fmt.Errorf("catalog: put time index: %w", err)
		}
		return nil
	})
}

// Get returns the entry with the given id.
func (c *Catalog) Get(id string) (*Entry, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var e Entry
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFiles).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		if err := decMode.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("catalog: decode entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns all entries, newest first.
func (c *Catalog) List() ([]*Entry, error) {
	var entries []*Entry
	err := c.db.View(func(tx *bbolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		cur := tx.Bucket(bucketFilesByTime).Cursor()
		for k, id := cur.Last(); k != nil; k, id = cur.Prev() {
			data := files.Get(id)
			if data == nil {
				continue // stale index entry
			}
			var e Entry
			if err := decMode.Unmarshal(data, &e); err != nil {
				return fmt.Errorf("catalog: decode entry in list: %w", err)
			}
			entries = append(entries, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Delete removes the entry and its metadata file. Chunks already in the
// store are not reclaimed. A metadata file that is already gone is not an
// error.
func (c *Catalog) Delete(id string) (*Entry, error) {
	e, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	err = c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketFiles).Delete([]byte(id)); err != nil {
			return fmt.Errorf("catalog: delete entry: %w", err)
		}
		if err := tx.Bucket(bucketFilesByTime).Delete(timeKey(e)); err != nil {
			return fmt.Errorf("catalog: delete time index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.MetadataPath != "" {
		if err := os.Remove(e.MetadataPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return e, fmt.Errorf("catalog: remove metadata: %w", err)
		}
	}
	return e, nil
}

// Count returns the number of entries.
func (c *Catalog) Count() (int, error) {
	var n int
	err := c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketFiles).Stats().KeyN
		return nil
	})
	return n, err
}
