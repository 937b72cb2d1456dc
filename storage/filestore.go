package storage

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// pagesPerVolume is the page range used for locally derived addresses.
const pagesPerVolume = 410

// FileStore implements TextStore on the local filesystem. It is used as an
// offline store and as the mirror behind Resolver.
// Pages are stored at: {baseDir}/{hex(key[:1])}/{hex(key)}
// where key is the BLAKE3 digest of the full address. The first line of each file holds
// the address, the rest holds the page text.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

var _ TextStore = (*FileStore)(nil)

// NewFileStore creates a new file-based text store.
// The directory is created if it does not exist.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return &FileStore{
		baseDir: baseDir,
	}, nil
}

// DeriveAddress computes the address a local store assigns to text. The
// result is deterministic and always satisfies Address.Validate.
func DeriveAddress(text string) Address {
	sum := sha256.Sum256([]byte(text))
	return Address{
		Hex:    hex.EncodeToString(sum[:]),
		Wall:   1 + int(sum[0])%MaxWall,
		Shelf:  1 + int(sum[1])%MaxShelf,
		Volume: 1 + int(sum[2])%MaxVolume,
		Page:   1 + int(binary.BigEndian.Uint16(sum[3:5]))%pagesPerVolume,
	}
}

// AddressToPath converts an address to its filesystem path.
// Uses first byte of the key as subdirectory for sharding: {base}/{ab}/{abcdef...}
func AddressToPath(baseDir string, addr Address) string {
	key := addr.key()
	hexKey := hex.EncodeToString(key[:])
	return filepath.Join(baseDir, hexKey[:2], hexKey)
}

// Put stores text at its derived address.
func (fs *FileStore) Put(ctx context.Context, text string) (Address, error) {
	if err := ctx.Err(); err != nil {
		return Address{}, err
	}
	if err := ValidateText(text, MaxPageSize); err != nil {
		return Address{}, err
	}
	addr := DeriveAddress(text)
	if err := fs.Store(addr, text); err != nil {
		return Address{}, err
	}
	return addr, nil
}

// Get retrieves the page text at addr.
func (fs *FileStore) Get(ctx context.Context, addr Address) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := addr.Validate(); err != nil {
		return "", err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(AddressToPath(fs.baseDir, addr))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	_, text, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return "", fmt.Errorf("%w: malformed page file", ErrIOFailure)
	}
	return string(text), nil
}

// Store writes text at an explicit address, replacing any previous page.
func (fs *FileStore) Store(addr Address, text string) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	if text == "" {
		return ErrEmptyContent
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := AddressToPath(fs.baseDir, addr)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	content := formatAddress(addr) + "\n" + text
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Has checks if a page exists at addr.
func (fs *FileStore) Has(addr Address) (bool, error) {
	if err := addr.Validate(); err != nil {
		return false, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, err := os.Stat(AddressToPath(fs.baseDir, addr))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return true, nil
}

// Delete removes the page at addr.
func (fs *FileStore) Delete(addr Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := os.Remove(AddressToPath(fs.baseDir, addr))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// List returns the addresses of all stored pages by scanning the shard
// directories. Unreadable or malformed files are skipped.
func (fs *FileStore) List() ([]Address, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	var result []Address
	for _, entry := range entries {
		if !entry.IsDir() || len(entry.Name()) != 2 {
			continue
		}

		shardPath := filepath.Join(fs.baseDir, entry.Name())
		files, err := os.ReadDir(shardPath)
		if err != nil {
			continue
		}

		for _, f := range files {
			if f.IsDir() {
				continue
			}
			addr, err := readAddressLine(filepath.Join(shardPath, f.Name()))
			if err != nil {
				continue
			}
			result = append(result, addr)
		}
	}
	return result, nil
}

func formatAddress(a Address) string {
	return fmt.Sprintf("%s %d %d %d %d", a.Hex, a.Wall, a.Shelf, a.Volume, a.Page)
}

func parseAddress(line string) (Address, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return Address{}, fmt.Errorf("%w: want 5 fields, got %d", ErrInvalidAddress, len(fields))
	}
	var coords [4]int
	for i := range coords {
		n, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return Address{}, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
		}
		coords[i] = n
	}
	addr := Address{Hex: fields[0], Wall: coords[0], Shelf: coords[1], Volume: coords[2], Page: coords[3]}
	return addr, addr.Validate()
}

func readAddressLine(path string) (Address, error) {
	f, err := os.Open(path)
	if err != nil {
		return Address{}, err
	}
	defer func() { _ = f.Close() }()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil {
		return Address{}, err
	}
	return parseAddress(strings.TrimSuffix(line, "\n"))
}
