package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/bitfsorg/libbabel-go/codec"
)

// MaxPageSize is the longest text the store accepts in one Put.
const MaxPageSize = 3200

// Coordinate bounds for Address.
const (
	MaxWall   = 4
	MaxShelf  = 5
	MaxVolume = 32
)

// TextStore is the external text repository. Put stores text and returns
// the address where it can be read back; Get returns the page at an address.
// Both may fail transiently; callers decide whether to retry.
type TextStore interface {
	// Put stores text and returns its address.
	Put(ctx context.Context, text string) (Address, error)

	// Get returns the page text at addr.
	Get(ctx context.Context, addr Address) (string, error)
}

// Address locates a page: an opaque hexagon identifier plus wall, shelf,
// volume and page coordinates. The zero Address means "not stored".
type Address struct {
	Hex    string
	Wall   int
	Shelf  int
	Volume int
	Page   int
}

// IsZero reports whether a is the zero Address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Validate checks that every coordinate is present and in range.
func (a Address) Validate() error {
	if a.Hex == "" {
		return fmt.Errorf("%w: empty hexagon", ErrInvalidAddress)
	}
	for i := 0; i < len(a.Hex); i++ {
		c := a.Hex[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return fmt.Errorf("%w: hexagon must be lowercase alphanumeric", ErrInvalidAddress)
		}
	}
	if a.Wall < 1 || a.Wall > MaxWall {
		return fmt.Errorf("%w: wall %d not in 1..%d", ErrInvalidAddress, a.Wall, MaxWall)
	}
	if a.Shelf < 1 || a.Shelf > MaxShelf {
		return fmt.Errorf("%w: shelf %d not in 1..%d", ErrInvalidAddress, a.Shelf, MaxShelf)
	}
	if a.Volume < 1 || a.Volume > MaxVolume {
		return fmt.Errorf("%w: volume %d not in 1..%d", ErrInvalidAddress, a.Volume, MaxVolume)
	}
	if a.Page < 1 {
		return fmt.Errorf("%w: page %d must be positive", ErrInvalidAddress, a.Page)
	}
	return nil
}

// String renders a short human-readable form, abbreviating the hexagon.
func (a Address) String() string {
	if a.IsZero() {
		return "NOT UPLOADED"
	}
	hex := a.Hex
	if len(hex) > 8 {
		hex = hex[:8] + "..."
	}
	return hex + "/" + strconv.Itoa(a.Wall) + "/" + strconv.Itoa(a.Shelf) + "/" +
		strconv.Itoa(a.Volume) + "/" + strconv.Itoa(a.Page)
}

// key returns a fixed-size digest identifying the full address.
func (a Address) key() [32]byte {
	return blake3.Sum256([]byte(a.Hex + "/" + strconv.Itoa(a.Wall) + "/" + strconv.Itoa(a.Shelf) +
		"/" + strconv.Itoa(a.Volume) + "/" + strconv.Itoa(a.Page)))
}

// ValidateText checks text against the store alphabet and a length limit.
func ValidateText(text string, limit int) error {
	if text == "" {
		return ErrEmptyContent
	}
	if len(text) > limit {
		return fmt.Errorf("%w: %d symbols, limit %d", ErrTextTooLong, len(text), limit)
	}
	if !codec.Valid(text) {
		return ErrInvalidText
	}
	return nil
}
