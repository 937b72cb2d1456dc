package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/bitfsorg/libbabel-go/storage"
)

// Compact field keys of the persisted form.
const (
	keyFilename  = "f"
	keySize      = "s"
	keyHash      = "h"
	keyCount     = "c"
	keyVersion   = "v"
	keyChunks    = "chk"
	keySignature = "sig"
)

// Canonical returns the byte-stable serialization that signatures cover:
// compact JSON with keys in sorted order (c, chk, f, h, s, v), no
// whitespace, non-ASCII escaped as \uXXXX, and no signature field.
// Unstored chunks serialize as [size,hash]; stored chunks as
// [size,hash,hex,wall,shelf,volume,page].
func Canonical(r *FileRecord) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"c":`)
	buf.WriteString(strconv.Itoa(r.ChunkCount))
	buf.WriteString(`,"chk":[`)
	for i, c := range r.Chunks {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		buf.WriteString(strconv.Itoa(c.Size))
		buf.WriteByte(',')
		writeString(&buf, c.Hash)
		if a := c.Address; a != nil {
			buf.WriteByte(',')
			writeString(&buf, a.Hex)
			for _, n := range []int{a.Wall, a.Shelf, a.Volume, a.Page} {
				buf.WriteByte(',')
				buf.WriteString(strconv.Itoa(n))
			}
		}
		buf.WriteByte(']')
	}
	buf.WriteString(`],"f":`)
	writeString(&buf, r.Filename)
	buf.WriteString(`,"h":`)
	writeString(&buf, r.FileHash)
	buf.WriteString(`,"s":`)
	buf.WriteString(strconv.FormatInt(r.OriginalSize, 10))
	buf.WriteString(`,"v":`)
	writeString(&buf, r.Version)
	buf.WriteByte('}')
	return buf.Bytes()
}

// writeString writes s as a JSON string, escaping every non-ASCII rune so
// the output is pure ASCII.
func writeString(buf *bytes.Buffer, s string) {
	const hex = "0123456789abcdef"
	buf.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r < 0x20 || (r >= 0x7f && r <= 0xffff):
			if r == utf8.RuneError {
				r = 0xfffd
			}
			buf.WriteString(`\u`)
			buf.WriteByte(hex[r>>12&0xf])
			buf.WriteByte(hex[r>>8&0xf])
			buf.WriteByte(hex[r>>4&0xf])
			buf.WriteByte(hex[r&0xf])
		case r > 0xffff:
			r1, r2 := utf16.EncodeRune(r)
			for _, u := range []rune{r1, r2} {
				buf.WriteString(`\u`)
				buf.WriteByte(hex[u>>12&0xf])
				buf.WriteByte(hex[u>>8&0xf])
				buf.WriteByte(hex[u>>4&0xf])
				buf.WriteByte(hex[u&0xf])
			}
		default:
			buf.WriteByte(byte(r))
		}
	}
	buf.WriteByte('"')
}

// wireRecord is the persisted form. Pointer fields detect missing keys.
type wireRecord struct {
	Filename  *string             `json:"f"`
	Size      *int64              `json:"s"`
	Hash      *string             `json:"h"`
	Count     *int                `json:"c"`
	Version   string              `json:"v,omitempty"`
	Chunks    [][]json.RawMessage `json:"chk"`
	Signature string              `json:"sig,omitempty"`
}

// Marshal returns the persisted JSON form of r, including the signature
// when present.
func Marshal(r *FileRecord) ([]byte, error) {
	w := wireRecord{
		Filename:  &r.Filename,
		Size:      &r.OriginalSize,
		Hash:      &r.FileHash,
		Count:     &r.ChunkCount,
		Version:   r.Version,
		Chunks:    make([][]json.RawMessage, len(r.Chunks)),
		Signature: r.Signature,
	}
	for i, c := range r.Chunks {
		fields := []any{c.Size, c.Hash}
		if a := c.Address; a != nil {
			fields = append(fields, a.Hex, a.Wall, a.Shelf, a.Volume, a.Page)
		}
		w.Chunks[i] = make([]json.RawMessage, len(fields))
		for j, f := range fields {
			raw, err := json.Marshal(f)
			if err != nil {
				return nil, fmt.Errorf("metadata: marshal chunk %d: %w", i, err)
			}
			w.Chunks[i][j] = raw
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&w); err != nil {
		return nil, fmt.Errorf("metadata: marshal: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Unmarshal parses the persisted JSON form. Missing required keys, wrong
// types, malformed chunk tuples, a chunk count that disagrees with the
// tuples and non-positive chunk sizes all fail with ErrDecode. A chunk
// without a digest is accepted; VerifyOffline reports it.
func Unmarshal(data []byte) (*FileRecord, error) {
	var w wireRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrDecode)
	}

	switch {
	case w.Filename == nil:
		return nil, fmt.Errorf("%w: missing %q", ErrDecode, keyFilename)
	case w.Size == nil:
		return nil, fmt.Errorf("%w: missing %q", ErrDecode, keySize)
	case w.Hash == nil:
		return nil, fmt.Errorf("%w: missing %q", ErrDecode, keyHash)
	case w.Count == nil:
		return nil, fmt.Errorf("%w: missing %q", ErrDecode, keyCount)
	case *w.Size < 0:
		return nil, fmt.Errorf("%w: negative size %d", ErrDecode, *w.Size)
	case *w.Count != len(w.Chunks):
		return nil, fmt.Errorf("%w: chunk count %d, %d chunk entries", ErrDecode, *w.Count, len(w.Chunks))
	}

	r := &FileRecord{
		Filename:     *w.Filename,
		OriginalSize: *w.Size,
		FileHash:     *w.Hash,
		ChunkCount:   *w.Count,
		Version:      w.Version,
		Chunks:       make([]ChunkRecord, len(w.Chunks)),
		Signature:    w.Signature,
	}
	if r.Version == "" {
		r.Version = LegacyVersion
	}

	for i, tuple := range w.Chunks {
		c, err := parseChunk(i, tuple)
		if err != nil {
			return nil, err
		}
		r.Chunks[i] = c
	}
	return r, nil
}

func parseChunk(index int, tuple []json.RawMessage) (ChunkRecord, error) {
	c := ChunkRecord{Index: index}
	if len(tuple) != 2 && len(tuple) != 7 {
		return c, fmt.Errorf("%w: chunk %d has %d fields, want 2 or 7", ErrDecode, index, len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &c.Size); err != nil {
		return c, fmt.Errorf("%w: chunk %d size: %w", ErrDecode, index, err)
	}
	if c.Size <= 0 {
		return c, fmt.Errorf("%w: chunk %d has size %d", ErrDecode, index, c.Size)
	}
	if err := json.Unmarshal(tuple[1], &c.Hash); err != nil {
		return c, fmt.Errorf("%w: chunk %d hash: %w", ErrDecode, index, err)
	}
	if len(tuple) == 2 {
		return c, nil
	}

	var a storage.Address
	if err := json.Unmarshal(tuple[2], &a.Hex); err != nil {
		return c, fmt.Errorf("%w: chunk %d hexagon: %w", ErrDecode, index, err)
	}
	for j, dst := range []*int{&a.Wall, &a.Shelf, &a.Volume, &a.Page} {
		if err := json.Unmarshal(tuple[3+j], dst); err != nil {
			return c, fmt.Errorf("%w: chunk %d coordinate %d: %w", ErrDecode, index, j, err)
		}
	}
	if err := a.Validate(); err != nil {
		return c, fmt.Errorf("%w: chunk %d: %w", ErrDecode, index, err)
	}
	c.Address = &a
	return c, nil
}
