// Package codec maps arbitrary byte sequences to text over the 29-symbol
// store alphabet and back.
//
// Encoded form:
//
//	marker | n(L) | L | n(B) | B | body
//
// marker is the version symbol, L is the original byte length in base 29,
// B is the body length in symbols, and body is the big-endian integer value
// of the input in base 29. n(x) is the single symbol whose alphabet index is
// len(x).
package codec

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Alphabet is the ordered symbol set accepted by the store. The index of a
// symbol is its digit value.
const Alphabet = "abcdefghijklmnopqrstuvwxyz .,"

// Base is the number of symbols in Alphabet.
const Base = len(Alphabet)

// VersionMarker prefixes every structured encoding produced by Encode.
const VersionMarker = 'd'

// MaxDecodedLen caps the byte length Encode accepts and a header may
// declare, so a corrupt header cannot force a huge allocation.
const MaxDecodedLen = 1 << 24

// versionMarkers lists the markers accepted as the structured form. Older
// protocol revisions wrote 'a' through 'c' with the same layout.
const versionMarkers = "abcd"

var (
	bigBase = big.NewInt(int64(Base))

	// symbolValue maps a byte to its digit value, or -1 if it is not in Alphabet.
	symbolValue [256]int8
)

func init() {
	for i := range symbolValue {
		symbolValue[i] = -1
	}
	for i := 0; i < Base; i++ {
		symbolValue[Alphabet[i]] = int8(i)
	}
}

// Encode converts data to structured base-29 text. Empty input encodes to
// the empty string.
func Encode(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if len(data) > MaxDecodedLen {
		return "", fmt.Errorf("%w: %d bytes", ErrInputTooLarge, len(data))
	}

	body := encodeInt(new(big.Int).SetBytes(data))
	byteLen := encodeInt(big.NewInt(int64(len(data))))
	bodyLen := encodeInt(big.NewInt(int64(len(body))))

	header, err := encodeHeader(byteLen, bodyLen)
	if err != nil {
		return "", fmt.Errorf("%w (%d bytes)", err, len(data))
	}
	return header + body, nil
}

// encodeHeader builds the marker and both length fields. Each field's own
// length must be expressible as a single symbol.
func encodeHeader(byteLen, bodyLen string) (string, error) {
	if len(byteLen) >= Base || len(bodyLen) >= Base {
		return "", ErrPrefixOverflow
	}

	var sb strings.Builder
	sb.Grow(3 + len(byteLen) + len(bodyLen))
	sb.WriteByte(VersionMarker)
	sb.WriteByte(Alphabet[len(byteLen)])
	sb.WriteString(byteLen)
	sb.WriteByte(Alphabet[len(bodyLen)])
	sb.WriteString(bodyLen)
	return sb.String(), nil
}

// Decode converts text produced by Encode back into bytes. Line breaks are
// removed before parsing because the store wraps long pages. Text without a
// version marker is decoded with the legacy rules, which cannot recover
// leading zero bytes.
func Decode(text string) ([]byte, error) {
	text = StripLineBreaks(text)
	if text == "" {
		return []byte{}, nil
	}
	for i := 0; i < len(text); i++ {
		if symbolValue[text[i]] < 0 {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidSymbol, text[i], i)
		}
	}

	if strings.IndexByte(versionMarkers, text[0]) >= 0 {
		return decodeStructured(text[1:])
	}
	return decodeLegacy(text)
}

func decodeStructured(text string) ([]byte, error) {
	pos := 0

	byteLen, next, err := readField(text, pos, "byte length")
	if err != nil {
		return nil, err
	}
	pos = next

	bodyLen, next, err := readField(text, pos, "body length")
	if err != nil {
		return nil, err
	}
	pos = next

	if !bodyLen.IsInt64() || bodyLen.Int64() > int64(len(text)-pos) {
		return nil, fmt.Errorf("%w: body needs %s symbols, %d remain", ErrTruncated, bodyLen, len(text)-pos)
	}
	if !byteLen.IsInt64() || byteLen.Int64() > MaxDecodedLen {
		return nil, fmt.Errorf("%w: byte length %s", ErrLengthMismatch, byteLen)
	}

	body := text[pos : pos+int(bodyLen.Int64())]
	value, err := decodeInt(body)
	if err != nil {
		return nil, err
	}

	n := int(byteLen.Int64())
	if (value.BitLen()+7)/8 > n {
		return nil, fmt.Errorf("%w: value needs %d bytes, header declares %d", ErrLengthMismatch, (value.BitLen()+7)/8, n)
	}
	out := make([]byte, n)
	value.FillBytes(out)
	return out, nil
}

// readField reads a one-symbol length followed by that many base-29 digits.
func readField(text string, pos int, name string) (*big.Int, int, error) {
	if pos >= len(text) {
		return nil, 0, fmt.Errorf("%w: missing %s size", ErrTruncated, name)
	}
	size := int(symbolValue[text[pos]])
	pos++
	if pos+size > len(text) {
		return nil, 0, fmt.Errorf("%w: %s needs %d symbols, %d remain", ErrTruncated, name, size, len(text)-pos)
	}
	v, err := decodeInt(text[pos : pos+size])
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, pos + size, nil
}

func decodeLegacy(text string) ([]byte, error) {
	value, err := decodeInt(text)
	if err != nil {
		return nil, err
	}
	if value.Sign() == 0 {
		return []byte{0}, nil
	}
	return value.Bytes(), nil
}

// encodeInt renders v in base 29, most significant digit first. Zero is the
// single zero symbol.
func encodeInt(v *big.Int) string {
	if v.Sign() == 0 {
		return Alphabet[:1]
	}
	// Each symbol carries log2(29) bits.
	digits := make([]byte, 0, v.BitLen()*100/485+1)
	n := new(big.Int).Set(v)
	rem := new(big.Int)
	for n.Sign() > 0 {
		n.QuoRem(n, bigBase, rem)
		digits = append(digits, Alphabet[rem.Int64()])
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}

func decodeInt(text string) (*big.Int, error) {
	if text == "" {
		return nil, ErrEmptyField
	}
	v := new(big.Int)
	d := new(big.Int)
	for i := 0; i < len(text); i++ {
		s := symbolValue[text[i]]
		if s < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, text[i])
		}
		v.Mul(v, bigBase)
		v.Add(v, d.SetInt64(int64(s)))
	}
	return v, nil
}

// StripLineBreaks removes every '\n' and '\r' from text.
func StripLineBreaks(text string) string {
	if strings.IndexAny(text, "\r\n") < 0 {
		return text
	}
	return strings.NewReplacer("\n", "", "\r", "").Replace(text)
}

// Valid reports whether text consists solely of Alphabet symbols.
func Valid(text string) bool {
	for i := 0; i < len(text); i++ {
		if symbolValue[text[i]] < 0 {
			return false
		}
	}
	return true
}

// ExpansionFactor is the worst-case number of symbols per input byte,
// 8 / log2(29).
func ExpansionFactor() float64 {
	return 8 / math.Log2(float64(Base))
}

// EstimateEncodedSize returns the approximate body length for n input bytes,
// excluding the header.
func EstimateEncodedSize(n int) int {
	return int(math.Ceil(float64(n) * ExpansionFactor()))
}
