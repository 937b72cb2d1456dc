package codec

import (
	"bytes"
	"math/big"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

func bigFromBytes(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

func TestAlphabet(t *testing.T) {
	assert.Equal(t, 29, Base)
	seen := make(map[rune]bool)
	for _, r := range Alphabet {
		assert.False(t, seen[r], "duplicate symbol %q", r)
		seen[r] = true
	}
}

func TestEncode_Empty(t *testing.T) {
	text, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "", text)

	data, err := Decode("")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestEncode_SingleZeroByte(t *testing.T) {
	text, err := Encode([]byte{0x00})
	require.NoError(t, err)
	assert.Equal(t, "dbbbba", text)

	data, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, data)
}

func TestEncode_LeadingZeros(t *testing.T) {
	text, err := Encode([]byte{0x00, 0x00, 0x01})
	require.NoError(t, err)
	assert.Equal(t, "dbdbbb", text)

	data, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x01}, data)
}

func TestRoundTrip(t *testing.T) {
	sizes := []int{1, 2, 3, 7, 16, 31, 32, 33, 100, 255, 256, 1000, 1813, 4096}
	for i, n := range sizes {
		data := randomBytes(uint64(i+1), n)
		text, err := Encode(data)
		require.NoError(t, err, "size %d", n)
		assert.True(t, Valid(text), "size %d produced symbols outside the alphabet", n)

		got, err := Decode(text)
		require.NoError(t, err, "size %d", n)
		assert.Equal(t, data, got, "size %d", n)
	}
}

func TestRoundTrip_AllZeroAndAllOnes(t *testing.T) {
	for _, data := range [][]byte{
		make([]byte, 64),
		bytes.Repeat([]byte{0xFF}, 64),
		{0x00, 0xFF, 0x00},
	} {
		text, err := Encode(data)
		require.NoError(t, err)
		got, err := Decode(text)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestDecode_StripsLineBreaks(t *testing.T) {
	data := randomBytes(42, 500)
	text, err := Encode(data)
	require.NoError(t, err)

	var wrapped strings.Builder
	for i := 0; i < len(text); i += 80 {
		end := min(i+80, len(text))
		wrapped.WriteString(text[i:end])
		wrapped.WriteString("\r\n")
	}

	got, err := Decode(wrapped.String())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDecode_IgnoresTrailingText(t *testing.T) {
	data := []byte("hello babel")
	text, err := Encode(data)
	require.NoError(t, err)

	got, err := Decode(text + "zzz ,.")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"uppercase symbol", "dbbbbA", ErrInvalidSymbol},
		{"digit", "dbbbb1", ErrInvalidSymbol},
		{"non-ascii", "dbbbbé", ErrInvalidSymbol},
		{"byte length field truncated", "dz", ErrTruncated},
		{"missing body length size", "dbb", ErrTruncated},
		{"body length field truncated", "dbbz", ErrTruncated},
		{"body truncated", "dbbbc", ErrTruncated},
		{"marker only", "d", ErrTruncated},
		{"empty byte length field", "da", ErrEmptyField},
		{"value too large for length", "dbbbcjb", ErrLengthMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Decode(tt.text)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrDecode)
			assert.Nil(t, data)
		})
	}
}

func TestDecode_TruncatedEncodings(t *testing.T) {
	text, err := Encode(randomBytes(7, 300))
	require.NoError(t, err)

	for cut := 1; cut < len(text); cut += 37 {
		_, err := Decode(text[:cut])
		assert.ErrorIs(t, err, ErrTruncated, "cut at %d", cut)
	}
}

func TestEncode_SizeLimit(t *testing.T) {
	_, err := Encode(make([]byte, MaxDecodedLen+1))
	assert.ErrorIs(t, err, ErrInputTooLarge)
	assert.ErrorIs(t, err, ErrEncode)
}

func TestEncodeHeader_Overflow(t *testing.T) {
	long := strings.Repeat("b", Base)

	_, err := encodeHeader(long, "b")
	assert.ErrorIs(t, err, ErrPrefixOverflow)
	assert.ErrorIs(t, err, ErrEncode)

	_, err = encodeHeader("b", long)
	assert.ErrorIs(t, err, ErrPrefixOverflow)

	header, err := encodeHeader(strings.Repeat("b", Base-1), "b")
	require.NoError(t, err)
	assert.Equal(t, byte(VersionMarker), header[0])
	assert.Equal(t, Alphabet[Base-1], header[1])
}

func TestDecode_Legacy(t *testing.T) {
	tests := []struct {
		text string
		want []byte
	}{
		{"e", []byte{4}},
		{"z", []byte{25}},
		{"ea", []byte{116}},
		{"hello", []byte{0x4d, 0x2e, 0x3b}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := Decode(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeLegacy_ZeroValue(t *testing.T) {
	got, err := decodeLegacy("a")
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, got)

	// Leading zero bytes cannot be recovered from the unstructured form.
	got, err = decodeLegacy(encodeInt(bigFromBytes([]byte{0, 0, 5})))
	require.NoError(t, err)
	assert.Equal(t, []byte{5}, got)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(""))
	assert.True(t, Valid("hello world, again."))
	assert.False(t, Valid("Hello"))
	assert.False(t, Valid("a\nb"))
}

func TestExpansionFactor(t *testing.T) {
	assert.InDelta(t, 1.6468, ExpansionFactor(), 0.0001)
	assert.Equal(t, 0, EstimateEncodedSize(0))
	assert.Equal(t, 2, EstimateEncodedSize(1))
	assert.Equal(t, 165, EstimateEncodedSize(100))
}

func TestEncode_BodyLengthWithinEstimate(t *testing.T) {
	data := bytes.Repeat([]byte{0xFF}, 1813)
	text, err := Encode(data)
	require.NoError(t, err)
	// header: marker + 2 size symbols + two 3-symbol fields
	assert.LessOrEqual(t, len(text), EstimateEncodedSize(len(data))+9)
	assert.LessOrEqual(t, len(text), 3200)
}
