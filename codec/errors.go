package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrEncode is the parent of every encoding failure.
	ErrEncode = errors.New("codec: encode failed")

	// ErrDecode is the parent of every decoding failure.
	ErrDecode = errors.New("codec: decode failed")

	// ErrPrefixOverflow indicates a length field would need more than one
	// alphabet symbol to describe its own length.
	ErrPrefixOverflow = fmt.Errorf("%w: length prefix overflow", ErrEncode)

	// ErrInputTooLarge indicates input longer than MaxDecodedLen.
	ErrInputTooLarge = fmt.Errorf("%w: input exceeds %d bytes", ErrEncode, MaxDecodedLen)

	// ErrInvalidSymbol indicates a character outside the alphabet.
	ErrInvalidSymbol = fmt.Errorf("%w: invalid symbol", ErrDecode)

	// ErrTruncated indicates a header field claims more text than remains.
	ErrTruncated = fmt.Errorf("%w: truncated text", ErrDecode)

	// ErrLengthMismatch indicates the decoded value does not fit the declared byte length.
	ErrLengthMismatch = fmt.Errorf("%w: value exceeds declared byte length", ErrDecode)

	// ErrEmptyField indicates a zero-length numeric field.
	ErrEmptyField = fmt.Errorf("%w: empty numeric field", ErrDecode)
)
