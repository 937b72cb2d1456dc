package metadata

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode indicates persisted metadata is malformed or truncated.
	ErrDecode = errors.New("metadata: malformed record")

	// ErrNotFound indicates no persisted record exists at the path.
	ErrNotFound = errors.New("metadata: record not found")

	// ErrInvalidRecord indicates a record violates a structural invariant.
	ErrInvalidRecord = errors.New("metadata: invalid record")

	// ErrSignature is the parent of signature failures.
	ErrSignature = errors.New("metadata: signature check failed")

	// ErrMissingSignature indicates a signature was required but absent.
	ErrMissingSignature = fmt.Errorf("%w: record is not signed", ErrSignature)

	// ErrBadSignature indicates the signature does not verify.
	ErrBadSignature = fmt.Errorf("%w: signature does not verify", ErrSignature)

	// ErrNoPublicKey indicates verification was requested without a key.
	ErrNoPublicKey = fmt.Errorf("%w: no public key", ErrSignature)

	// ErrKeyFormat indicates a PEM key could not be parsed as RSA.
	ErrKeyFormat = errors.New("metadata: unsupported key format")

	// ErrKeyEncrypted indicates a private key needs a passphrase.
	ErrKeyEncrypted = errors.New("metadata: private key is encrypted")

	// ErrKeyDecrypt indicates a wrong passphrase or a corrupted key.
	ErrKeyDecrypt = errors.New("metadata: private key decryption failed")
)
