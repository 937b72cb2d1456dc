package metadata

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
)

// DefaultKeyBits is the RSA modulus size GenerateKey uses when bits is zero.
const DefaultKeyBits = 4096

// EncryptedKeyType is the PEM block type of passphrase-protected keys.
const EncryptedKeyType = "BABELSTORE ENCRYPTED PRIVATE KEY"

// Argon2id parameters for key encryption.
const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024 // 64 MB
	argon2Parallelism = 4
	argon2KeyLen      = 32

	saltLen  = 16
	nonceLen = 12
)

// GenerateKey creates a new RSA signing key.
func GenerateKey(bits int) (*rsa.PrivateKey, error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}
	if bits < 2048 {
		return nil, fmt.Errorf("%w: %d-bit keys are too small", ErrKeyFormat, bits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("metadata: generate key: %w", err)
	}
	return key, nil
}

// EncryptPrivateKeyPEM returns key as PKCS#8 sealed with AES-256-GCM under
// an Argon2id key derived from passphrase.
//
// Block bytes: salt(16B) || nonce(12B) || AES-GCM(pkcs8)
func EncryptPrivateKeyPEM(key *rsa.PrivateKey, passphrase string) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal private key: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("metadata: generate salt: %w", err)
	}
	gcm, err := keyCipher(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("metadata: generate nonce: %w", err)
	}

	out := make([]byte, 0, saltLen+nonceLen+len(der)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, der, nil)
	return pem.EncodeToMemory(&pem.Block{Type: EncryptedKeyType, Bytes: out}), nil
}

// ParseEncryptedPrivateKeyPEM opens a key written by EncryptPrivateKeyPEM.
// Unencrypted PEM keys are accepted as well and passphrase is ignored.
func ParseEncryptedPrivateKeyPEM(data []byte, passphrase string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrKeyFormat)
	}
	if block.Type != EncryptedKeyType {
		return ParsePrivateKeyPEM(data)
	}
	b := block.Bytes
	if len(b) < saltLen+nonceLen {
		return nil, ErrKeyDecrypt
	}
	gcm, err := keyCipher(passphrase, b[:saltLen])
	if err != nil {
		return nil, err
	}
	der, err := gcm.Open(nil, b[saltLen:saltLen+nonceLen], b[saltLen+nonceLen:], nil)
	if err != nil {
		return nil, ErrKeyDecrypt
	}
	return ParsePrivateKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// LoadEncryptedPrivateKey reads a private key that may be passphrase
// protected.
func LoadEncryptedPrivateKey(path, passphrase string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: read private key: %w", err)
	}
	return ParseEncryptedPrivateKeyPEM(data, passphrase)
}

// WriteKeyPair writes key to privPath (mode 0600) and its public half to
// pubPath. A non-empty passphrase encrypts the private key.
func WriteKeyPair(privPath, pubPath string, key *rsa.PrivateKey, passphrase string) error {
	var (
		privPEM []byte
		err     error
	)
	if passphrase != "" {
		privPEM, err = EncryptPrivateKeyPEM(key, passphrase)
	} else {
		privPEM, err = EncodePrivateKeyPEM(key)
	}
	if err != nil {
		return err
	}
	pubPEM, err := EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return err
	}
	if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
		return fmt.Errorf("metadata: write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
		return fmt.Errorf("metadata: write public key: %w", err)
	}
	return nil
}

func keyCipher(passphrase string, salt []byte) (cipher.AEAD, error) {
	derived := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("metadata: AES cipher creation failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("metadata: GCM creation failed: %w", err)
	}
	return gcm, nil
}
