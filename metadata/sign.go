package metadata

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
)

var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthAuto,
	Hash:       crypto.SHA256,
}

// Sign computes an RSA-PSS signature over Canonical(r) and stores it in
// r.Signature. Any previous signature is replaced.
func Sign(r *FileRecord, key *rsa.PrivateKey) error {
	if key == nil {
		return fmt.Errorf("%w: nil private key", ErrKeyFormat)
	}
	digest := sha256.Sum256(Canonical(r))
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return fmt.Errorf("metadata: sign: %w", err)
	}
	r.Signature = base64.StdEncoding.EncodeToString(sig)
	return nil
}

// Verify reports whether r carries a valid signature under pub. It is
// false for an unsigned record, a nil key or undecodable signature text.
func Verify(r *FileRecord, pub *rsa.PublicKey) bool {
	return RequireSignature(r, pub) == nil
}

// RequireSignature is Verify with a reason: ErrNoPublicKey,
// ErrMissingSignature or ErrBadSignature.
func RequireSignature(r *FileRecord, pub *rsa.PublicKey) error {
	if pub == nil {
		return ErrNoPublicKey
	}
	if r == nil || r.Signature == "" {
		return ErrMissingSignature
	}
	sig, err := base64.StdEncoding.DecodeString(r.Signature)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	digest := sha256.Sum256(Canonical(r))
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOptions); err != nil {
		return ErrBadSignature
	}
	return nil
}

// LoadPrivateKey reads a PEM-encoded RSA private key (PKCS#8 or PKCS#1).
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: read private key: %w", err)
	}
	return ParsePrivateKeyPEM(data)
}

// LoadPublicKey reads a PEM-encoded RSA public key (PKIX or PKCS#1).
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: read public key: %w", err)
	}
	return ParsePublicKeyPEM(data)
}

// ParsePrivateKeyPEM parses the first PEM block of data as an RSA private key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrKeyFormat)
	}
	if block.Type == EncryptedKeyType {
		return nil, ErrKeyEncrypted
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rk, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: PKCS#8 key is %T, not RSA", ErrKeyFormat, key)
		}
		return rk, nil
	}
	rk, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
	}
	return rk, nil
}

// ParsePublicKeyPEM parses the first PEM block of data as an RSA public key.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrKeyFormat)
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		pk, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: PKIX key is %T, not RSA", ErrKeyFormat, key)
		}
		return pk, nil
	}
	pk, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
	}
	return pk, nil
}

// EncodePrivateKeyPEM returns key as a PKCS#8 PEM block.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKeyPEM returns pub as a PKIX PEM block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
