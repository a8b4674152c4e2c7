// Package crypto seals backup archives with AES-256-GCM under a key derived
// from a user password. The password is never written to the archive; the
// same password must be supplied again to restore.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidPassword is returned when the password does not open the archive.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidArchive is returned when the sealed header cannot be parsed.
	ErrInvalidArchive = errors.New("invalid archive format")
)

const (
	// PasswordMinLength is the minimum accepted password length.
	PasswordMinLength = 8
	// SaltLength is the length of the random key-derivation salt.
	SaltLength = 32

	algorithm  = "AES-256-GCM"
	version    = 1
	iterations = 100_000
	keyLength  = 32
)

// Magic prefixes every sealed archive.
const Magic = "NCOREARC"

// Header carries what is needed to derive the key and open the payload.
type Header struct {
	Version   uint8
	Algorithm string
	Nonce     []byte
	Salt      []byte
}

// IsSealed reports whether data starts with the sealed-archive magic.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, []byte(Magic))
}

// Seal encrypts data with a key derived from password.
func Seal(data []byte, password string) ([]byte, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	header, err := marshalHeader(Header{Version: version, Algorithm: algorithm, Nonce: nonce, Salt: salt})
	if err != nil {
		return nil, err
	}
	// The header is authenticated as additional data.
	out := make([]byte, len(header), len(header)+len(data)+gcm.Overhead())
	copy(out, header)
	return gcm.Seal(out, nonce, data, header), nil
}

// Open reverses Seal.
func Open(sealed []byte, password string) ([]byte, error) {
	h, n, err := parseHeader(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if h.Version != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidArchive, h.Version)
	}
	if h.Algorithm != algorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %s", ErrInvalidArchive, h.Algorithm)
	}

	gcm, err := newGCM(password, h.Salt)
	if err != nil {
		return nil, err
	}
	if len(h.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrInvalidArchive, len(h.Nonce))
	}
	plaintext, err := gcm.Open(nil, h.Nonce, sealed[n:], sealed[:n])
	if err != nil {
		return nil, ErrInvalidPassword
	}
	return plaintext, nil
}

// ValidatePassword checks the minimum password requirements.
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLength {
		return fmt.Errorf("password must be at least %d characters", PasswordMinLength)
	}
	return nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key, err := pbkdf2.Key(sha256.New, password, salt, iterations, keyLength)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// marshalHeader lays out magic, version, then length-prefixed algorithm,
// nonce and salt.
func marshalHeader(h Header) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Magic)
	buf.WriteByte(h.Version)
	for _, field := range [][]byte{[]byte(h.Algorithm), h.Nonce, h.Salt} {
		if len(field) > 255 {
			return nil, errors.New("header field too long")
		}
		buf.WriteByte(byte(len(field)))
		buf.Write(field)
	}
	return buf.Bytes(), nil
}

// parseHeader returns the header and its encoded length.
func parseHeader(data []byte) (Header, int, error) {
	var h Header
	r := bytes.NewReader(data)

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != Magic {
		return h, 0, errors.New("missing magic")
	}
	v, err := r.ReadByte()
	if err != nil {
		return h, 0, fmt.Errorf("read version: %w", err)
	}
	h.Version = v

	fields := make([][]byte, 3)
	for i := range fields {
		n, err := r.ReadByte()
		if err != nil {
			return h, 0, fmt.Errorf("read field length: %w", err)
		}
		fields[i] = make([]byte, n)
		if _, err := io.ReadFull(r, fields[i]); err != nil {
			return h, 0, fmt.Errorf("read field: %w", err)
		}
	}
	h.Algorithm = string(fields[0])
	h.Nonce = fields[1]
	h.Salt = fields[2]
	return h, len(data) - r.Len(), nil
}
