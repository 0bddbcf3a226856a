package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy.
	TokenSize128 = 16
	// TokenSize192 provides 192 bits of entropy. Authorization codes and
	// token identifiers use this size.
	TokenSize192 = 24
	// TokenSize256 provides 256 bits of entropy.
	TokenSize256 = 32
)

// RandomBytes reads size bytes from the system CSPRNG.
func RandomBytes(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate random token: %w", err)
	}
	return buf, nil
}

// GenerateHexToken returns size random bytes as a 0x-prefixed lowercase hex
// string. This is the wire form of authorization codes and jti values.
func GenerateHexToken(size int) (string, error) {
	buf, err := RandomBytes(size)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(buf), nil
}

// MustGenerateHexToken is like GenerateHexToken but panics on error.
func MustGenerateHexToken(size int) string {
	token, err := GenerateHexToken(size)
	if err != nil {
		panic(fmt.Sprintf("cryptox: failed to generate token: %v", err))
	}
	return token
}

// GenerateToken creates a random token of the given byte length encoded as
// base64url without padding.
func GenerateToken(size int) (string, error) {
	buf, err := RandomBytes(size)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token as
// base64url (43 chars). Codes and tokens are logged by fingerprint only.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
