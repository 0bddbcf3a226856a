package cryptox

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// NewES256Key generates a new ECDSA P-256 private key.
func NewES256Key() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate ECDSA key: %w", err)
	}
	return key, nil
}

// GenerateES256Key generates a new ECDSA P-256 private key and returns it in
// PEM format (PKCS8).
func GenerateES256Key() ([]byte, error) {
	key, err := NewES256Key()
	if err != nil {
		return nil, err
	}
	return MarshalES256Key(key)
}

// MarshalES256Key encodes an ECDSA private key as PKCS8 PEM.
func MarshalES256Key(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal PKCS8 key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParseES256Key decodes a PKCS8 or SEC1 PEM block into a P-256 private key.
func ParseES256Key(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("cryptox: invalid PEM data")
	}

	var key *ecdsa.PrivateKey
	switch block.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: failed to parse PKCS8 key: %w", err)
		}
		ec, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("cryptox: key is not ECDSA")
		}
		key = ec
	case "EC PRIVATE KEY":
		parsed, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: failed to parse EC key: %w", err)
		}
		key = parsed
	default:
		return nil, fmt.Errorf("cryptox: unsupported PEM type %q", block.Type)
	}

	if key.Curve != elliptic.P256() {
		return nil, errors.New("cryptox: key is not on the P-256 curve")
	}
	return key, nil
}
