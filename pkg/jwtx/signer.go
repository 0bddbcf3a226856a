package jwtx

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/authz/pkg/cryptox"
)

// AlgES256 is the only signing algorithm the service uses.
const AlgES256 = "ES256"

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	// Sign signs claims and stamps the protected header with alg, typ, kid
	// and the given jku. An empty jku or kid is left out of the header.
	Sign(claims jwt.Claims, jku string) (string, error)
	PublicJWK() JWK
	Validate() error
}

// ES256Signer implements Signer using ECDSA P-256 with SHA-256.
type ES256Signer struct {
	kid string
	key *ecdsa.PrivateKey
}

// NewSignerES256 creates an ES256 signer from PEM bytes (PKCS8 or SEC1).
func NewSignerES256(kid string, pemKey []byte) (*ES256Signer, error) {
	key, err := cryptox.ParseES256Key(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: %w", err)
	}
	return NewSignerES256FromKey(kid, key)
}

// NewSignerES256FromKey wraps an existing private key.
func NewSignerES256FromKey(kid string, key *ecdsa.PrivateKey) (*ES256Signer, error) {
	s := &ES256Signer{kid: kid, key: key}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ES256Signer) Alg() string { return AlgES256 }
func (s *ES256Signer) KID() string { return s.kid }

// Sign takes claims and turns them into a signed JWT string.
func (s *ES256Signer) Sign(claims jwt.Claims, jku string) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	t.Header["typ"] = "JWT"
	if s.kid != "" {
		t.Header["kid"] = s.kid
	}
	if jku != "" {
		t.Header["jku"] = jku
	}
	return t.SignedString(s.key)
}

// PublicJWK returns the JWK published in the JWKS.
func (s *ES256Signer) PublicJWK() JWK {
	return NewES256JWK(s.kid, &s.key.PublicKey)
}

// PublicKey returns the verification half of the key pair.
func (s *ES256Signer) PublicKey() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

// Validate does a quick sanity check to make sure we actually have a key.
func (s *ES256Signer) Validate() error {
	if s.key == nil {
		return errors.New("jwtx: nil ECDSA key")
	}
	if s.key.Curve.Params().Name != "P-256" {
		return fmt.Errorf("jwtx: expected P-256 curve, got %s", s.key.Curve.Params().Name)
	}
	return nil
}
