package jwtx

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"

	"github.com/aussiebroadwan/authz/pkg/cryptox"
)

var (
	ErrNoSigningKeys  = errors.New("jwtx: no signing keys configured")
	ErrUnknownCurrent = errors.New("jwtx: current kid not present in signing keys")
)

// SigningKeyPair is one private/public JWK pair as stored in secret
// configuration and in legacy session storage.
type SigningKeyPair struct {
	PrivateKey jose.JSONWebKey `json:"privateKey"`
	PublicKey  jose.JSONWebKey `json:"publicKey"`
}

// GenerateKeyPair creates a fresh P-256 pair. An empty kid produces a legacy
// pair whose tokens carry no kid header.
func GenerateKeyPair(kid string) (SigningKeyPair, error) {
	key, err := cryptox.NewES256Key()
	if err != nil {
		return SigningKeyPair{}, err
	}
	priv := jose.JSONWebKey{
		Key:       key,
		KeyID:     kid,
		Algorithm: AlgES256,
		Use:       "sig",
	}
	return SigningKeyPair{PrivateKey: priv, PublicKey: priv.Public()}, nil
}

// Validate checks the pair holds a P-256 private key and its public half.
func (p SigningKeyPair) Validate() error {
	priv, ok := p.PrivateKey.Key.(*ecdsa.PrivateKey)
	if !ok {
		return fmt.Errorf("jwtx: signing key %q is not an ECDSA private key", p.PrivateKey.KeyID)
	}
	if priv.Curve.Params().Name != "P-256" {
		return fmt.Errorf("jwtx: signing key %q is not P-256", p.PrivateKey.KeyID)
	}
	pub, ok := p.PublicKey.Key.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("jwtx: public key %q is not ECDSA", p.PublicKey.KeyID)
	}
	if !priv.PublicKey.Equal(pub) {
		return fmt.Errorf("jwtx: key pair %q halves do not match", p.PrivateKey.KeyID)
	}
	return nil
}

// KID returns the key identifier of the pair.
func (p SigningKeyPair) KID() string {
	if p.PrivateKey.KeyID != "" {
		return p.PrivateKey.KeyID
	}
	return p.PublicKey.KeyID
}

// Signer returns an ES256 signer for the pair.
func (p SigningKeyPair) Signer() (*ES256Signer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return NewSignerES256FromKey(p.KID(), p.PrivateKey.Key.(*ecdsa.PrivateKey))
}

// ECDSAPublicKey returns the public half as an ECDSA key.
func (p SigningKeyPair) ECDSAPublicKey() (*ecdsa.PublicKey, error) {
	pub, ok := p.PublicKey.Key.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("jwtx: public key is not ECDSA")
	}
	return pub, nil
}

// SigningKeySet is the ordered list of configured pairs plus the kid used for
// signing. All public halves verify.
type SigningKeySet struct {
	pairs   []SigningKeyPair
	current int
	keys    *KeySet
}

// ParseSigningKeys decodes a JSON array of {privateKey, publicKey} pairs. When
// currentKID is empty the last pair signs.
func ParseSigningKeys(data []byte, currentKID string) (*SigningKeySet, error) {
	var pairs []SigningKeyPair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("jwtx: decode signing keys: %w", err)
	}
	return NewSigningKeySet(pairs, currentKID)
}

// NewSigningKeySet validates the pairs and indexes their public halves.
func NewSigningKeySet(pairs []SigningKeyPair, currentKID string) (*SigningKeySet, error) {
	if len(pairs) == 0 {
		return nil, ErrNoSigningKeys
	}

	s := &SigningKeySet{pairs: pairs, current: len(pairs) - 1, keys: NewKeySet()}
	found := currentKID == ""
	for i, p := range pairs {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if p.KID() == "" {
			return nil, errors.New("jwtx: configured signing keys must carry a kid")
		}
		pub, _ := p.ECDSAPublicKey()
		if err := s.keys.AddJWK(NewES256JWK(p.KID(), pub)); err != nil {
			return nil, err
		}
		if currentKID != "" && p.KID() == currentKID {
			s.current = i
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCurrent, currentKID)
	}
	return s, nil
}

// Current returns the pair used for signing.
func (s *SigningKeySet) Current() SigningKeyPair {
	return s.pairs[s.current]
}

// Signer returns a signer for the current pair.
func (s *SigningKeySet) Signer() (*ES256Signer, error) {
	return s.Current().Signer()
}

// KeySet returns the verification keys of every configured pair.
func (s *SigningKeySet) KeySet() *KeySet {
	return s.keys
}

// Len reports how many pairs are configured.
func (s *SigningKeySet) Len() int {
	return len(s.pairs)
}
