package session

import (
	"context"

	"github.com/aussiebroadwan/authz/internal/authz/store"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// ImportSigningKey stores a legacy key pair for the session. Tokens minted
// with it carry no kid.
func (s *Session) ImportSigningKey(ctx context.Context, pair jwtx.SigningKeyPair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	return store.PutJSON(ctx, s.st, signingKeyKey, pair)
}

// SigningKeyPair returns the session's legacy key pair, generating and
// storing one on first use.
func (s *Session) SigningKeyPair(ctx context.Context) (jwtx.SigningKeyPair, error) {
	pair, found, err := s.storedSigningKey(ctx)
	if err != nil || found {
		return pair, err
	}
	pair, err = jwtx.GenerateKeyPair("")
	if err != nil {
		return jwtx.SigningKeyPair{}, err
	}
	if err := store.PutJSON(ctx, s.st, signingKeyKey, pair); err != nil {
		return jwtx.SigningKeyPair{}, err
	}
	return pair, nil
}

func (s *Session) storedSigningKey(ctx context.Context) (jwtx.SigningKeyPair, bool, error) {
	var pair jwtx.SigningKeyPair
	found, err := store.GetJSON(ctx, s.st, signingKeyKey, &pair)
	return pair, found, err
}
