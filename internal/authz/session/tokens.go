package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/internal/authz/store"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// TokenOptions describes a token minted by the session.
type TokenOptions struct {
	Issuer   string
	Identity string
	ClientID string
	Scope    []string
	TTL      time.Duration
}

func (s *Session) claimsOptions(o TokenOptions) jwtx.TokenOptions {
	return jwtx.TokenOptions{
		Issuer:   o.Issuer,
		Subject:  o.Identity,
		ClientID: o.ClientID,
		Scope:    o.Scope,
		TTL:      o.TTL,
		Now:      s.node.Now(),
	}
}

func (s *Session) sign(claims jwt.Claims, issuer string) (string, error) {
	signer, err := s.node.Keys.Signer()
	if err != nil {
		return "", err
	}
	return signer.Sign(claims, jwtx.JKU(issuer))
}

// GenerateAccessToken signs an access token. Access tokens are not tracked.
func (s *Session) GenerateAccessToken(_ context.Context, o TokenOptions) (string, error) {
	if o.TTL <= 0 {
		o.TTL = jwtx.DefaultAccessTokenTTL
	}
	claims, err := jwtx.NewAccessClaims(s.claimsOptions(o))
	if err != nil {
		return "", err
	}
	return s.sign(&claims, o.Issuer)
}

// GenerateRefreshToken signs a refresh token and stores it in the token
// table so it can be revoked.
func (s *Session) GenerateRefreshToken(ctx context.Context, o TokenOptions) (string, error) {
	claims, err := jwtx.NewRefreshClaims(s.claimsOptions(o))
	if err != nil {
		return "", err
	}
	token, err := s.sign(&claims, o.Issuer)
	if err != nil {
		return "", err
	}
	if err := s.Store(ctx, claims.ID, token, o.Scope); err != nil {
		return "", err
	}
	return token, nil
}

// GenerateIDToken signs an ID token carrying the resolved user claims.
func (s *Session) GenerateIDToken(_ context.Context, o TokenOptions, userClaims map[string]any) (string, error) {
	if o.TTL <= 0 {
		o.TTL = jwtx.DefaultAccessTokenTTL
	}
	return s.sign(jwtx.NewIDClaims(s.claimsOptions(o), userClaims), o.Issuer)
}

// GetTokenState returns the token table. Missing parts default to empty.
func (s *Session) GetTokenState(ctx context.Context) (domain.TokenState, error) {
	return getTokenState(ctx, s.st)
}

func getTokenState(ctx context.Context, kv store.KV) (domain.TokenState, error) {
	state := domain.TokenState{TokenMap: domain.TokenMap{}, TokenIndex: domain.TokenIndex{}}
	if _, err := store.GetJSON(ctx, kv, tokenMapKey, &state.TokenMap); err != nil {
		return domain.TokenState{}, err
	}
	if _, err := store.GetJSON(ctx, kv, tokenIndexKey, &state.TokenIndex); err != nil {
		return domain.TokenState{}, err
	}
	if state.TokenMap == nil {
		state.TokenMap = domain.TokenMap{}
	}
	if state.TokenIndex == nil {
		state.TokenIndex = domain.TokenIndex{}
	}
	return state, nil
}

func putTokenState(ctx context.Context, kv store.KV, state domain.TokenState) error {
	return store.PutMultiJSON(ctx, kv, map[string]any{
		tokenMapKey:   state.TokenMap,
		tokenIndexKey: state.TokenIndex,
	})
}

// Store appends a refresh token to the table. When the table no longer fits
// in one stored value the oldest tokens are evicted until it does; the loop
// ends once the index is empty.
func (s *Session) Store(ctx context.Context, jti, token string, scope []string) error {
	if jti == "" {
		return ErrMissingTokenID
	}

	evicted := 0
	err := s.st.WithTx(ctx, func(tx store.Tx) error {
		state, err := getTokenState(ctx, tx)
		if err != nil {
			return err
		}
		if _, ok := state.TokenMap[jti]; ok {
			return ErrTokenExists
		}

		state.TokenMap[jti] = domain.Token{JWT: token, Scope: slices.Clone(scope)}
		state.TokenIndex = append(state.TokenIndex, jti)

		for {
			err := putTokenState(ctx, tx, state)
			if err == nil {
				return nil
			}
			if !errors.Is(err, store.ErrValueTooLarge) || len(state.TokenIndex) == 0 {
				return err
			}
			oldest := state.TokenIndex[0]
			state.TokenIndex = state.TokenIndex[1:]
			delete(state.TokenMap, oldest)
			evicted++
		}
	})
	if err != nil {
		return err
	}

	if evicted > 0 {
		slogx.FromContext(ctx).Warn("evicted refresh tokens", "session", s.name, "count", evicted)
		if s.node.OnEvict != nil {
			s.node.OnEvict(evicted)
		}
	}
	return nil
}

// Verify checks token against keys when it carries a kid. Tokens without a
// kid predate key rotation and are checked against the session's own legacy
// key. Errors match one of the jwtx verification errors.
func (s *Session) Verify(ctx context.Context, token string, keys *jwtx.KeySet, opts jwtx.VerifyOptions) (*jwtx.Claims, error) {
	if opts.Now == nil {
		opts.Now = s.node.Now
	}

	header, err := jwtx.DecodeHeader(token)
	if err != nil {
		return nil, err
	}
	if header.Kid != "" {
		return jwtx.Verify(token, keys, opts)
	}

	pair, found, err := s.storedSigningKey(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, jwtx.ErrVerificationFailed
	}
	pub, err := pair.ECDSAPublicKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", jwtx.ErrVerificationFailed, err)
	}
	return jwtx.VerifyWithKey(token, pub, opts)
}

// Revoke verifies token and removes its jti from the table. Revoking a token
// that is no longer stored is not an error.
func (s *Session) Revoke(ctx context.Context, token string, keys *jwtx.KeySet, opts jwtx.VerifyOptions) error {
	claims, err := s.Verify(ctx, token, keys, opts)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return ErrMissingTokenID
	}
	return s.RemoveToken(ctx, claims.ID)
}

// RemoveToken drops jti from both the map and the index.
func (s *Session) RemoveToken(ctx context.Context, jti string) error {
	return s.st.WithTx(ctx, func(tx store.Tx) error {
		state, err := getTokenState(ctx, tx)
		if err != nil {
			return err
		}
		_, inMap := state.TokenMap[jti]
		i := slices.Index(state.TokenIndex, jti)
		if !inMap && i < 0 {
			return nil
		}
		delete(state.TokenMap, jti)
		if i >= 0 {
			state.TokenIndex = slices.Delete(state.TokenIndex, i, i+1)
		}
		return putTokenState(ctx, tx, state)
	})
}
