package session_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authz/internal/authz/actor"
	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/internal/authz/session"
	"github.com/aussiebroadwan/authz/internal/authz/store/drivers/memory"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

const (
	testIssuer = "https://passport.example"
	testName   = "abc@app1"
)

func newNode(t *testing.T, maxValueSize int) *session.Node {
	t.Helper()

	pair, err := jwtx.GenerateKeyPair("k1")
	require.NoError(t, err)
	keys, err := jwtx.NewSigningKeySet([]jwtx.SigningKeyPair{pair}, "k1")
	require.NoError(t, err)

	actors := actor.NewRegistry(memory.NewStore(maxValueSize), slogx.Discard())
	t.Cleanup(actors.Close)
	return session.New(actors, keys)
}

func opts() session.TokenOptions {
	return session.TokenOptions{
		Issuer:   testIssuer,
		Identity: "urn:rollupid:identity/abc",
		ClientID: "app1",
		Scope:    []string{"read"},
	}
}

func do(t *testing.T, n *session.Node, fn func(ctx context.Context, s *session.Session)) {
	t.Helper()
	err := n.Do(context.Background(), testName, func(ctx context.Context, s *session.Session) error {
		fn(ctx, s)
		return nil
	})
	require.NoError(t, err)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()
	n := newNode(t, 0)

	do(t, n, func(ctx context.Context, s *session.Session) {
		token, err := s.GenerateAccessToken(ctx, opts())
		require.NoError(t, err)

		header, err := jwtx.DecodeHeader(token)
		require.NoError(t, err)
		require.Equal(t, "k1", header.Kid)
		require.Equal(t, "JWT", header.Typ)
		require.Equal(t, testIssuer+"/.well-known/jwks.json", header.Jku)

		claims, err := s.Verify(ctx, token, n.Keys.KeySet(), jwtx.VerifyOptions{Issuer: testIssuer, Audience: "app1"})
		require.NoError(t, err)
		require.Equal(t, "urn:rollupid:identity/abc", claims.Subject)
		require.Equal(t, []string{"read"}, claims.Scopes())
		require.NotEmpty(t, claims.ID)
		require.NotNil(t, claims.ExpiresAt)

		// Access tokens are not tracked.
		state, err := s.GetTokenState(ctx)
		require.NoError(t, err)
		require.Empty(t, state.TokenMap)

		// Without the matching key verification fails.
		keys, err := jwtx.KeySetFromJWKS(n.Keys.KeySet().PublicJWKS())
		require.NoError(t, err)
		keys.Remove("k1")
		_, err = s.Verify(ctx, token, keys, jwtx.VerifyOptions{})
		require.ErrorIs(t, err, jwtx.ErrVerificationFailed)
	})
}

func TestRefreshTokenIsStored(t *testing.T) {
	t.Parallel()
	n := newNode(t, 0)

	do(t, n, func(ctx context.Context, s *session.Session) {
		token, err := s.GenerateRefreshToken(ctx, opts())
		require.NoError(t, err)

		claims, err := s.Verify(ctx, token, n.Keys.KeySet(), jwtx.VerifyOptions{})
		require.NoError(t, err)
		require.WithinDuration(t, time.Now().Add(jwtx.DefaultRefreshTokenTTL), claims.ExpiresAt.Time, time.Minute)

		state, err := s.GetTokenState(ctx)
		require.NoError(t, err)
		require.Equal(t, domain.TokenIndex{claims.ID}, state.TokenIndex)
		require.Equal(t, domain.Token{JWT: token, Scope: []string{"read"}}, state.TokenMap[claims.ID])
	})
}

func TestStoreRejectsDuplicateJTI(t *testing.T) {
	t.Parallel()
	n := newNode(t, 0)

	do(t, n, func(ctx context.Context, s *session.Session) {
		require.NoError(t, s.Store(ctx, "0x01", "jwt", []string{"a"}))
		require.ErrorIs(t, s.Store(ctx, "0x01", "jwt", []string{"a"}), session.ErrTokenExists)
		require.ErrorIs(t, s.Store(ctx, "", "jwt", nil), session.ErrMissingTokenID)
	})
}

func TestStoreEvictsOldestOnOverflow(t *testing.T) {
	t.Parallel()
	n := newNode(t, 2048)

	evicted := 0
	n.OnEvict = func(c int) { evicted += c }

	var jtis []string
	do(t, n, func(ctx context.Context, s *session.Session) {
		for range 30 {
			token, err := s.GenerateRefreshToken(ctx, opts())
			require.NoError(t, err)
			claims, err := jwtx.DecodeUnverified(token)
			require.NoError(t, err)
			jtis = append(jtis, claims.ID)

			state, err := s.GetTokenState(ctx)
			require.NoError(t, err)
			require.Len(t, state.TokenMap, len(state.TokenIndex))
			for _, id := range state.TokenIndex {
				require.Contains(t, state.TokenMap, id)
			}
		}

		state, err := s.GetTokenState(ctx)
		require.NoError(t, err)
		require.Less(t, len(state.TokenIndex), 30)
		require.Equal(t, jtis[len(jtis)-1], state.TokenIndex[len(state.TokenIndex)-1])
		require.Equal(t, jtis[len(jtis)-len(state.TokenIndex):], []string(state.TokenIndex), "oldest go first")
	})
	require.Positive(t, evicted)
}

func TestStoreGivesUpWhenNothingFits(t *testing.T) {
	t.Parallel()
	n := newNode(t, 16)

	do(t, n, func(ctx context.Context, s *session.Session) {
		err := s.Store(ctx, "0x01", "a-token-that-will-never-fit-in-sixteen-bytes", []string{"read"})
		require.NoError(t, err, "evicting the only entry leaves an empty table that fits")

		state, err := s.GetTokenState(ctx)
		require.NoError(t, err)
		require.Empty(t, state.TokenIndex)
	})
}

func TestRevokeIsIdempotent(t *testing.T) {
	t.Parallel()
	n := newNode(t, 0)

	do(t, n, func(ctx context.Context, s *session.Session) {
		keep, err := s.GenerateRefreshToken(ctx, opts())
		require.NoError(t, err)
		token, err := s.GenerateRefreshToken(ctx, opts())
		require.NoError(t, err)

		require.NoError(t, s.Revoke(ctx, token, n.Keys.KeySet(), jwtx.VerifyOptions{}))
		after, err := s.GetTokenState(ctx)
		require.NoError(t, err)
		require.Len(t, after.TokenIndex, 1)
		require.Len(t, after.TokenMap, 1)

		require.NoError(t, s.Revoke(ctx, token, n.Keys.KeySet(), jwtx.VerifyOptions{}))
		again, err := s.GetTokenState(ctx)
		require.NoError(t, err)
		require.Equal(t, after, again)

		kept, err := jwtx.DecodeUnverified(keep)
		require.NoError(t, err)
		require.Equal(t, domain.TokenIndex{kept.ID}, again.TokenIndex)
	})
}

func TestRevokePropagatesVerifyErrors(t *testing.T) {
	t.Parallel()
	n := newNode(t, 0)

	do(t, n, func(ctx context.Context, s *session.Session) {
		err := s.Revoke(ctx, "not-a-jwt", n.Keys.KeySet(), jwtx.VerifyOptions{})
		require.ErrorIs(t, err, jwtx.ErrInvalid)
	})
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()
	n := newNode(t, 0)

	do(t, n, func(ctx context.Context, s *session.Session) {
		token, err := s.GenerateAccessToken(ctx, opts())
		require.NoError(t, err)

		later := func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err = s.Verify(ctx, token, n.Keys.KeySet(), jwtx.VerifyOptions{Now: later})
		require.ErrorIs(t, err, jwtx.ErrExpired)

		_, err = s.Verify(ctx, token, n.Keys.KeySet(), jwtx.VerifyOptions{Issuer: "https://other.example"})
		require.ErrorIs(t, err, jwtx.ErrClaimValidationFailed)
	})
}

func TestLegacyKeyFallback(t *testing.T) {
	t.Parallel()
	n := newNode(t, 0)

	do(t, n, func(ctx context.Context, s *session.Session) {
		legacy, err := jwtx.GenerateKeyPair("")
		require.NoError(t, err)
		signer, err := legacy.Signer()
		require.NoError(t, err)

		claims, err := jwtx.NewAccessClaims(jwtx.TokenOptions{Issuer: testIssuer, Subject: "abc", ClientID: "app1", TTL: time.Hour})
		require.NoError(t, err)
		token, err := signer.Sign(&claims, "")
		require.NoError(t, err)

		// No stored legacy key yet.
		_, err = s.Verify(ctx, token, n.Keys.KeySet(), jwtx.VerifyOptions{})
		require.ErrorIs(t, err, jwtx.ErrVerificationFailed)

		require.NoError(t, s.ImportSigningKey(ctx, legacy))
		got, err := s.Verify(ctx, token, n.Keys.KeySet(), jwtx.VerifyOptions{})
		require.NoError(t, err)
		require.Equal(t, "abc", got.Subject)

		pair, err := s.SigningKeyPair(ctx)
		require.NoError(t, err)
		require.Empty(t, pair.KID())
	})
}

func TestSigningKeyPairIsGeneratedOnce(t *testing.T) {
	t.Parallel()
	n := newNode(t, 0)

	do(t, n, func(ctx context.Context, s *session.Session) {
		first, err := s.SigningKeyPair(ctx)
		require.NoError(t, err)
		second, err := s.SigningKeyPair(ctx)
		require.NoError(t, err)

		a, err := first.ECDSAPublicKey()
		require.NoError(t, err)
		b, err := second.ECDSAPublicKey()
		require.NoError(t, err)
		require.True(t, a.Equal(b))
	})
}

func TestIDTokenCarriesUserClaims(t *testing.T) {
	t.Parallel()
	n := newNode(t, 0)

	do(t, n, func(ctx context.Context, s *session.Session) {
		token, err := s.GenerateIDToken(ctx, opts(), map[string]any{"name": "Ada", "sub": "spoofed"})
		require.NoError(t, err)

		claims, err := s.Verify(ctx, token, n.Keys.KeySet(), jwtx.VerifyOptions{Audience: "app1"})
		require.NoError(t, err)
		require.Equal(t, "urn:rollupid:identity/abc", claims.Subject)
	})
}

func TestSessionData(t *testing.T) {
	t.Parallel()
	n := newNode(t, 0)

	do(t, n, func(ctx context.Context, s *session.Session) {
		p, err := s.PersonaData(ctx)
		require.NoError(t, err)
		require.Empty(t, p)

		require.NoError(t, s.SetOwner(ctx, "urn:rollupid:identity/abc", "app1"))
		identity, clientID, err := s.Owner(ctx)
		require.NoError(t, err)
		require.Equal(t, "urn:rollupid:identity/abc", identity)
		require.Equal(t, "app1", clientID)

		require.NoError(t, s.SetPersonaData(ctx, domain.PersonaData{"email": "urn:rollupid:account/e1"}))
		p, err = s.PersonaData(ctx)
		require.NoError(t, err)
		require.Equal(t, "urn:rollupid:account/e1", p["email"])

		_, found, err := s.AppData(ctx)
		require.NoError(t, err)
		require.False(t, found)
		require.NoError(t, s.SetAppData(ctx, domain.AppData{SmartWalletSessionKeys: []domain.SessionKey{{Address: "0x1"}}}))
		a, found, err := s.AppData(ctx)
		require.NoError(t, err)
		require.True(t, found)
		require.Len(t, a.SmartWalletSessionKeys, 1)

		ext, err := s.ExternalAppData(ctx)
		require.NoError(t, err)
		require.Nil(t, ext)
		require.Error(t, s.SetExternalAppData(ctx, json.RawMessage("{")))
		require.NoError(t, s.SetExternalAppData(ctx, json.RawMessage(`{"level":3}`)))
		ext, err = s.ExternalAppData(ctx)
		require.NoError(t, err)
		require.JSONEq(t, `{"level":3}`, string(ext))

		require.NoError(t, s.DeleteAll(ctx))
		_, found, err = s.AppData(ctx)
		require.NoError(t, err)
		require.False(t, found)
	})
}
