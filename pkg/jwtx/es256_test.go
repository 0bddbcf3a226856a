package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

const exampleIssuer = "urn:authz:alice@app1"

func newSigner(t *testing.T, kid string) *jwtx.ES256Signer {
	t.Helper()
	pemKey, err := cryptox.GenerateES256Key()
	require.NoError(t, err)

	signer, err := jwtx.NewSignerES256(kid, pemKey)
	require.NoError(t, err)
	return signer
}

func TestES256SignAndVerify(t *testing.T) {
	signer := newSigner(t, "key-1")
	require.NoError(t, signer.Validate())
	require.Equal(t, "ES256", signer.Alg())
	require.Equal(t, "key-1", signer.KID())

	claims, err := jwtx.NewAccessClaims(jwtx.TokenOptions{
		Issuer:   exampleIssuer,
		Subject:  "urn:identity:alice",
		ClientID: "app1",
		Scope:    []string{"openid", "profile"},
		TTL:      10 * time.Minute,
	})
	require.NoError(t, err)

	token, err := signer.Sign(claims, jwtx.JKU("https://auth.example.com"))
	require.NoError(t, err)

	header, err := jwtx.DecodeHeader(token)
	require.NoError(t, err)
	require.Equal(t, "ES256", header.Alg)
	require.Equal(t, "key-1", header.Kid)
	require.Equal(t, "JWT", header.Typ)
	require.Equal(t, "https://auth.example.com/.well-known/jwks.json", header.Jku)

	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddSigner(signer))

	parsed, err := jwtx.Verify(token, keys, jwtx.VerifyOptions{Issuer: exampleIssuer, Audience: "app1"})
	require.NoError(t, err)
	require.Equal(t, "urn:identity:alice", parsed.Subject)
	require.Equal(t, "app1", parsed.ClientID())
	require.Equal(t, []string{"openid", "profile"}, parsed.Scopes())
	require.Equal(t, "openid profile", parsed.Scope)
	require.True(t, strings.HasPrefix(parsed.ID, "0x"))
	require.Len(t, parsed.ID, 2+2*jwtx.JTISize)
}

func TestRefreshClaimsCarryMarker(t *testing.T) {
	signer := newSigner(t, "key-1")
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddSigner(signer))

	opts := jwtx.TokenOptions{Issuer: exampleIssuer, Subject: "urn:identity:alice", ClientID: "app1"}
	refresh, err := jwtx.NewRefreshClaims(opts)
	require.NoError(t, err)
	require.True(t, refresh.IsRefresh())
	require.NotNil(t, refresh.ExpiresAt)

	access, err := jwtx.NewAccessClaims(opts)
	require.NoError(t, err)
	require.False(t, access.IsRefresh())

	token, err := signer.Sign(refresh, jwtx.JKU(exampleIssuer))
	require.NoError(t, err)
	parsed, err := jwtx.Verify(token, keys, jwtx.VerifyOptions{})
	require.NoError(t, err)
	require.Equal(t, jwtx.TokenUseRefresh, parsed.TokenUse)
}

func TestVerify_ErrorTaxonomy(t *testing.T) {
	signer := newSigner(t, "key-1")
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddSigner(signer))

	now := time.Now()
	sign := func(o jwtx.TokenOptions) string {
		t.Helper()
		claims, err := jwtx.NewAccessClaims(o)
		require.NoError(t, err)
		token, err := signer.Sign(claims, "")
		require.NoError(t, err)
		return token
	}
	base := jwtx.TokenOptions{Issuer: exampleIssuer, Subject: "s", ClientID: "app1", TTL: time.Minute, Now: now}

	t.Run("expired", func(t *testing.T) {
		o := base
		o.Now = now.Add(-time.Hour)
		_, err := jwtx.Verify(sign(o), keys, jwtx.VerifyOptions{})
		require.ErrorIs(t, err, jwtx.ErrExpired)
		require.NotErrorIs(t, err, jwtx.ErrClaimValidationFailed)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := jwtx.Verify(sign(base), keys, jwtx.VerifyOptions{Issuer: "someone-else"})
		require.ErrorIs(t, err, jwtx.ErrClaimValidationFailed)
	})

	t.Run("wrong audience", func(t *testing.T) {
		_, err := jwtx.Verify(sign(base), keys, jwtx.VerifyOptions{Audience: "app2"})
		require.ErrorIs(t, err, jwtx.ErrClaimValidationFailed)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := jwtx.Verify("not-a-token", keys, jwtx.VerifyOptions{})
		require.ErrorIs(t, err, jwtx.ErrInvalid)
	})

	t.Run("unknown kid", func(t *testing.T) {
		other := newSigner(t, "key-2")
		claims, err := jwtx.NewAccessClaims(base)
		require.NoError(t, err)
		token, err := other.Sign(claims, "")
		require.NoError(t, err)

		_, err = jwtx.Verify(token, keys, jwtx.VerifyOptions{})
		require.ErrorIs(t, err, jwtx.ErrVerificationFailed)
	})

	t.Run("tampered signature", func(t *testing.T) {
		token := sign(base)
		tampered := token[:len(token)-4] + "AAAA"
		_, err := jwtx.Verify(tampered, keys, jwtx.VerifyOptions{})
		require.ErrorIs(t, err, jwtx.ErrVerificationFailed)
	})

	t.Run("removed key", func(t *testing.T) {
		token := sign(base)
		ks := jwtx.NewKeySet()
		require.NoError(t, ks.AddSigner(signer))
		_, err := jwtx.Verify(token, ks, jwtx.VerifyOptions{})
		require.NoError(t, err)

		ks.Remove("key-1")
		require.False(t, ks.IsReady())
		_, err = jwtx.Verify(token, ks, jwtx.VerifyOptions{})
		require.ErrorIs(t, err, jwtx.ErrVerificationFailed)
	})

	t.Run("injected clock", func(t *testing.T) {
		token := sign(base)
		_, err := jwtx.Verify(token, keys, jwtx.VerifyOptions{Now: func() time.Time { return now.Add(2 * time.Minute) }})
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})
}

func TestVerifyWithKey_Legacy(t *testing.T) {
	signer, err := jwtx.NewSignerES256FromKey("", mustKey(t))
	require.NoError(t, err)

	claims, err := jwtx.NewRefreshClaims(jwtx.TokenOptions{Issuer: exampleIssuer, Subject: "s", ClientID: "app1"})
	require.NoError(t, err)
	require.NotNil(t, claims.ExpiresAt, "refresh tokens always expire")

	token, err := signer.Sign(claims, "")
	require.NoError(t, err)

	header, err := jwtx.DecodeHeader(token)
	require.NoError(t, err)
	require.Empty(t, header.Kid)

	parsed, err := jwtx.VerifyWithKey(token, signer.PublicKey(), jwtx.VerifyOptions{})
	require.NoError(t, err)
	require.Equal(t, claims.ID, parsed.ID)

	_, err = jwtx.VerifyWithKey(token, nil, jwtx.VerifyOptions{})
	require.ErrorIs(t, err, jwtx.ErrVerificationFailed)

	// A kid-less token cannot be verified through a key set.
	keys := jwtx.NewKeySet()
	_, err = jwtx.Verify(token, keys, jwtx.VerifyOptions{})
	require.ErrorIs(t, err, jwtx.ErrVerificationFailed)
}

func TestIDClaims(t *testing.T) {
	signer := newSigner(t, "key-1")
	now := time.Now()

	claims := jwtx.NewIDClaims(jwtx.TokenOptions{
		Issuer:   exampleIssuer,
		Subject:  "urn:identity:alice",
		ClientID: "app1",
		TTL:      time.Hour,
		Now:      now,
	}, map[string]any{"name": "Alice", "sub": "spoofed"})

	token, err := signer.Sign(claims, "")
	require.NoError(t, err)

	parsed := jwt.MapClaims{}
	_, err = jwt.NewParser().ParseWithClaims(token, parsed, func(*jwt.Token) (any, error) {
		return signer.PublicKey(), nil
	})
	require.NoError(t, err)
	require.Equal(t, "Alice", parsed["name"])
	require.Equal(t, "urn:identity:alice", parsed["sub"])
	require.EqualValues(t, now.Add(time.Hour).Unix(), parsed["exp"])
}

func TestDecodeUnverified(t *testing.T) {
	signer := newSigner(t, "key-1")
	claims, err := jwtx.NewAccessClaims(jwtx.TokenOptions{Subject: "s", ClientID: "app1", Scope: []string{"a", "b"}})
	require.NoError(t, err)
	token, err := signer.Sign(claims, "")
	require.NoError(t, err)

	parsed, err := jwtx.DecodeUnverified(token)
	require.NoError(t, err)
	require.Equal(t, "app1", parsed.ClientID())
	require.Equal(t, "s", parsed.Subject)

	_, err = jwtx.DecodeUnverified("garbage")
	require.ErrorIs(t, err, jwtx.ErrInvalid)

	_, err = jwtx.DecodeHeader("garbage")
	require.ErrorIs(t, err, jwtx.ErrInvalid)
}
