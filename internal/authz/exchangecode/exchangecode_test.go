package exchangecode_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authz/internal/authz/actor"
	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/internal/authz/exchangecode"
	"github.com/aussiebroadwan/authz/internal/authz/store"
	"github.com/aussiebroadwan/authz/internal/authz/store/drivers/memory"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newNode(t *testing.T) (*exchangecode.Node, *actor.Registry, store.Store, *clock) {
	t.Helper()
	st := memory.NewStore(0)
	actors := actor.NewRegistry(st, slogx.Discard())
	t.Cleanup(actors.Close)

	c := &clock{now: time.Now()}
	actors.Now = c.Now
	n := exchangecode.New(actors, 0)
	n.Now = c.Now
	return n, actors, st, c
}

func authorize(t *testing.T, n *exchangecode.Node, clientID string) string {
	t.Helper()
	code := cryptox.MustGenerateHexToken(cryptox.TokenSize192)
	got, state, err := n.Authorize(context.Background(), exchangecode.AuthorizeParams{
		Code:         code,
		Identity:     "urn:rollupid:identity/abc",
		ResponseType: domain.ResponseTypeCode,
		ClientID:     clientID,
		RedirectURI:  "https://app.example/callback",
		Scope:        []string{"read"},
		State:        "xyz",
		PersonaData:  domain.PersonaData{"email": "urn:rollupid:account/e1"},
	})
	require.NoError(t, err)
	require.Equal(t, code, got)
	require.Equal(t, "xyz", state)
	return code
}

func TestAuthorizeRejectsUnsupportedResponseType(t *testing.T) {
	t.Parallel()
	n, _, _, _ := newNode(t)

	_, _, err := n.Authorize(context.Background(), exchangecode.AuthorizeParams{
		Code:         "c",
		ResponseType: "token",
	})
	require.ErrorIs(t, err, exchangecode.ErrUnsupportedResponseType)
}

func TestExchangeIsSingleUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n, _, st, _ := newNode(t)
	code := authorize(t, n, "app1")

	rec, err := n.Exchange(ctx, code, "app1")
	require.NoError(t, err)
	require.Equal(t, "urn:rollupid:identity/abc", rec.Identity)
	require.Equal(t, []string{"read"}, rec.Scope)
	require.Equal(t, "https://app.example/callback", rec.RedirectURI)

	_, err = n.Exchange(ctx, code, "app1")
	require.ErrorIs(t, err, exchangecode.ErrExpiredCode)

	at, err := st.Namespace(actor.Name(exchangecode.Kind, code)).GetAlarm(ctx)
	require.NoError(t, err)
	require.True(t, at.IsZero(), "consumed code has no pending alarm")
}

func TestExchangeChecksClientID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n, _, _, _ := newNode(t)
	code := authorize(t, n, "app1")

	_, err := n.Exchange(ctx, code, "other")
	require.ErrorIs(t, err, exchangecode.ErrMismatchClientID)

	// A mismatched attempt does not burn the code.
	_, err = n.Exchange(ctx, code, "app1")
	require.NoError(t, err)
}

func TestExchangeMissingFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n, _, _, _ := newNode(t)

	_, _, err := n.Authorize(ctx, exchangecode.AuthorizeParams{
		Code: "no-identity", ResponseType: domain.ResponseTypeCode, ClientID: "app1",
	})
	require.NoError(t, err)
	_, err = n.Exchange(ctx, "no-identity", "app1")
	require.ErrorIs(t, err, exchangecode.ErrMissingIdentityName)

	_, _, err = n.Authorize(ctx, exchangecode.AuthorizeParams{
		Code: "no-client", ResponseType: domain.ResponseTypeCode, Identity: "abc",
	})
	require.NoError(t, err)
	_, err = n.Exchange(ctx, "no-client", "app1")
	require.ErrorIs(t, err, exchangecode.ErrMissingClientID)

	_, err = n.Exchange(ctx, "", "app1")
	require.ErrorIs(t, err, exchangecode.ErrMissingCode)
}

func TestExchangeAfterTTLFailsWithoutAlarm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n, _, _, c := newNode(t)
	code := authorize(t, n, "app1")

	// Time moves past the TTL but the real timer (two minutes) has not run.
	c.now = c.now.Add(domain.DefaultCodeTTL + time.Second)

	_, err := n.Exchange(ctx, code, "app1")
	require.ErrorIs(t, err, exchangecode.ErrExpiredCode)
}

func TestExpiryAlarmCollectsCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n, actors, _, c := newNode(t)
	code := authorize(t, n, "app1")

	c.now = c.now.Add(domain.DefaultCodeTTL)
	fired, err := actors.FireDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	_, err = n.Exchange(ctx, code, "app1")
	require.ErrorIs(t, err, exchangecode.ErrExpiredCode)

	// Firing again is harmless.
	fired, err = actors.FireDue(ctx)
	require.NoError(t, err)
	require.Zero(t, fired)
}
