package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/stretchr/testify/require"
)

func TestScopeHelpers(t *testing.T) {
	t.Parallel()

	require.True(t, domain.IsSuperset([]string{"read", "write"}, []string{"read"}))
	require.False(t, domain.IsSuperset([]string{"read"}, []string{"read", "write"}))
	require.True(t, domain.IsSuperset(nil, nil))

	require.True(t, domain.AllHidden([]string{"openid", "system_identifiers"}))
	require.False(t, domain.AllHidden([]string{"openid", "email"}))
	require.False(t, domain.AllHidden(nil))

	require.Equal(t, []string{}, domain.ParseScope("  "))
	require.Equal(t, []string{"a", "b"}, domain.ParseScope("a  b"))
	require.Equal(t, "a b", domain.FormatScope([]string{"a", "b"}))
	require.Equal(t, []string{"a", "b", "c"}, domain.UnionScope([]string{"a", "b"}, []string{"b", "c"}))
}

func TestSessionName(t *testing.T) {
	t.Parallel()

	name, err := domain.SessionName("urn:rollupid:identity/abc", "app1")
	require.NoError(t, err)
	require.Equal(t, "abc@app1", name)

	name, err = domain.SessionName("abc", "app1")
	require.NoError(t, err)
	require.Equal(t, "abc@app1", name)

	_, err = domain.SessionName("urn:rollupid:identity/", "app1")
	require.ErrorIs(t, err, domain.ErrInvalidURN)

	_, err = domain.SessionName("abc", "")
	require.ErrorIs(t, err, domain.ErrInvalidURN)

	urn, err := domain.AuthorizationURN("abc", "app1")
	require.NoError(t, err)
	require.Equal(t, "urn:rollupid:authorization/abc@app1?+client_id=app1", urn)
}

func TestPersonaDataMerge(t *testing.T) {
	t.Parallel()

	old := domain.PersonaData{"email": "a", "connected_accounts": "ALL"}
	merged := old.Merge(domain.PersonaData{"email": "b"})

	require.Equal(t, "b", merged["email"])
	require.Equal(t, "ALL", merged["connected_accounts"])
	require.Equal(t, "a", old["email"])

	var p domain.PersonaData
	require.NoError(t, json.Unmarshal([]byte(`{"erc_4337":["x","y"]}`), &p))
	list, ok := p.Strings("erc_4337")
	require.True(t, ok)
	require.Equal(t, []string{"x", "y"}, list)
}

func TestAppDataKeepsUnknownFields(t *testing.T) {
	t.Parallel()

	var a domain.AppData
	require.NoError(t, json.Unmarshal([]byte(`{"theme":"dark","smartWalletSessionKeys":[{"publicSessionKey":"0x1","smartContractWalletAddress":"0x2"}]}`), &a))
	require.Len(t, a.SmartWalletSessionKeys, 1)

	a.SmartWalletSessionKeys = nil
	out, err := json.Marshal(a)
	require.NoError(t, err)
	require.JSONEq(t, `{"theme":"dark"}`, string(out))
}

func TestExchangeCodeExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := domain.ExchangeCode{CreatedAt: now}

	require.False(t, c.Expired(now.Add(time.Minute), domain.DefaultCodeTTL))
	require.True(t, c.Expired(now.Add(domain.DefaultCodeTTL), domain.DefaultCodeTTL))
	require.True(t, domain.ExchangeCode{}.Expired(now, domain.DefaultCodeTTL))

	require.Equal(t, "auth_code", domain.GrantAuthorizationCode.AnalyticsSuffix())
	require.False(t, domain.GrantType("password").Valid())
}

func TestClaimData(t *testing.T) {
	t.Parallel()

	d := domain.ClaimData{
		"profile": {Claims: map[string]any{"name": "Ada"}, Meta: domain.ClaimMeta{Valid: true}},
		"email":   {Claims: map[string]any{"email": "ada@example.com"}, Meta: domain.ClaimMeta{Valid: true}},
	}
	require.True(t, d.Valid())
	require.Equal(t, map[string]any{"name": "Ada", "email": "ada@example.com"}, d.UserClaims())
	require.Equal(t, map[string]any{"name": "Ada"}, d.UserClaims("profile"))

	d["erc_4337"] = domain.InvalidScopeClaims()
	require.False(t, d.Valid())
}

func TestEdgeQuery(t *testing.T) {
	t.Parallel()

	e := domain.Edge{Src: "a", Dst: "b", Tag: domain.EdgeAuthorizes}
	require.True(t, domain.EdgeQuery{}.Matches(e))
	require.True(t, domain.EdgeQuery{Src: "a", Tag: domain.EdgeAuthorizes}.Matches(e))
	require.False(t, domain.EdgeQuery{Dst: "a"}.Matches(e))
}
