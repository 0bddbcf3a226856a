package domain

// Token is a stored refresh token together with the scope it was issued for.
type Token struct {
	JWT   string   `json:"jwt"`
	Scope []string `json:"scope"`
}

// TokenMap maps a token id (jti) to the stored token.
type TokenMap map[string]Token

// TokenIndex lists token ids in insertion order, oldest first.
type TokenIndex []string

// TokenState is the token table of a session.
type TokenState struct {
	TokenMap   TokenMap   `json:"tokenMap"`
	TokenIndex TokenIndex `json:"tokenIndex"`
}

// TokenSet is what a successful exchange hands back to the client.
type TokenSet struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
}

// GrantType discriminates the exchangeToken flows.
type GrantType string

const (
	GrantAuthenticationCode GrantType = "authentication_code"
	GrantAuthorizationCode  GrantType = "authorization_code"
	GrantRefreshToken       GrantType = "refresh_token"
)

// AnalyticsSuffix is the short name used in analytics event names.
func (g GrantType) AnalyticsSuffix() string {
	switch g {
	case GrantAuthenticationCode:
		return "authn_code"
	case GrantAuthorizationCode:
		return "auth_code"
	case GrantRefreshToken:
		return "refresh_token"
	default:
		return string(g)
	}
}

// Valid reports whether g is one of the supported grant types.
func (g GrantType) Valid() bool {
	switch g {
	case GrantAuthenticationCode, GrantAuthorizationCode, GrantRefreshToken:
		return true
	}
	return false
}
