package jwtx

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/authz/pkg/cryptox"
)

// Default token lifetimes.
const (
	// DefaultAccessTokenTTL is the lifetime of access and ID tokens issued to
	// third party applications.
	DefaultAccessTokenTTL = time.Hour

	// DefaultAuthenticationTokenTTL is the lifetime of first party session
	// tokens minted from an authentication code.
	DefaultAuthenticationTokenTTL = 90 * 24 * time.Hour

	// DefaultRefreshTokenTTL is the lifetime of refresh tokens.
	DefaultRefreshTokenTTL = 90 * 24 * time.Hour
)

// JTISize is the number of random bytes in a token identifier.
const JTISize = cryptox.TokenSize192

// TokenUseRefresh marks refresh tokens so they cannot stand in for access
// tokens.
const TokenUseRefresh = "refresh"

// Claims are the claims carried by access and refresh tokens. Scope uses the
// space-delimited wire form. TokenUse is only set on refresh tokens.
type Claims struct {
	jwt.RegisteredClaims

	Scope    string `json:"scope,omitempty"`
	TokenUse string `json:"token_use,omitempty"`
}

// IsRefresh reports whether the claims belong to a refresh token.
func (c *Claims) IsRefresh() bool {
	return c.TokenUse == TokenUseRefresh
}

// Scopes splits the wire scope into its individual values.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// ClientID returns the first audience entry, which is the client the token
// was issued to.
func (c *Claims) ClientID() string {
	if len(c.Audience) == 0 {
		return ""
	}
	return c.Audience[0]
}

// TokenOptions describes who a token is for and who issued it.
type TokenOptions struct {
	Issuer   string
	Subject  string
	ClientID string
	Scope    []string
	TTL      time.Duration
	Now      time.Time
}

func (o TokenOptions) registered(jti string) jwt.RegisteredClaims {
	now := o.Now
	if now.IsZero() {
		now = time.Now()
	}
	rc := jwt.RegisteredClaims{
		Issuer:   o.Issuer,
		Subject:  o.Subject,
		Audience: jwt.ClaimStrings{o.ClientID},
		IssuedAt: jwt.NewNumericDate(now),
		ID:       jti,
	}
	if o.TTL > 0 {
		rc.ExpiresAt = jwt.NewNumericDate(now.Add(o.TTL))
	}
	return rc
}

// NewAccessClaims builds access token claims with a fresh jti.
func NewAccessClaims(o TokenOptions) (Claims, error) {
	jti, err := NewJTI()
	if err != nil {
		return Claims{}, err
	}
	return Claims{
		RegisteredClaims: o.registered(jti),
		Scope:            strings.Join(o.Scope, " "),
	}, nil
}

// NewRefreshClaims builds refresh token claims with a fresh jti and the
// refresh marker. A zero TTL falls back to DefaultRefreshTokenTTL so refresh
// tokens always expire.
func NewRefreshClaims(o TokenOptions) (Claims, error) {
	if o.TTL <= 0 {
		o.TTL = DefaultRefreshTokenTTL
	}
	c, err := NewAccessClaims(o)
	if err != nil {
		return Claims{}, err
	}
	c.TokenUse = TokenUseRefresh
	return c, nil
}

// NewIDClaims merges resolved user claims with the registered claims of an ID
// token. Registered claims win over user supplied keys of the same name.
func NewIDClaims(o TokenOptions, userClaims map[string]any) jwt.MapClaims {
	rc := o.registered("")
	out := make(jwt.MapClaims, len(userClaims)+6)
	for k, v := range userClaims {
		out[k] = v
	}
	out["iss"] = rc.Issuer
	out["sub"] = rc.Subject
	out["aud"] = []string(rc.Audience)
	out["iat"] = rc.IssuedAt.Unix()
	if rc.ExpiresAt != nil {
		out["exp"] = rc.ExpiresAt.Unix()
	}
	return out
}

// NewJTI returns a 0x-prefixed hex identifier for the "jti" claim.
func NewJTI() (string, error) {
	return cryptox.GenerateHexToken(JTISize)
}

// JKU derives the JWKS discovery URL published in token headers.
func JKU(issuer string) string {
	return strings.TrimSuffix(issuer, "/") + "/.well-known/jwks.json"
}
