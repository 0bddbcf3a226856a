package jwtx

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures. Every error returned by Verify and VerifyWithKey
// matches exactly one of these with errors.Is; golang-jwt errors never leak.
var (
	ErrClaimValidationFailed = errors.New("jwtx: claim validation failed")
	ErrExpired               = errors.New("jwtx: token expired")
	ErrInvalid               = errors.New("jwtx: invalid token")
	ErrVerificationFailed    = errors.New("jwtx: verification failed")
)

// VerifyOptions captures the expectations checked beyond the signature.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// Audience the token must contain (claims.aud). Empty means "don't care".
	Audience string

	// Leeway allows small clock skew when validating exp/nbf/iat.
	Leeway time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (o VerifyOptions) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{AlgES256}),
		jwt.WithIssuedAt(),
	}
	if o.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(o.Issuer))
	}
	if o.Audience != "" {
		opts = append(opts, jwt.WithAudience(o.Audience))
	}
	if o.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(o.Leeway))
	}
	if o.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(o.Now))
	}
	return jwt.NewParser(opts...)
}

// Verify validates a kid-bearing token against the key set.
func Verify(token string, keys *KeySet, opts VerifyOptions) (*Claims, error) {
	return verify(token, opts, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("jwtx: missing kid")
		}
		pub, err := keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("jwtx: unknown kid %q: %w", kid, err)
		}
		return pub, nil
	})
}

// VerifyWithKey validates a token against a single public key regardless of
// its kid header.
func VerifyWithKey(token string, pub *ecdsa.PublicKey, opts VerifyOptions) (*Claims, error) {
	if pub == nil {
		return nil, ErrVerificationFailed
	}
	return verify(token, opts, func(*jwt.Token) (any, error) { return pub, nil })
}

func verify(token string, opts VerifyOptions, keyFunc jwt.Keyfunc) (*Claims, error) {
	claims := &Claims{}
	parsed, err := opts.parser().ParseWithClaims(token, claims, keyFunc)
	if err != nil {
		return nil, mapError(err)
	}
	if !parsed.Valid {
		return nil, ErrVerificationFailed
	}
	return claims, nil
}

// mapError folds golang-jwt errors into the closed set above. Expiry is
// checked before the generic claims error because golang-jwt reports an
// expired token as both.
func mapError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrClaimValidationFailed, err)
	default:
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
}

// Header is the decoded protected header of a compact JWS.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid,omitempty"`
	Jku string `json:"jku,omitempty"`
	Typ string `json:"typ,omitempty"`
}

// DecodeHeader reads the protected header without verifying anything.
func DecodeHeader(token string) (Header, error) {
	seg, _, ok := strings.Cut(token, ".")
	if !ok || seg == "" {
		return Header{}, fmt.Errorf("%w: not a compact JWS", ErrInvalid)
	}
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return Header{}, fmt.Errorf("%w: header encoding: %v", ErrInvalid, err)
	}
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return Header{}, fmt.Errorf("%w: header json: %v", ErrInvalid, err)
	}
	return h, nil
}

// DecodeUnverified parses the claims without checking the signature. Only
// use the result for routing; trust nothing in it until verified.
func DecodeUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return claims, nil
}
