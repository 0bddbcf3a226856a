package service

import (
	"context"

	"github.com/aussiebroadwan/authz/internal/authz/session"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

type VerifyTokenRequest struct {
	Token        string `json:"token"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Issuer       string `json:"issuer,omitempty"`
}

type VerifyTokenResult struct {
	Subject   string   `json:"sub"`
	ClientID  string   `json:"clientId"`
	Issuer    string   `json:"iss"`
	Scope     []string `json:"scope"`
	TokenID   string   `json:"jti,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
}

type RevokeTokenRequest = VerifyTokenRequest

// routeToken reads the untrusted sub and aud of token to find its session,
// checking the caller supplied client id and secret on the way. Nothing
// returned here is trusted until the session has verified the token.
func (s *Service) routeToken(ctx context.Context, req VerifyTokenRequest) (identity, clientID string, err error) {
	unverified, err := jwtx.DecodeUnverified(req.Token)
	if err != nil {
		return "", "", err
	}
	clientID = unverified.ClientID()
	if clientID == "" {
		return "", "", ErrMissingClientID
	}
	if req.ClientID != "" && req.ClientID != clientID {
		return "", "", ErrMismatchClientID
	}
	if unverified.Subject == "" {
		return "", "", ErrMissingSubject
	}
	if req.ClientSecret != "" {
		if err := s.checkClient(ctx, clientID, req.ClientSecret); err != nil {
			return "", "", err
		}
	}
	return unverified.Subject, clientID, nil
}

func (s *Service) verifyOptions(issuer, clientID string) jwtx.VerifyOptions {
	return jwtx.VerifyOptions{Issuer: issuer, Audience: clientID}
}

// VerifyToken checks the signature and claims of an access or refresh token.
// A refresh token must also still be held in its session's token table.
func (s *Service) VerifyToken(ctx context.Context, req VerifyTokenRequest) (VerifyTokenResult, error) {
	identity, clientID, err := s.routeToken(ctx, req)
	if err != nil {
		return VerifyTokenResult{}, mapError(err)
	}

	var claims *jwtx.Claims
	err = s.withSession(ctx, identity, clientID, func(ctx context.Context, sess *session.Session) error {
		var err error
		claims, err = sess.Verify(ctx, req.Token, s.Keys.KeySet(), s.verifyOptions(req.Issuer, clientID))
		if err != nil || !claims.IsRefresh() {
			return err
		}
		return requireStored(ctx, sess, claims.ID)
	})
	s.Metrics.Verification(err == nil)
	if err != nil {
		return VerifyTokenResult{}, mapError(err)
	}

	res := VerifyTokenResult{
		Subject:  claims.Subject,
		ClientID: claims.ClientID(),
		Issuer:   claims.Issuer,
		Scope:    claims.Scopes(),
		TokenID:  claims.ID,
	}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return res, nil
}

// RevokeToken verifies token and removes it from its session's token table.
// Revoking a token that is no longer stored succeeds.
func (s *Service) RevokeToken(ctx context.Context, req RevokeTokenRequest) error {
	identity, clientID, err := s.routeToken(ctx, req)
	if err != nil {
		return mapError(err)
	}

	err = s.withSession(ctx, identity, clientID, func(ctx context.Context, sess *session.Session) error {
		return sess.Revoke(ctx, req.Token, s.Keys.KeySet(), s.verifyOptions(req.Issuer, clientID))
	})
	if err != nil {
		return mapError(err)
	}
	s.Metrics.Revoked()
	return nil
}

// VerifyAccessToken verifies a bearer token presented to the RPC surface.
// Refresh tokens are refused.
func (s *Service) VerifyAccessToken(ctx context.Context, token string) (*jwtx.Claims, error) {
	header, err := jwtx.DecodeHeader(token)
	if err != nil {
		return nil, mapError(err)
	}
	if header.Kid != "" {
		claims, err := jwtx.Verify(token, s.Keys.KeySet(), jwtx.VerifyOptions{})
		if err == nil && claims.IsRefresh() {
			err = errRefreshAsBearer
		}
		s.Metrics.Verification(err == nil)
		if err != nil {
			return nil, mapError(err)
		}
		return claims, nil
	}

	identity, clientID, err := s.routeToken(ctx, VerifyTokenRequest{Token: token})
	if err != nil {
		return nil, mapError(err)
	}
	var claims *jwtx.Claims
	err = s.withSession(ctx, identity, clientID, func(ctx context.Context, sess *session.Session) error {
		var err error
		claims, err = sess.Verify(ctx, token, s.Keys.KeySet(), jwtx.VerifyOptions{})
		if err == nil && claims.IsRefresh() {
			err = errRefreshAsBearer
		}
		return err
	})
	s.Metrics.Verification(err == nil)
	if err != nil {
		return nil, mapError(err)
	}
	return claims, nil
}

var errRefreshAsBearer = ErrInvalidToken.WithMessage("refresh token cannot be used as a bearer token")

// requireStored fails with InvalidToken once jti has been revoked or evicted.
func requireStored(ctx context.Context, sess *session.Session, jti string) error {
	state, err := sess.GetTokenState(ctx)
	if err != nil {
		return err
	}
	if _, ok := state.TokenMap[jti]; !ok {
		return ErrInvalidToken.WithMessage("refresh token revoked")
	}
	return nil
}

// GetUserInfo resolves the user claims an access token grants.
func (s *Service) GetUserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	claims, err := s.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	persona, err := s.GetPersonaData(ctx, claims.Subject, claims.ClientID())
	if err != nil {
		return nil, err
	}
	resolved, err := s.Claims.Resolve(ctx, claims.Subject, claims.ClientID(), claims.Scopes(), persona)
	if err != nil {
		return nil, mapError(err)
	}
	if !resolved.Valid() {
		return nil, ErrUnauthorized.WithMessage("authorized data error, re-authorization by user required")
	}

	out := resolved.UserClaims()
	out["sub"] = claims.Subject
	return out, nil
}
