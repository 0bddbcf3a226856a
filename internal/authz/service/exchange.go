package service

import (
	"context"

	"github.com/aussiebroadwan/authz/internal/authz/analytics"
	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/internal/authz/metrics"
	"github.com/aussiebroadwan/authz/internal/authz/session"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

type ExchangeTokenRequest struct {
	GrantType    domain.GrantType `json:"grantType"`
	Code         string           `json:"code,omitempty"`
	RefreshToken string           `json:"refreshToken,omitempty"`
	ClientID     string           `json:"clientId"`
	ClientSecret string           `json:"clientSecret,omitempty"`
	Issuer       string           `json:"issuer,omitempty"`
}

// ExchangeToken redeems a code or refresh token according to the grant type.
func (s *Service) ExchangeToken(ctx context.Context, req ExchangeTokenRequest) (domain.TokenSet, error) {
	var (
		set      domain.TokenSet
		identity string
		err      error
	)
	switch req.GrantType {
	case domain.GrantAuthenticationCode:
		set, identity, err = s.exchangeAuthenticationCode(ctx, req)
	case domain.GrantAuthorizationCode:
		set, identity, err = s.exchangeAuthorizationCode(ctx, req)
	case domain.GrantRefreshToken:
		set, identity, err = s.exchangeRefreshToken(ctx, req)
	default:
		return domain.TokenSet{}, ErrUnsupportedGrantType
	}
	if err != nil {
		slogx.FromContext(ctx).Info("token exchange failed",
			"grant_type", req.GrantType,
			"client_id", req.ClientID,
			"error", err,
		)
		return domain.TokenSet{}, mapError(err)
	}

	s.emit(analytics.EventAppExchangedPrefix+req.GrantType.AnalyticsSuffix(), identity, req.ClientID)
	return set, nil
}

// exchangeAuthenticationCode establishes a first party session. No client
// secret is involved and only an access token is issued.
func (s *Service) exchangeAuthenticationCode(ctx context.Context, req ExchangeTokenRequest) (domain.TokenSet, string, error) {
	rec, err := s.Codes.Exchange(ctx, req.Code, req.ClientID)
	if err != nil {
		return domain.TokenSet{}, "", err
	}

	var set domain.TokenSet
	err = s.withSession(ctx, rec.Identity, domain.AuthenticationRealm, func(ctx context.Context, sess *session.Session) error {
		if err := sess.SetOwner(ctx, rec.Identity, domain.AuthenticationRealm); err != nil {
			return err
		}
		token, err := sess.GenerateAccessToken(ctx, session.TokenOptions{
			Issuer:   s.issuer(req.Issuer),
			Identity: rec.Identity,
			ClientID: req.ClientID,
			Scope:    rec.Scope,
			TTL:      s.authenticationTTL(),
		})
		set.AccessToken = token
		return err
	})
	if err != nil {
		return domain.TokenSet{}, "", err
	}
	s.Metrics.Token(metrics.TokenAccess)
	return set, rec.Identity, nil
}

// exchangeAuthorizationCode completes a third party authorization: it merges
// the persona data, records the graph edges and issues access, refresh and
// ID tokens.
func (s *Service) exchangeAuthorizationCode(ctx context.Context, req ExchangeTokenRequest) (domain.TokenSet, string, error) {
	if err := s.checkClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return domain.TokenSet{}, "", err
	}

	rec, err := s.Codes.Exchange(ctx, req.Code, req.ClientID)
	if err != nil {
		return domain.TokenSet{}, "", err
	}
	authzURN, err := domain.AuthorizationURN(rec.Identity, req.ClientID)
	if err != nil {
		return domain.TokenSet{}, "", err
	}

	var persona domain.PersonaData
	err = s.withSession(ctx, rec.Identity, req.ClientID, func(ctx context.Context, sess *session.Session) error {
		existing, err := sess.PersonaData(ctx)
		if err != nil {
			return err
		}
		persona = existing.Merge(rec.PersonaData)
		if err := sess.SetOwner(ctx, rec.Identity, req.ClientID); err != nil {
			return err
		}
		return sess.SetPersonaData(ctx, persona)
	})
	if err != nil {
		return domain.TokenSet{}, "", err
	}

	if err := s.Edges.MakeEdge(ctx, domain.Edge{Src: rec.Identity, Dst: authzURN, Tag: domain.EdgeAuthorizes}); err != nil {
		return domain.TokenSet{}, "", err
	}
	for _, ref := range s.Claims.References(rec.Scope, persona) {
		if err := s.Edges.MakeEdge(ctx, domain.Edge{Src: authzURN, Dst: ref, Tag: domain.EdgeHasReferenceTo}); err != nil {
			return domain.TokenSet{}, "", err
		}
	}

	claims, err := s.Claims.Resolve(ctx, rec.Identity, req.ClientID, rec.Scope, persona)
	if err != nil {
		return domain.TokenSet{}, "", err
	}
	if !claims.Valid() {
		return domain.TokenSet{}, "", ErrUnauthorized.WithMessage("authorized data error, re-authorization by user required")
	}

	opts := session.TokenOptions{
		Issuer:   s.issuer(req.Issuer),
		Identity: rec.Identity,
		ClientID: req.ClientID,
		Scope:    rec.Scope,
	}
	var set domain.TokenSet
	err = s.withSession(ctx, rec.Identity, req.ClientID, func(ctx context.Context, sess *session.Session) error {
		var err error
		access := opts
		access.TTL = s.accessTTL()
		if set.AccessToken, err = sess.GenerateAccessToken(ctx, access); err != nil {
			return err
		}
		refresh := opts
		refresh.TTL = s.RefreshTTL
		if set.RefreshToken, err = sess.GenerateRefreshToken(ctx, refresh); err != nil {
			return err
		}
		if set.IDToken, err = sess.GenerateIDToken(ctx, access, claims.UserClaims(domain.ScopeProfile)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return domain.TokenSet{}, "", err
	}
	s.Metrics.Token(metrics.TokenAccess)
	s.Metrics.Token(metrics.TokenRefresh)
	s.Metrics.Token(metrics.TokenID)
	return set, rec.Identity, nil
}

// exchangeRefreshToken mints a new access token from a stored refresh token.
// The refresh token itself is not rotated.
func (s *Service) exchangeRefreshToken(ctx context.Context, req ExchangeTokenRequest) (domain.TokenSet, string, error) {
	if err := s.checkClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return domain.TokenSet{}, "", err
	}

	unverified, err := jwtx.DecodeUnverified(req.RefreshToken)
	if err != nil {
		return domain.TokenSet{}, "", err
	}
	if unverified.ClientID() != req.ClientID {
		return domain.TokenSet{}, "", ErrMismatchClientID
	}
	if unverified.Subject == "" {
		return domain.TokenSet{}, "", ErrMissingSubject
	}
	identity := unverified.Subject

	var set domain.TokenSet
	err = s.withSession(ctx, identity, req.ClientID, func(ctx context.Context, sess *session.Session) error {
		claims, err := sess.Verify(ctx, req.RefreshToken, s.Keys.KeySet(), jwtx.VerifyOptions{Audience: req.ClientID})
		s.Metrics.Verification(err == nil)
		if err != nil {
			return err
		}
		if err := requireStored(ctx, sess, claims.ID); err != nil {
			return err
		}

		set.AccessToken, err = sess.GenerateAccessToken(ctx, session.TokenOptions{
			Issuer:   s.issuer(req.Issuer),
			Identity: identity,
			ClientID: req.ClientID,
			Scope:    claims.Scopes(),
			TTL:      s.accessTTL(),
		})
		return err
	})
	if err != nil {
		return domain.TokenSet{}, "", err
	}
	s.Metrics.Token(metrics.TokenAccess)
	return set, identity, nil
}
