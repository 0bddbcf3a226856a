package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aussiebroadwan/authz/internal/authz/analytics"
	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/internal/authz/platform"
	"github.com/aussiebroadwan/authz/internal/authz/session"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

type AuthorizedAppScopes struct {
	Scopes      []string         `json:"scopes"`
	ClaimValues domain.ClaimData `json:"claimValues"`
}

// RevokeAppAuthorization removes everything an app holds for an identity:
// the authorization edges, the persona references, sponsored session keys
// and the session itself.
func (s *Service) RevokeAppAuthorization(ctx context.Context, identity, clientID string) error {
	l := slogx.FromContext(ctx)

	identity, err := normalizeIdentity(identity)
	if err != nil {
		return err
	}
	if clientID == "" {
		return ErrMissingClientID
	}
	authzURN, err := domain.AuthorizationURN(identity, clientID)
	if err != nil {
		return mapError(err)
	}

	edges, err := s.Edges.Edges(ctx, domain.EdgeQuery{Src: identity, Dst: authzURN, Tag: domain.EdgeAuthorizes})
	if err != nil {
		return err
	}
	if len(edges) == 0 {
		l.Warn("no authorization edge found", "client_id", clientID, "identity", identity)
	}
	for _, e := range edges {
		if err := s.Edges.RemoveEdge(ctx, e); err != nil {
			return err
		}
	}

	accounts, err := s.Directory.Accounts(ctx, identity)
	if err != nil && !errors.Is(err, platform.ErrUnknownIdentity) {
		return err
	}
	for _, a := range accounts {
		if err := s.Edges.RemoveEdge(ctx, domain.Edge{Src: authzURN, Dst: a.URN, Tag: domain.EdgeHasReferenceTo}); err != nil {
			return err
		}
	}
	if err := s.Edges.DeleteNode(ctx, authzURN); err != nil {
		return err
	}

	err = s.withSession(ctx, identity, clientID, func(ctx context.Context, sess *session.Session) error {
		appData, found, err := sess.AppData(ctx)
		if err != nil {
			return err
		}
		if found && len(appData.SmartWalletSessionKeys) > 0 && s.Paymaster != nil && s.Paymaster.Enabled(ctx, clientID) {
			if err := s.Paymaster.RevokeSessionKeys(ctx, clientID, appData.SmartWalletSessionKeys); err != nil {
				return err
			}
		}
		return sess.DeleteAll(ctx)
	})
	if err != nil {
		return mapError(err)
	}

	s.Metrics.Revoked()
	s.emit(analytics.EventIdentityRevokedAuthorization, identity, clientID)
	return nil
}

// GetPersonaData returns the persona data stored for identity and clientID.
func (s *Service) GetPersonaData(ctx context.Context, identity, clientID string) (domain.PersonaData, error) {
	var p domain.PersonaData
	err := s.withSession(ctx, identity, clientID, func(ctx context.Context, sess *session.Session) error {
		var err error
		p, err = sess.PersonaData(ctx)
		return err
	})
	return p, mapError(err)
}

func (s *Service) SetAppData(ctx context.Context, identity, clientID string, data domain.AppData) error {
	return mapError(s.withSession(ctx, identity, clientID, func(ctx context.Context, sess *session.Session) error {
		return sess.SetAppData(ctx, data)
	}))
}

// GetAppData returns nil when the app never stored anything.
func (s *Service) GetAppData(ctx context.Context, identity, clientID string) (*domain.AppData, error) {
	var out *domain.AppData
	err := s.withSession(ctx, identity, clientID, func(ctx context.Context, sess *session.Session) error {
		data, found, err := sess.AppData(ctx)
		if err != nil || !found {
			return err
		}
		out = &data
		return nil
	})
	return out, mapError(err)
}

func (s *Service) meter(ctx context.Context, kind platform.UsageKind, identity, clientID string) error {
	if s.Usage == nil {
		return nil
	}
	return mapError(s.Usage.Check(ctx, kind, identity, clientID))
}

// SetExternalAppData stores an app writable JSON document. Writes are
// metered per identity and app.
func (s *Service) SetExternalAppData(ctx context.Context, identity, clientID string, data json.RawMessage) error {
	if err := s.meter(ctx, platform.UsageExternalDataWrite, identity, clientID); err != nil {
		return err
	}
	err := s.withSession(ctx, identity, clientID, func(ctx context.Context, sess *session.Session) error {
		if err := sess.SetExternalAppData(ctx, data); err != nil {
			return ErrBadRequest.WithMessage(err.Error())
		}
		return nil
	})
	return mapError(err)
}

// GetExternalAppData returns the stored document, or JSON null.
func (s *Service) GetExternalAppData(ctx context.Context, identity, clientID string) (json.RawMessage, error) {
	if err := s.meter(ctx, platform.UsageExternalDataRead, identity, clientID); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	err := s.withSession(ctx, identity, clientID, func(ctx context.Context, sess *session.Session) error {
		var err error
		raw, err = sess.ExternalAppData(ctx)
		return err
	})
	if err != nil {
		return nil, mapError(err)
	}
	return rawOrNull(raw), nil
}

// GetAuthorizedAppScopes lists every scope the identity has granted the app
// through its stored refresh tokens, together with the current claim values.
func (s *Service) GetAuthorizedAppScopes(ctx context.Context, identity, clientID string) (AuthorizedAppScopes, error) {
	var (
		scopes  []string
		persona domain.PersonaData
	)
	err := s.withSession(ctx, identity, clientID, func(ctx context.Context, sess *session.Session) error {
		state, err := sess.GetTokenState(ctx)
		if err != nil {
			return err
		}
		lists := make([][]string, 0, len(state.TokenIndex))
		for _, jti := range state.TokenIndex {
			lists = append(lists, state.TokenMap[jti].Scope)
		}
		scopes = domain.UnionScope(lists...)
		persona, err = sess.PersonaData(ctx)
		return err
	})
	if err != nil {
		return AuthorizedAppScopes{}, mapError(err)
	}

	claims, err := s.Claims.Resolve(ctx, identity, clientID, scopes, persona)
	if err != nil {
		return AuthorizedAppScopes{}, mapError(err)
	}
	return AuthorizedAppScopes{Scopes: scopes, ClaimValues: claims}, nil
}
