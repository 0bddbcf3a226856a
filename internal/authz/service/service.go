// Package service orchestrates the authorization core: it issues codes,
// exchanges them for tokens, verifies and revokes tokens, and manages the
// app scoped data held by each authorization session.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aussiebroadwan/authz/internal/authz/analytics"
	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/internal/authz/exchangecode"
	"github.com/aussiebroadwan/authz/internal/authz/metrics"
	"github.com/aussiebroadwan/authz/internal/authz/platform"
	"github.com/aussiebroadwan/authz/internal/authz/session"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// ClientValidator checks client credentials.
type ClientValidator interface {
	CheckAppAuth(ctx context.Context, clientID, secret string) (bool, error)
}

// EdgeService stores the authorization graph.
type EdgeService interface {
	MakeEdge(ctx context.Context, e domain.Edge) error
	RemoveEdge(ctx context.Context, e domain.Edge) error
	Edges(ctx context.Context, q domain.EdgeQuery) ([]domain.Edge, error)
	DeleteNode(ctx context.Context, urn string) error
}

// IdentityDirectory looks up identities and their accounts.
type IdentityDirectory interface {
	ForwardIdentity(ctx context.Context, identity string) (string, error)
	Accounts(ctx context.Context, identity string) ([]domain.Account, error)
}

// ClaimResolver turns scopes and persona data into user claims.
type ClaimResolver interface {
	Resolve(ctx context.Context, identity, clientID string, scope []string, persona domain.PersonaData) (domain.ClaimData, error)
	ValidatePersonaData(ctx context.Context, identity string, persona domain.PersonaData) error
	References(scope []string, persona domain.PersonaData) []string
}

// UsageGate meters external data access.
type UsageGate interface {
	Check(ctx context.Context, kind platform.UsageKind, identity, clientID string) error
}

// Paymaster revokes sponsored smart wallet session keys.
type Paymaster interface {
	Enabled(ctx context.Context, clientID string) bool
	RevokeSessionKeys(ctx context.Context, clientID string, keys []domain.SessionKey) error
}

// Service is the authorization core. Codes, Sessions, Keys and the
// collaborators are required; Usage, Analytics and Metrics may be nil.
type Service struct {
	Codes    *exchangecode.Node
	Sessions *session.Node
	Keys     *jwtx.SigningKeySet

	// Issuer is used when a request does not name one.
	Issuer string

	AccessTTL         time.Duration
	AuthenticationTTL time.Duration
	RefreshTTL        time.Duration

	Clients   ClientValidator
	Edges     EdgeService
	Directory IdentityDirectory
	Claims    ClaimResolver
	Usage     UsageGate
	Paymaster Paymaster
	Analytics analytics.Emitter
	Metrics   *metrics.Metrics
}

func (s *Service) issuer(requested string) string {
	if requested != "" {
		return requested
	}
	return s.Issuer
}

func (s *Service) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *Service) authenticationTTL() time.Duration {
	if s.AuthenticationTTL > 0 {
		return s.AuthenticationTTL
	}
	return jwtx.DefaultAuthenticationTokenTTL
}

func (s *Service) emit(name, identity, clientID string) {
	if s.Analytics == nil {
		return
	}
	s.Analytics.Emit(analytics.Event{
		Name:       name,
		DistinctID: identity,
		Groups:     map[string]string{"app": clientID},
	})
}

func (s *Service) checkClient(ctx context.Context, clientID, secret string) error {
	ok, err := s.Clients.CheckAppAuth(ctx, clientID, secret)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidClientCredentials
	}
	return nil
}

func normalizeIdentity(identity string) (string, error) {
	id, err := domain.DecodeIdentity(identity)
	if err != nil {
		return "", ErrMissingIdentityName
	}
	return domain.IdentityURN(id), nil
}

// GetJWKS returns the public half of every configured signing key.
func (s *Service) GetJWKS() jwtx.JWKS {
	return s.Keys.KeySet().PublicJWKS()
}

// withSession runs fn on the session of identity and clientID.
func (s *Service) withSession(ctx context.Context, identity, clientID string, fn func(ctx context.Context, sess *session.Session) error) error {
	if clientID == "" {
		return ErrMissingClientID
	}
	name, err := domain.SessionName(identity, clientID)
	if err != nil {
		return ErrMissingIdentityName
	}
	return s.Sessions.Do(ctx, name, fn)
}

// rawOrNull keeps JSON results well formed when nothing is stored.
func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
