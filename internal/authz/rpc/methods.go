package rpc

import (
	"context"
	"encoding/json"

	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/internal/authz/service"
	"github.com/aussiebroadwan/authz/pkg/httpx"
)

type identityParams struct {
	Identity string `json:"identity,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}

type clientParams struct {
	ClientID string `json:"clientId,omitempty"`
}

type appDataParams struct {
	AppData domain.AppData `json:"appData"`
}

type externalAppDataParams struct {
	Data json.RawMessage `json:"data"`
}

type userInfoParams struct {
	AccessToken string `json:"accessToken"`
}

type okResult struct {
	OK bool `json:"ok"`
}

// NewHandler builds the method table for svc.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{methods: map[string]method{
		"authorize": bind(func(ctx context.Context, p service.AuthorizeRequest) (any, error) {
			return svc.Authorize(ctx, p)
		}),
		"preauthorize": bind(func(ctx context.Context, p service.AuthorizeRequest) (any, error) {
			return svc.Preauthorize(ctx, p)
		}),
		"exchangeToken": bind(func(ctx context.Context, p service.ExchangeTokenRequest) (any, error) {
			return svc.ExchangeToken(ctx, p)
		}),
		"verifyToken": bind(func(ctx context.Context, p service.VerifyTokenRequest) (any, error) {
			return svc.VerifyToken(ctx, p)
		}),
		"revokeToken": bind(func(ctx context.Context, p service.RevokeTokenRequest) (any, error) {
			if err := svc.RevokeToken(ctx, p); err != nil {
				return nil, err
			}
			return okResult{OK: true}, nil
		}),
		"revokeAppAuthorization": bind(func(ctx context.Context, p clientParams) (any, error) {
			identity, clientID, err := caller(ctx)
			if err != nil {
				return nil, err
			}
			if p.ClientID != "" {
				clientID = p.ClientID
			}
			if err := svc.RevokeAppAuthorization(ctx, identity, clientID); err != nil {
				return nil, err
			}
			return okResult{OK: true}, nil
		}),
		"getUserInfo": bind(func(ctx context.Context, p userInfoParams) (any, error) {
			token := p.AccessToken
			if token == "" {
				token = bearerFromContext(ctx)
			}
			return svc.GetUserInfo(ctx, token)
		}),
		"getPersonaData": bind(func(ctx context.Context, p identityParams) (any, error) {
			identity, clientID := resolveTarget(ctx, p)
			return svc.GetPersonaData(ctx, identity, clientID)
		}),
		"getAuthorizedAppScopes": bind(func(ctx context.Context, p identityParams) (any, error) {
			identity, clientID := resolveTarget(ctx, p)
			return svc.GetAuthorizedAppScopes(ctx, identity, clientID)
		}),
		"setAppData": bind(func(ctx context.Context, p appDataParams) (any, error) {
			identity, clientID, err := caller(ctx)
			if err != nil {
				return nil, err
			}
			if err := svc.SetAppData(ctx, identity, clientID, p.AppData); err != nil {
				return nil, err
			}
			return okResult{OK: true}, nil
		}),
		"getAppData": bind(func(ctx context.Context, _ struct{}) (any, error) {
			identity, clientID, err := caller(ctx)
			if err != nil {
				return nil, err
			}
			return svc.GetAppData(ctx, identity, clientID)
		}),
		"setExternalAppData": bind(func(ctx context.Context, p externalAppDataParams) (any, error) {
			identity, clientID, err := caller(ctx)
			if err != nil {
				return nil, err
			}
			if err := svc.SetExternalAppData(ctx, identity, clientID, p.Data); err != nil {
				return nil, err
			}
			return okResult{OK: true}, nil
		}),
		"getExternalAppData": bind(func(ctx context.Context, _ struct{}) (any, error) {
			identity, clientID, err := caller(ctx)
			if err != nil {
				return nil, err
			}
			return svc.GetExternalAppData(ctx, identity, clientID)
		}),
		"getJWKS": bind(func(ctx context.Context, _ struct{}) (any, error) {
			return svc.GetJWKS(), nil
		}),
	}}
}

// caller returns the identity and client of the verified bearer token.
func caller(ctx context.Context) (identity, clientID string, err error) {
	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		return "", "", service.ErrUnauthorized.WithMessage("bearer token required")
	}
	return claims.Subject, claims.ClientID(), nil
}

// resolveTarget pins the identity to the bearer subject when a token was
// presented. Anonymous callers name both explicitly.
func resolveTarget(ctx context.Context, p identityParams) (identity, clientID string) {
	identity, clientID = p.Identity, p.ClientID
	if sub := httpx.SubjectFromContext(ctx); sub != "" {
		identity = sub
		if clientID == "" {
			clientID = httpx.ClientIDFromContext(ctx)
		}
	}
	return identity, clientID
}

type bearerKey struct{}

func withBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

func bearerFromContext(ctx context.Context) string {
	s, _ := ctx.Value(bearerKey{}).(string)
	return s
}
