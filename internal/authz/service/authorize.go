package service

import (
	"context"
	"slices"

	"github.com/aussiebroadwan/authz/internal/authz/analytics"
	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/internal/authz/exchangecode"
	"github.com/aussiebroadwan/authz/internal/authz/session"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

type AuthorizeRequest struct {
	Identity     string             `json:"identity"`
	ResponseType string             `json:"responseType"`
	ClientID     string             `json:"clientId"`
	RedirectURI  string             `json:"redirectUri"`
	Scope        []string           `json:"scope"`
	PersonaData  domain.PersonaData `json:"personaData,omitempty"`
	State        string             `json:"state"`
}

type AuthorizeResult struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type PreauthorizeResult struct {
	Preauthorized bool   `json:"preauthorized"`
	Code          string `json:"code,omitempty"`
	State         string `json:"state,omitempty"`
}

// Authorize issues a one-time code for the identity's consent to the
// requested scope. Scope eligibility is checked by the caller.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	identity, err := normalizeIdentity(req.Identity)
	if err != nil {
		return AuthorizeResult{}, err
	}
	if req.ClientID == "" {
		return AuthorizeResult{}, ErrMissingClientID
	}
	if len(req.PersonaData) > 0 {
		if err := s.Claims.ValidatePersonaData(ctx, identity, req.PersonaData); err != nil {
			return AuthorizeResult{}, mapError(err)
		}
	}

	code, err := cryptox.GenerateHexToken(cryptox.TokenSize192)
	if err != nil {
		return AuthorizeResult{}, err
	}
	code, state, err := s.Codes.Authorize(ctx, exchangecode.AuthorizeParams{
		Code:         code,
		Identity:     identity,
		ResponseType: req.ResponseType,
		ClientID:     req.ClientID,
		RedirectURI:  req.RedirectURI,
		Scope:        req.Scope,
		State:        req.State,
		PersonaData:  req.PersonaData,
	})
	if err != nil {
		return AuthorizeResult{}, mapError(err)
	}
	s.Metrics.CodeIssued()

	if !slices.Contains(req.Scope, domain.ScopeAdmin) {
		s.emit(analytics.EventAppAuthorized, identity, req.ClientID)
	}
	return AuthorizeResult{Code: code, State: state}, nil
}

// Preauthorize skips the consent screen when the identity already holds a
// refresh token whose scope covers the request, or when only hidden scopes
// are requested. In that case a code is issued right away, carrying the
// persona data stored for the session.
func (s *Service) Preauthorize(ctx context.Context, req AuthorizeRequest) (PreauthorizeResult, error) {
	identity, err := s.Directory.ForwardIdentity(ctx, req.Identity)
	if err != nil {
		return PreauthorizeResult{}, mapError(err)
	}

	preauthorized := domain.AllHidden(req.Scope)
	var persona domain.PersonaData
	err = s.withSession(ctx, identity, req.ClientID, func(ctx context.Context, sess *session.Session) error {
		state, err := sess.GetTokenState(ctx)
		if err != nil {
			return err
		}
		for _, jti := range state.TokenIndex {
			if domain.IsSuperset(state.TokenMap[jti].Scope, req.Scope) {
				slogx.FromContext(ctx).Debug("preauthorizing from stored scope",
					"client_id", req.ClientID,
					"requested", req.Scope,
					"stored", state.TokenMap[jti].Scope,
				)
				preauthorized = true
				break
			}
		}
		if !preauthorized {
			return nil
		}
		persona, err = sess.PersonaData(ctx)
		return err
	})
	if err != nil {
		return PreauthorizeResult{}, mapError(err)
	}
	if !preauthorized {
		return PreauthorizeResult{Preauthorized: false}, nil
	}

	req.Identity = identity
	if len(persona) > 0 {
		req.PersonaData = persona
	}
	res, err := s.Authorize(ctx, req)
	if err != nil {
		return PreauthorizeResult{}, err
	}
	return PreauthorizeResult{Preauthorized: true, Code: res.Code, State: res.State}, nil
}
