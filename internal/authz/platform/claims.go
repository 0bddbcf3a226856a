package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

var (
	ErrInvalidPersonaData = errors.New("platform: invalid persona data")
	ErrAccountNotOwned    = errors.New("platform: account does not belong to identity")
)

type retriever func(ctx context.Context, identity string, persona domain.PersonaData) (domain.ScopeClaims, error)

// ClaimResolver turns scopes into user claims using the directory and the
// persona data the user chose for the app.
type ClaimResolver struct {
	Directory  *Directory
	retrievers map[string]retriever
}

// NewClaimResolver returns a resolver reading from dir.
func NewClaimResolver(dir *Directory) *ClaimResolver {
	r := &ClaimResolver{Directory: dir}
	r.retrievers = map[string]retriever{
		domain.ScopeProfile:           r.profile,
		domain.ScopeEmail:             r.email,
		domain.ScopeConnectedAccounts: r.connectedAccounts,
		domain.ScopeERC4337:           r.erc4337,
	}
	return r
}

// Resolve returns the claims of every scope that has a retriever. A scope
// whose claims cannot be resolved, for example because the user disconnected
// an account they had shared, is marked invalid rather than failing the
// whole call.
func (r *ClaimResolver) Resolve(ctx context.Context, identity, clientID string, scope []string, persona domain.PersonaData) (domain.ClaimData, error) {
	out := domain.ClaimData{}
	if persona == nil {
		persona = domain.PersonaData{}
	}
	for _, s := range scope {
		fn, ok := r.retrievers[s]
		if !ok {
			continue
		}
		claims, err := fn(ctx, identity, persona)
		if err != nil {
			slogx.FromContext(ctx).Info("claim retrieval failed",
				"scope", s, "client_id", clientID, "error", err)
			out[s] = domain.InvalidScopeClaims()
			continue
		}
		out[s] = claims
	}
	return out, nil
}

func (r *ClaimResolver) profile(ctx context.Context, identity string, _ domain.PersonaData) (domain.ScopeClaims, error) {
	p, err := r.Directory.Profile(ctx, identity)
	if err != nil {
		return domain.ScopeClaims{}, err
	}
	return domain.ScopeClaims{
		Claims: map[string]any{"name": p.Name, "picture": p.Picture},
		Meta:   domain.ClaimMeta{URNs: []string{p.URN}, Valid: true},
	}, nil
}

func (r *ClaimResolver) email(ctx context.Context, identity string, persona domain.PersonaData) (domain.ScopeClaims, error) {
	urn, ok := persona.String(domain.ScopeEmail)
	if !ok || urn == "" {
		return domain.ScopeClaims{}, ErrInvalidPersonaData
	}
	acct, err := r.owned(ctx, identity, urn)
	if err != nil {
		return domain.ScopeClaims{}, err
	}
	typ := acct.Type
	if typ == domain.AccountMask {
		typ = domain.AccountEmail
	}
	return domain.ScopeClaims{
		Claims: map[string]any{"email": acct.Alias, "type": typ},
		Meta:   domain.ClaimMeta{URNs: []string{urn}, Valid: true},
	}, nil
}

func (r *ClaimResolver) connectedAccounts(ctx context.Context, identity string, persona domain.PersonaData) (domain.ScopeClaims, error) {
	return r.accountList(ctx, identity, persona, domain.ScopeConnectedAccounts, func(a domain.Account) bool {
		return a.Type != domain.AccountWallet && a.Type != domain.AccountMask
	}, func(a domain.Account) map[string]any {
		return map[string]any{"type": a.Type, "identifier": a.Alias}
	})
}

func (r *ClaimResolver) erc4337(ctx context.Context, identity string, persona domain.PersonaData) (domain.ScopeClaims, error) {
	return r.accountList(ctx, identity, persona, domain.ScopeERC4337, func(a domain.Account) bool {
		return a.Type == domain.AccountWallet
	}, func(a domain.Account) map[string]any {
		return map[string]any{"nickname": a.Nickname, "address": a.Alias}
	})
}

// accountList resolves a scope whose persona value is either SelectionAll or
// an explicit list of account URNs.
func (r *ClaimResolver) accountList(
	ctx context.Context,
	identity string,
	persona domain.PersonaData,
	scope string,
	include func(domain.Account) bool,
	format func(domain.Account) map[string]any,
) (domain.ScopeClaims, error) {
	var accounts []domain.Account

	if sel, ok := persona.String(scope); ok {
		if sel != domain.SelectionAll {
			return domain.ScopeClaims{}, ErrInvalidPersonaData
		}
		all, err := r.Directory.Accounts(ctx, identity)
		if err != nil {
			return domain.ScopeClaims{}, err
		}
		for _, a := range all {
			if include(a) {
				accounts = append(accounts, a)
			}
		}
	} else {
		urns, ok := persona.Strings(scope)
		if !ok {
			return domain.ScopeClaims{}, ErrInvalidPersonaData
		}
		for _, urn := range urns {
			a, err := r.owned(ctx, identity, urn)
			if err != nil {
				return domain.ScopeClaims{}, err
			}
			accounts = append(accounts, a)
		}
	}

	values := make([]map[string]any, 0, len(accounts))
	urns := make([]string, 0, len(accounts))
	for _, a := range accounts {
		values = append(values, format(a))
		urns = append(urns, a.URN)
	}
	return domain.ScopeClaims{
		Claims: map[string]any{scope: values},
		Meta:   domain.ClaimMeta{URNs: urns, Valid: true},
	}, nil
}

func (r *ClaimResolver) owned(ctx context.Context, identity, accountURN string) (domain.Account, error) {
	owner, err := normalizeIdentity(identity)
	if err != nil {
		return domain.Account{}, err
	}
	a, got, ok := r.Directory.Account(ctx, accountURN)
	if !ok || got != owner {
		return domain.Account{}, fmt.Errorf("%w: %s", ErrAccountNotOwned, accountURN)
	}
	return a, nil
}

// ValidatePersonaData checks the persona choices made during authorization:
// every referenced account must exist and belong to identity, and the email
// account must be able to carry an email address.
func (r *ClaimResolver) ValidatePersonaData(ctx context.Context, identity string, persona domain.PersonaData) error {
	for scope := range persona {
		switch scope {
		case domain.ScopeEmail:
			urn, ok := persona.String(scope)
			if !ok {
				return fmt.Errorf("%w: email", ErrInvalidPersonaData)
			}
			a, err := r.owned(ctx, identity, urn)
			if err != nil {
				return err
			}
			if !a.IsEmail() {
				return fmt.Errorf("%w: %s is not an email account", ErrInvalidPersonaData, urn)
			}
		case domain.ScopeConnectedAccounts, domain.ScopeERC4337:
			if sel, ok := persona.String(scope); ok && sel == domain.SelectionAll {
				continue
			}
			urns, ok := persona.Strings(scope)
			if !ok {
				return fmt.Errorf("%w: %s", ErrInvalidPersonaData, scope)
			}
			for _, urn := range urns {
				if _, err := r.owned(ctx, identity, urn); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// References lists the account URNs a set of persona choices points at, for
// recording reference edges from the authorization node.
func (r *ClaimResolver) References(scope []string, persona domain.PersonaData) []string {
	var refs []string
	for _, s := range scope {
		switch s {
		case domain.ScopeEmail:
			if urn, ok := persona.String(s); ok && urn != "" {
				refs = domain.UnionScope(refs, []string{urn})
			}
		case domain.ScopeConnectedAccounts, domain.ScopeERC4337:
			if urns, ok := persona.Strings(s); ok {
				refs = domain.UnionScope(refs, urns)
			}
		}
	}
	return refs
}
