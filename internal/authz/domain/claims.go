package domain

import "slices"

// ClaimMeta records where a scope's claims came from and whether the consent
// behind them still holds.
type ClaimMeta struct {
	URNs  []string `json:"urns"`
	Valid bool     `json:"valid"`
}

// ScopeClaims are the resolved claims of one scope.
type ScopeClaims struct {
	Claims map[string]any `json:"claims"`
	Meta   ClaimMeta      `json:"meta"`
}

// InvalidScopeClaims marks a scope whose claims could not be resolved.
func InvalidScopeClaims() ScopeClaims {
	return ScopeClaims{Claims: map[string]any{}, Meta: ClaimMeta{URNs: []string{}, Valid: false}}
}

// ClaimData maps scope name to its resolved claims.
type ClaimData map[string]ScopeClaims

// Valid reports whether every resolved scope is still valid.
func (d ClaimData) Valid() bool {
	for _, c := range d {
		if !c.Meta.Valid {
			return false
		}
	}
	return true
}

// UserClaims flattens the claims of every scope, or of only the scopes in
// include when it is non-empty.
func (d ClaimData) UserClaims(include ...string) map[string]any {
	out := map[string]any{}
	for scope, c := range d {
		if len(include) > 0 && !slices.Contains(include, scope) {
			continue
		}
		for k, v := range c.Claims {
			out[k] = v
		}
	}
	return out
}
