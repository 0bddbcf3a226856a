package domain

import (
	"slices"
	"strings"
)

// Scope names understood by the claim resolver.
const (
	ScopeOpenID            = "openid"
	ScopeProfile           = "profile"
	ScopeEmail             = "email"
	ScopeConnectedAccounts = "connected_accounts"
	ScopeERC4337           = "erc_4337"
	ScopeSystemIdentifiers = "system_identifiers"

	// ScopeAdmin marks internal console authorizations. Analytics are not
	// emitted for them.
	ScopeAdmin = "admin"
)

// ScopeInfo describes one registered scope.
type ScopeInfo struct {
	Name        string
	Description string
	// Hidden scopes are granted without user consent.
	Hidden bool
}

// Scopes is the registry of known scopes, resolved once at startup.
var Scopes = map[string]ScopeInfo{
	ScopeOpenID:            {Name: ScopeOpenID, Description: "Authenticate with your identity", Hidden: true},
	ScopeSystemIdentifiers: {Name: ScopeSystemIdentifiers, Description: "Read system identifiers", Hidden: true},
	ScopeProfile:           {Name: ScopeProfile, Description: "Read your basic profile"},
	ScopeEmail:             {Name: ScopeEmail, Description: "Read the email address you choose"},
	ScopeConnectedAccounts: {Name: ScopeConnectedAccounts, Description: "Read the accounts you choose"},
	ScopeERC4337:           {Name: ScopeERC4337, Description: "Use smart contract wallets you choose"},
	ScopeAdmin:             {Name: ScopeAdmin, Description: "Administer the application"},
}

// IsHidden reports whether name is a registered hidden scope.
func IsHidden(name string) bool {
	info, ok := Scopes[name]
	return ok && info.Hidden
}

// AllHidden reports whether every scope in scope is hidden. An empty list is
// not considered hidden.
func AllHidden(scope []string) bool {
	if len(scope) == 0 {
		return false
	}
	for _, s := range scope {
		if !IsHidden(s) {
			return false
		}
	}
	return true
}

// IsSuperset reports whether have contains every scope in want.
func IsSuperset(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[s] = struct{}{}
	}
	for _, s := range want {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// ParseScope splits a space-delimited wire scope. Empty input yields an
// empty, non-nil slice.
func ParseScope(s string) []string {
	fields := strings.Fields(s)
	if fields == nil {
		return []string{}
	}
	return fields
}

// FormatScope joins scope for the wire.
func FormatScope(scope []string) string {
	return strings.Join(scope, " ")
}

// UnionScope returns the de-duplicated union of the given lists, in first
// seen order.
func UnionScope(lists ...[]string) []string {
	out := []string{}
	for _, l := range lists {
		for _, s := range l {
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}
