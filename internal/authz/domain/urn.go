package domain

import (
	"errors"
	"strings"
)

// URN prefixes.
const (
	IdentityURNPrefix      = "urn:rollupid:identity/"
	AccountURNPrefix       = "urn:rollupid:account/"
	AuthorizationURNPrefix = "urn:rollupid:authorization/"
)

// Edge tags used in the graph service.
const (
	EdgeAuthorizes      = "urn:rollupid:edge-tag:authorizes"
	EdgeHasReferenceTo  = "urn:rollupid:edge-tag:has-reference-to"
	EdgeHasAccount      = "urn:rollupid:edge-tag:has-account"
	AuthenticationRealm = "rollup"
)

var ErrInvalidURN = errors.New("domain: invalid urn")

// DecodeIdentity returns the id part of an identity URN. Plain ids without
// the prefix are accepted as is.
func DecodeIdentity(urn string) (string, error) {
	id := strings.TrimPrefix(urn, IdentityURNPrefix)
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		id = id[:i]
	}
	if id == "" || strings.ContainsAny(id, "@/ ") {
		return "", ErrInvalidURN
	}
	return id, nil
}

// IdentityURN builds an identity URN from a bare id.
func IdentityURN(id string) string {
	return IdentityURNPrefix + id
}

// SessionName is the actor name of the authorization session for an
// identity and client: "<id>@<clientId>".
func SessionName(identity, clientID string) (string, error) {
	if clientID == "" {
		return "", ErrInvalidURN
	}
	id, err := DecodeIdentity(identity)
	if err != nil {
		return "", err
	}
	return id + "@" + clientID, nil
}

// AuthorizationURN names the graph node of an authorization.
func AuthorizationURN(identity, clientID string) (string, error) {
	name, err := SessionName(identity, clientID)
	if err != nil {
		return "", err
	}
	return AuthorizationURNPrefix + name + "?+client_id=" + clientID, nil
}
