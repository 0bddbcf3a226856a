// Package session owns the durable per-(identity, client) authorization
// session: its refresh token table, the app scoped data blobs and the token
// lifecycle operations built on them. Every session is an actor named
// "session:<id>@<clientId>".
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aussiebroadwan/authz/internal/authz/actor"
	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/internal/authz/store"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// Kind is the actor kind of sessions.
const Kind = "session"

// Storage keys.
const (
	identityKey        = "identity"
	clientIDKey        = "clientId"
	personaDataKey     = "personaData"
	appDataKey         = "appData"
	externalAppDataKey = "externalAppData"
	tokenMapKey        = "tokenMap"
	tokenIndexKey      = "tokenIndex"
	signingKeyKey      = "signingKey"
)

var (
	ErrTokenExists    = errors.New("session: refresh token id already stored")
	ErrMissingTokenID = errors.New("session: missing token id")
)

// Node gives access to sessions.
type Node struct {
	Actors *actor.Registry
	Keys   *jwtx.SigningKeySet
	Now    func() time.Time

	// OnEvict is told how many refresh tokens a store had to evict.
	OnEvict func(n int)
}

// New returns a node signing with keys.
func New(actors *actor.Registry, keys *jwtx.SigningKeySet) *Node {
	return &Node{Actors: actors, Keys: keys, Now: time.Now}
}

// Do runs fn against the session called name while holding its lock. Every
// call fn makes on the Session is part of one actor turn.
func (n *Node) Do(ctx context.Context, name string, fn func(ctx context.Context, s *Session) error) error {
	return n.Actors.Do(ctx, actor.Name(Kind, name), func(ctx context.Context, st store.Storage) error {
		return fn(ctx, &Session{node: n, name: name, st: st})
	})
}

// Session is one authorization session, valid only inside Node.Do.
type Session struct {
	node *Node
	name string
	st   store.Storage
}

// Name returns "<id>@<clientId>".
func (s *Session) Name() string { return s.name }

// SetOwner records which identity and client the session belongs to.
func (s *Session) SetOwner(ctx context.Context, identity, clientID string) error {
	return store.PutMultiJSON(ctx, s.st, map[string]any{
		identityKey: identity,
		clientIDKey: clientID,
	})
}

// Owner returns the identity and client recorded by SetOwner.
func (s *Session) Owner(ctx context.Context) (identity, clientID string, err error) {
	if _, err = store.GetJSON(ctx, s.st, identityKey, &identity); err != nil {
		return "", "", err
	}
	if _, err = store.GetJSON(ctx, s.st, clientIDKey, &clientID); err != nil {
		return "", "", err
	}
	return identity, clientID, nil
}

// PersonaData returns the stored persona data, empty when unset.
func (s *Session) PersonaData(ctx context.Context) (domain.PersonaData, error) {
	p := domain.PersonaData{}
	if _, err := store.GetJSON(ctx, s.st, personaDataKey, &p); err != nil {
		return nil, err
	}
	if p == nil {
		p = domain.PersonaData{}
	}
	return p, nil
}

func (s *Session) SetPersonaData(ctx context.Context, p domain.PersonaData) error {
	return store.PutJSON(ctx, s.st, personaDataKey, p)
}

// AppData returns the stored app data. The bool is false when none was set.
func (s *Session) AppData(ctx context.Context) (domain.AppData, bool, error) {
	var a domain.AppData
	found, err := store.GetJSON(ctx, s.st, appDataKey, &a)
	return a, found, err
}

func (s *Session) SetAppData(ctx context.Context, a domain.AppData) error {
	return store.PutJSON(ctx, s.st, appDataKey, a)
}

// ExternalAppData returns the raw blob the app stored, nil when unset.
func (s *Session) ExternalAppData(ctx context.Context) (json.RawMessage, error) {
	raw, err := s.st.Get(ctx, externalAppDataKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return raw, err
}

// SetExternalAppData stores data verbatim. It must be valid JSON.
func (s *Session) SetExternalAppData(ctx context.Context, data json.RawMessage) error {
	if !json.Valid(data) {
		return errors.New("session: external app data is not valid json")
	}
	return s.st.Put(ctx, externalAppDataKey, data)
}

// DeleteAll clears every key of the session.
func (s *Session) DeleteAll(ctx context.Context) error {
	return s.st.DeleteAll(ctx)
}
