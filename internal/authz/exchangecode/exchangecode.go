// Package exchangecode brokers one-time authorization codes. Each code is its
// own actor: the record is written on authorize, consumed by the first
// matching exchange and collected by an alarm once the TTL has passed.
package exchangecode

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/authz/internal/authz/actor"
	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/internal/authz/store"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// Kind is the actor kind of exchange codes.
const Kind = "code"

const recordKey = "record"

var (
	ErrUnsupportedResponseType = errors.New("exchangecode: unsupported response type")
	ErrExpiredCode             = errors.New("exchangecode: expired code")
	ErrMissingIdentityName     = errors.New("exchangecode: missing identity name")
	ErrMissingClientID         = errors.New("exchangecode: missing client id")
	ErrMismatchClientID        = errors.New("exchangecode: mismatch client id")
	ErrMissingCode             = errors.New("exchangecode: missing code")
)

// Node issues and redeems codes.
type Node struct {
	Actors *actor.Registry
	TTL    time.Duration
	Now    func() time.Time
}

// New returns a node and registers its expiry handler with actors. A zero ttl
// selects domain.DefaultCodeTTL.
func New(actors *actor.Registry, ttl time.Duration) *Node {
	if ttl <= 0 {
		ttl = domain.DefaultCodeTTL
	}
	n := &Node{Actors: actors, TTL: ttl, Now: time.Now}
	actors.Handle(Kind, n.expire)
	return n
}

// AuthorizeParams is what the authorize step records against a code.
type AuthorizeParams struct {
	Code         string
	Identity     string
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        []string
	State        string
	PersonaData  domain.PersonaData
}

// Authorize stores a fresh record for p.Code and schedules its expiry. It
// returns the code and state to hand back to the client.
func (n *Node) Authorize(ctx context.Context, p AuthorizeParams) (code, state string, err error) {
	if p.ResponseType != domain.ResponseTypeCode {
		return "", "", ErrUnsupportedResponseType
	}
	if p.Code == "" {
		return "", "", ErrMissingCode
	}

	name := actor.Name(Kind, p.Code)
	now := n.Now()
	rec := domain.ExchangeCode{
		Code:        p.Code,
		Identity:    p.Identity,
		ClientID:    p.ClientID,
		RedirectURI: p.RedirectURI,
		Scope:       p.Scope,
		State:       p.State,
		PersonaData: p.PersonaData,
		CreatedAt:   now,
	}
	if rec.Scope == nil {
		rec.Scope = []string{}
	}

	err = n.Actors.Do(ctx, name, func(ctx context.Context, st store.Storage) error {
		if err := store.PutJSON(ctx, st, recordKey, rec); err != nil {
			return err
		}
		return n.Actors.SetAlarm(ctx, name, now.Add(n.TTL))
	})
	if err != nil {
		return "", "", err
	}
	return p.Code, p.State, nil
}

// Exchange redeems code for clientID. The record is deleted on success, so a
// second exchange fails with ErrExpiredCode. A code older than the TTL is
// rejected even if its alarm has not fired yet.
func (n *Node) Exchange(ctx context.Context, code, clientID string) (domain.ExchangeCode, error) {
	if code == "" {
		return domain.ExchangeCode{}, ErrMissingCode
	}

	name := actor.Name(Kind, code)
	var rec domain.ExchangeCode
	err := n.Actors.Do(ctx, name, func(ctx context.Context, st store.Storage) error {
		found, err := store.GetJSON(ctx, st, recordKey, &rec)
		if err != nil {
			return err
		}
		if !found || rec.Expired(n.Now(), n.TTL) {
			if found {
				if err := n.consume(ctx, name, st); err != nil {
					return err
				}
			}
			return ErrExpiredCode
		}
		if rec.Identity == "" {
			return ErrMissingIdentityName
		}
		if rec.ClientID == "" {
			return ErrMissingClientID
		}
		if rec.ClientID != clientID {
			return ErrMismatchClientID
		}
		return n.consume(ctx, name, st)
	})
	if err != nil {
		return domain.ExchangeCode{}, err
	}
	return rec, nil
}

func (n *Node) consume(ctx context.Context, name string, st store.Storage) error {
	if err := st.DeleteAll(ctx); err != nil {
		return err
	}
	return n.Actors.DeleteAlarm(ctx, name)
}

func (n *Node) expire(ctx context.Context, name string, st store.Storage) error {
	slogx.FromContext(ctx).Debug("exchange code expired", "actor", name)
	return st.DeleteAll(ctx)
}
