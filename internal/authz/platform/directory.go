package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aussiebroadwan/authz/internal/authz/domain"
)

var ErrUnknownIdentity = errors.New("platform: unknown identity")

// maxForwardHops bounds identity forwarding chains.
const maxForwardHops = 8

// Directory answers identity and account lookups from profiles held in
// memory.
type Directory struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
	owners   map[string]string // account urn -> identity urn
}

// NewDirectory returns a directory holding profiles.
func NewDirectory(profiles ...domain.Profile) *Directory {
	d := &Directory{profiles: map[string]domain.Profile{}, owners: map[string]string{}}
	for _, p := range profiles {
		d.Put(p)
	}
	return d
}

// LoadDirectory reads a JSON array of profiles from path. An empty path
// yields an empty directory.
func LoadDirectory(path string) (*Directory, error) {
	if path == "" {
		return NewDirectory(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	var profiles []domain.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("decode profiles file: %w", err)
	}
	for i := range profiles {
		urn, err := normalizeIdentity(profiles[i].URN)
		if err != nil {
			return nil, fmt.Errorf("profiles file entry %d: %w", i, err)
		}
		profiles[i].URN = urn
	}
	return NewDirectory(profiles...), nil
}

func normalizeIdentity(identity string) (string, error) {
	id, err := domain.DecodeIdentity(identity)
	if err != nil {
		return "", err
	}
	return domain.IdentityURN(id), nil
}

// Put adds or replaces a profile and indexes its accounts.
func (d *Directory) Put(p domain.Profile) {
	if urn, err := normalizeIdentity(p.URN); err == nil {
		p.URN = urn
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.profiles[p.URN]; ok {
		for _, a := range old.Accounts {
			delete(d.owners, a.URN)
		}
	}
	d.profiles[p.URN] = p
	for _, a := range p.Accounts {
		d.owners[a.URN] = p.URN
	}
}

// Profile returns the profile of identity.
func (d *Directory) Profile(_ context.Context, identity string) (domain.Profile, error) {
	urn, err := normalizeIdentity(identity)
	if err != nil {
		return domain.Profile{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[urn]
	if !ok {
		return domain.Profile{}, ErrUnknownIdentity
	}
	return p, nil
}

// ForwardIdentity follows merge forwarding from identity and returns the
// identity that is now authoritative. Identities the directory does not know
// are returned unchanged.
func (d *Directory) ForwardIdentity(_ context.Context, identity string) (string, error) {
	urn, err := normalizeIdentity(identity)
	if err != nil {
		return "", err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for range maxForwardHops {
		p, ok := d.profiles[urn]
		if !ok || p.ForwardTo == "" {
			return urn, nil
		}
		next, err := normalizeIdentity(p.ForwardTo)
		if err != nil {
			return "", err
		}
		urn = next
	}
	return "", fmt.Errorf("platform: forwarding loop from %s", identity)
}

// Accounts lists the connected accounts of identity.
func (d *Directory) Accounts(ctx context.Context, identity string) ([]domain.Account, error) {
	p, err := d.Profile(ctx, identity)
	if err != nil {
		return nil, err
	}
	return p.Accounts, nil
}

// Account returns an account together with the identity owning it.
func (d *Directory) Account(_ context.Context, urn string) (domain.Account, string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	owner, ok := d.owners[urn]
	if !ok {
		return domain.Account{}, "", false
	}
	for _, a := range d.profiles[owner].Accounts {
		if a.URN == urn {
			return a, owner, true
		}
	}
	return domain.Account{}, "", false
}
