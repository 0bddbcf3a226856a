// Package platform holds in-process implementations of the services the
// authorization core talks to: the client registry, the edge graph, the
// identity directory, claim resolution, usage metering and the paymaster.
// They let the binary run on its own; a deployment can swap any of them for
// a remote client behind the same method set.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
)

// ClientRegistry validates client credentials against argon2id hashes.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]domain.Client
}

// NewClientRegistry returns a registry holding clients.
func NewClientRegistry(clients ...domain.Client) *ClientRegistry {
	r := &ClientRegistry{clients: make(map[string]domain.Client, len(clients))}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// LoadClientRegistry reads a JSON array of clients from path. An empty path
// yields an empty registry.
func LoadClientRegistry(path string) (*ClientRegistry, error) {
	if path == "" {
		return NewClientRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clients file: %w", err)
	}
	var clients []domain.Client
	if err := json.Unmarshal(data, &clients); err != nil {
		return nil, fmt.Errorf("decode clients file: %w", err)
	}
	for _, c := range clients {
		if c.ID == "" {
			return nil, errors.New("clients file: entry without clientId")
		}
	}
	return NewClientRegistry(clients...), nil
}

// Register adds or replaces a client.
func (r *ClientRegistry) Register(c domain.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

// Get returns the client with id.
func (r *ClientRegistry) Get(id string) (domain.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Len reports how many clients are registered.
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CheckAppAuth reports whether secret authenticates clientID. Unknown clients
// and wrong secrets are reported as false with a nil error; a malformed
// stored hash is an error.
func (r *ClientRegistry) CheckAppAuth(_ context.Context, clientID, secret string) (bool, error) {
	c, ok := r.Get(clientID)
	if !ok || c.SecretHash == "" || secret == "" {
		return false, nil
	}
	err := cryptox.VerifySecret(secret, c.SecretHash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, cryptox.ErrSecretMismatch):
		return false, nil
	default:
		return false, fmt.Errorf("client %s: %w", clientID, err)
	}
}

// HasPaymaster reports whether the app sponsors smart wallet session keys.
func (r *ClientRegistry) HasPaymaster(_ context.Context, clientID string) bool {
	c, ok := r.Get(clientID)
	return ok && c.Paymaster
}
