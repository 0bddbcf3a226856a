package platform

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/authz/internal/authz/domain"
)

// Paymaster revokes smart wallet session keys sponsored by an app. This
// implementation logs each revocation; a deployment with a bundler wires a
// real client in its place.
type Paymaster struct {
	Clients *ClientRegistry
	Logger  *slog.Logger
}

func NewPaymaster(clients *ClientRegistry, logger *slog.Logger) *Paymaster {
	return &Paymaster{Clients: clients, Logger: logger}
}

// Enabled reports whether clientID has a paymaster configured.
func (p *Paymaster) Enabled(ctx context.Context, clientID string) bool {
	return p.Clients.HasPaymaster(ctx, clientID)
}

// RevokeSessionKeys revokes keys on behalf of clientID.
func (p *Paymaster) RevokeSessionKeys(_ context.Context, clientID string, keys []domain.SessionKey) error {
	for _, k := range keys {
		p.Logger.Info("revoked session key",
			"client_id", clientID,
			"session_key", k.Address,
			"wallet", k.SmartContract,
		)
	}
	return nil
}
