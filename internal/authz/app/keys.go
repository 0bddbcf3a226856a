package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// ephemeralKID names the key generated when none is configured.
const ephemeralKID = "ephemeral"

// InitSigningKeys loads the configured signing key pairs.
//
// Keys come from AUTHZ_SIGNING_KEYS, or the file named by
// AUTHZ_SIGNING_KEYS_FILE. With neither set a single ES256 pair is generated
// in memory and every token becomes unverifiable after a restart.
func InitSigningKeys(cfg Config, logger *slog.Logger) (*jwtx.SigningKeySet, error) {
	data := []byte(cfg.SigningKeys)
	source := "env"
	if len(data) == 0 && cfg.SigningKeysFile != "" {
		b, err := os.ReadFile(cfg.SigningKeysFile) // #nosec G304 - operator supplied path
		if err != nil {
			return nil, fmt.Errorf("read signing keys file: %w", err)
		}
		data = b
		source = cfg.SigningKeysFile
	}

	if len(data) == 0 {
		pair, err := jwtx.GenerateKeyPair(ephemeralKID)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		keys, err := jwtx.NewSigningKeySet([]jwtx.SigningKeyPair{pair}, "")
		if err != nil {
			return nil, err
		}
		logger.Warn("no signing keys configured, using an ephemeral key; tokens will not survive restarts",
			"kid", ephemeralKID,
		)
		return keys, nil
	}

	keys, err := jwtx.ParseSigningKeys(data, cfg.CurrentKID)
	if err != nil {
		return nil, err
	}
	logger.Info("signing keys loaded",
		"source", source,
		"num_keys", keys.Len(),
		"current_kid", keys.Current().KID(),
	)
	return keys, nil
}
