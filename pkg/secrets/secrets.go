// Package secrets resolves credentials for external backends.
package secrets

import (
	"errors"
	"fmt"
	"os"

	"vpnshield/pkg/config"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name entries are stored under in the system keyring.
	KeyringService = "vpnshield"
	// APIKeyEnv overrides the assessment backend API key.
	APIKeyEnv = "VPNSHIELD_API_KEY"
)

// ResolveAPIKey returns the assessment backend API key from, in order, the config file,
// the environment and the system keyring. An empty key with a nil error means none is set.
func ResolveAPIKey(cfg config.AssessorConfig) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}

	if key := os.Getenv(APIKeyEnv); key != "" {
		return key, nil
	}

	if cfg.KeyringUser == "" {
		return "", nil
	}

	key, err := keyring.Get(KeyringService, cfg.KeyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read API key from keyring: %w", err)
	}
	return key, nil
}

// StoreAPIKey saves key in the system keyring under user.
func StoreAPIKey(user, key string) error {
	if err := keyring.Set(KeyringService, user, key); err != nil {
		return fmt.Errorf("store API key in keyring: %w", err)
	}
	return nil
}
