package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"

	"pawbot/pkg/logger"
)

const (
	keyringService = "pawbot"

	// KeyringAPIKey is the keyring entry holding the model API key.
	KeyringAPIKey = "model_api_key"
)

// SecretStore abstracts credential storage.
type SecretStore interface {
	Get(key string) (string, error)
	Set(key string, value string) error
	Delete(key string) error
}

// KeyringStore stores secrets in the OS keyring
// (Secret Service on Linux, Keychain on macOS, Credential Manager on Windows).
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a keyring store scoped to the pawbot service.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: keyringService}
}

// Get returns the secret, or an empty string when it is not stored.
func (k *KeyringStore) Get(key string) (string, error) {
	val, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return val, err
}

// Set stores a secret.
func (k *KeyringStore) Set(key, value string) error {
	return keyring.Set(k.service, key, value)
}

// Delete removes a secret. Missing entries are not an error.
func (k *KeyringStore) Delete(key string) error {
	err := keyring.Delete(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set.
// Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ResolveAPIKey fills cfg.Model.APIKey using the chain
// keyring → PAWBOT_MODEL_API_KEY / config → OPENAI_API_KEY.
func ResolveAPIKey(cfg *Config, store SecretStore) {
	if store != nil {
		if val, err := store.Get(KeyringAPIKey); err != nil {
			logger.Debug().Err(err).Msg("keyring unavailable")
		} else if val != "" {
			cfg.Model.APIKey = val
			logger.Debug().Msg("model API key loaded from OS keyring")
			return
		}
	}

	if cfg.Model.APIKey != "" {
		return
	}

	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		cfg.Model.APIKey = val
		return
	}

	logger.Warn().Msg("no model API key found; set one with: pawbot config set-key")
}
