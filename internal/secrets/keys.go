// Package secrets resolves provider API keys, preferring the OS keychain
// over keys written in the config file.
package secrets

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// “Service” groups the app's secrets in the OS keychain.
	KeyringService = "leadflow"

	AccountCompaniesHouse = "leadflow:companies_house:api_key"
	AccountApollo         = "leadflow:apollo:api_key"
	AccountInstantly      = "leadflow:instantly:api_key"
)

// APIKey returns the keychain entry for the account, falling back to the
// config-file value when the keychain has nothing usable.
func APIKey(account, configValue string) (string, error) {
	if strings.TrimSpace(account) != "" {
		key, err := keyring.Get(KeyringService, account)
		if err == nil && strings.TrimSpace(key) != "" {
			return key, nil
		}
	}
	if strings.TrimSpace(configValue) != "" {
		return configValue, nil
	}
	return "", errors.New("API key not found (set it in keychain or config)")
}

func SetAPIKey(account, key string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("API key is empty")
	}
	return keyring.Set(KeyringService, account, key)
}

func DeleteAPIKey(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, account)
}
