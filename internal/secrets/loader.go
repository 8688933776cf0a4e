package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups the application's secrets in the OS keychain.
const KeyringService = "job-harvester"

// Source describes how to load a secret value.
type Source struct {
	// Name is used in error messages to give more context about the secret.
	Name string
	// Value is an inline secret value provided via configuration or flags.
	Value string
	// File points to a file containing the secret value. When set it takes
	// precedence over Value.
	File string
	// Keyring is the account name under KeyringService. It is consulted only
	// when neither File nor Value are set.
	Keyring string
}

// Load returns the resolved secret value from the provided source.
// Precedence is File, then Value, then Keyring. The returned secret is always trimmed.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	file := strings.TrimSpace(src.File)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}

	account := strings.TrimSpace(src.Keyring)
	if account == "" {
		return "", fmt.Errorf("%s is not configured", name)
	}

	secret, err := keyring.Get(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%s is not configured (keyring account %q is empty)", name, account)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s from keyring: %w", name, err)
	}

	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", fmt.Errorf("%s is not configured (keyring account %q is empty)", name, account)
	}

	return secret, nil
}

// Store saves a secret in the OS keychain under the given account.
func Store(account, value string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return errors.New("keyring account name is empty")
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("secret value is empty")
	}

	return keyring.Set(KeyringService, account, value)
}
