// Package keychain stores the bot token in the OS keychain so it never has to
// live in a config file.
package keychain

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "turnbot"

	// TokenAccount is the keychain account holding the bot token.
	TokenAccount = "bot_token"
)

// ErrNotFound is returned when no secret is stored for an account.
var ErrNotFound = keyring.ErrNotFound

// Get retrieves a secret from the system keychain.
func Get(account string) (string, error) {
	return keyring.Get(serviceName, account)
}

// Set stores a secret in the system keychain.
func Set(account, value string) error {
	return keyring.Set(serviceName, account, value)
}

// Delete removes a secret. Deleting a missing secret is not an error.
func Delete(account string) error {
	if err := keyring.Delete(serviceName, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", account, err)
	}
	return nil
}

// BotToken returns the stored bot token.
func BotToken() (string, error) {
	return Get(TokenAccount)
}
