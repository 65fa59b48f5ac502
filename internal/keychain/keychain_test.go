package keychain_test

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/jdelaire/turnbot/internal/keychain"
)

func TestBotTokenRoundTrip(t *testing.T) {
	keyring.MockInit()

	if _, err := keychain.BotToken(); !errors.Is(err, keychain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before Set, got %v", err)
	}

	if err := keychain.Set(keychain.TokenAccount, "123:abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	token, err := keychain.BotToken()
	if err != nil || token != "123:abc" {
		t.Fatalf("BotToken = %q, %v", token, err)
	}

	if err := keychain.Delete(keychain.TokenAccount); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := keychain.Delete(keychain.TokenAccount); err != nil {
		t.Errorf("deleting a missing token should succeed, got %v", err)
	}
	if _, err := keychain.BotToken(); !errors.Is(err, keychain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after Delete, got %v", err)
	}
}
