// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/toeirei/keychainpgp/internal/db"
	"github.com/toeirei/keychainpgp/internal/engine"
	"github.com/toeirei/keychainpgp/internal/keyring"
	"github.com/toeirei/keychainpgp/internal/state"
	"github.com/toeirei/keychainpgp/internal/vault"
)

// newCryptoTestKeyring wires a keyring over an in-memory store, a
// portable temp-dir vault and the mock engine, bypassing the configured
// services.
func newCryptoTestKeyring(t *testing.T) *keyring.Keyring {
	t.Helper()
	dsn := fmt.Sprintf("file:cli_crypto_%s?mode=memory&cache=shared", t.Name())
	store, err := db.NewStoreFromDSN("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	return keyring.New(store, vault.New(t.TempDir(), true), engine.NewMockEngine())
}

func TestResolvePassphrase(t *testing.T) {
	t.Cleanup(state.ClearPassphrases)
	const fp = "ABCDEF0123456789ABCDEF0123456789ABCDEF01"

	if got := resolvePassphrase(fp, ""); got != nil {
		t.Errorf("empty cache and no flag should yield nil, got %q", got)
	}

	state.CachePassphrase(fp, []byte("cached"))
	if got := resolvePassphrase(fp, ""); string(got) != "cached" {
		t.Errorf("cache not consulted: got %q", got)
	}

	// An explicit passphrase always wins over the cache.
	if got := resolvePassphrase(fp, "explicit"); string(got) != "explicit" {
		t.Errorf("explicit passphrase lost to cache: got %q", got)
	}
}

func TestRememberPassphrase(t *testing.T) {
	t.Cleanup(state.ClearPassphrases)
	const fp = "0123456789ABCDEF0123456789ABCDEF01234567"

	rememberPassphrase(fp, "")
	if got := state.GetPassphrase(fp); got != nil {
		t.Errorf("empty passphrase was cached: %q", got)
	}

	rememberPassphrase(fp, "hunter2")
	if got := state.GetPassphrase(fp); string(got) != "hunter2" {
		t.Errorf("passphrase not cached: got %q", got)
	}
}

func TestDecryptWithOwnKeys(t *testing.T) {
	t.Cleanup(state.ClearPassphrases)
	kr := newCryptoTestKeyring(t)

	rec, err := kr.GenerateOwnKey("Alice", "alice@example.org", engine.GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateOwnKey failed: %v", err)
	}
	ciphertext, err := kr.Engine().Encrypt([]byte("hello"), []string{string(rec.PGPData)})
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	plaintext, err := decryptWithOwnKeys(kr, ciphertext, "unlock-me")
	if err != nil {
		t.Fatalf("decryptWithOwnKeys failed: %v", err)
	}
	if string(plaintext) != "hello" {
		t.Errorf("plaintext = %q", plaintext)
	}

	// The passphrase that unlocked the key is cached under its
	// fingerprint for follow-up operations.
	if got := state.GetPassphrase(rec.Fingerprint); string(got) != "unlock-me" {
		t.Errorf("passphrase not cached after successful decrypt: got %q", got)
	}
}

func TestDecryptWithOwnKeysNoMatch(t *testing.T) {
	kr := newCryptoTestKeyring(t)

	if _, err := decryptWithOwnKeys(kr, []byte("whatever"), ""); !errors.Is(err, errNoOwnKeys) {
		t.Errorf("empty keyring decrypt = %v, want errNoOwnKeys", err)
	}

	if _, err := kr.GenerateOwnKey("Alice", "alice@example.org", engine.GenerateOptions{}); err != nil {
		t.Fatalf("GenerateOwnKey failed: %v", err)
	}
	if _, err := decryptWithOwnKeys(kr, []byte("not a message"), ""); !errors.Is(err, errCannotDecrypt) {
		t.Errorf("garbage decrypt = %v, want errCannotDecrypt", err)
	}
}
