// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package engine defines the OpenPGP capability boundary for KeychainPGP.
// The rest of the application talks to a CryptoEngine and never imports an
// OpenPGP implementation directly; PGPEngine is the production adapter.
package engine

import (
	"errors"
	"time"

	"github.com/toeirei/keychainpgp/internal/security"
)

// ErrInvalidKeyData is returned when key material cannot be parsed.
var ErrInvalidKeyData = errors.New("invalid key data")

// KeyInfo is the descriptive metadata extracted from a certificate.
type KeyInfo struct {
	Fingerprint string
	Name        string
	Email       string
	Algorithm   string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	HasSecret   bool
}

// GenerateOptions controls key pair generation.
type GenerateOptions struct {
	// LifetimeSeconds sets the key expiry; zero means the key never expires.
	LifetimeSeconds int32
	// HighSecurity selects the larger key profile.
	HighSecurity bool
}

// GeneratedKey is the result of a key pair generation. SecretArmor is the
// full transferable secret key; callers hand it to the vault and zero it.
type GeneratedKey struct {
	Info        KeyInfo
	PublicArmor string
	SecretArmor security.Secret
	// RevocationCert is an armored revocation certificate created at
	// generation time, for safe-keeping alongside the secret key.
	RevocationCert string
}

// CryptoEngine is the capability interface over an OpenPGP implementation.
type CryptoEngine interface {
	// GenerateKeyPair creates a fresh key pair for the given identity.
	GenerateKeyPair(name, email string, opts GenerateOptions) (*GeneratedKey, error)
	// InspectKey parses armored or binary key material and returns its metadata.
	InspectKey(data []byte) (*KeyInfo, error)
	// PublicArmor returns the armored public portion of any key material.
	PublicArmor(data []byte) (string, error)

	// Encrypt encrypts data to the given armored recipient certificates,
	// returning an armored message.
	Encrypt(data []byte, recipientArmors []string) ([]byte, error)
	// Decrypt decrypts a message with the given secret key, unlocking it
	// with passphrase when needed.
	Decrypt(data []byte, secret security.Secret, passphrase []byte) ([]byte, error)

	// Sign produces an armored detached signature.
	Sign(data []byte, secret security.Secret, passphrase []byte) ([]byte, error)
	// Verify checks an armored detached signature against a certificate.
	Verify(data, signature []byte, publicArmor string) error

	// EncryptSymmetric password-encrypts data into a binary OpenPGP message.
	EncryptSymmetric(data, passphrase []byte) ([]byte, error)
	// DecryptSymmetric reverses EncryptSymmetric with the exact passphrase.
	DecryptSymmetric(data, passphrase []byte) ([]byte, error)
}
