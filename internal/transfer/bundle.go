// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package transfer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/toeirei/keychainpgp/internal/engine"
	"github.com/toeirei/keychainpgp/internal/model"
)

// ErrUnsupportedBundle is returned for bundle versions this build cannot
// read.
var ErrUnsupportedBundle = errors.New("unsupported transfer bundle version")

// EncodeBundle serializes a key bundle, encrypts it with the transfer
// passphrase, and splits the result into QR part strings.
func EncodeBundle(bundle *model.KeyBundle, eng engine.CryptoEngine, passphrase string) ([]string, error) {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize bundle: %w", err)
	}
	encrypted, err := eng.EncryptSymmetric(raw, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt bundle: %w", err)
	}
	return SplitPayload(encrypted), nil
}

// DecodeBundle reassembles scanned parts, decrypts them with the transfer
// passphrase, and parses the bundle. The bundle version must match.
func DecodeBundle(parts []string, eng engine.CryptoEngine, passphrase string) (*model.KeyBundle, error) {
	encrypted, err := Reassemble(parts)
	if err != nil {
		return nil, err
	}
	raw, err := eng.DecryptSymmetric(encrypted, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt bundle: %w", err)
	}
	var bundle model.KeyBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	if bundle.Version != model.BundleVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBundle, bundle.Version)
	}
	return &bundle, nil
}
