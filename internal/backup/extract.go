// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	openpgp "github.com/ProtonMail/go-crypto/openpgp/v2"
	"github.com/ProtonMail/gopenpgp/v3/crypto"

	"github.com/toeirei/keychainpgp/internal/security"
)

// ExtractedKey is one key recovered from a decrypted backup payload.
type ExtractedKey struct {
	Fingerprint string
	Name        string
	Email       string
	PublicArmor string
	// SecretArmor is empty when the backup only held the public part.
	SecretArmor security.Secret
	HasSecret   bool
}

// ExtractKeys parses a decrypted backup payload as a binary key ring and
// returns each key re-armored for import.
func ExtractKeys(payload []byte) ([]ExtractedKey, error) {
	entities, err := openpgp.ReadKeyRing(bytes.NewReader(payload))
	if err != nil && len(entities) == 0 {
		return nil, fmt.Errorf("backup payload is not a key ring: %w", err)
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("backup payload contains no keys")
	}

	out := make([]ExtractedKey, 0, len(entities))
	for _, ent := range entities {
		key, err := crypto.NewKeyFromEntity(ent)
		if err != nil {
			return nil, fmt.Errorf("failed to load key from backup: %w", err)
		}

		ek := ExtractedKey{
			Fingerprint: strings.ToUpper(hex.EncodeToString(ent.PrimaryKey.Fingerprint)),
			HasSecret:   key.IsPrivate(),
		}
		for _, ident := range ent.Identities {
			ek.Name = ident.UserId.Name
			ek.Email = ident.UserId.Email
			break
		}

		if key.IsPrivate() {
			secretArmor, err := key.Armor()
			if err != nil {
				return nil, fmt.Errorf("failed to armor secret key: %w", err)
			}
			ek.SecretArmor = security.FromString(secretArmor)
		}
		pub, err := key.ToPublic()
		if err != nil {
			return nil, fmt.Errorf("failed to derive public key: %w", err)
		}
		ek.PublicArmor, err = pub.Armor()
		if err != nil {
			return nil, fmt.Errorf("failed to armor public key: %w", err)
		}
		out = append(out, ek)
	}
	return out, nil
}
