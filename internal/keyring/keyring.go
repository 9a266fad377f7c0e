// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package keyring orchestrates the metadata store, the secret key vault
// and the crypto engine behind one mutex. Every operation, reads
// included, is serialized, so no caller ever observes a half-applied
// multi-step operation; the write ordering (vault before metadata)
// guarantees that a crash can only ever leave an orphaned vault entry,
// never a metadata row claiming a secret key that does not exist.
package keyring

import (
	"errors"
	"fmt"
	"sync"

	"github.com/toeirei/keychainpgp/internal/backup"
	"github.com/toeirei/keychainpgp/internal/db"
	"github.com/toeirei/keychainpgp/internal/engine"
	"github.com/toeirei/keychainpgp/internal/logging"
	"github.com/toeirei/keychainpgp/internal/model"
	"github.com/toeirei/keychainpgp/internal/security"
	"github.com/toeirei/keychainpgp/internal/vault"
)

var (
	// ErrNotFound is returned when no key matches the fingerprint.
	ErrNotFound = errors.New("key not found")
	// ErrNoSecretKey is returned when an operation needs a secret key the
	// vault does not hold.
	ErrNoSecretKey = errors.New("no secret key for this fingerprint")
)

// Keyring is the single entry point for key management operations.
type Keyring struct {
	mu     sync.Mutex
	store  db.Store
	vault  *vault.Vault
	engine engine.CryptoEngine
}

// New assembles a keyring over its three collaborators.
func New(store db.Store, v *vault.Vault, eng engine.CryptoEngine) *Keyring {
	return &Keyring{store: store, vault: v, engine: eng}
}

// Engine exposes the crypto engine for message-level operations.
func (k *Keyring) Engine() engine.CryptoEngine { return k.engine }

// GenerateOwnKey creates a fresh key pair and stores it as an own key.
func (k *Keyring) GenerateOwnKey(name, email string, opts engine.GenerateOptions) (*model.KeyRecord, error) {
	gen, err := k.engine.GenerateKeyPair(name, email, opts)
	if err != nil {
		return nil, err
	}
	return k.StoreGeneratedKey(gen)
}

// StoreGeneratedKey persists a generated key pair: secret material and
// revocation certificate into the vault first, metadata second. When the
// metadata insert fails the vault entry is left in place; an orphaned
// secret is recoverable, a dangling metadata row is not.
func (k *Keyring) StoreGeneratedKey(gen *engine.GeneratedKey) (*model.KeyRecord, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	fp := gen.Info.Fingerprint
	if err := k.vault.StoreSecretKey(fp, gen.SecretArmor); err != nil {
		return nil, fmt.Errorf("failed to store secret key: %w", err)
	}
	gen.SecretArmor.Zero()
	if gen.RevocationCert != "" {
		if err := k.vault.StoreRevocationCert(fp, gen.RevocationCert); err != nil {
			logging.Warnf("keyring: failed to store revocation certificate for %s: %v", fp, err)
		}
	}

	rec := model.KeyRecord{
		Fingerprint: fp,
		Name:        gen.Info.Name,
		Email:       gen.Info.Email,
		Algorithm:   gen.Info.Algorithm,
		CreatedAt:   gen.Info.CreatedAt,
		ExpiresAt:   gen.Info.ExpiresAt,
		TrustLevel:  model.TrustVerified,
		IsOwnKey:    true,
		PGPData:     []byte(gen.PublicArmor),
	}
	if err := k.store.InsertKey(rec); err != nil {
		logging.Warnf("keyring: metadata insert failed for %s, vault entry kept: %v", fp, err)
		return nil, err
	}
	return &rec, nil
}

// ImportPublicKey parses and stores a contact's certificate. Imported
// keys start unverified until the user confirms the fingerprint.
func (k *Keyring) ImportPublicKey(data []byte) (*model.KeyRecord, error) {
	info, err := k.engine.InspectKey(data)
	if err != nil {
		return nil, err
	}
	publicArmor, err := k.engine.PublicArmor(data)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	rec := model.KeyRecord{
		Fingerprint: info.Fingerprint,
		Name:        info.Name,
		Email:       info.Email,
		Algorithm:   info.Algorithm,
		CreatedAt:   info.CreatedAt,
		ExpiresAt:   info.ExpiresAt,
		TrustLevel:  model.TrustUnverified,
		IsOwnKey:    false,
		PGPData:     []byte(publicArmor),
	}
	if err := k.store.InsertKey(rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get returns the key record, or ErrNotFound.
func (k *Keyring) Get(fingerprint string) (*model.KeyRecord, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	rec, err := k.store.GetKey(fingerprint)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// List returns all key records, own keys first.
func (k *Keyring) List() ([]model.KeyRecord, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.store.GetAllKeys()
}

// Search matches the query against name, email and fingerprint.
func (k *Keyring) Search(query string) ([]model.KeyRecord, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.store.SearchKeys(query)
}

// DeleteKey removes a key everywhere: vault entries best-effort first,
// then the metadata row. Returns false when the fingerprint was unknown.
func (k *Keyring) DeleteKey(fingerprint string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.vault.DeleteSecretKey(fingerprint); err != nil && !errors.Is(err, vault.ErrInvalidFingerprint) {
		logging.Warnf("keyring: vault delete failed for %s: %v", fingerprint, err)
	}
	if err := k.vault.DeleteRevocationCert(fingerprint); err != nil && !errors.Is(err, vault.ErrInvalidFingerprint) {
		logging.Warnf("keyring: revocation cert delete failed for %s: %v", fingerprint, err)
	}
	return k.store.DeleteKey(fingerprint)
}

// SetTrust updates the trust level. Returns false when the fingerprint
// was unknown.
func (k *Keyring) SetTrust(fingerprint string, level model.TrustLevel) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.store.SetTrustLevel(fingerprint, level)
}

// GetSecretKey returns the vault's secret key material for a fingerprint.
func (k *Keyring) GetSecretKey(fingerprint string) (security.Secret, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	secret, err := k.vault.RetrieveSecretKey(fingerprint)
	if errors.Is(err, vault.ErrNotFound) {
		return nil, ErrNoSecretKey
	}
	return secret, err
}

// HasSecretKey reports whether the vault holds a secret key.
func (k *Keyring) HasSecretKey(fingerprint string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.vault.HasSecretKey(fingerprint)
}

// GetRevocationCert returns the stored revocation certificate.
func (k *Keyring) GetRevocationCert(fingerprint string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	cert, err := k.vault.RetrieveRevocationCert(fingerprint)
	if errors.Is(err, vault.ErrNotFound) {
		return "", ErrNotFound
	}
	return cert, err
}

// ExportBundle builds a transfer bundle from the whole keyring. Secret
// keys travel only for own keys, and only when includeSecrets is set.
func (k *Keyring) ExportBundle(includeSecrets bool) (*model.KeyBundle, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	records, err := k.store.GetAllKeys()
	if err != nil {
		return nil, err
	}
	bundle := &model.KeyBundle{Version: model.BundleVersion}
	for _, rec := range records {
		entry := model.BundleEntry{
			Fingerprint: rec.Fingerprint,
			PublicKey:   string(rec.PGPData),
			TrustLevel:  int(rec.TrustLevel),
		}
		if includeSecrets && rec.IsOwnKey {
			secret, err := k.vault.RetrieveSecretKey(rec.Fingerprint)
			switch {
			case err == nil:
				s := string(secret.Bytes())
				entry.SecretKey = &s
				secret.Zero()
			case errors.Is(err, vault.ErrNotFound):
				logging.Warnf("keyring: own key %s has no vault entry, exporting public part only", rec.Fingerprint)
			default:
				return nil, err
			}
		}
		bundle.Keys = append(bundle.Keys, entry)
	}
	return bundle, nil
}

// MergeBundle folds a received transfer bundle into the keyring.
//
// Per entry: unknown fingerprints are inserted; known public-only keys
// are upgraded to own keys when the bundle carries their secret part;
// everything else is skipped. Own keys already present are never
// overwritten.
func (k *Keyring) MergeBundle(bundle *model.KeyBundle) (model.ImportStats, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var stats model.ImportStats
	for _, entry := range bundle.Keys {
		existing, err := k.store.GetKey(entry.Fingerprint)
		if err != nil {
			return stats, err
		}

		var secret security.Secret
		if entry.SecretKey != nil && *entry.SecretKey != "" {
			secret = security.FromString(*entry.SecretKey)
		}

		switch {
		case existing == nil:
			if err := k.insertNewKey(entry.PublicKey, clampTrust(entry.TrustLevel), secret); err != nil {
				secret.Zero()
				return stats, err
			}
			stats.Imported++

		case !existing.IsOwnKey && len(secret) > 0:
			if err := k.promoteToOwnKey(*existing, secret); err != nil {
				secret.Zero()
				return stats, err
			}
			stats.Upgraded++

		default:
			stats.Skipped++
		}
		// The vault keeps its own copy; this one is done.
		secret.Zero()
	}
	return stats, nil
}

// insertNewKey stores a previously unknown key. With secret material
// present the key becomes an own key, and the vault write happens before
// the metadata row exists.
func (k *Keyring) insertNewKey(publicArmor string, trust model.TrustLevel, secret security.Secret) error {
	info, err := k.engine.InspectKey([]byte(publicArmor))
	if err != nil {
		return fmt.Errorf("unreadable key material: %w", err)
	}
	isOwn := len(secret) > 0
	if isOwn {
		if err := k.vault.StoreSecretKey(info.Fingerprint, secret); err != nil {
			return fmt.Errorf("key %s: %w", info.Fingerprint, err)
		}
		trust = model.TrustVerified
	}
	rec := model.KeyRecord{
		Fingerprint: info.Fingerprint,
		Name:        info.Name,
		Email:       info.Email,
		Algorithm:   info.Algorithm,
		CreatedAt:   info.CreatedAt,
		ExpiresAt:   info.ExpiresAt,
		TrustLevel:  trust,
		IsOwnKey:    isOwn,
		PGPData:     []byte(publicArmor),
	}
	if err := k.store.InsertKey(rec); err != nil {
		if isOwn {
			logging.Warnf("keyring: metadata insert failed for %s, vault entry kept: %v", rec.Fingerprint, err)
		}
		return err
	}
	return nil
}

// promoteToOwnKey upgrades a contact entry once its secret part arrives.
func (k *Keyring) promoteToOwnKey(existing model.KeyRecord, secret security.Secret) error {
	if err := k.vault.StoreSecretKey(existing.Fingerprint, secret); err != nil {
		return fmt.Errorf("key %s: %w", existing.Fingerprint, err)
	}
	existing.IsOwnKey = true
	existing.TrustLevel = model.TrustVerified
	if _, err := k.store.DeleteKey(existing.Fingerprint); err != nil {
		return err
	}
	return k.store.InsertKey(existing)
}

// RestoreFromBackup merges keys recovered from a legacy backup container.
// Restored keys count as verified: they came from the user's own backup.
func (k *Keyring) RestoreFromBackup(keys []backup.ExtractedKey) (model.ImportStats, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var stats model.ImportStats
	for _, ek := range keys {
		existing, err := k.store.GetKey(ek.Fingerprint)
		if err != nil {
			return stats, err
		}

		switch {
		case existing == nil:
			if err := k.insertNewKey(ek.PublicArmor, model.TrustVerified, ek.SecretArmor); err != nil {
				return stats, err
			}
			stats.Imported++

		case !existing.IsOwnKey && ek.HasSecret:
			if err := k.promoteToOwnKey(*existing, ek.SecretArmor); err != nil {
				return stats, err
			}
			stats.Upgraded++

		default:
			stats.Skipped++
		}
	}
	return stats, nil
}

func clampTrust(level int) model.TrustLevel {
	if level < int(model.TrustUnknown) || level > int(model.TrustVerified) {
		return model.TrustUnknown
	}
	return model.TrustLevel(level)
}
