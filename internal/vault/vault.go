// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package vault stores secret key material outside the metadata database.
// Two backends are layered: the OS credential manager (via go-keyring) and
// a permission-restricted file tree under the data directory. The file copy
// is always written and is authoritative; the credential manager is a
// best-effort convenience that portable installs skip entirely.
package vault

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"

	"github.com/toeirei/keychainpgp/internal/logging"
	"github.com/toeirei/keychainpgp/internal/security"
)

// serviceName is the credential manager service entries are filed under.
const serviceName = "keychainpgp"

var (
	// ErrNotFound is returned when no backend holds the requested entry.
	ErrNotFound = errors.New("secret key not found")
	// ErrInvalidFingerprint is returned for fingerprints that are not
	// plain hex. The check runs before any path construction.
	ErrInvalidFingerprint = errors.New("invalid fingerprint")
)

// Vault is the secret key store. The zero value is not usable; construct
// with New.
type Vault struct {
	dataDir  string
	portable bool
}

// New returns a vault rooted at dataDir. With portable set, the OS
// credential manager is never touched.
func New(dataDir string, portable bool) *Vault {
	return &Vault{dataDir: dataDir, portable: portable}
}

// validateFingerprint rejects anything that is not non-empty plain hex,
// so fingerprints can never smuggle path separators into file names.
func validateFingerprint(fp string) error {
	if fp == "" {
		return ErrInvalidFingerprint
	}
	for _, c := range fp {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidFingerprint, fp)
		}
	}
	return nil
}

func (v *Vault) secretsDir() string {
	return filepath.Join(v.dataDir, "secrets")
}

func (v *Vault) keyPath(fp string) string {
	return filepath.Join(v.secretsDir(), fp+".key")
}

func (v *Vault) revPath(fp string) string {
	return filepath.Join(v.secretsDir(), fp+".rev")
}

// writeRestricted writes a file readable only by the owner.
func (v *Vault) writeRestricted(path string, data []byte) error {
	if err := os.MkdirAll(v.secretsDir(), 0700); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// StoreSecretKey persists secret key material for a fingerprint. The file
// copy must succeed; the credential manager write is best-effort and its
// failure is only logged.
func (v *Vault) StoreSecretKey(fp string, secret security.Secret) error {
	if err := validateFingerprint(fp); err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(secret))
	if err := v.writeRestricted(v.keyPath(fp), []byte(encoded)); err != nil {
		return err
	}
	if !v.portable {
		if err := keyring.Set(serviceName, fp, encoded); err != nil {
			logging.Warnf("vault: credential manager write failed for %s, file copy kept: %v", fp, err)
		}
	}
	return nil
}

// RetrieveSecretKey returns a caller-owned copy of the secret key material.
// The credential manager is consulted first (unless portable); any failure
// there silently falls back to the file copy.
func (v *Vault) RetrieveSecretKey(fp string) (security.Secret, error) {
	if err := validateFingerprint(fp); err != nil {
		return nil, err
	}
	if !v.portable {
		if val, err := keyring.Get(serviceName, fp); err == nil {
			if raw, err := base64.StdEncoding.DecodeString(val); err == nil {
				return security.Secret(raw), nil
			}
			logging.Warnf("vault: corrupt credential manager entry for %s, falling back to file", fp)
		}
	}
	encoded, err := os.ReadFile(v.keyPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read secret key file: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("corrupt secret key file for %s: %w", fp, err)
	}
	return security.Secret(raw), nil
}

// HasSecretKey reports whether any backend holds an entry for the
// fingerprint.
func (v *Vault) HasSecretKey(fp string) bool {
	if validateFingerprint(fp) != nil {
		return false
	}
	if !v.portable {
		if _, err := keyring.Get(serviceName, fp); err == nil {
			return true
		}
	}
	_, err := os.Stat(v.keyPath(fp))
	return err == nil
}

// DeleteSecretKey removes the entry from both backends. Absent entries are
// not an error; the credential manager delete is best-effort.
func (v *Vault) DeleteSecretKey(fp string) error {
	if err := validateFingerprint(fp); err != nil {
		return err
	}
	if !v.portable {
		if err := keyring.Delete(serviceName, fp); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			logging.Warnf("vault: credential manager delete failed for %s: %v", fp, err)
		}
	}
	if err := os.Remove(v.keyPath(fp)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove secret key file: %w", err)
	}
	return nil
}

// StoreRevocationCert writes the armored revocation certificate next to
// the secret key file.
func (v *Vault) StoreRevocationCert(fp, cert string) error {
	if err := validateFingerprint(fp); err != nil {
		return err
	}
	return v.writeRestricted(v.revPath(fp), []byte(cert))
}

// RetrieveRevocationCert returns the stored revocation certificate.
func (v *Vault) RetrieveRevocationCert(fp string) (string, error) {
	if err := validateFingerprint(fp); err != nil {
		return "", err
	}
	data, err := os.ReadFile(v.revPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read revocation certificate: %w", err)
	}
	return string(data), nil
}

// DeleteRevocationCert removes the revocation certificate, if present.
func (v *Vault) DeleteRevocationCert(fp string) error {
	if err := validateFingerprint(fp); err != nil {
		return err
	}
	if err := os.Remove(v.revPath(fp)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove revocation certificate: %w", err)
	}
	return nil
}
