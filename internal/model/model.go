// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model defines the core data structures for KeychainPGP.
// These structs are used across the database, keyring and transfer layers.
package model

import "time"

// TrustLevel expresses how much the user trusts a stored key.
type TrustLevel int

const (
	// TrustUnknown is the default for keys with no stated trust.
	TrustUnknown TrustLevel = 0
	// TrustUnverified marks imported contacts whose fingerprint has not
	// been checked out-of-band yet.
	TrustUnverified TrustLevel = 1
	// TrustVerified marks keys whose fingerprint was confirmed, and all
	// keys generated locally.
	TrustVerified TrustLevel = 2
)

// String returns a human-readable label for the trust level.
func (t TrustLevel) String() string {
	switch t {
	case TrustUnverified:
		return "unverified"
	case TrustVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// ParseTrustLevel maps a user-supplied label or digit to a TrustLevel.
func ParseTrustLevel(s string) (TrustLevel, bool) {
	switch s {
	case "0", "unknown":
		return TrustUnknown, true
	case "1", "unverified":
		return TrustUnverified, true
	case "2", "verified":
		return TrustVerified, true
	}
	return TrustUnknown, false
}

// KeyRecord is the metadata row for one OpenPGP certificate. The secret key
// material never travels through this struct; it lives in the vault, keyed
// by fingerprint.
type KeyRecord struct {
	Fingerprint string     `json:"fingerprint"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Algorithm   string     `json:"algorithm"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	TrustLevel  TrustLevel `json:"trust_level"`
	IsOwnKey    bool       `json:"is_own_key"`
	PGPData     []byte     `json:"pgp_data"`
}

// KeyBundle is the portable device-to-device transfer format. Version is
// checked on import; unknown versions are rejected.
type KeyBundle struct {
	Version int           `json:"version"`
	Keys    []BundleEntry `json:"keys"`
}

// BundleVersion is the only bundle format version this build understands.
const BundleVersion = 1

// BundleEntry is one key inside a transfer bundle. SecretKey is only set
// for the exporting device's own keys.
type BundleEntry struct {
	Fingerprint string  `json:"fingerprint"`
	PublicKey   string  `json:"public_key"`
	SecretKey   *string `json:"secret_key,omitempty"`
	TrustLevel  int     `json:"trust_level"`
}

// AuditLogEntry represents a single entry in the local audit trail.
type AuditLogEntry struct {
	ID        int    `json:"id"`
	Timestamp string `json:"timestamp"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Details   string `json:"details"`
}

// BackupData is the container for full database backups. It holds the key
// metadata table and the audit log; secret keys are deliberately excluded
// and stay in the vault.
type BackupData struct {
	Keys     []KeyRecord     `json:"keys"`
	AuditLog []AuditLogEntry `json:"audit_log"`
}

// ImportStats summarizes the outcome of a merge (bundle import or backup
// restore).
type ImportStats struct {
	Imported int
	Upgraded int
	Skipped  int
}
