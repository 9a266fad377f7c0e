// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"github.com/toeirei/keychainpgp/internal/model"
)

// Store defines the interface for all database operations in KeychainPGP.
// This allows for multiple database backends to be implemented. The store
// only ever holds key metadata and public certificate data; secret key
// material lives in the vault.
type Store interface {
	// Key metadata methods
	InsertKey(rec model.KeyRecord) error
	GetKey(fingerprint string) (*model.KeyRecord, error)
	GetAllKeys() ([]model.KeyRecord, error)
	SearchKeys(query string) ([]model.KeyRecord, error)
	DeleteKey(fingerprint string) (bool, error)
	SetTrustLevel(fingerprint string, level model.TrustLevel) (bool, error)

	// Audit Log methods
	GetAllAuditLogEntries() ([]model.AuditLogEntry, error)
	LogAction(action string, details string) error

	// Backup / Restore methods
	ExportDataForBackup() (*model.BackupData, error)
	ImportDataFromBackup(backup *model.BackupData) error
}
