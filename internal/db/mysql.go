// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// package db provides the data access layer for KeychainPGP.
// This file contains the MySQL implementation of the database store.
package db // import "github.com/toeirei/keychainpgp/internal/db"

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/toeirei/keychainpgp/internal/model"
	"github.com/uptrace/bun"
)

// MySQLStore is the MySQL implementation of the Store interface.
type MySQLStore struct {
	db  *sql.DB
	bun *bun.DB
}

// InsertKey stores a new key metadata row.
func (s *MySQLStore) InsertKey(rec model.KeyRecord) error {
	err := InsertKeyBun(s.bun, rec)
	if err == nil {
		_ = s.LogAction("INSERT_KEY", fmt.Sprintf("fingerprint: %s", rec.Fingerprint))
	}
	return err
}

// GetKey retrieves a single key by fingerprint.
func (s *MySQLStore) GetKey(fingerprint string) (*model.KeyRecord, error) {
	return GetKeyBun(s.bun, fingerprint)
}

// GetAllKeys retrieves all key records.
func (s *MySQLStore) GetAllKeys() ([]model.KeyRecord, error) {
	return GetAllKeysBun(s.bun)
}

// SearchKeys performs a case-insensitive substring search.
func (s *MySQLStore) SearchKeys(query string) ([]model.KeyRecord, error) {
	return SearchKeysBun(s.bun, query)
}

// DeleteKey removes a key record by fingerprint.
func (s *MySQLStore) DeleteKey(fingerprint string) (bool, error) {
	existed, err := DeleteKeyBun(s.bun, fingerprint)
	if err == nil && existed {
		_ = s.LogAction("DELETE_KEY", fmt.Sprintf("fingerprint: %s", fingerprint))
	}
	return existed, err
}

// SetTrustLevel updates the trust level for a key.
func (s *MySQLStore) SetTrustLevel(fingerprint string, level model.TrustLevel) (bool, error) {
	existed, err := SetTrustLevelBun(s.bun, fingerprint, level)
	if err == nil && existed {
		_ = s.LogAction("SET_TRUST", fmt.Sprintf("fingerprint: %s, level: %s", fingerprint, level))
	}
	return existed, err
}

// GetAllAuditLogEntries retrieves the audit trail.
func (s *MySQLStore) GetAllAuditLogEntries() ([]model.AuditLogEntry, error) {
	return GetAllAuditLogEntriesBun(s.bun)
}

// LogAction records an audit trail event.
func (s *MySQLStore) LogAction(action string, details string) error {
	return LogActionBun(s.bun, action, details)
}

// ExportDataForBackup retrieves all data for a backup.
func (s *MySQLStore) ExportDataForBackup() (*model.BackupData, error) {
	return ExportDataForBackupBun(s.bun)
}

// ImportDataFromBackup restores the database from a backup structure.
func (s *MySQLStore) ImportDataFromBackup(backup *model.BackupData) error {
	err := ImportDataFromBackupBun(s.bun, backup)
	if err == nil {
		_ = s.LogAction("RESTORE_BACKUP", fmt.Sprintf("keys: %d", len(backup.Keys)))
	}
	return err
}
