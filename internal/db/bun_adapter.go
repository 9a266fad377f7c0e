// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"os/user"
	"strings"
	"time"

	"github.com/toeirei/keychainpgp/internal/model"
	"github.com/uptrace/bun"
)

// KeyModel maps the `keys` table for Bun queries.
type KeyModel struct {
	bun.BaseModel `bun:"table:keys"`
	Fingerprint   string         `bun:"fingerprint,pk"`
	Name          sql.NullString `bun:"name"`
	Email         sql.NullString `bun:"email"`
	Algorithm     string         `bun:"algorithm"`
	CreatedAt     string         `bun:"created_at"`
	ExpiresAt     sql.NullString `bun:"expires_at"`
	TrustLevel    int            `bun:"trust_level"`
	IsOwnKey      bool           `bun:"is_own_key"`
	PGPData       []byte         `bun:"pgp_data"`
}

// AuditLogModel maps the audit_log table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int    `bun:"id,pk,autoincrement"`
	Timestamp     string `bun:"timestamp"`
	Username      string `bun:"username"`
	Action        string `bun:"action"`
	Details       string `bun:"details"`
}

// --- Mapping helpers (centralized conversions) ---

func keyModelToRecord(k KeyModel) model.KeyRecord {
	rec := model.KeyRecord{
		Fingerprint: k.Fingerprint,
		Algorithm:   k.Algorithm,
		TrustLevel:  model.TrustLevel(k.TrustLevel),
		IsOwnKey:    k.IsOwnKey,
		PGPData:     k.PGPData,
	}
	if k.Name.Valid {
		rec.Name = k.Name.String
	}
	if k.Email.Valid {
		rec.Email = k.Email.String
	}
	if t, err := time.Parse(time.RFC3339, k.CreatedAt); err == nil {
		rec.CreatedAt = t
	}
	if k.ExpiresAt.Valid {
		if t, err := time.Parse(time.RFC3339, k.ExpiresAt.String); err == nil {
			rec.ExpiresAt = &t
		}
	}
	return rec
}

func keyRecordToModel(rec model.KeyRecord) KeyModel {
	k := KeyModel{
		Fingerprint: rec.Fingerprint,
		Algorithm:   rec.Algorithm,
		CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
		TrustLevel:  int(rec.TrustLevel),
		IsOwnKey:    rec.IsOwnKey,
		PGPData:     rec.PGPData,
	}
	if rec.Name != "" {
		k.Name = sql.NullString{String: rec.Name, Valid: true}
	}
	if rec.Email != "" {
		k.Email = sql.NullString{String: rec.Email, Valid: true}
	}
	if rec.ExpiresAt != nil {
		k.ExpiresAt = sql.NullString{String: rec.ExpiresAt.UTC().Format(time.RFC3339), Valid: true}
	}
	return k
}

func auditLogModelToModel(a AuditLogModel) model.AuditLogEntry {
	return model.AuditLogEntry{ID: a.ID, Timestamp: a.Timestamp, Username: a.Username, Action: a.Action, Details: a.Details}
}

// InsertKeyBun inserts one key metadata row. Constraint violations are
// mapped to ErrDuplicate.
func InsertKeyBun(bdb *bun.DB, rec model.KeyRecord) error {
	ctx := context.Background()
	km := keyRecordToModel(rec)
	if _, err := bdb.NewInsert().Model(&km).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	return nil
}

// GetKeyBun returns the key with the given fingerprint, or nil when absent.
func GetKeyBun(bdb *bun.DB, fingerprint string) (*model.KeyRecord, error) {
	ctx := context.Background()
	var km KeyModel
	err := bdb.NewSelect().Model(&km).Where("fingerprint = ?", fingerprint).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec := keyModelToRecord(km)
	return &rec, nil
}

// GetAllKeysBun returns all keys, own keys first, then alphabetically by name.
func GetAllKeysBun(bdb *bun.DB) ([]model.KeyRecord, error) {
	ctx := context.Background()
	var kms []KeyModel
	err := bdb.NewSelect().Model(&kms).OrderExpr("is_own_key DESC, name ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.KeyRecord, 0, len(kms))
	for _, k := range kms {
		out = append(out, keyModelToRecord(k))
	}
	return out, nil
}

// SearchKeysBun performs a case-insensitive substring match across name,
// email and fingerprint. lower() keeps the behavior identical on SQLite,
// Postgres and MySQL.
func SearchKeysBun(bdb *bun.DB, query string) ([]model.KeyRecord, error) {
	ctx := context.Background()
	pattern := "%" + strings.ToLower(query) + "%"
	var kms []KeyModel
	err := bdb.NewSelect().Model(&kms).
		Where("lower(name) LIKE ? OR lower(email) LIKE ? OR lower(fingerprint) LIKE ?", pattern, pattern, pattern).
		OrderExpr("is_own_key DESC, name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.KeyRecord, 0, len(kms))
	for _, k := range kms {
		out = append(out, keyModelToRecord(k))
	}
	return out, nil
}

// DeleteKeyBun removes one key row; the bool reports whether a row existed.
func DeleteKeyBun(bdb *bun.DB, fingerprint string) (bool, error) {
	ctx := context.Background()
	res, err := bdb.NewDelete().Model((*KeyModel)(nil)).Where("fingerprint = ?", fingerprint).Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetTrustLevelBun updates the trust level for one key; the bool reports
// whether a row existed.
func SetTrustLevelBun(bdb *bun.DB, fingerprint string, level model.TrustLevel) (bool, error) {
	ctx := context.Background()
	res, err := bdb.NewUpdate().Model((*KeyModel)(nil)).
		Set("trust_level = ?", int(level)).
		Where("fingerprint = ?", fingerprint).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetAllAuditLogEntriesBun returns the audit trail, most recent first.
func GetAllAuditLogEntriesBun(bdb *bun.DB) ([]model.AuditLogEntry, error) {
	ctx := context.Background()
	var ams []AuditLogModel
	err := bdb.NewSelect().Model(&ams).OrderExpr("id DESC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.AuditLogEntry, 0, len(ams))
	for _, a := range ams {
		out = append(out, auditLogModelToModel(a))
	}
	return out, nil
}

// LogActionBun appends one audit trail entry attributed to the current OS user.
func LogActionBun(bdb *bun.DB, action, details string) error {
	ctx := context.Background()
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	entry := AuditLogModel{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Username:  username,
		Action:    action,
		Details:   details,
	}
	_, err := bdb.NewInsert().Model(&entry).Exec(ctx)
	return err
}

// ExportDataForBackupBun collects the full metadata table plus the audit
// log into a single backup structure.
func ExportDataForBackupBun(bdb *bun.DB) (*model.BackupData, error) {
	keys, err := GetAllKeysBun(bdb)
	if err != nil {
		return nil, err
	}
	audit, err := GetAllAuditLogEntriesBun(bdb)
	if err != nil {
		return nil, err
	}
	return &model.BackupData{Keys: keys, AuditLog: audit}, nil
}

// ImportDataFromBackupBun wipes the metadata tables and replaces their
// contents from the backup, all inside one transaction.
func ImportDataFromBackupBun(bdb *bun.DB, backup *model.BackupData) error {
	ctx := context.Background()
	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Bun requires a WHERE clause for Delete queries to prevent accidental
	// full-table deletes; the tautology makes the wipe explicit. The keys
	// table goes through Bun so the identifier is quoted per dialect
	// (KEYS is reserved in MySQL).
	if _, err := tx.NewDelete().Model((*KeyModel)(nil)).Where("1 = 1").Exec(ctx); err != nil {
		return err
	}
	if _, err := ExecRaw(ctx, tx, "DELETE FROM audit_log"); err != nil {
		return err
	}

	for _, rec := range backup.Keys {
		km := keyRecordToModel(rec)
		if _, err := tx.NewInsert().Model(&km).Exec(ctx); err != nil {
			return MapDBError(err)
		}
	}
	for _, e := range backup.AuditLog {
		am := AuditLogModel{Timestamp: e.Timestamp, Username: e.Username, Action: e.Action, Details: e.Details}
		if _, err := tx.NewInsert().Model(&am).Exec(ctx); err != nil {
			return err
		}
	}

	return tx.Commit()
}
