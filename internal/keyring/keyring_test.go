// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package keyring

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/toeirei/keychainpgp/internal/backup"
	"github.com/toeirei/keychainpgp/internal/db"
	"github.com/toeirei/keychainpgp/internal/engine"
	"github.com/toeirei/keychainpgp/internal/model"
	"github.com/toeirei/keychainpgp/internal/security"
	"github.com/toeirei/keychainpgp/internal/vault"
)

var testDBSeq atomic.Int64

// newTestKeyring wires a keyring over an in-memory store, a portable
// temp-dir vault and the mock engine. The DSN carries a sequence number
// and the vault is portable so tests building several keyrings get fully
// isolated state.
func newTestKeyring(t *testing.T) (*Keyring, *engine.MockEngine) {
	t.Helper()
	dsn := fmt.Sprintf("file:keyring_%s_%d?mode=memory&cache=shared", t.Name(), testDBSeq.Add(1))
	store, err := db.NewStoreFromDSN("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	eng := engine.NewMockEngine()
	return New(store, vault.New(t.TempDir(), true), eng), eng
}

func TestGenerateOwnKey(t *testing.T) {
	kr, _ := newTestKeyring(t)

	rec, err := kr.GenerateOwnKey("Alice Example", "alice@example.org", engine.GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateOwnKey failed: %v", err)
	}
	if !rec.IsOwnKey {
		t.Errorf("generated key not marked as own key")
	}
	if rec.TrustLevel != model.TrustVerified {
		t.Errorf("generated key trust = %v, want verified", rec.TrustLevel)
	}
	if !kr.HasSecretKey(rec.Fingerprint) {
		t.Errorf("vault holds no secret key after generation")
	}
	if _, err := kr.GetRevocationCert(rec.Fingerprint); err != nil {
		t.Errorf("revocation certificate missing: %v", err)
	}

	got, err := kr.Get(rec.Fingerprint)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Email != "alice@example.org" {
		t.Errorf("stored email = %q", got.Email)
	}
}

func TestImportPublicKey(t *testing.T) {
	kr, eng := newTestKeyring(t)

	gen, err := eng.GenerateKeyPair("Bob Contact", "bob@example.org", engine.GenerateOptions{})
	if err != nil {
		t.Fatalf("mock generation failed: %v", err)
	}
	rec, err := kr.ImportPublicKey([]byte(gen.PublicArmor))
	if err != nil {
		t.Fatalf("ImportPublicKey failed: %v", err)
	}
	if rec.IsOwnKey {
		t.Errorf("imported contact marked as own key")
	}
	if rec.TrustLevel != model.TrustUnverified {
		t.Errorf("imported trust = %v, want unverified", rec.TrustLevel)
	}
	if kr.HasSecretKey(rec.Fingerprint) {
		t.Errorf("contact import created a vault entry")
	}

	// The same certificate twice is a duplicate, not an update.
	if _, err := kr.ImportPublicKey([]byte(gen.PublicArmor)); !errors.Is(err, db.ErrDuplicate) {
		t.Errorf("second import = %v, want ErrDuplicate", err)
	}
}

func TestDeleteKeyRemovesVaultEntries(t *testing.T) {
	kr, _ := newTestKeyring(t)

	rec, err := kr.GenerateOwnKey("Alice", "alice@example.org", engine.GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateOwnKey failed: %v", err)
	}
	found, err := kr.DeleteKey(rec.Fingerprint)
	if err != nil || !found {
		t.Fatalf("DeleteKey = %v, %v", found, err)
	}
	if kr.HasSecretKey(rec.Fingerprint) {
		t.Errorf("secret key survived delete")
	}
	if _, err := kr.Get(rec.Fingerprint); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}

	found, err = kr.DeleteKey(rec.Fingerprint)
	if err != nil || found {
		t.Errorf("deleting a missing key = %v, %v, want false, nil", found, err)
	}
}

func TestGetSecretKeyMapsNotFound(t *testing.T) {
	kr, _ := newTestKeyring(t)
	if _, err := kr.GetSecretKey("ABCDEF0123456789ABCDEF0123456789ABCDEF01"); !errors.Is(err, ErrNoSecretKey) {
		t.Errorf("GetSecretKey on empty vault = %v, want ErrNoSecretKey", err)
	}
}

func TestSetTrust(t *testing.T) {
	kr, eng := newTestKeyring(t)
	gen, _ := eng.GenerateKeyPair("Bob", "bob@example.org", engine.GenerateOptions{})
	rec, err := kr.ImportPublicKey([]byte(gen.PublicArmor))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	found, err := kr.SetTrust(rec.Fingerprint, model.TrustVerified)
	if err != nil || !found {
		t.Fatalf("SetTrust = %v, %v", found, err)
	}
	got, _ := kr.Get(rec.Fingerprint)
	if got.TrustLevel != model.TrustVerified {
		t.Errorf("trust after SetTrust = %v", got.TrustLevel)
	}
}

func TestExportBundle(t *testing.T) {
	kr, eng := newTestKeyring(t)

	own, err := kr.GenerateOwnKey("Alice", "alice@example.org", engine.GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateOwnKey failed: %v", err)
	}
	contact, _ := eng.GenerateKeyPair("Bob", "bob@example.org", engine.GenerateOptions{})
	if _, err := kr.ImportPublicKey([]byte(contact.PublicArmor)); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	bundle, err := kr.ExportBundle(true)
	if err != nil {
		t.Fatalf("ExportBundle failed: %v", err)
	}
	if bundle.Version != model.BundleVersion {
		t.Errorf("bundle version = %d", bundle.Version)
	}
	if len(bundle.Keys) != 2 {
		t.Fatalf("bundle has %d keys, want 2", len(bundle.Keys))
	}
	for _, entry := range bundle.Keys {
		switch entry.Fingerprint {
		case own.Fingerprint:
			if entry.SecretKey == nil {
				t.Errorf("own key exported without secret part")
			}
		default:
			if entry.SecretKey != nil {
				t.Errorf("contact exported with a secret part")
			}
		}
	}

	// Without secrets, nothing sensitive leaves the vault.
	publicOnly, err := kr.ExportBundle(false)
	if err != nil {
		t.Fatalf("ExportBundle(false) failed: %v", err)
	}
	for _, entry := range publicOnly.Keys {
		if entry.SecretKey != nil {
			t.Errorf("public-only export carries a secret part")
		}
	}
}

func TestMergeBundle(t *testing.T) {
	sender, senderEng := newTestKeyring(t)
	if _, err := sender.GenerateOwnKey("Alice", "alice@example.org", engine.GenerateOptions{}); err != nil {
		t.Fatalf("sender generation failed: %v", err)
	}
	contact, _ := senderEng.GenerateKeyPair("Bob", "bob@example.org", engine.GenerateOptions{})
	if _, err := sender.ImportPublicKey([]byte(contact.PublicArmor)); err != nil {
		t.Fatalf("sender import failed: %v", err)
	}
	bundle, err := sender.ExportBundle(true)
	if err != nil {
		t.Fatalf("ExportBundle failed: %v", err)
	}

	receiver, _ := newTestKeyring(t)
	stats, err := receiver.MergeBundle(bundle)
	if err != nil {
		t.Fatalf("MergeBundle failed: %v", err)
	}
	if stats.Imported != 2 || stats.Upgraded != 0 || stats.Skipped != 0 {
		t.Fatalf("first merge stats = %+v", stats)
	}

	keys, err := receiver.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	ownCount := 0
	for _, rec := range keys {
		if rec.IsOwnKey {
			ownCount++
			if !receiver.HasSecretKey(rec.Fingerprint) {
				t.Errorf("merged own key %s has no vault entry", rec.Fingerprint)
			}
		}
	}
	if ownCount != 1 {
		t.Errorf("got %d own keys after merge, want 1", ownCount)
	}

	// The vault must hold its own copy of the secret material; the merge
	// zeroizes the bundle's working copies once each entry is stored.
	for _, entry := range bundle.Keys {
		if entry.SecretKey == nil {
			continue
		}
		secret, err := receiver.GetSecretKey(entry.Fingerprint)
		if err != nil {
			t.Fatalf("GetSecretKey after merge failed: %v", err)
		}
		if string(secret.Bytes()) != *entry.SecretKey {
			t.Errorf("vault copy of %s diverged from the bundle entry", entry.Fingerprint)
		}
		secret.Zero()
	}

	// Merging again changes nothing.
	stats, err = receiver.MergeBundle(bundle)
	if err != nil {
		t.Fatalf("second MergeBundle failed: %v", err)
	}
	if stats.Skipped != 2 || stats.Imported != 0 {
		t.Errorf("second merge stats = %+v", stats)
	}
}

func TestMergeBundleUpgradesPublicOnlyKey(t *testing.T) {
	sender, _ := newTestKeyring(t)
	own, err := sender.GenerateOwnKey("Alice", "alice@example.org", engine.GenerateOptions{})
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}
	bundle, err := sender.ExportBundle(true)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	// The receiver already knows the public part as a plain contact.
	receiver, _ := newTestKeyring(t)
	if _, err := receiver.ImportPublicKey(own.PGPData); err != nil {
		t.Fatalf("receiver import failed: %v", err)
	}

	stats, err := receiver.MergeBundle(bundle)
	if err != nil {
		t.Fatalf("MergeBundle failed: %v", err)
	}
	if stats.Upgraded != 1 {
		t.Fatalf("merge stats = %+v, want one upgrade", stats)
	}
	rec, err := receiver.Get(own.Fingerprint)
	if err != nil {
		t.Fatalf("Get after upgrade failed: %v", err)
	}
	if !rec.IsOwnKey || rec.TrustLevel != model.TrustVerified {
		t.Errorf("upgraded record = own:%v trust:%v", rec.IsOwnKey, rec.TrustLevel)
	}
	if !receiver.HasSecretKey(own.Fingerprint) {
		t.Errorf("upgrade did not store the secret key")
	}
}

func TestListNeverObservesPartialMerge(t *testing.T) {
	sender, senderEng := newTestKeyring(t)
	if _, err := sender.GenerateOwnKey("Alice", "alice@example.org", engine.GenerateOptions{}); err != nil {
		t.Fatalf("sender generation failed: %v", err)
	}
	contact, _ := senderEng.GenerateKeyPair("Bob", "bob@example.org", engine.GenerateOptions{})
	if _, err := sender.ImportPublicKey([]byte(contact.PublicArmor)); err != nil {
		t.Fatalf("sender import failed: %v", err)
	}
	bundle, err := sender.ExportBundle(true)
	if err != nil {
		t.Fatalf("ExportBundle failed: %v", err)
	}

	// Every operation holds the keyring mutex, so a concurrent List must
	// see either none or all of the bundle, never a partial merge.
	receiver, _ := newTestKeyring(t)
	done := make(chan error, 1)
	go func() {
		_, err := receiver.MergeBundle(bundle)
		done <- err
	}()
	for {
		keys, err := receiver.List()
		if err != nil {
			t.Fatalf("List during merge failed: %v", err)
		}
		if n := len(keys); n != 0 && n != len(bundle.Keys) {
			t.Fatalf("List observed %d of %d keys mid-merge", n, len(bundle.Keys))
		}
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("MergeBundle failed: %v", err)
			}
			return
		default:
		}
	}
}

func TestRestoreFromBackup(t *testing.T) {
	kr, eng := newTestKeyring(t)
	gen, _ := eng.GenerateKeyPair("Restored", "restored@example.org", engine.GenerateOptions{})

	extracted := []backup.ExtractedKey{
		{
			Fingerprint: gen.Info.Fingerprint,
			Name:        gen.Info.Name,
			Email:       gen.Info.Email,
			PublicArmor: gen.PublicArmor,
			SecretArmor: security.FromBytes(gen.SecretArmor.Bytes()),
			HasSecret:   true,
		},
	}
	stats, err := kr.RestoreFromBackup(extracted)
	if err != nil {
		t.Fatalf("RestoreFromBackup failed: %v", err)
	}
	if stats.Imported != 1 {
		t.Fatalf("restore stats = %+v", stats)
	}
	rec, err := kr.Get(gen.Info.Fingerprint)
	if err != nil {
		t.Fatalf("Get after restore failed: %v", err)
	}
	if !rec.IsOwnKey || rec.TrustLevel != model.TrustVerified {
		t.Errorf("restored record = own:%v trust:%v", rec.IsOwnKey, rec.TrustLevel)
	}
	if !kr.HasSecretKey(gen.Info.Fingerprint) {
		t.Errorf("restore did not populate the vault")
	}

	// Restoring the same container again is a no-op.
	stats, err = kr.RestoreFromBackup(extracted)
	if err != nil {
		t.Fatalf("second restore failed: %v", err)
	}
	if stats.Skipped != 1 || stats.Imported != 0 {
		t.Errorf("second restore stats = %+v", stats)
	}
}
