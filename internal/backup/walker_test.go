// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/toeirei/keychainpgp/internal/engine"
)

var (
	fixtureOnce sync.Once
	fixtureKey  *engine.GeneratedKey
	fixtureErr  error
)

// testKey generates one real key pair shared by all fixture tests.
func testKey(t *testing.T) *engine.GeneratedKey {
	t.Helper()
	fixtureOnce.Do(func() {
		fixtureKey, fixtureErr = engine.NewPGPEngine().GenerateKeyPair(
			"Backup Fixture", "backup@example.org", engine.GenerateOptions{})
	})
	if fixtureErr != nil {
		t.Fatalf("fixture key generation failed: %v", fixtureErr)
	}
	return fixtureKey
}

// makeContainer symmetric-encrypts the fixture secret key ring.
func makeContainer(t *testing.T, passphrase string) []byte {
	t.Helper()
	key := testKey(t)
	payload, err := engine.Unarmor(key.SecretArmor.Bytes())
	if err != nil {
		t.Fatalf("unarmor fixture key: %v", err)
	}
	container, err := engine.NewPGPEngine().EncryptSymmetric(payload, []byte(passphrase))
	if err != nil {
		t.Fatalf("fixture encryption failed: %v", err)
	}
	return container
}

// armorMessage wraps a binary message in standard PGP MESSAGE armor.
func armorMessage(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, "PGP MESSAGE", nil)
	if err != nil {
		t.Fatalf("armor encode: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("armor write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("armor close: %v", err)
	}
	return buf.Bytes()
}

func TestCandidatePasswords(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"123456789012", []string{"123456789012", "1234-5678-9012", "1234 5678 9012"}},
		{"1234-5678-9012", []string{"123456789012", "1234-5678-9012", "1234 5678 9012"}},
		{"1234 5678 9012", []string{"123456789012", "1234-5678-9012", "1234 5678 9012"}},
		{"hunter2", []string{"2", "hunter2"}},
		{"no digits here", []string{"no digits here"}},
		{"", nil},
	}
	for _, tc := range cases {
		got := CandidatePasswords(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("CandidatePasswords(%q) = %d candidates, want %d", tc.in, len(got), len(tc.want))
			continue
		}
		for i := range got {
			if string(got[i]) != tc.want[i] {
				t.Errorf("CandidatePasswords(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestOpenWithFormattedTransferCode(t *testing.T) {
	container := makeContainer(t, "123456789012")

	// The user types the grouped form; the stored password is digits-only.
	payload, err := Open(container, "1234-5678-9012")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	keys, err := ExtractKeys(payload)
	if err != nil {
		t.Fatalf("ExtractKeys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(keys))
	}
	if keys[0].Fingerprint != testKey(t).Info.Fingerprint {
		t.Errorf("fingerprint mismatch: got %s", keys[0].Fingerprint)
	}
	if !keys[0].HasSecret {
		t.Errorf("secret part lost in backup round trip")
	}
	if keys[0].Email != "backup@example.org" {
		t.Errorf("email = %q", keys[0].Email)
	}
}

func TestOpenWithRawPassphrase(t *testing.T) {
	container := makeContainer(t, "correct horse battery")
	if _, err := Open(container, "correct horse battery"); err != nil {
		t.Fatalf("Open with raw passphrase failed: %v", err)
	}
}

func TestOpenArmoredContainer(t *testing.T) {
	container := makeContainer(t, "123456789012")
	armored := armorMessage(t, container)
	if _, err := Open(armored, "123456789012"); err != nil {
		t.Fatalf("Open with armored container failed: %v", err)
	}
}

func TestOpenWrongCode(t *testing.T) {
	container := makeContainer(t, "123456789012")
	_, err := Open(container, "000000000000")
	if !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Open with wrong code = %v, want ErrDecryptionFailed", err)
	}
}

func TestOpenRejectsUnencryptedInput(t *testing.T) {
	key := testKey(t)
	payload, err := engine.Unarmor([]byte(key.PublicArmor))
	if err != nil {
		t.Fatalf("unarmor: %v", err)
	}
	if _, err := Open(payload, "123456789012"); !errors.Is(err, ErrNoEncryptedData) {
		t.Fatalf("Open on plain key ring = %v, want ErrNoEncryptedData", err)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	if _, err := Open([]byte("not a pgp stream"), "123456789012"); !errors.Is(err, ErrNoEncryptedData) {
		t.Fatalf("Open on garbage = %v, want ErrNoEncryptedData", err)
	}
}

func TestDecompressAlgorithms(t *testing.T) {
	plain := []byte("key ring bytes")

	var zlibBuf bytes.Buffer
	zw := zlib.NewWriter(&zlibBuf)
	zw.Write(plain)
	zw.Close()

	var flateBuf bytes.Buffer
	fw, err := flate.NewWriter(&flateBuf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate writer: %v", err)
	}
	fw.Write(plain)
	fw.Close()

	cases := []struct {
		name     string
		contents []byte
	}{
		{"uncompressed", append([]byte{compressionNone}, plain...)},
		{"zip", append([]byte{compressionZIP}, flateBuf.Bytes()...)},
		{"zlib", append([]byte{compressionZLIB}, zlibBuf.Bytes()...)},
	}
	for _, tc := range cases {
		got, err := decompress(tc.contents)
		if err != nil {
			t.Errorf("decompress(%s) failed: %v", tc.name, err)
			continue
		}
		if !bytes.Equal(got, plain) {
			t.Errorf("decompress(%s) content mismatch", tc.name)
		}
	}

	if _, err := decompress([]byte{99, 1, 2, 3}); err == nil {
		t.Errorf("unknown compression algorithm accepted")
	}
	if _, err := decompress(nil); err == nil {
		t.Errorf("empty compressed packet accepted")
	}
}
