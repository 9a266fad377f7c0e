// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package engine

import (
	"strings"
	"testing"
)

func TestGenerateAndInspect(t *testing.T) {
	e := NewPGPEngine()
	gen, err := e.GenerateKeyPair("Test User", "test@example.org", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if gen.Info.Fingerprint == "" {
		t.Fatal("expected a fingerprint")
	}
	if gen.Info.Name != "Test User" || gen.Info.Email != "test@example.org" {
		t.Errorf("identity mismatch: %+v", gen.Info)
	}
	if !strings.Contains(gen.PublicArmor, "PGP PUBLIC KEY BLOCK") {
		t.Errorf("public armor missing header")
	}
	if !strings.Contains(string(gen.SecretArmor.Bytes()), "PGP PRIVATE KEY BLOCK") {
		t.Errorf("secret armor missing header")
	}
	if !strings.Contains(gen.RevocationCert, "PGP PUBLIC KEY BLOCK") {
		t.Errorf("revocation cert missing armor header")
	}

	pubInfo, err := e.InspectKey([]byte(gen.PublicArmor))
	if err != nil {
		t.Fatalf("InspectKey(public) failed: %v", err)
	}
	if pubInfo.Fingerprint != gen.Info.Fingerprint {
		t.Errorf("public fingerprint %s != generated %s", pubInfo.Fingerprint, gen.Info.Fingerprint)
	}
	if pubInfo.HasSecret {
		t.Errorf("public key reported as secret")
	}

	secInfo, err := e.InspectKey(gen.SecretArmor.Bytes())
	if err != nil {
		t.Fatalf("InspectKey(secret) failed: %v", err)
	}
	if !secInfo.HasSecret {
		t.Errorf("secret key not reported as secret")
	}
}

func TestGenerateWithLifetime(t *testing.T) {
	e := NewPGPEngine()
	gen, err := e.GenerateKeyPair("Expiring", "exp@example.org", GenerateOptions{LifetimeSeconds: 86400 * 30})
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if gen.Info.ExpiresAt == nil {
		t.Fatal("expected an expiry time")
	}
	if !gen.Info.ExpiresAt.After(gen.Info.CreatedAt) {
		t.Errorf("expiry %v not after creation %v", gen.Info.ExpiresAt, gen.Info.CreatedAt)
	}
}

func TestInspectKeyRejectsGarbage(t *testing.T) {
	e := NewPGPEngine()
	if _, err := e.InspectKey([]byte("not a key")); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e := NewPGPEngine()
	gen, err := e.GenerateKeyPair("Recipient", "rcpt@example.org", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	plaintext := []byte("the eagle flies at midnight")
	ciphertext, err := e.Encrypt(plaintext, []string{gen.PublicArmor})
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if !strings.Contains(string(ciphertext), "PGP MESSAGE") {
		t.Errorf("ciphertext not armored")
	}

	decrypted, err := e.Decrypt(ciphertext, gen.SecretArmor, nil)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Errorf("round trip mismatch: %q", decrypted)
	}
}

func TestSignVerify(t *testing.T) {
	e := NewPGPEngine()
	gen, err := e.GenerateKeyPair("Signer", "sig@example.org", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	data := []byte("release artifact v1.2.3")
	sig, err := e.Sign(data, gen.SecretArmor, nil)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if err := e.Verify(data, sig, gen.PublicArmor); err != nil {
		t.Fatalf("Verify failed on valid signature: %v", err)
	}
	if err := e.Verify([]byte("tampered"), sig, gen.PublicArmor); err == nil {
		t.Fatal("Verify accepted a signature over different data")
	}
}

func TestSymmetricRoundTrip(t *testing.T) {
	e := NewPGPEngine()
	plaintext := []byte("bundle payload")
	pass := []byte("1234-5678-9012-3456-7890-1234")

	ciphertext, err := e.EncryptSymmetric(plaintext, pass)
	if err != nil {
		t.Fatalf("EncryptSymmetric failed: %v", err)
	}
	out, err := e.DecryptSymmetric(ciphertext, pass)
	if err != nil {
		t.Fatalf("DecryptSymmetric failed: %v", err)
	}
	if string(out) != string(plaintext) {
		t.Errorf("round trip mismatch: %q", out)
	}

	if _, err := e.DecryptSymmetric(ciphertext, []byte("wrong")); err == nil {
		t.Fatal("DecryptSymmetric accepted a wrong passphrase")
	}
}

func TestPublicArmorStripsSecret(t *testing.T) {
	e := NewPGPEngine()
	gen, err := e.GenerateKeyPair("Strip", "strip@example.org", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	pub, err := e.PublicArmor(gen.SecretArmor.Bytes())
	if err != nil {
		t.Fatalf("PublicArmor failed: %v", err)
	}
	if strings.Contains(pub, "PRIVATE KEY") {
		t.Errorf("PublicArmor leaked private material")
	}
	info, err := e.InspectKey([]byte(pub))
	if err != nil {
		t.Fatalf("InspectKey on derived public failed: %v", err)
	}
	if info.HasSecret {
		t.Errorf("derived public key still reports secret material")
	}
}
