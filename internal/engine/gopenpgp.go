// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package engine

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/ProtonMail/gopenpgp/v3/constants"
	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/ProtonMail/gopenpgp/v3/profile"

	"github.com/toeirei/keychainpgp/internal/security"
)

// PGPEngine is the production CryptoEngine backed by gopenpgp. Asymmetric
// operations use the default profile; symmetric container operations pin
// the RFC 4880 profile so backups stay readable by the packet walker and
// by older implementations.
type PGPEngine struct {
	pgp *crypto.PGPHandle
	sym *crypto.PGPHandle
}

// NewPGPEngine constructs the production engine.
func NewPGPEngine() *PGPEngine {
	return &PGPEngine{
		pgp: crypto.PGPWithProfile(profile.Default()),
		sym: crypto.PGPWithProfile(profile.RFC4880()),
	}
}

// parseKey accepts armored or binary key material.
func parseKey(data []byte) (*crypto.Key, error) {
	var key *crypto.Key
	var err error
	if IsArmored(data) {
		key, err = crypto.NewKeyFromArmored(string(data))
	} else {
		key, err = crypto.NewKey(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyData, err)
	}
	return key, nil
}

// unlockIfNeeded returns an unlocked copy of the key when it carries an
// encrypted secret portion.
func unlockIfNeeded(key *crypto.Key, passphrase []byte) (*crypto.Key, error) {
	locked, err := key.IsLocked()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyData, err)
	}
	if !locked {
		return key, nil
	}
	unlocked, err := key.Unlock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock secret key: %w", err)
	}
	return unlocked, nil
}

// GenerateKeyPair creates a fresh key pair plus a revocation certificate.
func (e *PGPEngine) GenerateKeyPair(name, email string, opts GenerateOptions) (*GeneratedKey, error) {
	gen := e.pgp.KeyGeneration().AddUserId(name, email)
	if opts.LifetimeSeconds > 0 {
		gen = gen.Lifetime(opts.LifetimeSeconds)
	}
	level := constants.StandardSecurity
	if opts.HighSecurity {
		level = constants.HighSecurity
	}
	key, err := gen.New().GenerateKeyWithSecurity(level)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	defer key.ClearPrivateParams()

	secretArmor, err := key.Armor()
	if err != nil {
		return nil, fmt.Errorf("failed to armor secret key: %w", err)
	}
	pub, err := key.ToPublic()
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	publicArmor, err := pub.Armor()
	if err != nil {
		return nil, fmt.Errorf("failed to armor public key: %w", err)
	}
	info, err := keyToInfo(key)
	if err != nil {
		return nil, err
	}
	// Must run after the key has been armored: it appends a revocation
	// signature to the in-memory entity.
	revocation, err := revocationCertificate(key)
	if err != nil {
		return nil, err
	}

	return &GeneratedKey{
		Info:           *info,
		PublicArmor:    publicArmor,
		SecretArmor:    security.FromString(secretArmor),
		RevocationCert: revocation,
	}, nil
}

// InspectKey parses key material and returns its descriptive metadata.
func (e *PGPEngine) InspectKey(data []byte) (*KeyInfo, error) {
	key, err := parseKey(data)
	if err != nil {
		return nil, err
	}
	defer key.ClearPrivateParams()
	return keyToInfo(key)
}

// PublicArmor returns the armored public portion of any key material.
func (e *PGPEngine) PublicArmor(data []byte) (string, error) {
	key, err := parseKey(data)
	if err != nil {
		return "", err
	}
	defer key.ClearPrivateParams()
	pub, err := key.ToPublic()
	if err != nil {
		return "", fmt.Errorf("failed to derive public key: %w", err)
	}
	return pub.Armor()
}

// Encrypt encrypts data to all given armored recipients.
func (e *PGPEngine) Encrypt(data []byte, recipientArmors []string) ([]byte, error) {
	if len(recipientArmors) == 0 {
		return nil, fmt.Errorf("no recipients given")
	}
	var ring *crypto.KeyRing
	for _, arm := range recipientArmors {
		key, err := parseKey([]byte(arm))
		if err != nil {
			return nil, err
		}
		if ring == nil {
			ring, err = crypto.NewKeyRing(key)
		} else {
			err = ring.AddKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyData, err)
		}
	}
	enc, err := e.pgp.Encryption().Recipients(ring).New()
	if err != nil {
		return nil, fmt.Errorf("failed to build encryptor: %w", err)
	}
	msg, err := enc.Encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}
	return msg.ArmorBytes()
}

// Decrypt decrypts a message with the given secret key.
func (e *PGPEngine) Decrypt(data []byte, secret security.Secret, passphrase []byte) ([]byte, error) {
	key, err := parseKey(secret.Bytes())
	if err != nil {
		return nil, err
	}
	defer key.ClearPrivateParams()
	key, err = unlockIfNeeded(key, passphrase)
	if err != nil {
		return nil, err
	}
	dec, err := e.pgp.Decryption().DecryptionKey(key).New()
	if err != nil {
		return nil, fmt.Errorf("failed to build decryptor: %w", err)
	}
	res, err := dec.Decrypt(data, crypto.Auto)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return res.Bytes(), nil
}

// Sign produces an armored detached signature over data.
func (e *PGPEngine) Sign(data []byte, secret security.Secret, passphrase []byte) ([]byte, error) {
	key, err := parseKey(secret.Bytes())
	if err != nil {
		return nil, err
	}
	defer key.ClearPrivateParams()
	key, err = unlockIfNeeded(key, passphrase)
	if err != nil {
		return nil, err
	}
	signer, err := e.pgp.Sign().SigningKey(key).Detached().New()
	if err != nil {
		return nil, fmt.Errorf("failed to build signer: %w", err)
	}
	defer signer.ClearPrivateParams()
	sig, err := signer.Sign(data, crypto.Armor)
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	return sig, nil
}

// Verify checks an armored detached signature against a certificate.
func (e *PGPEngine) Verify(data, signature []byte, publicArmor string) error {
	key, err := parseKey([]byte(publicArmor))
	if err != nil {
		return err
	}
	verifier, err := e.pgp.Verify().VerificationKey(key).New()
	if err != nil {
		return fmt.Errorf("failed to build verifier: %w", err)
	}
	result, err := verifier.VerifyDetached(data, signature, crypto.Armor)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	if sigErr := result.SignatureError(); sigErr != nil {
		return fmt.Errorf("signature invalid: %w", sigErr)
	}
	return nil
}

// EncryptSymmetric password-encrypts data into a binary OpenPGP message.
func (e *PGPEngine) EncryptSymmetric(data, passphrase []byte) ([]byte, error) {
	enc, err := e.sym.Encryption().Password(passphrase).New()
	if err != nil {
		return nil, fmt.Errorf("failed to build encryptor: %w", err)
	}
	msg, err := enc.Encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("symmetric encryption failed: %w", err)
	}
	return msg.Bytes(), nil
}

// DecryptSymmetric reverses EncryptSymmetric with the exact passphrase.
func (e *PGPEngine) DecryptSymmetric(data, passphrase []byte) ([]byte, error) {
	dec, err := e.sym.Decryption().Password(passphrase).New()
	if err != nil {
		return nil, fmt.Errorf("failed to build decryptor: %w", err)
	}
	res, err := dec.Decrypt(data, crypto.Auto)
	if err != nil {
		return nil, fmt.Errorf("symmetric decryption failed: %w", err)
	}
	return res.Bytes(), nil
}

// keyToInfo extracts the descriptive metadata from a parsed key.
func keyToInfo(key *crypto.Key) (*KeyInfo, error) {
	ent := key.GetEntity()
	if ent == nil || ent.PrimaryKey == nil {
		return nil, ErrInvalidKeyData
	}
	info := &KeyInfo{
		Fingerprint: strings.ToUpper(hex.EncodeToString(ent.PrimaryKey.Fingerprint)),
		Algorithm:   pubKeyAlgoName(ent.PrimaryKey.PubKeyAlgo),
		CreatedAt:   ent.PrimaryKey.CreationTime,
		HasSecret:   key.IsPrivate(),
	}
	for _, ident := range ent.Identities {
		info.Name = ident.UserId.Name
		info.Email = ident.UserId.Email
		if sig, err := ident.LatestValidSelfCertification(time.Now(), nil); err == nil && sig != nil {
			if sig.KeyLifetimeSecs != nil && *sig.KeyLifetimeSecs > 0 {
				exp := ent.PrimaryKey.CreationTime.Add(time.Duration(*sig.KeyLifetimeSecs) * time.Second)
				info.ExpiresAt = &exp
			}
		}
		break
	}
	return info, nil
}

// pubKeyAlgoName maps the wire algorithm ID to a display name.
func pubKeyAlgoName(algo packet.PublicKeyAlgorithm) string {
	switch algo {
	case packet.PubKeyAlgoRSA, packet.PubKeyAlgoRSAEncryptOnly, packet.PubKeyAlgoRSASignOnly:
		return "RSA"
	case packet.PubKeyAlgoDSA:
		return "DSA"
	case packet.PubKeyAlgoElGamal:
		return "ElGamal"
	case packet.PubKeyAlgoECDSA:
		return "ECDSA"
	case packet.PubKeyAlgoECDH:
		return "ECDH"
	case packet.PubKeyAlgoEdDSA:
		return "EdDSA"
	case packet.PubKeyAlgoEd25519:
		return "Ed25519"
	case packet.PubKeyAlgoX25519:
		return "X25519"
	case packet.PubKeyAlgoEd448:
		return "Ed448"
	case packet.PubKeyAlgoX448:
		return "X448"
	default:
		return fmt.Sprintf("unknown(%d)", int(algo))
	}
}
