// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// crypto.go holds the message-level subcommands: encrypt, decrypt, sign,
// verify and inspect. Decrypt and sign consult the TTL passphrase cache
// so a passphrase given once keeps working for follow-up operations.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/toeirei/keychainpgp/internal/engine"
	"github.com/toeirei/keychainpgp/internal/i18n"
	"github.com/toeirei/keychainpgp/internal/keyring"
	"github.com/toeirei/keychainpgp/internal/state"
)

var cryptoPassphrase string
var signKeyFingerprint string

var (
	errNoOwnKeys     = errors.New("no own keys with secret material")
	errCannotDecrypt = errors.New("no own key could decrypt this message")
)

// resolvePassphrase picks the passphrase for unlocking a secret key: an
// explicit value wins, otherwise the TTL cache is consulted.
func resolvePassphrase(fingerprint, explicit string) []byte {
	if explicit != "" {
		return []byte(explicit)
	}
	return state.GetPassphrase(fingerprint)
}

// rememberPassphrase caches an explicitly supplied passphrase once it
// unlocked a key, so operations within the TTL skip the flag.
func rememberPassphrase(fingerprint, explicit string) {
	if explicit != "" {
		state.CachePassphrase(fingerprint, []byte(explicit))
	}
}

// decryptWithOwnKeys tries every own key against the ciphertext. The
// message does not say which key it was encrypted to, so each secret key
// gets a turn; the passphrase that worked is cached under the key that
// accepted it.
func decryptWithOwnKeys(kr *keyring.Keyring, ciphertext []byte, explicit string) ([]byte, error) {
	keys, err := kr.List()
	if err != nil {
		return nil, err
	}

	tried := 0
	for _, rec := range keys {
		if !rec.IsOwnKey {
			continue
		}
		secret, err := kr.GetSecretKey(rec.Fingerprint)
		if err != nil {
			continue
		}
		tried++
		plaintext, err := kr.Engine().Decrypt(ciphertext, secret, resolvePassphrase(rec.Fingerprint, explicit))
		secret.Zero()
		if err == nil {
			rememberPassphrase(rec.Fingerprint, explicit)
			return plaintext, nil
		}
	}

	if tried == 0 {
		return nil, errNoOwnKeys
	}
	return nil, errCannotDecrypt
}

// encryptCmd encrypts stdin to stored recipient keys.
var encryptCmd = &cobra.Command{
	Use:     "encrypt <recipient-fingerprint>...",
	Short:   "Encrypt stdin to one or more recipients",
	Long:    `Reads plaintext from stdin and writes an armored message for the given recipients to stdout. Every recipient's public key must already be in the keyring; import it first if it is not.`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		kr := newKeyring()
		recipients := make([]string, 0, len(args))
		for _, arg := range args {
			rec, err := kr.Get(normalizeFingerprint(arg))
			if errors.Is(err, keyring.ErrNotFound) {
				log.Fatalf("%s", i18n.T("crypto.cli_recipient_missing", arg))
			}
			if err != nil {
				log.Fatalf("%v", err)
			}
			recipients = append(recipients, string(rec.PGPData))
		}

		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("%s", i18n.T("crypto.cli_error_read", err))
		}
		out, err := kr.Engine().Encrypt(data, recipients)
		if err != nil {
			log.Fatalf("%s", i18n.T("crypto.cli_error_encrypt", err))
		}
		_, _ = os.Stdout.Write(out)
	},
}

// decryptCmd decrypts stdin with whichever own key the message fits.
var decryptCmd = &cobra.Command{
	Use:     "decrypt",
	Short:   "Decrypt a message from stdin",
	Long:    `Reads an OpenPGP message from stdin, tries every own key in the keyring and writes the plaintext to stdout. Pass --passphrase for a locked key; a passphrase that worked is cached for a while so repeated operations do not ask again.`,
	Args:    cobra.NoArgs,
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		ciphertext, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("%s", i18n.T("crypto.cli_error_read", err))
		}
		if len(ciphertext) == 0 {
			log.Fatalf("%s", i18n.T("crypto.cli_empty_stdin"))
		}

		plaintext, err := decryptWithOwnKeys(newKeyring(), ciphertext, cryptoPassphrase)
		switch {
		case errors.Is(err, errNoOwnKeys):
			log.Fatalf("%s", i18n.T("crypto.cli_no_own_keys"))
		case errors.Is(err, errCannotDecrypt):
			log.Fatalf("%s", i18n.T("crypto.cli_error_decrypt"))
		case err != nil:
			log.Fatalf("%v", err)
		}
		_, _ = os.Stdout.Write(plaintext)
	},
}

// signCmd produces a detached signature over stdin.
var signCmd = &cobra.Command{
	Use:     "sign",
	Short:   "Sign stdin with an own key",
	Long:    `Reads data from stdin and writes an armored detached signature to stdout. The signing key defaults to the first own key; pick another with --key. Pass --passphrase for a locked key; a passphrase that worked is cached for a while.`,
	Args:    cobra.NoArgs,
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		kr := newKeyring()
		fp := normalizeFingerprint(signKeyFingerprint)
		if fp == "" {
			keys, err := kr.List()
			if err != nil {
				log.Fatalf("%v", err)
			}
			for _, rec := range keys {
				if rec.IsOwnKey {
					fp = rec.Fingerprint
					break
				}
			}
			if fp == "" {
				log.Fatalf("%s", i18n.T("crypto.cli_no_own_keys"))
			}
		}

		secret, err := kr.GetSecretKey(fp)
		if errors.Is(err, keyring.ErrNoSecretKey) {
			log.Fatalf("%s", i18n.T("crypto.cli_no_secret_key", fp))
		}
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer secret.Zero()

		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("%s", i18n.T("crypto.cli_error_read", err))
		}
		signature, err := kr.Engine().Sign(data, secret, resolvePassphrase(fp, cryptoPassphrase))
		if err != nil {
			log.Fatalf("%s", i18n.T("crypto.cli_error_sign", err))
		}
		rememberPassphrase(fp, cryptoPassphrase)
		_, _ = os.Stdout.Write(signature)
	},
}

// verifyCmd checks a detached signature against a stored key.
var verifyCmd = &cobra.Command{
	Use:     "verify <signer> <data-file> <signature-file>",
	Short:   "Verify a detached signature",
	Long:    `Verifies the detached signature over the data file against the signer's stored public key. The signer can be given as a fingerprint, name or email fragment; use "-" for the data file to read from stdin.`,
	Args:    cobra.ExactArgs(3),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		kr := newKeyring()
		matches, err := kr.Search(args[0])
		if err != nil {
			log.Fatalf("%v", err)
		}
		if len(matches) == 0 {
			log.Fatalf("%s", i18n.T("crypto.cli_signer_missing", args[0]))
		}
		signer := matches[0]

		data, err := readInput(args[1])
		if err != nil {
			log.Fatalf("%s", i18n.T("crypto.cli_error_read", err))
		}
		signature, err := readInput(args[2])
		if err != nil {
			log.Fatalf("%s", i18n.T("crypto.cli_error_read", err))
		}

		if err := kr.Engine().Verify(data, signature, string(signer.PGPData)); err != nil {
			log.Fatalf("%s", i18n.T("crypto.cli_verify_bad", err))
		}
		fmt.Println(i18n.T("crypto.cli_verify_good", signer.Name, signer.Email))
		fmt.Println(i18n.T("crypto.cli_verify_trust", signer.TrustLevel.String()))
	},
}

// inspectCmd describes key material without importing it.
var inspectCmd = &cobra.Command{
	Use:     "inspect <key-file>",
	Short:   "Inspect key material without importing it",
	Long:    `Parses an armored or binary OpenPGP key and prints its metadata. Use "-" to read from stdin. Nothing is stored.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := readInput(args[0])
		if err != nil {
			log.Fatalf("%s", i18n.T("crypto.cli_error_read", err))
		}
		if len(data) == 0 {
			log.Fatalf("%s", i18n.T("crypto.cli_empty_input"))
		}

		info, err := engine.NewPGPEngine().InspectKey(data)
		if err != nil {
			log.Fatalf("%s", i18n.T("crypto.cli_error_parse", err))
		}

		keyType := "Public key"
		if info.HasSecret {
			keyType = "Secret key (contains private material)"
		}
		fmt.Printf("Type:        %s\n", keyType)
		fmt.Printf("Fingerprint: %s\n", info.Fingerprint)
		fmt.Printf("User ID:     %s <%s>\n", info.Name, info.Email)
		fmt.Printf("Algorithm:   %s\n", info.Algorithm)
		fmt.Printf("Created:     %s\n", info.CreatedAt.Format(time.RFC3339))
		if info.ExpiresAt != nil {
			fmt.Printf("Expires:     %s\n", info.ExpiresAt.Format(time.RFC3339))
		} else {
			fmt.Printf("Expires:     never\n")
		}
	},
}
