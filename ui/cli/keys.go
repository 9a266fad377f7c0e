// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// keys.go holds the key management subcommands: generate, import,
// export, list, search, show, delete and trust.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/toeirei/keychainpgp/internal/db"
	"github.com/toeirei/keychainpgp/internal/engine"
	"github.com/toeirei/keychainpgp/internal/i18n"
	"github.com/toeirei/keychainpgp/internal/keyring"
	"github.com/toeirei/keychainpgp/internal/model"
)

var generateName string
var generateEmail string
var generateLifetimeDays int
var generateHighSecurity bool
var deleteForce bool

// generateCmd creates a new own key pair and stores it.
var generateCmd = &cobra.Command{
	Use:     "generate --name <name> --email <email>",
	Short:   "Generate a new key pair",
	Long:    `Generates a fresh OpenPGP key pair, stores the secret key in the vault and the public certificate in the database. A revocation certificate is created alongside and kept with the secret key.`,
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		if generateName == "" || generateEmail == "" {
			log.Fatalf("%s", i18n.T("generate.cli_error_identity"))
		}
		fmt.Println(i18n.T("generate.cli_generating"))
		kr := newKeyring()
		rec, err := kr.GenerateOwnKey(generateName, generateEmail, engine.GenerateOptions{
			LifetimeSeconds: int32(generateLifetimeDays) * 86400,
			HighSecurity:    generateHighSecurity,
		})
		if err != nil {
			log.Fatalf("%s", i18n.T("generate.cli_error", err))
		}
		fmt.Println(i18n.T("generate.cli_success", rec.Fingerprint))
	},
}

// importCmd reads a certificate from a file (or stdin) and stores it.
var importCmd = &cobra.Command{
	Use:     "import <key-file>",
	Short:   "Import a contact's public key",
	Long:    `Imports an armored or binary OpenPGP certificate. Use "-" to read from stdin. Imported keys start unverified; confirm the fingerprint out-of-band and promote them with 'trust'.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := readInput(args[0])
		if err != nil {
			log.Fatalf("%s", i18n.T("keys.cli_error_read", err))
		}
		kr := newKeyring()
		rec, err := kr.ImportPublicKey(data)
		if errors.Is(err, db.ErrDuplicate) {
			log.Fatalf("%s", i18n.T("keys.cli_duplicate"))
		}
		if err != nil {
			log.Fatalf("%s", i18n.T("keys.cli_error_import", err))
		}
		fmt.Println(i18n.T("keys.cli_imported"))
		printKeySummary(*rec, kr)
	},
}

// exportCmd writes the public certificate for a fingerprint.
var exportCmd = &cobra.Command{
	Use:     "export <fingerprint> [output-file]",
	Short:   "Export a public key",
	Long:    `Writes the armored public certificate for the given fingerprint to the output file, or to stdout when no file is given. Secret keys are never exported here; use 'sync export' to move own keys between devices.`,
	Args:    cobra.RangeArgs(1, 2),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		kr := newKeyring()
		rec, err := kr.Get(normalizeFingerprint(args[0]))
		if errors.Is(err, keyring.ErrNotFound) {
			log.Fatalf("%s", i18n.T("keys.cli_not_found"))
		}
		if err != nil {
			log.Fatalf("%v", err)
		}
		if len(args) == 2 {
			if err := os.WriteFile(args[1], rec.PGPData, 0644); err != nil {
				log.Fatalf("%s", i18n.T("keys.cli_error_write", err))
			}
			fmt.Println(i18n.T("keys.cli_exported", args[1]))
			return
		}
		fmt.Print(string(rec.PGPData))
	},
}

// listCmd prints all stored keys, own keys first.
var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all stored keys",
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		kr := newKeyring()
		keys, err := kr.List()
		if err != nil {
			log.Fatalf("%v", err)
		}
		printKeyTable(keys)
	},
}

// searchCmd matches keys by name, email or fingerprint fragment.
var searchCmd = &cobra.Command{
	Use:     "search <query>",
	Short:   "Search keys by name, email or fingerprint",
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		kr := newKeyring()
		keys, err := kr.Search(args[0])
		if err != nil {
			log.Fatalf("%v", err)
		}
		printKeyTable(keys)
	},
}

// showCmd prints the full details for one key.
var showCmd = &cobra.Command{
	Use:     "show <fingerprint>",
	Short:   "Show details for one key",
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		kr := newKeyring()
		rec, err := kr.Get(normalizeFingerprint(args[0]))
		if errors.Is(err, keyring.ErrNotFound) {
			log.Fatalf("%s", i18n.T("keys.cli_not_found"))
		}
		if err != nil {
			log.Fatalf("%v", err)
		}
		printKeySummary(*rec, kr)
	},
}

// deleteCmd removes a key from the database and the vault.
var deleteCmd = &cobra.Command{
	Use:     "delete <fingerprint>",
	Short:   "Delete a key everywhere",
	Long:    `Deletes the key's metadata row and, for own keys, the secret key and revocation certificate held in the vault. This cannot be undone; without a backup the secret key is gone for good.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		fp := normalizeFingerprint(args[0])
		kr := newKeyring()

		if !deleteForce {
			rec, err := kr.Get(fp)
			if errors.Is(err, keyring.ErrNotFound) {
				log.Fatalf("%s", i18n.T("keys.cli_not_found"))
			}
			if err != nil {
				log.Fatalf("%v", err)
			}
			if rec.IsOwnKey {
				fmt.Println(i18n.T("keys.cli_delete_own_warning"))
			}
			fmt.Print(i18n.T("keys.cli_delete_confirm", rec.Fingerprint))
			reader := bufio.NewReader(os.Stdin)
			input, _ := reader.ReadString('\n')
			input = strings.TrimSpace(strings.ToLower(input))
			if input != "yes" && input != "y" {
				fmt.Println(i18n.T("keys.cli_cancelled"))
				return
			}
		}

		found, err := kr.DeleteKey(fp)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if !found {
			fmt.Println(i18n.T("keys.cli_delete_missing"))
			return
		}
		fmt.Println(i18n.T("keys.cli_deleted"))
	},
}

// trustCmd updates the trust level of a stored key.
var trustCmd = &cobra.Command{
	Use:     "trust <fingerprint> <level>",
	Short:   "Set the trust level for a key",
	Long:    `Sets the trust level: "unknown" (0), "unverified" (1) or "verified" (2). Mark a key verified only after comparing the full fingerprint with its owner over a trusted channel.`,
	Args:    cobra.ExactArgs(2),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		level, ok := model.ParseTrustLevel(args[1])
		if !ok {
			log.Fatalf("%s", i18n.T("keys.cli_bad_trust", args[1]))
		}
		kr := newKeyring()
		found, err := kr.SetTrust(normalizeFingerprint(args[0]), level)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if !found {
			log.Fatalf("%s", i18n.T("keys.cli_not_found"))
		}
		fmt.Println(i18n.T("keys.cli_trust_updated"))
	},
}

// readInput reads a file argument, with "-" meaning stdin.
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// normalizeFingerprint strips spaces and upper-cases hex so users can
// paste fingerprints in any common formatting.
func normalizeFingerprint(fp string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(fp), " ", ""))
}

func printKeyTable(keys []model.KeyRecord) {
	if len(keys) == 0 {
		fmt.Println(i18n.T("keys.cli_no_keys"))
		return
	}
	for _, rec := range keys {
		marker := " "
		if rec.IsOwnKey {
			marker = "*"
		}
		fmt.Printf("%s %s  %-10s  %s <%s>\n", marker, rec.Fingerprint, rec.TrustLevel.String(), rec.Name, rec.Email)
	}
}

func printKeySummary(rec model.KeyRecord, kr *keyring.Keyring) {
	fmt.Printf("Fingerprint: %s\n", rec.Fingerprint)
	fmt.Printf("User ID:     %s <%s>\n", rec.Name, rec.Email)
	fmt.Printf("Algorithm:   %s\n", rec.Algorithm)
	fmt.Printf("Created:     %s\n", rec.CreatedAt.Format(time.RFC3339))
	if rec.ExpiresAt != nil {
		fmt.Printf("Expires:     %s\n", rec.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Printf("Trust:       %s\n", rec.TrustLevel.String())
	fmt.Printf("Own key:     %v\n", rec.IsOwnKey)
	if rec.IsOwnKey {
		fmt.Printf("Secret key:  %v\n", kr.HasSecretKey(rec.Fingerprint))
	}
}
