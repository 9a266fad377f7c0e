// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// transfer.go holds the device-to-device commands: sync export, sync
// import and the legacy backup restore.

package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/toeirei/keychainpgp/internal/backup"
	"github.com/toeirei/keychainpgp/internal/i18n"
	"github.com/toeirei/keychainpgp/internal/transfer"
)

var syncPublicOnly bool

// syncExportCmd builds an encrypted transfer bundle of the whole keyring
// and writes its QR part strings.
var syncExportCmd = &cobra.Command{
	Use:   "export [output-file]",
	Short: "Export the keyring as an encrypted transfer bundle",
	Long: `Bundles all keys (own keys with their secret part, unless --public-only),
encrypts the bundle with a one-time transfer passphrase and splits the result
into QR-sized parts, one per line. The passphrase is printed separately and is
never part of the bundle; show it to the receiving device out-of-band or as
its own QR code.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		kr := newKeyring()
		bundle, err := kr.ExportBundle(!syncPublicOnly)
		if err != nil {
			log.Fatalf("%s", i18n.T("sync.cli_error_export", err))
		}

		passphrase, err := transfer.GeneratePassphrase()
		if err != nil {
			log.Fatalf("%s", i18n.T("sync.cli_error_export", err))
		}
		parts, err := transfer.EncodeBundle(bundle, kr.Engine(), passphrase)
		if err != nil {
			log.Fatalf("%s", i18n.T("sync.cli_error_export", err))
		}

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
			if err != nil {
				log.Fatalf("%s", i18n.T("sync.cli_error_write", err))
			}
			defer func() { _ = f.Close() }()
			out = f
		}
		for _, part := range parts {
			fmt.Fprintln(out, part)
		}

		fmt.Println(i18n.T("sync.cli_export_done"))
		fmt.Println(i18n.T("sync.cli_passphrase", passphrase))
		fmt.Println(i18n.T("sync.cli_passphrase_qr", transfer.PassphraseQR(passphrase)))
	},
}

// syncImportCmd reads scanned bundle parts and merges them in.
var syncImportCmd = &cobra.Command{
	Use:   "import <parts-file>",
	Short: "Import a scanned transfer bundle",
	Long: `Reads scanned QR part strings (one per line; "-" for stdin) and merges the
bundle into the keyring. A KCPGP-PASS line in the input supplies the transfer
passphrase; otherwise it is prompted for. Parts may appear in any order.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := readInput(args[0])
		if err != nil {
			log.Fatalf("%s", i18n.T("sync.cli_error_read", err))
		}

		var parts []string
		var passphrase string
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if pass, ok := transfer.ParsePassphraseQR(line); ok {
				passphrase = pass
				continue
			}
			parts = append(parts, line)
		}
		if passphrase == "" {
			passphrase = promptSecret(i18n.T("sync.cli_prompt_code"))
		}

		kr := newKeyring()
		bundle, err := transfer.DecodeBundle(parts, kr.Engine(), passphrase)
		if err != nil {
			log.Fatalf("%s", i18n.T("sync.cli_error_import", err))
		}
		stats, err := kr.MergeBundle(bundle)
		if err != nil {
			log.Fatalf("%s", i18n.T("sync.cli_error_import", err))
		}
		fmt.Println(i18n.T("sync.cli_import_done"))
		fmt.Println(i18n.T("sync.cli_stats", stats.Imported, stats.Upgraded, stats.Skipped))
	},
}

// restoreCmd recovers keys from a legacy symmetric backup container.
var restoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Restore keys from a legacy backup container",
	Long: `Decrypts an old-format backup container with its numeric transfer code and
merges the recovered keys into the keyring. The code may be entered with or
without dashes or spaces; all common renderings are tried.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		container, err := readInput(args[0])
		if err != nil {
			log.Fatalf("%s", i18n.T("restore.cli_error_read", err))
		}
		code := promptSecret(i18n.T("restore.cli_prompt_code"))

		payload, err := backup.Open(container, code)
		if err != nil {
			log.Fatalf("%v", err)
		}
		keys, err := backup.ExtractKeys(payload)
		if err != nil {
			log.Fatalf("%v", err)
		}

		kr := newKeyring()
		stats, err := kr.RestoreFromBackup(keys)
		if err != nil {
			log.Fatalf("%s", i18n.T("restore.cli_error_import", err))
		}
		fmt.Println(i18n.T("restore.cli_success"))
		fmt.Println(i18n.T("sync.cli_stats", stats.Imported, stats.Upgraded, stats.Skipped))
	},
}

// promptSecret reads a secret from the terminal without echo, falling
// back to a plain line read when stdin is not a terminal.
func promptSecret(prompt string) string {
	fmt.Print(prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			log.Fatalf("%v", err)
		}
		return strings.TrimSpace(string(raw))
	}
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
