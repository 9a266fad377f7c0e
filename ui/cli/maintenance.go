// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// maintenance.go holds the operational commands: database backup and
// restore, cross-backend migration, maintenance, the panic wipe and the
// clipboard watcher.

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"github.com/toeirei/keychainpgp/internal/clipboard"
	"github.com/toeirei/keychainpgp/internal/db"
	"github.com/toeirei/keychainpgp/internal/i18n"
	"github.com/toeirei/keychainpgp/internal/model"
	"github.com/toeirei/keychainpgp/internal/state"
)

// backupCmd dumps the key metadata and audit log into a compressed file.
var backupCmd = &cobra.Command{
	Use:   "backup [output-file]",
	Short: "Create a compressed (zstd) JSON backup of the database",
	Long: `Dumps the key metadata and audit log into a single, Zstandard-compressed
JSON file. Secret keys are NOT included; they stay in the vault. Back up the
data directory separately to capture them.

If no output file is specified, a default filename
'keychainpgp-backup-YYYY-MM-DD.json.zst' is used.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		var outputFile string
		if len(args) == 0 {
			outputFile = fmt.Sprintf("keychainpgp-backup-%s.json.zst", time.Now().Format("2006-01-02"))
		} else {
			outputFile = args[0]
			if !strings.HasSuffix(outputFile, ".zst") {
				outputFile += ".zst"
			}
		}
		fmt.Println(i18n.T("backup.cli_starting"))
		data, err := db.ExportDataForBackup()
		if err != nil {
			log.Fatalf("%s", i18n.T("backup.cli_error_export", err))
		}
		if err := writeCompressedBackup(outputFile, data); err != nil {
			log.Fatalf("%s", i18n.T("backup.cli_error_write", err))
		}
		fmt.Println(i18n.T("backup.cli_success", outputFile))
	},
}

// restoreDbCmd restores the database from a compressed JSON backup file.
var restoreDbCmd = &cobra.Command{
	Use:   "restore-db <backup-file.zst>",
	Short: "Restore the database from a compressed JSON backup",
	Long: `Restores the key metadata database from a Zstandard-compressed JSON backup
file. Existing rows are replaced.

WARNING: this is destructive and not reversible. It is intended for disaster
recovery or for migrating between database backends.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(i18n.T("restore_db.cli_starting"))
		data, err := readCompressedBackup(args[0])
		if err != nil {
			log.Fatalf("%s", i18n.T("restore_db.cli_error_read", err))
		}
		if err := db.ImportDataFromBackup(data); err != nil {
			log.Fatalf("%s", i18n.T("restore_db.cli_error_import", err))
		}
		fmt.Println(i18n.T("restore_db.cli_success"))
	},
}

// readCompressedBackup handles reading and decoding a zstd-compressed
// JSON backup file.
func readCompressedBackup(filename string) (*model.BackupData, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	zstdReader, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("could not create zstd reader: %w", err)
	}
	defer zstdReader.Close()

	var backupData model.BackupData
	if err := json.NewDecoder(zstdReader).Decode(&backupData); err != nil {
		return nil, fmt.Errorf("could not decode json from zstd reader: %w", err)
	}

	return &backupData, nil
}

// writeCompressedBackup streams the JSON encoding directly to the zstd
// writer for memory efficiency.
func writeCompressedBackup(filename string, data *model.BackupData) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer func() { _ = file.Close() }()

	zstdWriter, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("could not create zstd writer: %w", err)
	}
	defer func() { _ = zstdWriter.Close() }()

	encoder := json.NewEncoder(zstdWriter)
	encoder.SetIndent("", "  ") // Pretty-print the JSON inside the compressed file

	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("could not encode json to zstd writer: %w", err)
	}

	return nil
}

// migrateCmd moves all data from the current database to a new backend.
var migrateCmd = &cobra.Command{
	Use:   "migrate --database.type <db-type> --database.dsn <target-dsn>",
	Short: "Migrate data from the current database to a new one",
	Long: `Performs a database migration by exporting all data from the current
database and importing it into a new target database.

This command automates the following steps:
1. Exports data from the source database in-memory.
2. Connects to the target database specified by --database.type and --database.dsn.
3. Applies all necessary database schema migrations to the target.
4. Performs a full, destructive restore into the target database.

Example:
  keychainpgp migrate --database.type postgres --database.dsn "host=localhost user=kcpgp dbname=kcpgp"`,
	PreRunE: setupDefaultServices,
	RunE: func(cmd *cobra.Command, args []string) error {
		targetType, _ := cmd.Flags().GetString("database.type")
		targetDsn, _ := cmd.Flags().GetString("database.dsn")
		if !cmd.Flags().Changed("database.type") || !cmd.Flags().Changed("database.dsn") || targetType == "" || targetDsn == "" {
			log.Fatalf("%s", i18n.T("migrate.cli_error_flags"))
		}

		fmt.Println(i18n.T("migrate.cli_starting"))
		data, err := db.ExportDataForBackup()
		if err != nil {
			log.Fatalf("%s", i18n.T("backup.cli_error_export", err))
		}
		target, err := db.NewStoreFromDSN(targetType, targetDsn)
		if err != nil {
			log.Fatalf("%s", i18n.T("config.error_init_db", err))
		}
		if err := target.ImportDataFromBackup(data); err != nil {
			log.Fatalf("%s", i18n.T("restore_db.cli_error_import", err))
		}
		fmt.Println(i18n.T("migrate.cli_success"))
		return nil
	},
}

// dbMaintainCmd runs backend-specific maintenance on the database.
var dbMaintainCmd = &cobra.Command{
	Use:     "db-maintain",
	Short:   "Run database maintenance (vacuum, optimize, integrity check)",
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(i18n.T("maintenance.cli_starting"))
		if err := db.RunDBMaintenance(appConfig.Database.Type, appConfig.Database.Dsn); err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println(i18n.T("maintenance.cli_success"))
	},
}

// wipeCmd is the panic button: it clears every in-memory cache and the
// system clipboard. Its own PersistentPreRunE shadows the root's service
// setup; wiping must work even when the config or database is broken.
var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Wipe cached passphrases, secret material and the clipboard",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		state.WipeAll()
		if err := clipboard.Clear(); err != nil {
			log.Warnf("could not clear the clipboard: %v", err)
		}
		fmt.Println(i18n.T("wipe.cli_done"))
	},
}

// watchCmd monitors the clipboard and reports PGP content.
var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Watch the clipboard for PGP content",
	PreRunE: setupDefaultServices,
	Run: func(cmd *cobra.Command, args []string) {
		monitor := clipboard.NewMonitor(time.Duration(appConfig.Clipboard.PollMs) * time.Millisecond)
		monitor.Start()
		defer monitor.Stop()

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)

		fmt.Println(i18n.T("watch.cli_started"))
		for {
			select {
			case <-interrupt:
				return
			case ev, ok := <-monitor.Events():
				if !ok {
					return
				}
				switch ev.Kind {
				case clipboard.EventPGPDetected:
					fmt.Println(i18n.T("watch.event_pgp", string(ev.Block)))
				case clipboard.EventTextChanged:
					fmt.Println(i18n.T("watch.event_text", len(ev.Content)))
				case clipboard.EventCleared:
					fmt.Println(i18n.T("watch.event_empty"))
				}
			}
		}
	},
}
