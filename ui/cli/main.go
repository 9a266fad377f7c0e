// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface (CLI) for the KeychainPGP
// application using the Cobra library. It defines the root command,
// subcommands (like generate, sync, restore), flags, and the main entry
// point for execution.

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toeirei/keychainpgp/buildvars"
	"github.com/toeirei/keychainpgp/internal/config"
	"github.com/toeirei/keychainpgp/internal/db"
	"github.com/toeirei/keychainpgp/internal/engine"
	"github.com/toeirei/keychainpgp/internal/i18n"
	"github.com/toeirei/keychainpgp/internal/keyring"
	"github.com/toeirei/keychainpgp/internal/logging"
	"github.com/toeirei/keychainpgp/internal/state"
	"github.com/toeirei/keychainpgp/internal/vault"
)

var version = "dev"   // this will be set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)
var cfgFile string
var verbose bool
var showVersionFlag bool

var appConfig config.Config

func setupDefaultServices(cmd *cobra.Command, args []string) error {
	// Load optional config file argument from cli
	optionalConfigPath, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}

	defaults := map[string]any{
		"database.type":          "sqlite",
		"database.dsn":           "",
		"data_dir":               config.DefaultDataDir(),
		"language":               "en",
		"passphrase_ttl_seconds": 300,
		"clipboard.poll_ms":      500,
	}

	appConfig, err = config.LoadConfig[config.Config](cmd, defaults, optionalConfigPath)
	// A "file not found" error is expected on first run, so we handle it
	// specifically and write a default config for subsequent runs.
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		if writeErr := config.WriteConfigFile(&appConfig, false); writeErr != nil {
			log.Warnf("Warning: could not write default config file: %v", writeErr)
		}
	} else if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// Post-process config to ensure critical values are not empty, falling
	// back to defaults. This handles config files with empty values.
	if appConfig.Database.Type == "" {
		appConfig.Database.Type = defaults["database.type"].(string)
	}
	if appConfig.DataDir == "" {
		appConfig.DataDir = defaults["data_dir"].(string)
	}
	if appConfig.Database.Dsn == "" {
		appConfig.Database.Dsn = defaultDSN()
	}
	if appConfig.Language == "" {
		appConfig.Language = defaults["language"].(string)
	}
	if appConfig.PassphraseTTLSeconds <= 0 {
		appConfig.PassphraseTTLSeconds = defaults["passphrase_ttl_seconds"].(int)
	}
	if appConfig.Clipboard.PollMs <= 0 {
		appConfig.Clipboard.PollMs = defaults["clipboard.poll_ms"].(int)
	}

	// The vault and the default sqlite DSN both live under the data
	// directory; make sure it exists before anything opens it.
	if err := os.MkdirAll(appConfig.DataDir, 0700); err != nil {
		return fmt.Errorf("could not create data directory %s: %w", appConfig.DataDir, err)
	}

	// Initialize i18n
	i18n.Init(appConfig.Language)

	state.SetPassphraseTTL(time.Duration(appConfig.PassphraseTTLSeconds) * time.Second)

	// Initialize the database if not already initialized by tests or
	// earlier setup.
	if !db.IsInitialized() {
		if err := db.InitDB(appConfig.Database.Type, appConfig.Database.Dsn); err != nil {
			return errors.New(i18n.T("config.error_init_db", err))
		}
	}

	return nil
}

// defaultDSN places the sqlite database inside the data directory.
func defaultDSN() string {
	return filepath.Join(appConfig.DataDir, "keychainpgp.db")
}

// newKeyring assembles the keyring over the configured store, vault and
// the production crypto engine. Call only after setupDefaultServices.
func newKeyring() *keyring.Keyring {
	return keyring.New(
		db.DefaultStore(),
		vault.New(appConfig.DataDir, appConfig.Portable),
		engine.NewPGPEngine(),
	)
}

// Execute runs the CLI entrypoint. The root main package should call this
// function and handle process exit.
func Execute() error {
	rootCmd := NewRootCmd()
	return rootCmd.Execute()
}

func applyDefaultFlags(cmd *cobra.Command) {
	// Avoid redefining flags if they already exist (NewRootCmd may be
	// called multiple times in tests which creates a new root but uses
	// package-level subcommands). pflag will panic on duplicate flag
	// definitions, so check first.
	if cmd.Flags().Lookup("database.type") == nil {
		cmd.Flags().String("database.type", "sqlite", "Database type (e.g., sqlite, postgres)")
	}
	if cmd.Flags().Lookup("database.dsn") == nil {
		cmd.Flags().String("database.dsn", "", "Database connection string (DSN)")
	}
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	// Only proceed if the user has explicitly set the --config flag.
	if cmd.Flags().Changed("config") {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return nil, fmt.Errorf("could not read --config flag: %w", err)
		}
		if path == "" {
			return nil, nil
		}
		// Make sure the user-provided file exists to avoid unwanted behavior.
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
		}
		return &path, nil
	}
	return nil, nil
}

// NewRootCmd creates and configures a new root cobra command. This
// function is used to create the main application command as well as
// fresh instances for isolated testing.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keychainpgp",
		Short: "KeychainPGP is a local-first OpenPGP keyring manager.",
		Long: `KeychainPGP manages OpenPGP keys on a single device. Key metadata and
public certificates live in a database; secret keys go to the OS
credential manager with an encrypted file fallback. Keys move between
devices via QR-coded transfer bundles, never through a server.

Running without a subcommand prints this help.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if showVersionFlag {
				v, c, d := resolveBuildVersion(nil)
				compositeVersion := v
				if c != "" && c != "dev" {
					compositeVersion = compositeVersion + " (" + c + ")"
				}
				if d != "" {
					compositeVersion = compositeVersion + " built: " + d
				}
				fmt.Printf("%s\n", compositeVersion)
				os.Exit(0)
			}
			if verbose {
				logging.SetDebug(true)
				db.SetDebug(true)
			}
			return setupDefaultServices(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	v, c, d := resolveBuildVersion(nil)
	compositeVersion := v
	if c != "" && c != "dev" {
		compositeVersion = compositeVersion + " (" + c + ")"
	}
	if d != "" {
		compositeVersion = compositeVersion + " built: " + d
	}
	cmd.Version = compositeVersion

	// Define flags
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (sets -v for DB logs)")
	cmd.PersistentFlags().BoolVarP(&showVersionFlag, "version", "V", false, "Print version and exit")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	cmd.PersistentFlags().String("language", "en", `output language ("en")`)
	applyDefaultFlags(cmd)

	// Add subcommand flags
	applyDefaultFlags(generateCmd)
	if generateCmd.Flags().Lookup("name") == nil {
		generateCmd.Flags().StringVar(&generateName, "name", "", "Name for the key's user ID")
		generateCmd.Flags().StringVar(&generateEmail, "email", "", "Email for the key's user ID")
		generateCmd.Flags().IntVar(&generateLifetimeDays, "lifetime-days", 0, "Key lifetime in days (0 means the key never expires)")
		generateCmd.Flags().BoolVar(&generateHighSecurity, "high-security", false, "Use the larger, slower key profile")
	}
	applyDefaultFlags(importCmd)
	applyDefaultFlags(exportCmd)
	applyDefaultFlags(listCmd)
	applyDefaultFlags(searchCmd)
	applyDefaultFlags(showCmd)
	applyDefaultFlags(deleteCmd)
	if deleteCmd.Flags().Lookup("force") == nil {
		deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "Delete without asking for confirmation")
	}
	applyDefaultFlags(trustCmd)
	applyDefaultFlags(encryptCmd)
	applyDefaultFlags(decryptCmd)
	if decryptCmd.Flags().Lookup("passphrase") == nil {
		decryptCmd.Flags().StringVar(&cryptoPassphrase, "passphrase", "", "Passphrase for a locked secret key")
	}
	applyDefaultFlags(signCmd)
	if signCmd.Flags().Lookup("key") == nil {
		signCmd.Flags().StringVar(&signKeyFingerprint, "key", "", "Fingerprint of the signing key (defaults to the first own key)")
		signCmd.Flags().StringVar(&cryptoPassphrase, "passphrase", "", "Passphrase for a locked secret key")
	}
	applyDefaultFlags(verifyCmd)
	applyDefaultFlags(inspectCmd)
	applyDefaultFlags(syncExportCmd)
	if syncExportCmd.Flags().Lookup("public-only") == nil {
		syncExportCmd.Flags().BoolVar(&syncPublicOnly, "public-only", false, "Exclude secret keys from the bundle")
	}
	applyDefaultFlags(syncImportCmd)
	applyDefaultFlags(restoreCmd)
	applyDefaultFlags(backupCmd)
	applyDefaultFlags(restoreDbCmd)
	applyDefaultFlags(migrateCmd)
	applyDefaultFlags(dbMaintainCmd)
	applyDefaultFlags(watchCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Move keys between devices with QR transfer bundles",
	}
	syncCmd.AddCommand(syncExportCmd, syncImportCmd)

	// Add a lightweight `version` subcommand so users and CI can run
	// `keychainpgp version`.
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			resolvedVersion, resolvedCommit, resolvedDate := resolveBuildVersion(nil)
			fmt.Printf("version: %s\n", resolvedVersion)
			fmt.Printf("commit: %s\n", resolvedCommit)
			if resolvedDate != "" {
				fmt.Printf("built: %s\n", resolvedDate)
			}
		},
	}

	// Add subcommands to the newly created root command.
	cmd.AddCommand(
		generateCmd,
		importCmd,
		exportCmd,
		listCmd,
		searchCmd,
		showCmd,
		deleteCmd,
		trustCmd,
		encryptCmd,
		decryptCmd,
		signCmd,
		verifyCmd,
		inspectCmd,
		syncCmd,
		restoreCmd,
		backupCmd,
		restoreDbCmd,
		migrateCmd,
		dbMaintainCmd,
		wipeCmd,
		watchCmd,
		versionCmd,
	)

	return cmd
}

// resolveBuildVersion computes the best-available version, commit and
// build date for the running binary. If `info` is nil, it reads build
// info from the runtime. This helper is separated to make unit testing
// straightforward.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := buildvars.VersionOrDefault(version)
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	var ok bool
	if info == nil {
		if infoLocal, found := debug.ReadBuildInfo(); found {
			info = infoLocal
			ok = true
		}
	} else {
		ok = true
	}

	if ok && info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		// If Main doesn't contain the version (some build paths), try to
		// find our module in the dependencies and use that version.
		if (resolvedVersion == "dev" || resolvedVersion == "(devel)") && info.Deps != nil {
			for _, dep := range info.Deps {
				if dep.Path == "github.com/toeirei/keychainpgp" && dep.Version != "" {
					resolvedVersion = dep.Version
					break
				}
			}
		}

		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	// As a last resort, if no version was discovered, but a gitCommit was
	// provided via ldflags, show that to aid support.
	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}

	return resolvedVersion, resolvedCommit, resolvedDate
}
