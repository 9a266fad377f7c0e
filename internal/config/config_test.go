// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestWriteAndLoadConfigRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	c := Config{}
	c.Database.Type = "sqlite"
	c.Database.Dsn = "./keychainpgp.db"
	c.Language = "en"
	c.DataDir = filepath.Join(tmp, "keychainpgp")
	c.PassphraseTTLSeconds = 300

	if err := WriteConfigFile(&c, false); err != nil {
		t.Fatalf("WriteConfigFile failed: %v", err)
	}

	path, err := GetConfigPath(false)
	if err != nil {
		t.Fatalf("GetConfigPath failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 0600", perm)
	}

	cmd := &cobra.Command{Use: "test"}
	loaded, err := LoadConfig[Config](cmd, map[string]any{
		"database.type": "sqlite",
		"database.dsn":  "./fallback.db",
	}, nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Database.Dsn != "./keychainpgp.db" {
		t.Errorf("loaded dsn = %q, want ./keychainpgp.db", loaded.Database.Dsn)
	}
	if loaded.PassphraseTTLSeconds != 300 {
		t.Errorf("loaded ttl = %d, want 300", loaded.PassphraseTTLSeconds)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := &cobra.Command{Use: "test"}
	c, err := LoadConfig[Config](cmd, map[string]any{
		"database.type":          "sqlite",
		"database.dsn":           "./keychainpgp.db",
		"language":               "en",
		"passphrase_ttl_seconds": 300,
	}, nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Database.Type != "sqlite" {
		t.Errorf("default database.type = %q, want sqlite", c.Database.Type)
	}
	if c.Language != "en" {
		t.Errorf("default language = %q, want en", c.Language)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("KCPGP_DATABASE_DSN", "env.db")

	cmd := &cobra.Command{Use: "test"}
	c, err := LoadConfig[Config](cmd, map[string]any{
		"database.type": "sqlite",
		"database.dsn":  "./keychainpgp.db",
	}, nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Database.Dsn != "env.db" {
		t.Errorf("env override dsn = %q, want env.db", c.Database.Dsn)
	}
}
