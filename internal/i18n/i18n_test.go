// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package i18n

import "testing"

func TestTranslateKnownMessage(t *testing.T) {
	Init("en")
	if got := T("keys.cli_deleted"); got != "Key deleted." {
		t.Errorf("T(keys.cli_deleted) = %q", got)
	}
}

func TestTranslateWithArgs(t *testing.T) {
	Init("en")
	got := T("backup.cli_success", "out.json.zst")
	if got != "Backup written to out.json.zst" {
		t.Errorf("T with args = %q", got)
	}
}

func TestUnknownMessageFallsBackToID(t *testing.T) {
	Init("en")
	if got := T("does.not_exist"); got != "does.not_exist" {
		t.Errorf("unknown id should fall back to itself, got %q", got)
	}
}

func TestUninitializedDefaultsToEnglish(t *testing.T) {
	localizer = nil
	if got := T("keys.cli_imported"); got != "Key imported." {
		t.Errorf("T without Init = %q", got)
	}
}
