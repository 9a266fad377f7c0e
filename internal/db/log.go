// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import "github.com/toeirei/keychainpgp/internal/logging"

var debugEnabled bool

// SetDebug toggles verbose database logging.
func SetDebug(enabled bool) {
	debugEnabled = enabled
	logging.SetDebug(enabled)
}

// dbLogf logs database diagnostics when debug mode is enabled.
func dbLogf(format string, v ...any) {
	if debugEnabled {
		logging.Debugf(format, v...)
	}
}
