// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package clipboard wraps the system clipboard and provides a polling
// monitor that flags PGP content. Clearing is best-effort: OS clipboard
// history and third-party managers may retain copies.
package clipboard

import (
	"github.com/atotto/clipboard"
)

// Read returns the current clipboard text.
func Read() (string, error) {
	return clipboard.ReadAll()
}

// Write places text on the clipboard.
func Write(text string) error {
	return clipboard.WriteAll(text)
}

// Clear overwrites the clipboard with an empty string rather than leaving
// the old entry in place, to defeat clipboard history tools.
func Clear() error {
	return clipboard.WriteAll("")
}
