// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the command-line interface for KeychainPGP using
// Cobra. It wires configuration and default services, and provides commands
// that delegate to the keyring, transfer and backup packages. CLI code
// should remain thin and keep business logic in the internal packages.
package cli
