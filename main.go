// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for KeychainPGP.
//
// Usage:
//
//	go run . [flags]
//	./keychainpgp [flags]
//
// This launches the KeychainPGP CLI. See --help for options.
package main

import (
	"log"
	"os"

	"github.com/toeirei/keychainpgp/ui/cli"
)

// main is the entrypoint for the KeychainPGP CLI.
func main() {
	if err := cli.Execute(); err != nil {
		log.Printf("KeychainPGP CLI error: %v", err)
		os.Exit(1)
	}
}
