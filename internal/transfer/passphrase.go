// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package transfer implements the KCPGP device-to-device transfer
// protocol: an encrypted key bundle split into QR-sized parts, unlocked
// by a short numeric passphrase shown on the sending device.
package transfer

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	passphraseGroups = 6
	groupModulus     = 10000
)

// GeneratePassphrase returns a transfer passphrase of six four-digit
// groups, e.g. "1234-5678-9012-3456-7890-1234". Each group is drawn
// uniformly via rejection sampling so no digit sequence is favored.
func GeneratePassphrase() (string, error) {
	groups := make([]string, 0, passphraseGroups)
	var buf [2]byte
	for len(groups) < passphraseGroups {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		v := binary.BigEndian.Uint16(buf[:])
		// 60000 is the largest multiple of 10000 below 2^16; values at or
		// above it would bias the low groups.
		if v >= 60000 {
			continue
		}
		groups = append(groups, fmt.Sprintf("%04d", v%groupModulus))
	}
	return strings.Join(groups, "-"), nil
}
