// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package transfer

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// PartSize is the number of base64 characters carried per QR code. 500
// keeps each code comfortably within QR version 20 at medium error
// correction.
const PartSize = 500

const (
	partPrefix = "KCPGP:"
	passPrefix = "KCPGP-PASS:"
)

// IncompleteScanError reports how many parts were captured versus needed.
type IncompleteScanError struct {
	Got  int
	Want int
}

func (e *IncompleteScanError) Error() string {
	return fmt.Sprintf("incomplete scan: got %d of %d parts", e.Got, e.Want)
}

// SplitPayload base64-encodes an encrypted payload and splits it into QR
// part strings of the form "KCPGP:<i>/<n>:<chunk>" with 1-based indices.
// An empty payload still yields one part so the receiver sees a scan.
func SplitPayload(payload []byte) []string {
	encoded := base64.StdEncoding.EncodeToString(payload)
	if encoded == "" {
		return []string{partPrefix + "1/1:"}
	}

	total := (len(encoded) + PartSize - 1) / PartSize
	parts := make([]string, 0, total)
	for i := 0; i < total; i++ {
		start := i * PartSize
		end := start + PartSize
		if end > len(encoded) {
			end = len(encoded)
		}
		parts = append(parts, fmt.Sprintf("%s%d/%d:%s", partPrefix, i+1, total, encoded[start:end]))
	}
	return parts
}

// PassphraseQR renders the passphrase as its own QR payload so the code
// can be scanned instead of typed.
func PassphraseQR(passphrase string) string {
	return passPrefix + passphrase
}

// ParsePassphraseQR recognizes a scanned passphrase QR payload.
func ParsePassphraseQR(s string) (string, bool) {
	if !strings.HasPrefix(s, passPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, passPrefix), true
}

// Reassemble reconstructs the encrypted payload from scanned parts. Parts
// may arrive in any order; duplicates are tolerated when identical. A
// missing part, or parts disagreeing on the total, yields an
// *IncompleteScanError so callers can uniformly prompt for a rescan.
func Reassemble(parts []string) ([]byte, error) {
	if len(parts) == 0 {
		return nil, &IncompleteScanError{Got: 0, Want: 1}
	}

	total := 0
	chunks := make(map[int]string)
	for _, part := range parts {
		idx, n, chunk, err := parsePart(part)
		if err != nil {
			return nil, err
		}
		if total == 0 {
			total = n
		} else if n != total {
			// Mixed-up scan sets are handled like missing parts: the
			// user rescans the whole bundle.
			return nil, &IncompleteScanError{Got: len(chunks), Want: total}
		}
		if prev, ok := chunks[idx]; ok && prev != chunk {
			return nil, fmt.Errorf("conflicting content for part %d", idx)
		}
		chunks[idx] = chunk
	}

	if len(chunks) < total {
		return nil, &IncompleteScanError{Got: len(chunks), Want: total}
	}

	var sb strings.Builder
	for i := 1; i <= total; i++ {
		chunk, ok := chunks[i]
		if !ok {
			return nil, &IncompleteScanError{Got: len(chunks), Want: total}
		}
		sb.WriteString(chunk)
	}

	payload, err := base64.StdEncoding.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("corrupt transfer data: %w", err)
	}
	return payload, nil
}

// parsePart splits "KCPGP:<i>/<n>:<chunk>" into its fields.
func parsePart(part string) (idx, total int, chunk string, err error) {
	if !strings.HasPrefix(part, partPrefix) {
		return 0, 0, "", fmt.Errorf("not a transfer part: %q", truncateForError(part))
	}
	rest := strings.TrimPrefix(part, partPrefix)
	head, chunk, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, 0, "", fmt.Errorf("malformed transfer part header")
	}
	if _, err := fmt.Sscanf(head, "%d/%d", &idx, &total); err != nil {
		return 0, 0, "", fmt.Errorf("malformed transfer part header %q", head)
	}
	if idx < 1 || total < 1 || idx > total {
		return 0, 0, "", fmt.Errorf("transfer part index %d/%d out of range", idx, total)
	}
	return idx, total, chunk, nil
}

func truncateForError(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}
