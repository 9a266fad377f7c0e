// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import "strings"

// CandidatePasswords derives the passphrase variants tried against a
// legacy backup container. Older exports formatted the numeric transfer
// code inconsistently (plain digits, dash-grouped, space-grouped), so all
// plausible renderings of the user's input are attempted.
func CandidatePasswords(code string) [][]byte {
	trimmed := strings.TrimSpace(code)
	digits := digitsOnly(trimmed)

	seen := make(map[string]struct{})
	var out [][]byte
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, []byte(s))
	}

	add(digits)
	add(groupBy4(digits, "-"))
	add(groupBy4(digits, " "))
	add(trimmed)
	return out
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// groupBy4 joins the digits in groups of four with the given separator.
func groupBy4(digits, sep string) string {
	if len(digits) <= 4 {
		return digits
	}
	var parts []string
	for i := 0; i < len(digits); i += 4 {
		end := i + 4
		if end > len(digits) {
			end = len(digits)
		}
		parts = append(parts, digits[i:end])
	}
	return strings.Join(parts, sep)
}
