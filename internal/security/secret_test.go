// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package security

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestSecretRedaction(t *testing.T) {
	s := FromString("hunter2")

	if got := s.String(); got != "[SECRET]" {
		t.Errorf("String() = %q, want [SECRET]", got)
	}
	if got := fmt.Sprintf("%v", s); got != "[SECRET]" {
		t.Errorf("Sprintf %%v = %q, want [SECRET]", got)
	}
	if got := fmt.Sprintf("%s", s); got != "[SECRET]" {
		t.Errorf("Sprintf %%s = %q, want [SECRET]", got)
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	if string(data) != `"[SECRET]"` {
		t.Errorf("MarshalJSON = %s, want \"[SECRET]\"", data)
	}
}

func TestSecretBytesIsCopy(t *testing.T) {
	s := FromString("abc")
	b := s.Bytes()
	b[0] = 'x'
	if string([]byte(s)) != "abc" {
		t.Errorf("mutating Bytes() copy changed the underlying secret")
	}
}

func TestSecretZero(t *testing.T) {
	s := FromString("sensitive")
	s.Zero()
	for i, c := range []byte(s) {
		if c != 0 {
			t.Fatalf("byte %d not zeroed: %v", i, c)
		}
	}

	var nilSecret *Secret
	nilSecret.Zero() // must not panic
}

func TestSecretFromBytesCopies(t *testing.T) {
	in := []byte("original")
	s := FromBytes(in)
	in[0] = 'X'
	if string(s.Bytes()) != "original" {
		t.Errorf("FromBytes did not copy input")
	}
}

func TestSecretScan(t *testing.T) {
	var s Secret
	if err := s.Scan([]byte("blob")); err != nil {
		t.Fatalf("Scan([]byte) failed: %v", err)
	}
	if string(s.Bytes()) != "blob" {
		t.Errorf("Scan([]byte) = %q, want blob", s.Bytes())
	}

	if err := s.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if s != nil {
		t.Errorf("Scan(nil) should reset the secret")
	}

	if err := s.Scan(42); err == nil {
		t.Errorf("Scan(int) should fail")
	}
}
