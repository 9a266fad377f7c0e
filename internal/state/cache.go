// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

// package state provides secure, in-memory caches for transient sensitive
// state: unlocked key passphrases (with a TTL) and, in opsec mode, secret
// keys held only in RAM. Both caches are built on sync.Map so a wipe can
// always make progress, no matter what any other goroutine was doing when
// it died.
package state

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPassphraseTTL is used until SetPassphraseTTL is called.
const DefaultPassphraseTTL = 5 * time.Minute

// passphraseEntry pairs cached bytes with their expiry deadline.
type passphraseEntry struct {
	value   []byte
	expires time.Time
}

var (
	passphrases sync.Map // fingerprint -> *passphraseEntry
	secrets     sync.Map // fingerprint -> []byte (opsec RAM cache)

	ttlNanos atomic.Int64

	// timeNow allows tests to control expiry.
	timeNow = time.Now
)

func passphraseTTL() time.Duration {
	if n := ttlNanos.Load(); n > 0 {
		return time.Duration(n)
	}
	return DefaultPassphraseTTL
}

// SetPassphraseTTL changes the lifetime applied to newly cached
// passphrases. Zero or negative restores the default.
func SetPassphraseTTL(d time.Duration) {
	if d <= 0 {
		ttlNanos.Store(0)
		return
	}
	ttlNanos.Store(int64(d))
}

// CachePassphrase stores a copy of the passphrase for a fingerprint.
// Each store also lazily purges entries that have outlived their TTL.
func CachePassphrase(fingerprint string, pass []byte) {
	purgeExpired()
	cp := make([]byte, len(pass))
	copy(cp, pass)
	passphrases.Store(fingerprint, &passphraseEntry{
		value:   cp,
		expires: timeNow().Add(passphraseTTL()),
	})
}

// GetPassphrase returns a copy of the cached passphrase, or nil when the
// entry is missing or expired. Expired entries are wiped on access.
func GetPassphrase(fingerprint string) []byte {
	v, ok := passphrases.Load(fingerprint)
	if !ok {
		return nil
	}
	entry := v.(*passphraseEntry)
	if timeNow().After(entry.expires) {
		wipePassphrase(fingerprint, entry)
		return nil
	}
	cp := make([]byte, len(entry.value))
	copy(cp, entry.value)
	return cp
}

// purgeExpired removes and zeroizes all entries past their deadline.
func purgeExpired() {
	now := timeNow()
	passphrases.Range(func(key, v any) bool {
		entry := v.(*passphraseEntry)
		if now.After(entry.expires) {
			wipePassphrase(key.(string), entry)
		}
		return true
	})
}

func wipePassphrase(fingerprint string, entry *passphraseEntry) {
	for i := range entry.value {
		entry.value[i] = 0
	}
	passphrases.Delete(fingerprint)
}

// ClearPassphrases zeroizes and removes every cached passphrase.
func ClearPassphrases() {
	passphrases.Range(func(key, v any) bool {
		wipePassphrase(key.(string), v.(*passphraseEntry))
		return true
	})
}

// CacheSecretKey holds secret key material in RAM only (opsec mode, where
// nothing may touch the credential manager or disk).
func CacheSecretKey(fingerprint string, material []byte) {
	cp := make([]byte, len(material))
	copy(cp, material)
	secrets.Store(fingerprint, cp)
}

// GetSecretKey returns a copy of RAM-cached secret key material, or nil.
func GetSecretKey(fingerprint string) []byte {
	v, ok := secrets.Load(fingerprint)
	if !ok {
		return nil
	}
	material := v.([]byte)
	cp := make([]byte, len(material))
	copy(cp, material)
	return cp
}

// ClearSecretKeys zeroizes and removes all RAM-cached secret keys.
func ClearSecretKeys() {
	secrets.Range(func(key, v any) bool {
		material := v.([]byte)
		for i := range material {
			material[i] = 0
		}
		secrets.Delete(key)
		return true
	})
}

// WipeAll is the in-memory half of the panic wipe: it zeroizes both
// caches. It never blocks and never panics, so it is safe to call from a
// signal handler or a deferred recover.
func WipeAll() {
	ClearSecretKeys()
	ClearPassphrases()
}
