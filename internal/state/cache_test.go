// Copyright (c) 2025 ToeiRei
// KeychainPGP - OpenPGP keyring manager
// This source code is licensed under the MIT license found in the LICENSE file.

package state

import (
	"sync"
	"testing"
	"time"
)

const fp = "ABCDEF0123456789ABCDEF0123456789ABCDEF01"

func resetCaches() {
	ClearPassphrases()
	ClearSecretKeys()
	SetPassphraseTTL(0)
	timeNow = time.Now
}

func TestCachePassphraseRoundTrip(t *testing.T) {
	resetCaches()
	defer resetCaches()

	CachePassphrase(fp, []byte("pass"))
	got := GetPassphrase(fp)
	if string(got) != "pass" {
		t.Fatalf("GetPassphrase = %q, want pass", got)
	}

	// Returned slice is a copy.
	got[0] = 'X'
	if string(GetPassphrase(fp)) != "pass" {
		t.Errorf("mutating a returned copy changed the cache")
	}
}

func TestPassphraseExpiry(t *testing.T) {
	resetCaches()
	defer resetCaches()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	SetPassphraseTTL(time.Minute)

	CachePassphrase(fp, []byte("pass"))
	now = now.Add(30 * time.Second)
	if GetPassphrase(fp) == nil {
		t.Fatal("entry expired too early")
	}
	now = now.Add(31 * time.Second)
	if got := GetPassphrase(fp); got != nil {
		t.Fatalf("expired entry still returned: %q", got)
	}
}

func TestLazyPurgeOnStore(t *testing.T) {
	resetCaches()
	defer resetCaches()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	SetPassphraseTTL(time.Minute)

	CachePassphrase("aaaa", []byte("one"))
	now = now.Add(2 * time.Minute)
	CachePassphrase("bbbb", []byte("two"))

	if _, ok := passphrases.Load("aaaa"); ok {
		t.Errorf("expired entry not purged by store")
	}
	if string(GetPassphrase("bbbb")) != "two" {
		t.Errorf("fresh entry lost during purge")
	}
}

func TestTTLChangeAppliesToNewEntries(t *testing.T) {
	resetCaches()
	defer resetCaches()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }

	SetPassphraseTTL(time.Hour)
	CachePassphrase(fp, []byte("pass"))
	now = now.Add(10 * time.Minute)
	if GetPassphrase(fp) == nil {
		t.Fatal("entry with one-hour TTL expired after ten minutes")
	}

	SetPassphraseTTL(time.Minute)
	CachePassphrase(fp, []byte("pass"))
	now = now.Add(2 * time.Minute)
	if GetPassphrase(fp) != nil {
		t.Fatal("entry with one-minute TTL survived two minutes")
	}
}

func TestSecretKeyCache(t *testing.T) {
	resetCaches()
	defer resetCaches()

	CacheSecretKey(fp, []byte("key material"))
	if string(GetSecretKey(fp)) != "key material" {
		t.Fatalf("GetSecretKey mismatch")
	}
	if GetSecretKey("unknown") != nil {
		t.Errorf("unknown fingerprint should return nil")
	}

	ClearSecretKeys()
	if GetSecretKey(fp) != nil {
		t.Errorf("secret survived ClearSecretKeys")
	}
}

func TestWipeAllClearsEverything(t *testing.T) {
	resetCaches()
	defer resetCaches()

	CachePassphrase(fp, []byte("pass"))
	CacheSecretKey(fp, []byte("key"))
	WipeAll()
	if GetPassphrase(fp) != nil || GetSecretKey(fp) != nil {
		t.Fatal("WipeAll left entries behind")
	}
}

func TestWipeProceedsDespiteConcurrentUse(t *testing.T) {
	resetCaches()
	defer resetCaches()

	// Hammer the caches from many goroutines while wiping; the wipe must
	// finish without deadlock even with writers mid-flight.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					CachePassphrase(fp, []byte("pass"))
					CacheSecretKey(fp, []byte("key"))
					_ = GetPassphrase(fp)
				}
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			WipeAll()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("WipeAll did not complete under concurrent load")
	}
	close(stop)
	wg.Wait()
}
