package token

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestHashRefreshTokenHex_SHA256WithoutKey(t *testing.T) {
	t.Setenv(HMACEnvKey, "")

	sum := sha256.Sum256([]byte("abc"))
	want := hex.EncodeToString(sum[:])
	if got := HashRefreshTokenHex("abc"); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestHashRefreshTokenHex_HMACChangesWithKey(t *testing.T) {
	t.Setenv(HMACEnvKey, "key-one-key-one-key-one-key-one-!")
	a := HashRefreshTokenHex("abc")

	t.Setenv(HMACEnvKey, "key-two-key-two-key-two-key-two-!")
	b := HashRefreshTokenHex("abc")

	if a == b {
		t.Fatalf("expected different digests for different keys")
	}
	if len(a) != 64 || len(b) != 64 {
		t.Fatalf("expected 64 hex chars, got %d and %d", len(a), len(b))
	}
}

func TestCheckHMACKey(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if err := CheckHMACKey(); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}

	t.Setenv(HMACEnvKey, "short")
	if err := CheckHMACKey(); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}

	t.Setenv(HMACEnvKey, "0123456789abcdef0123456789abcdef")
	if err := CheckHMACKey(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
