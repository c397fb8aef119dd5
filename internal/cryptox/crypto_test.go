package cryptox

import (
	"encoding/base64"
	"testing"
)

func TestDeriveSecret_PurposeSeparation(t *testing.T) {
	a := DeriveSecret("secret", "keyhash")
	b := DeriveSecret("secret", "token")
	if len(a) != 32 || len(b) != 32 {
		t.Fatalf("unexpected secret lengths: %d, %d", len(a), len(b))
	}
	if string(a) == string(b) {
		t.Fatalf("different purposes must yield different secrets")
	}
	if string(a) != string(DeriveSecret("secret", "keyhash")) {
		t.Fatalf("derivation must be deterministic")
	}
}

func TestNewResourceKey_URLSafe256Bit(t *testing.T) {
	k := NewResourceKey()
	raw, err := base64.RawURLEncoding.DecodeString(k)
	if err != nil {
		t.Fatalf("key is not raw-url base64: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 raw bytes, got %d", len(raw))
	}
	if k == NewResourceKey() {
		t.Fatalf("two keys are identical; extremely unlikely")
	}
}

func TestVerifyKey(t *testing.T) {
	secret := DeriveSecret("secret", "keyhash")
	key := NewResourceKey()
	hash := KeyHash(secret, key)

	if !VerifyKey(secret, key, hash) {
		t.Fatalf("valid key must verify")
	}
	if VerifyKey(secret, NewResourceKey(), hash) {
		t.Fatalf("wrong key must not verify")
	}
	if VerifyKey(DeriveSecret("other", "keyhash"), key, hash) {
		t.Fatalf("wrong secret must not verify")
	}
}

func TestOriginHash_StableAndDistinct(t *testing.T) {
	a := OriginHash("https://example.com/a.jpg")
	if a != OriginHash("https://example.com/a.jpg") {
		t.Fatalf("origin hash must be stable")
	}
	if a == OriginHash("https://example.com/b.jpg") {
		t.Fatalf("distinct locators must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got length %d", len(a))
	}
}

func TestSealOpenLinks_RoundTrip(t *testing.T) {
	key := NewLinkKey()
	links := map[string]string{"r1": "k1", "r2": "k2"}

	ciphertext, nonce, err := SealLinks(links, key)
	if err != nil {
		t.Fatalf("seal error: %v", err)
	}

	got, err := OpenLinks(ciphertext, nonce, key)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if len(got) != 2 || got["r1"] != "k1" || got["r2"] != "k2" {
		t.Fatalf("round trip mismatch: %v", got)
	}
}

func TestOpenLinks_WrongKeyFails(t *testing.T) {
	ciphertext, nonce, err := SealLinks(map[string]string{"r1": "k1"}, NewLinkKey())
	if err != nil {
		t.Fatalf("seal error: %v", err)
	}
	if _, err := OpenLinks(ciphertext, nonce, NewLinkKey()); err == nil {
		t.Fatalf("expected decryption failure with wrong key")
	}
}
