// Package cryptox implements the credential primitives of the broker:
// random resource keys, keyed hashing with constant-time verification,
// origin hashing, and AES-GCM sealing of update-session link maps.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"

	"github.com/dmitrijs2005/framekeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

// DeriveSecret stretches the configured secret key into a 32-byte secret
// bound to a purpose label. Different purposes yield independent secrets, so
// the key-hash HMAC secret and the token-signing secret never coincide.
func DeriveSecret(secretKey string, purpose string) []byte {
	return argon2.IDKey([]byte(secretKey), []byte("framekeeper/"+purpose), 1, 64*1024, 4, 32)
}

// NewResourceKey generates a fresh 256-bit plaintext access key, URL-safe
// encoded. The plaintext never touches durable storage; only its keyed hash
// does.
func NewResourceKey() string {
	return base64.RawURLEncoding.EncodeToString(common.GenerateRandByteArray(32))
}

// KeyHash computes the keyed hash stored in place of the plaintext key.
func KeyHash(secret []byte, plaintextKey string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(plaintextKey))
	return mac.Sum(nil)
}

// VerifyKey recomputes the keyed hash of candidate and compares it against
// storedHash in constant time.
func VerifyKey(secret []byte, candidate string, storedHash []byte) bool {
	return hmac.Equal(KeyHash(secret, candidate), storedHash)
}

// OriginHash returns the stable hex hash of an external source locator.
// Diffing works on these hashes so raw URLs are not retained after ingestion.
func OriginHash(locator string) string {
	sum := sha256.Sum256([]byte(locator))
	return hex.EncodeToString(sum[:])
}

// NewLinkKey generates the per-update-session AES key that seals the link
// map. It is handed to the device inside the signed access token and never
// persisted.
func NewLinkKey() []byte {
	return common.GenerateRandByteArray(32)
}

// SealLinks serializes the resource-ID-to-key map to JSON and encrypts it
// using AES-GCM. A new random 12-byte nonce is generated per call; the
// ciphertext and nonce are returned separately.
func SealLinks(links map[string]string, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(links)
	if err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// OpenLinks decrypts a sealed link map produced by SealLinks. The key must be
// the link key from the access token and the nonce the one stored alongside
// the ciphertext.
func OpenLinks(ciphertext, nonce, key []byte) (map[string]string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}

	links := map[string]string{}
	if err := json.Unmarshal(plaintext, &links); err != nil {
		return nil, err
	}
	return links, nil
}
