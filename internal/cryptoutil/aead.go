package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a 32-byte AES-256 key for a specific (orderId, index)
// from the single process-lifetime master key supplied via configuration
// (spec.md §4.3 "a key provided by configuration"), so distinct secrets never
// reuse key/nonce material even under key reuse across the process lifetime.
func DeriveKey(masterKey []byte, orderID string, index int) ([]byte, error) {
	info := fmt.Sprintf("fusionswap-secret:%s:%d", orderID, index)
	r := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// SealSecret encrypts a 32-byte preimage with AES-256-GCM under a key derived
// from masterKey, orderID and index. The returned ciphertext is
// nonce||ciphertext||tag and is what the Secret Coordinator persists; the
// coordinator never persists or logs the plaintext.
func SealSecret(masterKey []byte, orderID string, index int, plaintext []byte) ([]byte, error) {
	key, err := DeriveKey(masterKey, orderID, index)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenSecret reverses SealSecret, returning the original plaintext or an
// error if the ciphertext has been tampered with or the key is wrong.
func OpenSecret(masterKey []byte, orderID string, index int, ciphertext []byte) ([]byte, error) {
	key, err := DeriveKey(masterKey, orderID, index)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ct, nil)
}

// GenerateSecret returns a cryptographically secure random 32-byte preimage.
// Replaces the insecure time.Now().UnixNano()%256 per-byte generator.
func GenerateSecret() ([32]byte, error) {
	var s [32]byte
	if _, err := rand.Read(s[:]); err != nil {
		return s, fmt.Errorf("generate secret: %w", err)
	}
	return s, nil
}
