package bridge

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// keySize is 32 bytes for AES-256
	keySize    = 32
	saltSize   = 16
	nonceSize  = 12
	iterations = 100000

	keyFileName = ".echo_key"
)

// DeriveKey stretches a master secret into an AES-256 key with PBKDF2.
func DeriveKey(secret, salt []byte) []byte {
	return pbkdf2.Key(secret, salt, iterations, keySize, sha256.New)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// Encrypt seals plaintext with AES-256-GCM and returns base64(nonce+ciphertext).
func Encrypt(plaintext, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce, err := randomBytes(nonceSize)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, plaintext, nil)), nil
}

// Decrypt opens a value produced by Encrypt.
func Decrypt(encrypted string, key []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size: expected %d, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// LoadMasterKey returns the configured master key or, when none is
// configured, the key stored in dataDir, creating it (mode 0600) on first
// use.
func LoadMasterKey(configured, dataDir string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	path := filepath.Join(dataDir, keyFileName)
	if key, err := os.ReadFile(path); err == nil && len(key) > 0 {
		return key, nil
	}

	key, err := randomBytes(keySize)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return key, nil
}

// wipe overwrites key material. Best effort: the GC may have copied it.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
