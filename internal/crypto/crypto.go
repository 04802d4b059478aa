// Package crypto provides AES-256-GCM encryption for Entity message content
// and the HKDF-SHA256 key derivation that ties a Message Bus entry's
// encryption key to the Entity's raw API key.
//
// Encrypted values are prefixed with "enc:" followed by base64-encoded
// ciphertext (nonce + sealed data). This makes it trivial to distinguish
// encrypted values from legacy plaintext on read.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	encPrefix = "enc:"

	// deriveInfo is the HKDF "info" context string tying derived keys to
	// their single purpose (Message Bus content encryption).
	deriveInfo = "entity-msg-encryption"

	// KeySize is the length, in bytes, of a derived AES-256 key.
	KeySize = 32
)

// Encrypt encrypts plaintext using AES-256-GCM and returns a string with
// the format "enc:<base64(nonce + ciphertext)>". A fresh random nonce is
// generated on every call, so encrypting the same plaintext twice with the
// same key produces different ciphertext. The key must be exactly 32 bytes.
// Returns the original string unchanged if it is empty.
func Encrypt(plaintext string, key []byte) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, giving us nonce+ciphertext in one slice.
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decrypts a value previously produced by Encrypt.
// If the value does not start with "enc:", it is returned as-is (plaintext passthrough).
// The key must be exactly 32 bytes.
func Decrypt(ciphertext string, key []byte) (string, error) {
	if !IsEncrypted(ciphertext) {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, encPrefix))
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

// IsEncrypted reports whether the value carries the "enc:" prefix,
// meaning it was produced by Encrypt.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encPrefix)
}

// DeriveEntityKey derives the 32-byte Message Bus encryption key for an
// Entity from its raw API key and stored salt:
//
//	K = HKDF-SHA256(ikm=apiKey, salt=salt, info="entity-msg-encryption", L=32)
//
// The result is deterministic: the same (apiKey, salt) pair always yields
// the same key, which is what lets the Key Store rederive a lost key from
// any subsequent API-key-authenticated request.
func DeriveEntityKey(apiKey string, salt []byte) ([]byte, error) {
	if apiKey == "" {
		return nil, errors.New("api key must not be empty")
	}
	if len(salt) == 0 {
		return nil, errors.New("salt must not be empty")
	}

	reader := hkdf.New(sha256.New, []byte(apiKey), salt, []byte(deriveInfo))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	return key, nil
}
