package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// DefaultCost is the scrypt CPU/memory cost used when AESGCM.Cost is zero.
const DefaultCost = 1 << 14

const (
	saltSize = 16
	keySize  = 32
)

var errMalformed = errors.New("malformed ciphertext")

// AESGCM is a Cipher using AES-256-GCM with a per-message scrypt key.
// Output is base64(salt | nonce | sealed).
type AESGCM struct {
	// Cost is the scrypt N parameter; it must be a power of two.
	Cost int
}

func (c AESGCM) cost() int {
	if c.Cost == 0 {
		return DefaultCost
	}
	return c.Cost
}

func (c AESGCM) aead(key string, salt []byte) (cipher.AEAD, error) {
	derived, err := scrypt.Key([]byte(key), salt, c.cost(), 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c AESGCM) Encrypt(plaintext string, key string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	aead, err := c.aead(key, salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c AESGCM) Decrypt(ciphertext string, key string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errMalformed, err)
	}
	if len(data) < saltSize {
		return "", errMalformed
	}
	salt, rest := data[:saltSize], data[saltSize:]

	aead, err := c.aead(key, salt)
	if err != nil {
		return "", err
	}
	if len(rest) < aead.NonceSize() {
		return "", errMalformed
	}
	nonce, sealed := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
