// Package credentials keeps network passwords encrypted in the record store,
// keyed by BSSID.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shazow/wifimgr/internal/store"
	"github.com/shazow/wifimgr/wifi"
)

// RecordKey is the record holding the encrypted password map.
const RecordKey = "credentials"

// Cipher encrypts and decrypts text with a secret key.
type Cipher interface {
	Encrypt(plaintext string, key string) (string, error)
	Decrypt(ciphertext string, key string) (string, error)
}

// Store persists one encrypted map of BSSID to password.
type Store struct {
	mu      sync.Mutex
	records store.Store
	cipher  Cipher
	key     string
}

// New returns a Store encrypting with cipher under key.
func New(records store.Store, cipher Cipher, key string) *Store {
	return &Store{records: records, cipher: cipher, key: key}
}

func (s *Store) load(ctx context.Context) (map[string]string, error) {
	var encrypted string
	err := s.records.Get(ctx, RecordKey, &encrypted)
	if errors.Is(err, store.ErrNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	plaintext, err := s.cipher.Decrypt(encrypted, s.key)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials: %w", err)
	}
	passwords := map[string]string{}
	if err := json.Unmarshal([]byte(plaintext), &passwords); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return passwords, nil
}

func (s *Store) save(ctx context.Context, passwords map[string]string) error {
	data, err := json.Marshal(passwords)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	encrypted, err := s.cipher.Encrypt(string(data), s.key)
	if err != nil {
		return fmt.Errorf("encrypt credentials: %w", err)
	}
	if err := s.records.Set(ctx, RecordKey, encrypted); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Save stores the password for bssid, replacing any previous one.
func (s *Store) Save(ctx context.Context, bssid string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	passwords, err := s.load(ctx)
	if err != nil {
		return err
	}
	passwords[wifi.NormalizeBSSID(bssid)] = password
	return s.save(ctx, passwords)
}

// Get returns the password for bssid, or wifi.ErrCredentialsNotFound.
func (s *Store) Get(ctx context.Context, bssid string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	passwords, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	password, ok := passwords[wifi.NormalizeBSSID(bssid)]
	if !ok {
		return "", fmt.Errorf("%s: %w", bssid, wifi.ErrCredentialsNotFound)
	}
	return password, nil
}

// Has reports whether a password is stored for bssid. Unreadable stores
// report false.
func (s *Store) Has(ctx context.Context, bssid string) bool {
	_, err := s.Get(ctx, bssid)
	return err == nil
}

// Delete removes the password for bssid. Deleting an absent entry is not an
// error.
func (s *Store) Delete(ctx context.Context, bssid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	passwords, err := s.load(ctx)
	if err != nil {
		return err
	}
	key := wifi.NormalizeBSSID(bssid)
	if _, ok := passwords[key]; !ok {
		return nil
	}
	delete(passwords, key)
	return s.save(ctx, passwords)
}
