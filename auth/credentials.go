// Package auth stores network credentials encrypted at rest. Callers deal
// in opaque keys ("network:account-id"); plaintext secrets never touch the
// database or config files.
package auth

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/roost-social/roost/util"
)

var ErrNotFound = errors.New("credential not found")

// Credential is the secret material for one account. Mastodon uses
// AccessToken; Bluesky uses Identifier plus AppPassword and caches its
// short-lived session tokens in AccessToken/RefreshToken.
type Credential struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Identifier   string `json:"identifier,omitempty"`
	AppPassword  string `json:"app_password,omitempty"`
	// OAuth app registration, stored per Mastodon instance.
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Did          string `json:"did,omitempty"`
}

// Store is the encrypted credential file plus its key, loaded lazily and
// flushed on every write.
type Store struct {
	mu       sync.Mutex
	keyPath  string
	filePath string
	key      *[32]byte
	entries  map[string]Credential
}

func OpenStore() (*Store, error) {
	keyPath, err := util.KeyPath()
	if err != nil {
		return nil, err
	}

	filePath, err := util.CredentialsPath()
	if err != nil {
		return nil, err
	}

	return OpenStoreAt(keyPath, filePath)
}

func OpenStoreAt(keyPath, filePath string) (*Store, error) {
	s := &Store{keyPath: keyPath, filePath: filePath}

	if err := s.loadKey(); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) Get(key string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.entries[key]
	if !ok {
		return Credential{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return c, nil
}

func (s *Store) Put(key string, c Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = c
	return s.flush()
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return s.flush()
}

// Keys returns every stored credential key.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// loadKey reads the secretbox key, generating one on first run.
func (s *Store) loadKey() error {
	buf, err := os.ReadFile(s.keyPath)
	if err == nil {
		if len(buf) != 32 {
			return fmt.Errorf("key file %s is corrupt", s.keyPath)
		}
		s.key = new([32]byte)
		copy(s.key[:], buf)
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}

	s.key = new([32]byte)
	if _, err := rand.Read(s.key[:]); err != nil {
		return err
	}

	return os.WriteFile(s.keyPath, s.key[:], 0600)
}

func (s *Store) load() error {
	s.entries = make(map[string]Credential)

	buf, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(buf) < 24 {
		return fmt.Errorf("credential file %s is corrupt", s.filePath)
	}

	var nonce [24]byte
	copy(nonce[:], buf[:24])

	plain, ok := secretbox.Open(nil, buf[24:], &nonce, s.key)
	if !ok {
		return fmt.Errorf("could not decrypt %s: wrong key or corrupt file", s.filePath)
	}

	return json.Unmarshal(plain, &s.entries)
}

func (s *Store) flush() error {
	plain, err := json.Marshal(s.entries)
	if err != nil {
		return err
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}

	sealed := secretbox.Seal(nonce[:], plain, &nonce, s.key)
	return os.WriteFile(s.filePath, sealed, 0600)
}
