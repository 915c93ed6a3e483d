// Package keys provides key managers for the sealing cipher.
package keys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"sync"

	"haven/pkg/platform/sentinel"
)

const keySize = 32

// SaltSize matches the identity hasher's salt length.
const SaltSize = 16

// Keyring is an in-process key manager loaded from configuration.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

// NewKeyring validates base64 key material keyed by key id.
func NewKeyring(encoded map[string]string) (*Keyring, error) {
	k := &Keyring{keys: make(map[string][]byte, len(encoded))}
	for id, material := range encoded {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(material))
		if err != nil {
			return nil, fmt.Errorf("decode key %s: %w", id, err)
		}
		if len(raw) != keySize {
			return nil, fmt.Errorf("key %s: want %d bytes, got %d", id, keySize, len(raw))
		}
		k.keys[id] = raw
	}
	return k, nil
}

// ParseKeyring reads "id=base64,id2=base64".
func ParseKeyring(spec string) (*Keyring, error) {
	encoded := map[string]string{}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, material, ok := strings.Cut(entry, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("parse keyring entry %q: expected id=base64", entry)
		}
		encoded[strings.TrimSpace(id)] = material
	}
	return NewKeyring(encoded)
}

// GetKey returns a copy of the key material.
func (k *Keyring) GetKey(_ context.Context, keyID string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", keyID, sentinel.ErrNotFound)
	}
	return slices.Clone(key), nil
}

func (k *Keyring) GenerateSalt(_ context.Context) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Put adds or replaces a key. Used for rotation and tests.
func (k *Keyring) Put(keyID string, key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("key %s: want %d bytes, got %d", keyID, keySize, len(key))
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[keyID] = slices.Clone(key)
	return nil
}
