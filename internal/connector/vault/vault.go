// Package vault keeps the connector token encrypted at rest with a locally
// generated NaCl secretbox key.
package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeyFile    = "connector.key"
	ConfigFile = "connector_config.enc"

	keySize   = 32
	nonceSize = 24
)

var (
	// ErrNoToken is returned by Load when nothing has been saved yet.
	ErrNoToken = errors.New("no saved token")
	// ErrCorrupt is returned when the ciphertext does not open with the key.
	ErrCorrupt = errors.New("saved token could not be decrypted")
)

// Vault stores one token under dir.
type Vault struct {
	dir string
}

func New(dir string) *Vault {
	if dir == "" {
		dir = "."
	}
	return &Vault{dir: dir}
}

// Save encrypts token, creating the key file on first use.
func (v *Vault) Save(token string) error {
	key, err := v.key(true)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("Save: failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(token), &nonce, key)

	if err := os.WriteFile(v.path(ConfigFile), sealed, 0o600); err != nil {
		return fmt.Errorf("Save: failed to write %s: %w", ConfigFile, err)
	}
	return nil
}

// Load decrypts the saved token.
func (v *Vault) Load() (string, error) {
	sealed, err := os.ReadFile(v.path(ConfigFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("Load: failed to read %s: %w", ConfigFile, err)
	}

	key, err := v.key(false)
	if err != nil {
		return "", fmt.Errorf("Load: %w", err)
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrCorrupt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return "", ErrCorrupt
	}
	return string(plain), nil
}

// Clear removes the saved token but keeps the key.
func (v *Vault) Clear() error {
	if err := os.Remove(v.path(ConfigFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("Clear: %w", err)
	}
	return nil
}

func (v *Vault) key(create bool) (*[keySize]byte, error) {
	var key [keySize]byte

	raw, err := os.ReadFile(v.path(KeyFile))
	switch {
	case err == nil:
		if len(raw) != keySize {
			return nil, fmt.Errorf("key file %s has %d bytes, want %d", KeyFile, len(raw), keySize)
		}
		copy(key[:], raw)
		return &key, nil
	case errors.Is(err, os.ErrNotExist) && create:
		if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		if err := os.MkdirAll(v.dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", v.dir, err)
		}
		if err := os.WriteFile(v.path(KeyFile), key[:], 0o600); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", KeyFile, err)
		}
		return &key, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, ErrCorrupt
	default:
		return nil, fmt.Errorf("failed to read %s: %w", KeyFile, err)
	}
}

func (v *Vault) path(name string) string {
	return filepath.Join(v.dir, name)
}
