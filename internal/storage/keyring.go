package storage

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/99designs/keyring"
)

// KeyringPasswordEnv supplies the password of the encrypted file backend.
const KeyringPasswordEnv = "W3LINK_KEYRING_PASSWORD"

// Keyring is a KV backed by the OS keychain.
type Keyring struct {
	ring keyring.Keyring
}

// NewKeyring wraps an opened keyring.
func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

// OpenKeyring opens the OS keychain for service. On Linux without a desktop
// session it falls back to an encrypted file under fileDir.
func OpenKeyring(service, fileDir string) (*Keyring, error) {
	cfg := keyring.Config{
		ServiceName:              service,
		KeychainTrustApplication: true,
		FileDir:                  fileDir,
		FilePasswordFunc:         filePassword,
	}
	if runtime.GOOS == "linux" {
		cfg.AllowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.FileBackend,
		}
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
		ring, err = keyring.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("opening keyring: %w", err)
		}
	}
	return &Keyring{ring: ring}, nil
}

func (k *Keyring) Get(key string) ([]byte, bool, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("keychain get: %w", err)
	}
	return item.Data, true, nil
}

func (k *Keyring) Set(key string, value []byte) error {
	if err := k.ring.Set(keyring.Item{Key: key, Data: value}); err != nil {
		return fmt.Errorf("keychain set: %w", err)
	}
	return nil
}

func (k *Keyring) Delete(key string) error {
	err := k.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !os.IsNotExist(err) {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}

// Keys lists every stored key.
func (k *Keyring) Keys() ([]string, error) {
	return k.ring.Keys()
}

func filePassword(prompt string) (string, error) {
	if pw := os.Getenv(KeyringPasswordEnv); pw != "" {
		return pw, nil
	}
	return keyring.TerminalPrompt(prompt)
}
