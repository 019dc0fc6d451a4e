// Package keys stores named private keys for the local key connector.
package keys

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Mohsinsiddi/w3link/internal/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	keyPrefix = "w3link.key."
	indexKey  = "w3link.keys"
)

var (
	// ErrKeyNotFound is returned for unknown key names.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyExists is returned when importing over an existing name.
	ErrKeyExists = errors.New("key already exists")
)

// Entry is the public part of a stored key.
type Entry struct {
	Name    string         `json:"name"`
	Address common.Address `json:"address"`
}

// Keystore keeps private keys in a KV, normally the OS keychain, plus an
// index of names and addresses so listing never touches key material.
type Keystore struct {
	kv storage.KV
}

// NewKeystore returns a keystore over kv.
func NewKeystore(kv storage.KV) *Keystore {
	return &Keystore{kv: kv}
}

// Import validates hexKey and stores it under name.
func (k *Keystore) Import(name, hexKey string) (Entry, error) {
	if name == "" {
		return Entry{}, errors.New("key name is required")
	}
	priv, err := crypto.HexToECDSA(normaliseHexKey(hexKey))
	if err != nil {
		return Entry{}, fmt.Errorf("parsing private key: %w", err)
	}

	entries, err := k.List()
	if err != nil {
		return Entry{}, err
	}
	if slices.ContainsFunc(entries, func(e Entry) bool { return e.Name == name }) {
		return Entry{}, fmt.Errorf("%q: %w", name, ErrKeyExists)
	}

	entry := Entry{Name: name, Address: crypto.PubkeyToAddress(priv.PublicKey)}
	if err := k.kv.Set(keyPrefix+name, []byte(common.Bytes2Hex(crypto.FromECDSA(priv)))); err != nil {
		return Entry{}, err
	}
	if err := k.saveIndex(append(entries, entry)); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Load returns the private key stored under name.
func (k *Keystore) Load(name string) (*ecdsa.PrivateKey, error) {
	data, ok, err := k.kv.Get(keyPrefix + name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrKeyNotFound)
	}
	priv, err := crypto.HexToECDSA(normaliseHexKey(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing stored key %q: %w", name, err)
	}
	return priv, nil
}

// Remove deletes the key stored under name.
func (k *Keystore) Remove(name string) error {
	entries, err := k.List()
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(entries, func(e Entry) bool { return e.Name == name })
	if idx == -1 {
		return fmt.Errorf("%q: %w", name, ErrKeyNotFound)
	}
	if err := k.kv.Delete(keyPrefix + name); err != nil {
		return err
	}
	return k.saveIndex(slices.Delete(entries, idx, idx+1))
}

// List returns every stored key in import order.
func (k *Keystore) List() ([]Entry, error) {
	data, ok, err := k.kv.Get(indexKey)
	if err != nil || !ok {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing key index: %w", err)
	}
	return entries, nil
}

func (k *Keystore) saveIndex(entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return k.kv.Set(indexKey, data)
}

func normaliseHexKey(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
