package wallet

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/w3link/internal/storage"
)

// StorageKey is the key the session record is persisted under.
const StorageKey = "ethereum-wallet-info"

// Store persists the session record in a KV.
type Store struct {
	kv storage.KV
}

// NewStore returns a Store over kv.
func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// Load returns the persisted session, or nil when none is stored. A record
// failing validation is reported with ErrInvalidSession.
func (s *Store) Load() (*Session, error) {
	raw, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	return &sess, nil
}

// Save persists sess. Saving nil removes the record.
func (s *Store) Save(sess *Session) error {
	if sess == nil {
		return s.kv.Delete(StorageKey)
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.kv.Set(StorageKey, raw)
}
