// Package wallet tracks the connection to a signing wallet and keeps it
// across runs.
package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Errors.
var (
	ErrSignerUnavailable  = errors.New("signer unavailable")
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrUnsupportedRequest = errors.New("unsupported request")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidSession     = errors.New("invalid session record")
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Session is a snapshot of the wallet connection. It is never modified;
// transitions build a new Session. A zero chain id means the wallet is on a
// chain the application does not support.
type Session struct {
	connectorID string
	chainID     uint64
	address     string
	connected   bool
}

// NewSession builds a session.
func NewSession(connectorID string, chainID uint64, address string, connected bool) *Session {
	return &Session{connectorID: connectorID, chainID: chainID, address: address, connected: connected}
}

func (s *Session) ConnectorID() string { return s.connectorID }
func (s *Session) ChainID() uint64     { return s.chainID }
func (s *Session) Address() string     { return s.address }
func (s *Session) Connected() bool     { return s.connected }

// WithAddress returns a copy with address replaced.
func (s *Session) WithAddress(address string) *Session {
	c := *s
	c.address = address
	return &c
}

// WithChain returns a copy with the chain replaced.
func (s *Session) WithChain(chainID uint64) *Session {
	c := *s
	c.chainID = chainID
	return &c
}

// Disconnected returns a copy marked as not live.
func (s *Session) Disconnected() *Session {
	c := *s
	c.connected = false
	return &c
}

// Equal reports whether two sessions (either may be nil) hold the same values.
func (s *Session) Equal(o *Session) bool {
	if s == nil || o == nil {
		return s == o
	}
	return *s == *o
}

func (s *Session) String() string {
	if s == nil {
		return "<no session>"
	}
	return fmt.Sprintf("%s chain=%d address=%s connected=%t", s.connectorID, s.chainID, s.address, s.connected)
}

type sessionRecord struct {
	ConnectorID *string `json:"connectorId"`
	ChainID     *uint64 `json:"chainId"`
	Address     *string `json:"address"`
	Connected   *bool   `json:"connected"`
}

// MarshalJSON encodes the persisted record. Empty connector and zero chain
// are written as null.
func (s *Session) MarshalJSON() ([]byte, error) {
	rec := sessionRecord{Address: &s.address, Connected: &s.connected}
	if s.connectorID != "" {
		rec.ConnectorID = &s.connectorID
	}
	if s.chainID != 0 {
		rec.ChainID = &s.chainID
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes and validates a persisted record.
func (s *Session) UnmarshalJSON(data []byte) error {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	switch {
	case rec.Address == nil:
		return fmt.Errorf("%w: address is required", ErrInvalidSession)
	case rec.Connected == nil:
		return fmt.Errorf("%w: connected is required", ErrInvalidSession)
	case *rec.Address != "" && !addressPattern.MatchString(*rec.Address):
		return fmt.Errorf("%w: malformed address %q", ErrInvalidSession, *rec.Address)
	}

	*s = Session{address: *rec.Address, connected: *rec.Connected}
	if rec.ConnectorID != nil {
		s.connectorID = *rec.ConnectorID
	}
	if rec.ChainID != nil {
		s.chainID = *rec.ChainID
	}
	return nil
}
