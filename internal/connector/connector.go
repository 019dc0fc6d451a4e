// Package connector locates wallet providers and negotiates chain changes
// with them.
package connector

import (
	"context"
	"fmt"
	"sort"

	"github.com/Mohsinsiddi/w3link/internal/eip1193"
)

// Connector ids.
const (
	IDBrowser  = "browserConnector"
	IDMetaMask = "metamask"
	IDTrust    = "trustwallet"
	IDCoinbase = "coinbase"
	IDBitget   = "bitgetwallet"
	IDSafePal  = "safepalwallet"
	IDBinance  = "binancewallet"
	IDRelay    = "walletConnect"
	IDLocal    = "local"
)

// Connector is one way of reaching a signing agent.
type Connector interface {
	ID() string
	Name() string
	// Provider returns the agent's provider, or ErrProviderUnavailable when
	// none can be found.
	Provider(ctx context.Context) (eip1193.Provider, error)
	// SetChain asks the agent to switch to id, adding the chain first when
	// the agent does not know it.
	SetChain(ctx context.Context, p eip1193.Provider, id uint64) error
	// AddChain asks the agent to add id and then switch to it.
	AddChain(ctx context.Context, p eip1193.Provider, id uint64) error
}

// Disconnector is implemented by connectors holding a remote session.
type Disconnector interface {
	Disconnect(ctx context.Context) error
}

// Set is a lookup table of connectors keyed by id.
type Set struct {
	byID  map[string]Connector
	order []string
}

// NewSet builds a Set. Later connectors replace earlier ones with the same id.
func NewSet(cs ...Connector) *Set {
	s := &Set{byID: make(map[string]Connector)}
	for _, c := range cs {
		s.Add(c)
	}
	return s
}

// Add registers c.
func (s *Set) Add(c Connector) {
	if _, ok := s.byID[c.ID()]; !ok {
		s.order = append(s.order, c.ID())
	}
	s.byID[c.ID()] = c
}

// Get returns the connector registered under id.
func (s *Set) Get(id string) (Connector, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown connector %q (known: %v)", id, s.IDs())
	}
	return c, nil
}

// All returns connectors in registration order.
func (s *Set) All() []Connector {
	out := make([]Connector, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// IDs returns the sorted connector ids.
func (s *Set) IDs() []string {
	ids := append([]string(nil), s.order...)
	sort.Strings(ids)
	return ids
}
