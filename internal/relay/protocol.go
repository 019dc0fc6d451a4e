// Package relay is a client for a pairing relay that forwards wallet
// requests to a remote signing agent over a websocket.
//
// Messages are JSON-RPC 2.0. The client calls relay_pair, relay_request and
// relay_disconnect; the relay pushes relay_event notifications.
package relay

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/Mohsinsiddi/w3link/internal/chain"
)

// Relay methods.
const (
	MethodPair       = "relay_pair"
	MethodRequest    = "relay_request"
	MethodDisconnect = "relay_disconnect"
	MethodEvent      = "relay_event"
)

// EIP155 is the namespace key for Ethereum chains.
const EIP155 = "eip155"

// EventSessionDelete is pushed when the remote side ends the session.
const EventSessionDelete = "session_delete"

// Metadata describes the application to the remote wallet.
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Icons       []string `json:"icons,omitempty"`
}

// Namespace lists the chains, methods and events of one namespace. Chains
// use CAIP-2 ids, accounts CAIP-10.
type Namespace struct {
	Chains   []string `json:"chains"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
	Accounts []string `json:"accounts,omitempty"`
}

// ChainIDs returns the numeric chain ids, skipping malformed entries.
func (n Namespace) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(n.Chains))
	for _, c := range n.Chains {
		if id, err := chain.ParseCAIP2(c); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// HasMethod reports whether method was approved.
func (n Namespace) HasMethod(method string) bool {
	return slices.Contains(n.Methods, method)
}

// Addresses returns the account addresses, without their CAIP-10 prefix,
// in approval order and without duplicates.
func (n Namespace) Addresses() []string {
	var out []string
	for _, acc := range n.Accounts {
		i := strings.LastIndex(acc, ":")
		addr := acc[i+1:]
		if !slices.Contains(out, addr) {
			out = append(out, addr)
		}
	}
	return out
}

// PairParams is the relay_pair request.
type PairParams struct {
	ClientID           string               `json:"clientId"`
	ProjectID          string               `json:"projectId,omitempty"`
	RequiredNamespaces map[string]Namespace `json:"requiredNamespaces"`
	OptionalNamespaces map[string]Namespace `json:"optionalNamespaces,omitempty"`
	Metadata           Metadata             `json:"metadata"`
}

// Session is an approved pairing.
type Session struct {
	Topic      string               `json:"topic"`
	Namespaces map[string]Namespace `json:"namespaces"`
}

// EIP155 returns the Ethereum namespace of the session.
func (s *Session) EIP155() Namespace {
	if s == nil {
		return Namespace{}
	}
	return s.Namespaces[EIP155]
}

// RequestParams is the relay_request request.
type RequestParams struct {
	Topic   string       `json:"topic"`
	ChainID string       `json:"chainId"`
	Request InnerRequest `json:"request"`
}

// InnerRequest is the wallet request forwarded by the relay.
type InnerRequest struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Event is a pushed relay_event.
type Event struct {
	Topic string          `json:"topic"`
	Name  string          `json:"name"`
	Data  json.RawMessage `json:"data"`
}

// Error is an error returned by the relay or the remote wallet.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

// ErrorCode exposes the wallet error code.
func (e *Error) ErrorCode() int { return e.Code }

type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}
