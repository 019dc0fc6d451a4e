// Package eip1193 defines the wallet provider boundary: a request method plus
// push notifications for account and chain changes.
package eip1193

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider events.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
	EventDisconnect      = "disconnect"
)

// Provider sends JSON-RPC requests to a signing agent.
type Provider interface {
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Listener receives the raw payload of a provider event.
type Listener func(payload json.RawMessage)

// EventSource is implemented by providers that push notifications.
// The returned function removes the listener.
type EventSource interface {
	On(event string, fn Listener) (remove func())
}

// Call performs a request and decodes the result into T.
func Call[T any](ctx context.Context, p Provider, method string, params any) (T, error) {
	var out T
	raw, err := p.Request(ctx, method, params)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding %s result: %w", method, err)
	}
	return out, nil
}
