package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Mohsinsiddi/w3link/internal/eip1193"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Remote is a provider served over JSON-RPC by a desktop wallet bridge
// (for example Frame on ws://127.0.0.1:1248). Over websockets, events are
// received through eth_subscribe.
type Remote struct {
	client *gethrpc.Client
	log    *zap.Logger

	mu        sync.Mutex
	listeners map[string]map[int]eip1193.Listener
	subs      map[string]*gethrpc.ClientSubscription
	nextID    int
}

// DialRemote connects to a wallet bridge.
func DialRemote(ctx context.Context, url string, log *zap.Logger) (*Remote, error) {
	client, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing wallet bridge %s: %w", url, err)
	}
	return NewRemote(client, log), nil
}

// NewRemote wraps an existing client.
func NewRemote(client *gethrpc.Client, log *zap.Logger) *Remote {
	if log == nil {
		log = zap.NewNop()
	}
	return &Remote{
		client:    client,
		log:       log.Named("remote"),
		listeners: make(map[string]map[int]eip1193.Listener),
		subs:      make(map[string]*gethrpc.ClientSubscription),
	}
}

// Request implements eip1193.Provider.
func (r *Remote) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	args, err := positional(params)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := r.client.CallContext(ctx, &raw, method, args...); err != nil {
		return nil, err
	}
	return raw, nil
}

// On implements eip1193.EventSource.
func (r *Remote) On(event string, fn eip1193.Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listeners[event] == nil {
		r.listeners[event] = make(map[int]eip1193.Listener)
	}
	id := r.nextID
	r.nextID++
	r.listeners[event][id] = fn
	if _, ok := r.subs[event]; !ok {
		r.subscribe(event)
	}

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners[event], id)
		if len(r.listeners[event]) == 0 {
			if sub := r.subs[event]; sub != nil {
				sub.Unsubscribe()
			}
			delete(r.subs, event)
		}
	}
}

// Close drops subscriptions and the connection.
func (r *Remote) Close() {
	r.mu.Lock()
	for event, sub := range r.subs {
		if sub != nil {
			sub.Unsubscribe()
		}
		delete(r.subs, event)
	}
	r.mu.Unlock()
	r.client.Close()
}

// subscribe must be called with r.mu held. A failed subscription is recorded
// as nil so it is not retried for every listener.
func (r *Remote) subscribe(event string) {
	ch := make(chan json.RawMessage, 16)
	sub, err := r.client.Subscribe(context.Background(), "eth", ch, event)
	if err != nil {
		r.log.Debug("event subscription unavailable", zap.String("event", event), zap.Error(err))
		r.subs[event] = nil
		return
	}
	r.subs[event] = sub

	go func() {
		for {
			select {
			case payload := <-ch:
				r.dispatch(event, payload)
			case err, ok := <-sub.Err():
				if ok && err != nil {
					r.log.Warn("event subscription ended", zap.String("event", event), zap.Error(err))
				}
				return
			}
		}
	}()
}

func (r *Remote) dispatch(event string, payload json.RawMessage) {
	r.mu.Lock()
	fns := make([]eip1193.Listener, 0, len(r.listeners[event]))
	for _, fn := range r.listeners[event] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(payload)
	}
}

// positional turns request params into JSON-RPC positional arguments.
func positional(params any) ([]any, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding params: %w", err)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		// A single non-array argument.
		return []any{json.RawMessage(raw)}, nil
	}
	args := make([]any, len(list))
	for i, v := range list {
		args[i] = v
	}
	return args, nil
}
