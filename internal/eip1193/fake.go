package eip1193

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handler answers one request on a Fake provider.
type Handler func(params json.RawMessage) (any, error)

// RecordedCall is a request seen by a Fake provider.
type RecordedCall struct {
	Method string
	Params json.RawMessage
}

// Fake is a scriptable in-memory provider.
type Fake struct {
	mu        sync.Mutex
	handlers  map[string][]Handler
	calls     []RecordedCall
	listeners map[string]map[int]Listener
	nextID    int
}

// NewFake returns an empty fake provider. Unscripted methods fail with 4200.
func NewFake() *Fake {
	return &Fake{
		handlers:  make(map[string][]Handler),
		listeners: make(map[string]map[int]Listener),
	}
}

// Handle sets the handler used for every call to method.
func (f *Fake) Handle(method string, h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = []Handler{h}
	return f
}

// Reply makes method return result.
func (f *Fake) Reply(method string, result any) *Fake {
	return f.Handle(method, func(json.RawMessage) (any, error) { return result, nil })
}

// Fail makes method return err.
func (f *Fake) Fail(method string, err error) *Fake {
	return f.Handle(method, func(json.RawMessage) (any, error) { return nil, err })
}

// Sequence queues handlers for method. Each call consumes one; the last one
// keeps answering.
func (f *Fake) Sequence(method string, hs ...Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = hs
	return f
}

// Request implements Provider.
func (f *Fake) Request(_ context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, RecordedCall{Method: method, Params: raw})
	hs := f.handlers[method]
	var h Handler
	if len(hs) > 0 {
		h = hs[0]
		if len(hs) > 1 {
			f.handlers[method] = hs[1:]
		}
	}
	f.mu.Unlock()

	if h == nil {
		return nil, NewError(CodeUnsupportedMethod, fmt.Sprintf("method %s not supported", method))
	}
	result, err := h(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// On implements EventSource.
func (f *Fake) On(event string, fn Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners[event] == nil {
		f.listeners[event] = make(map[int]Listener)
	}
	id := f.nextID
	f.nextID++
	f.listeners[event][id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners[event], id)
	}
}

// Emit delivers payload to every listener of event synchronously.
func (f *Fake) Emit(event string, payload any) {
	raw, _ := json.Marshal(payload)
	f.mu.Lock()
	fns := make([]Listener, 0, len(f.listeners[event]))
	for _, fn := range f.listeners[event] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(raw)
	}
}

// ListenerCount returns the number of listeners registered for event.
func (f *Fake) ListenerCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners[event])
}

// Calls returns every recorded request.
func (f *Fake) Calls() []RecordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedCall(nil), f.calls...)
}

// CallCount returns how many times method was requested.
func (f *Fake) CallCount(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}
