package connector

import (
	"encoding/json"
	"sync"

	"github.com/Mohsinsiddi/w3link/internal/eip1193"
)

// emitter fans provider events out to listeners.
type emitter struct {
	mu        sync.Mutex
	listeners map[string]map[int]eip1193.Listener
	nextID    int
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[string]map[int]eip1193.Listener)}
}

func (e *emitter) on(event string, fn eip1193.Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners[event] == nil {
		e.listeners[event] = make(map[int]eip1193.Listener)
	}
	id := e.nextID
	e.nextID++
	e.listeners[event][id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners[event], id)
	}
}

func (e *emitter) emit(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	e.emitRaw(event, raw)
}

func (e *emitter) emitRaw(event string, raw json.RawMessage) {
	e.mu.Lock()
	fns := make([]eip1193.Listener, 0, len(e.listeners[event]))
	for _, fn := range e.listeners[event] {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(raw)
	}
}
