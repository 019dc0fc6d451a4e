package rpc

import "sync"

// picker hands out indexes in round-robin order. It never skips an index,
// so a failing endpoint is simply tried again on its next turn.
type picker struct {
	mu      sync.Mutex
	rrIndex int
}

// next returns the current index and advances the cursor modulo n.
func (p *picker) next(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.rrIndex % n
	p.rrIndex = (idx + 1) % n
	return idx
}
