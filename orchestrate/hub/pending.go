package hub

import (
	"sync"

	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
)

// pendingTable maps correlation ids to one-shot response channels. Each channel is
// buffered so that delivery never blocks, and an entry is removed exactly once by
// whichever side takes it first.
type pendingTable struct {
	entries map[string]chan *messaging.Message
	mu      sync.Mutex
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]chan *messaging.Message)}
}

func (p *pendingTable) register(correlationID string) (chan *messaging.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[correlationID]; exists {
		return nil, false
	}

	ch := make(chan *messaging.Message, 1)
	p.entries[correlationID] = ch
	return ch, true
}

func (p *pendingTable) take(correlationID string) (chan *messaging.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, exists := p.entries[correlationID]
	if exists {
		delete(p.entries, correlationID)
	}
	return ch, exists
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
