package events

import (
	"sync"

	"invoicechain/core/types"
)

// Event represents a structured state change emitted by the settlement core.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MemoryEmitter buffers emitted events in order so read surfaces can replay
// them. It is safe for concurrent use.
type MemoryEmitter struct {
	mu     sync.RWMutex
	events []*types.Event
}

// NewMemoryEmitter returns an empty in-memory event buffer.
func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

// Emit implements the Emitter interface.
func (m *MemoryEmitter) Emit(evt Event) {
	if m == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	m.mu.Lock()
	m.events = append(m.events, payload)
	m.mu.Unlock()
}

// Events returns a copy of the buffered events in emission order.
func (m *MemoryEmitter) Events() []*types.Event {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Event, len(m.events))
	copy(out, m.events)
	return out
}
