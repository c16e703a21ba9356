package events

import (
	"testing"

	"invoicechain/core/types"
)

type stubEvent struct {
	evt *types.Event
}

func (s stubEvent) EventType() string {
	if s.evt == nil {
		return ""
	}
	return s.evt.Type
}

func (s stubEvent) Event() *types.Event { return s.evt }

func TestMemoryEmitterOrdering(t *testing.T) {
	buffer := NewMemoryEmitter()
	buffer.Emit(stubEvent{evt: &types.Event{Type: "a"}})
	buffer.Emit(stubEvent{evt: &types.Event{Type: "b"}})
	buffer.Emit(stubEvent{})

	events := buffer.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != "a" || events[1].Type != "b" {
		t.Fatalf("unexpected order: %v", events)
	}
}

func TestEventsReturnsCopy(t *testing.T) {
	buffer := NewMemoryEmitter()
	buffer.Emit(stubEvent{evt: &types.Event{Type: "a"}})
	first := buffer.Events()
	buffer.Emit(stubEvent{evt: &types.Event{Type: "b"}})
	if len(first) != 1 {
		t.Fatal("earlier snapshot must not grow")
	}
}
