package common

import (
	"errors"
	"testing"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "invoice"); err != nil {
		t.Fatalf("nil view must pass: %v", err)
	}
	if err := Guard(pauseMap{"invoice": true}, ""); err != nil {
		t.Fatalf("empty module must pass: %v", err)
	}
	if err := Guard(pauseMap{"invoice": true}, "invoice"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauseMap{"invoice": true}, "factory"); err != nil {
		t.Fatalf("unpaused module must pass: %v", err)
	}
}
