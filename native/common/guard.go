package common

import "errors"

// ErrModulePaused is returned by Guard when the named module is
// administratively halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the pause flag for a named module. Implementations are
// typically configuration-backed and read-only at runtime.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard gates the state-changing entry points of a module. A nil view or an
// empty module name means no pause control is wired and the call proceeds.
func Guard(view PauseView, module string) error {
	if view == nil || module == "" {
		return nil
	}
	if view.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
