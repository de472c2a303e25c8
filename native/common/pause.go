package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView answers whether a module's mutations are currently halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects a mutation when the module is paused. A nil view means no
// pause control is wired and everything proceeds.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
