//go:build !linux

package render

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// OpenKeyboard puts the terminal on f into raw mode and watches it for quit
// keys.
func OpenKeyboard(f *os.File) (*Keyboard, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("set terminal raw mode: %w", err)
	}
	return NewKeyboard(f, func() error {
		return term.Restore(fd, oldState)
	}), nil
}
