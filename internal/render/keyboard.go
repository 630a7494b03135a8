package render

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrNotTerminal is returned by OpenKeyboard when stdin is not a terminal
var ErrNotTerminal = errors.New("stdin is not a terminal")

const keyEscape = 27

// IsQuitKey reports whether b is one of the quit keys (q, Q, Esc)
func IsQuitKey(b byte) bool {
	return b == 'q' || b == 'Q' || b == keyEscape
}

// Keyboard watches an input stream for quit keys in the background so the
// loop can poll it without blocking.
type Keyboard struct {
	quit    atomic.Bool
	restore func() error

	closeOnce sync.Once
	closeErr  error
}

// NewKeyboard watches r. restore, if non-nil, runs on Close.
func NewKeyboard(r io.Reader, restore func() error) *Keyboard {
	k := &Keyboard{restore: restore}
	go k.watch(r)
	return k
}

func (k *Keyboard) watch(r io.Reader) {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if IsQuitKey(b) {
				k.quit.Store(true)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// QuitPressed reports whether a quit key has been seen
func (k *Keyboard) QuitPressed() bool {
	return k.quit.Load()
}

// Close restores the terminal. The reader goroutine ends with the process.
func (k *Keyboard) Close() error {
	k.closeOnce.Do(func() {
		if k.restore != nil {
			k.closeErr = k.restore()
		}
	})
	return k.closeErr
}
