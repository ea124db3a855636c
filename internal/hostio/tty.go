// Package hostio implements the `--tty` redirection target named in
// spec.md §6.3: semi-hosted trap-7 (SYSCALL/SYS_write) formatted prints
// can be routed straight to a local tty instead of round-tripping through
// the GDB client's Host I/O protocol.
//
// Grounded on smoynes-elsie's use of golang.org/x/term for its own
// terminal handling (cmd/internal/tty); repurposed here for the semi-
// hosting print sink rather than an interactive REPL.
package hostio

import (
	"os"

	"golang.org/x/term"
)

// TTYSink writes semi-hosted print output directly to an opened tty,
// putting it into raw mode so multi-byte writes aren't mangled by local
// line discipline.
type TTYSink struct {
	f        *os.File
	oldState *term.State
}

// OpenTTY opens path and, if it refers to a terminal, switches it to raw
// mode; non-terminal paths (a regular file or /dev/null substitute in
// tests) are written to as-is.
func OpenTTY(path string) (*TTYSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, err
	}

	sink := &TTYSink{f: f}
	if term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			f.Close()
			return nil, err
		}
		sink.oldState = state
	}
	return sink, nil
}

// Write implements io.Writer, sending formatted-print bytes straight to
// the tty.
func (s *TTYSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Close restores the tty's prior terminal state (if it was put into raw
// mode) and closes the file.
func (s *TTYSink) Close() error {
	if s.oldState != nil {
		term.Restore(int(s.f.Fd()), s.oldState)
	}
	return s.f.Close()
}
