// Package gdbserver implements the dispatcher at the heart of spec.md §4.7:
// it parses each incoming RSP command, drives threads through the Target
// Abstraction, maintains the all-stop/non-stop debug state machine,
// synthesizes single-step, redirects semi-hosted traps, and answers the
// query/qXfer/monitor surface GDB expects from a multi-threaded stub.
//
// Grounded on aykevl-emculator/gdb-rsp.go's gdbHandle dispatch loop
// (string-prefix switch over packet kinds), generalized from that file's
// single-core, single-register-set world to the multi-core thread/process
// model of spec.md §3-§4.5.
package gdbserver

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"

	"github.com/coremesh/meshgdb/internal/coreid"
	"github.com/coremesh/meshgdb/internal/matchpoint"
	"github.com/coremesh/meshgdb/internal/process"
	"github.com/coremesh/meshgdb/internal/rsp"
	"github.com/coremesh/meshgdb/internal/target"
	"github.com/coremesh/meshgdb/internal/thread"
)

// Mode is the debug-session-wide all-stop/non-stop switch (spec.md §4.7
// "Debug modes"), flipped by QNonStop.
type Mode int

const (
	AllStop Mode = iota
	NonStop
)

// Options configures session-scoped behaviour that would otherwise come
// from CLI flags (internal/config), decoupling this package from the
// flag-parsing layer per the capability-interface design of spec.md §9.
// Strict address validation (--check-hw-address) is not among these: it
// is enforced at the Target/Gateway layer (internal/target.New), not here.
type Options struct {
	DontHaltOnAttach bool
	PacketSize       int
}

// DefaultOptions mirrors e-gdbserver's historical defaults: halt on
// attach and a conservative packet size.
func DefaultOptions() Options {
	return Options{PacketSize: 0x3fff}
}

// Server holds all per-connection-reset-free state: the thread table, the
// process set, the matchpoint table, and the current thread/process focus.
// One Server is reused across reconnects by the Connection Manager; Serve
// calls Reset at the start of each connection (spec.md §2: "clears
// protocol state on each new connection").
type Server struct {
	tg   target.Target
	opts Options
	log  *slog.Logger

	threads map[int]*thread.Thread
	byCore  map[coreid.ID]*thread.Thread
	procs   *process.Set
	mpoints *matchpoint.Table

	mode   Mode
	curPID int
	curTID int

	// notifiedTIDs tracks which threads' halts have already been announced
	// via a non-stop Stop: notification, so repeated scans advance to the
	// next halted thread instead of re-reporting the same one forever
	// (spec.md §4.7 non-stop drain; cleared when a thread is resumed).
	notifiedTIDs map[int]bool

	// trafficBytes accumulates memory-access byte counts per thread,
	// backing the qXfer:osdata:read:traffic annex (SPEC expansion: "wired
	// to real per-thread counters... rather than left as stub zero
	// values").
	trafficBytes map[int]uint64

	loader ImageLoader

	// ttySink, when set, receives trap-7 (SYSCALL/SYS_write) formatted
	// print output directly instead of round-tripping it through the GDB
	// client's Host I/O protocol (spec.md §6.3 "--tty <path>").
	ttySink io.Writer
}

// SetImageLoader wires the out-of-scope program-loader collaborator that
// `monitor load` dispatches to (spec.md §6.1).
func (s *Server) SetImageLoader(loader ImageLoader) { s.loader = loader }

// SetTTYSink wires the --tty redirection target for semi-hosted prints.
func (s *Server) SetTTYSink(w io.Writer) { s.ttySink = w }

// New builds a Server from an already-constructed Target, enumerating its
// cores into the thread table and seeding the idle process with them
// (spec.md §2: "the server initialises the idle process and thread table
// from the target's enumerated cores").
func New(tg target.Target, log *slog.Logger, opts Options) *Server {
	if opts.PacketSize == 0 {
		opts.PacketSize = DefaultOptions().PacketSize
	}
	s := &Server{
		tg:           tg,
		opts:         opts,
		log:          log,
		threads:      make(map[int]*thread.Thread),
		byCore:       make(map[coreid.ID]*thread.Thread),
		mpoints:      matchpoint.New(),
		mode:         AllStop,
		trafficBytes: make(map[int]uint64),
		notifiedTIDs: make(map[int]bool),
	}

	cores := tg.ListCores()
	all := make(map[int]coreid.ID, len(cores))
	for _, c := range cores {
		th := thread.New(c.ThreadID(), c, tg)
		s.threads[th.ID] = th
		s.byCore[c] = th
		all[th.ID] = c
	}
	s.procs = process.NewSet(all)
	s.curPID = process.IdlePID
	if tid, ok := s.procs.Idle().FirstThread(); ok {
		s.curTID = tid
	}
	return s
}

// Reset restores fresh-connection state: current process/thread reset to
// the idle process's first thread and all-stop mode, without touching
// hardware (spec.md §2).
func (s *Server) Reset() {
	s.mode = AllStop
	s.curPID = process.IdlePID
	if tid, ok := s.procs.Idle().FirstThread(); ok {
		s.curTID = tid
	}
	s.notifiedTIDs = make(map[int]bool)
}

func (s *Server) currentThread() *thread.Thread {
	return s.threads[s.curTID]
}

func (s *Server) currentProcess() *process.Process {
	p, ok := s.procs.Get(s.curPID)
	if !ok {
		return s.procs.Idle()
	}
	return p
}

// threadsInCurrentProcess returns the current process's threads, ordered
// by CoreId (spec.md §4.5).
func (s *Server) threadsInCurrentProcess() []*thread.Thread {
	tids := s.currentProcess().Threads()
	out := make([]*thread.Thread, 0, len(tids))
	for _, tid := range tids {
		if th, ok := s.threads[tid]; ok {
			out = append(out, th)
		}
	}
	return out
}

// allThreadsSorted returns every known thread ordered by CoreId, used by
// the osdata load/traffic tables and by `monitor reset`/`workgroup`.
func (s *Server) allThreadsSorted() []*thread.Thread {
	out := make([]*thread.Thread, 0, len(s.threads))
	for _, th := range s.threads {
		out = append(out, th)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Core.Less(out[j].Core) })
	return out
}

// resolveTID implements the H-packet tid resolution rule: 0 is the
// current process's first thread, -1 is "all", anything else must exist.
func (s *Server) resolveTID(tid int) (int, bool) {
	switch {
	case tid == 0:
		return s.currentProcess().FirstThread()
	case tid == -1:
		return -1, true
	default:
		if _, ok := s.threads[tid]; ok {
			return tid, true
		}
		return 0, false
	}
}

// Serve handles a single client connection end to end: it wraps the raw
// net.Conn in an RSP Framer and loops, dispatching packets until the
// connection is closed or the client detaches/kills the session.
//
// Grounded on aykevl-emculator/gdb-rsp.go's gdbHandle/gdbServer accept
// loop ("we intentionally don't handle the connection in a goroutine, as
// only one GDB connection is supported").
func (s *Server) Serve(conn net.Conn) error {
	s.Reset()
	framer := rsp.NewFramer(bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)))

	for {
		cmd, err := framer.ReadCommand()
		if err != nil {
			return err
		}
		if cmd == rsp.CtrlC {
			s.handleBreak(framer)
			continue
		}

		reply, closeConn := s.dispatch(framer, cmd)
		if reply != noReply {
			if err := framer.WriteReply(reply); err != nil {
				return err
			}
		}
		if closeConn {
			return nil
		}
	}
}

// noReply is returned by a handler that wants Serve to skip the generic
// WriteReply call. Its only user is deliverHostReply (the `F` packet),
// which resumes the thread and sends no reply of its own.
const noReply = "\x00no-reply\x00"

func unsupported() string { return "" }

func errReply(code int) string { return fmt.Sprintf("E%02d", code) }
