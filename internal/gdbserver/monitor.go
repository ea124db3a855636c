package gdbserver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coremesh/meshgdb/internal/coreid"
	"github.com/coremesh/meshgdb/internal/rsp"
	"github.com/coremesh/meshgdb/internal/thread"
)

// ImageLoader is the out-of-scope program-loader collaborator named in
// spec.md §6.1: it places an already-parsed image on a workgroup's cores.
// `monitor load` dispatches to it without this package ever parsing an
// image itself (Non-goal: "any target instruction emulation beyond..." —
// image parsing is likewise left to this collaborator).
type ImageLoader interface {
	Load(pid int, path string) error
}

// handleMonitor implements `qRcmd,<hex>`: decode the hex-encoded command
// line and dispatch to the small interpreter of spec.md §4.7, replying
// with hex-encoded console text (or "OK" with no text). `workgroup` is the
// one sub-command that replies with two packets — a console status line
// followed by its own `OK` (spec.md §8 scenario S4) — so it alone is
// handed the framer to write its console line directly before this
// function's normal return value supplies the trailing `OK`.
func (s *Server) handleMonitor(framer *rsp.Framer, payload string) string {
	raw, err := hexDecodeBytes(payload)
	if err != nil {
		return errReply(1)
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return "OK"
	}

	switch fields[0] {
	case "swreset":
		return s.monitorSWReset()
	case "hwreset":
		return s.monitorHWReset()
	case "reset":
		return s.monitorReset()
	case "halt":
		return s.monitorHalt()
	case "coreid":
		return s.monitorCoreID()
	case "workgroup":
		return s.monitorWorkgroup(framer, fields[1:])
	case "process":
		return s.monitorProcess(fields[1:])
	case "load":
		return s.monitorLoad(fields[1:])
	case "help":
		return consoleReply(monitorHelpText)
	default:
		return consoleReply("unknown monitor command: " + fields[0] + "\n")
	}
}

const monitorHelpText = `monitor commands:
  swreset            soft-reset the current thread's core
  hwreset            reinitialize the hardware platform
  reset              reset the whole platform (distinct from hwreset)
  halt               halt the current thread
  coreid             print the current thread's core id
  workgroup r c rows cols   create a workgroup from idle threads
  process <pid>      select the current process
  load <pid> <path>  load an image onto a workgroup's cores
  help               this text
`

func consoleReply(text string) string { return hexEncodeBytes([]byte(text)) }

func (s *Server) monitorSWReset() string {
	th := s.currentThread()
	th.Halt()
	if err := s.tg.ResetCore(th.Core); err != nil {
		return consoleReply("swreset failed: " + err.Error() + "\n")
	}
	return "OK"
}

func (s *Server) monitorHWReset() string {
	if err := s.tg.ResetPlatform(); err != nil {
		return consoleReply("hwreset failed: " + err.Error() + "\n")
	}
	return "OK"
}

// monitorReset is the supplemented full-platform reset distinct from
// swreset (single core) and hwreset, surfacing Target.ResetPlatform()
// under its own monitor verb (SPEC expansion).
func (s *Server) monitorReset() string {
	if err := s.tg.ResetPlatform(); err != nil {
		return consoleReply("reset failed: " + err.Error() + "\n")
	}
	for _, th := range s.allThreadsSorted() {
		th.SetLastAction(thread.ActionStop)
	}
	return "OK"
}

func (s *Server) monitorHalt() string {
	s.currentThread().Halt()
	return "OK"
}

func (s *Server) monitorCoreID() string {
	th := s.currentThread()
	return consoleReply(fmt.Sprintf("core (%d,%d)\n", th.Core.Row, th.Core.Col))
}

// monitorWorkgroup carves a rectangle of idle cores into a new process.
// Per spec.md §8 scenario S4 the client gets two packets for this
// command: a hex-encoded status line reported here directly through
// framer, then this function's return value supplies the closing `OK`
// that Serve writes as usual.
func (s *Server) monitorWorkgroup(framer *rsp.Framer, args []string) string {
	if len(args) != 4 {
		return consoleReply("usage: workgroup <row> <col> <rows> <cols>\n")
	}
	row, err1 := strconv.Atoi(args[0])
	col, err2 := strconv.Atoi(args[1])
	rows, err3 := strconv.Atoi(args[2])
	cols, err4 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return consoleReply("workgroup: bad arguments\n")
	}

	origin := coreid.ID{Row: uint8(row), Col: uint8(col)}
	var tids []int
	cores := make(map[int]coreid.ID)
	for _, th := range s.allThreadsSorted() {
		dr := int(th.Core.Row) - int(origin.Row)
		dc := int(th.Core.Col) - int(origin.Col)
		if dr >= 0 && dr < rows && dc >= 0 && dc < cols {
			tids = append(tids, th.ID)
			cores[th.ID] = th.Core
		}
	}

	pid, err := s.procs.CreateWorkgroup(tids, cores)
	if err != nil {
		return errReply(1)
	}
	framer.WriteReply(consoleReply(fmt.Sprintf("created workgroup pid %d\n", pid)))
	return "OK"
}

func (s *Server) monitorProcess(args []string) string {
	if len(args) != 1 {
		return consoleReply("usage: process <pid>\n")
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return consoleReply("process: bad pid\n")
	}
	proc, ok := s.procs.Get(pid)
	if !ok {
		return errReply(1)
	}
	s.curPID = pid
	if tid, ok := proc.FirstThread(); ok {
		s.curTID = tid
	}
	return "OK"
}

func (s *Server) monitorLoad(args []string) string {
	if len(args) != 2 {
		return consoleReply("usage: load <pid> <path>\n")
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return consoleReply("load: bad pid\n")
	}
	if s.loader == nil {
		return consoleReply("load: no image loader configured\n")
	}
	if _, ok := s.procs.Get(pid); !ok {
		return errReply(1)
	}
	if err := s.loader.Load(pid, args[1]); err != nil {
		return consoleReply("load failed: " + err.Error() + "\n")
	}
	return "OK"
}
