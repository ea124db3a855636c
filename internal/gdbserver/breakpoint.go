package gdbserver

import (
	"encoding/binary"

	"github.com/coremesh/meshgdb/internal/isa"
	"github.com/coremesh/meshgdb/internal/matchpoint"
	"github.com/coremesh/meshgdb/internal/thread"
)

// handleInsertBkpt answers `Z0,<addr>,<len>`. Only software breakpoints
// are supported; any other matchpoint type is refused with an empty reply
// (spec.md §3: "hardware/watch variants are refused with an empty
// reply"). For a core-local address the breakpoint is installed on every
// thread in the current process; for shared/external addresses only the
// current thread is affected (spec.md §4.4, §4.7).
func (s *Server) handleInsertBkpt(payload string, kind byte) string {
	if kind != '0' {
		return unsupported()
	}
	addr, length, ok := parseBkptArgs(payload)
	if !ok {
		return errReply(1)
	}
	// A software breakpoint is always a short BKPT opcode regardless of
	// what length the client asked for (spec.md: "len must equal the
	// short-instruction length (warn+fix otherwise)").
	if length != isa.ShortInstrLen {
		s.log.Warn("Z0 length mismatch, fixing", "addr", addr, "got", length, "want", isa.ShortInstrLen)
	}

	targets := s.matchpointTargets(addr)
	for _, th := range targets {
		key := matchpoint.Key{Kind: matchpoint.SoftwareBreakpoint, Addr: addr, ThreadID: th.ID}
		if _, already := s.mpoints.Lookup(key); already {
			continue
		}
		orig, ok := th.ReadMem16(addr)
		if !ok {
			return errReply(2)
		}
		s.mpoints.Add(key, orig)
		if !th.InsertBkpt(addr) {
			return errReply(2)
		}
	}
	return "OK"
}

// handleRemoveBkpt answers `z0,<addr>,<len>`: restore the original opcode
// and drop the matchpoint entry.
func (s *Server) handleRemoveBkpt(payload string, kind byte) string {
	if kind != '0' {
		return unsupported()
	}
	addr, length, ok := parseBkptArgs(payload)
	if !ok {
		return errReply(1)
	}
	if length != isa.ShortInstrLen {
		s.log.Warn("z0 length mismatch, fixing", "addr", addr, "got", length, "want", isa.ShortInstrLen)
	}

	targets := s.matchpointTargets(addr)
	for _, th := range targets {
		key := matchpoint.Key{Kind: matchpoint.SoftwareBreakpoint, Addr: addr, ThreadID: th.ID}
		orig, found := s.mpoints.Remove(key)
		if !found {
			continue
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, orig)
		if !th.WriteBlock(addr, buf) {
			return errReply(2)
		}
	}
	return "OK"
}

// matchpointTargets returns the threads a breakpoint at addr should be
// installed on/removed from: every thread in the current process for a
// core-local address, or just the current thread for shared/external
// memory (spec.md §4.4).
func (s *Server) matchpointTargets(addr uint32) []*thread.Thread {
	if s.tg.IsLocalAddr(addr) {
		return s.threadsInCurrentProcess()
	}
	return []*thread.Thread{s.currentThread()}
}

func parseBkptArgs(payload string) (addr uint32, length int, ok bool) {
	addrStr, lenStr, found := splitOnce(payload, ',')
	if !found {
		return 0, 0, false
	}
	a, err := parseHexUint32(addrStr)
	if err != nil {
		return 0, 0, false
	}
	l, err := parseHexInt(lenStr)
	if err != nil {
		return 0, 0, false
	}
	return a, l, true
}
