package gdbserver

import (
	"github.com/coremesh/meshgdb/internal/isa"
	"github.com/coremesh/meshgdb/internal/thread"
)

// gdbSignalNumbers maps the named target signals to the numeric values
// GDB's remote protocol expects in a "T<sig>" stop reply (standard Unix
// signal numbers, with EMT/0 as the semi-hosting placeholder spec.md §4.8
// calls for).
var gdbSignalNumbers = map[thread.Signal]int{
	thread.SigNone: 0,
	thread.SigHUP:  1,
	thread.SigINT:  2,
	thread.SigQUIT: 3,
	thread.SigILL:  4,
	thread.SigTRAP: 5,
	thread.SigABRT: 6,
	thread.SigEMT:  7,
	thread.SigFPE:  8,
	thread.SigBUS:  10,
	thread.SigSYS:  12,
	thread.SigUSR1: 30,
	thread.SigUSR2: 31,
}

// excauseSignal maps a non-zero STATUS.EXCAUSE to its reported signal
// (spec.md §4.8).
var excauseSignal = map[isa.ExCause]thread.Signal{
	isa.ExCauseLDST:   thread.SigBUS,
	isa.ExCauseFPU:    thread.SigFPE,
	isa.ExCauseUnimpl: thread.SigILL,
	isa.ExCauseLStall: thread.SigABRT,
	isa.ExCauseFStall: thread.SigABRT,
}

// trapSignal maps a semi-hosting trap number to its reported signal when
// the thread is found halted just past a TRAP instruction (spec.md §4.8).
var trapSignal = map[int]thread.Signal{
	trapWrite:   thread.SigEMT,
	trapRead:    thread.SigEMT,
	trapOpen:    thread.SigEMT,
	trapClose:   thread.SigEMT,
	trapExit:    thread.SigQUIT,
	trapPass:    thread.SigUSR1,
	trapFail:    thread.SigUSR2,
	trapSyscall: thread.SigEMT,
}

// decodeStopSignal implements spec.md §4.8: determine why a thread halted.
// It also reports whether the stop was at an installed software
// breakpoint ("swbreak"), which the caller attaches as a T-packet
// attribute.
func (s *Server) decodeStopSignal(th *thread.Thread) (sig thread.Signal, swbreak bool) {
	pc, ok := th.PC()
	if !ok {
		return thread.SigNone, false
	}

	// PC just past a BKPT we installed: back up and report TRAP.
	bpAddr := pc - isa.ShortInstrLen
	if s.isInstalledBreakpoint(th.ID, bpAddr) {
		th.SetPC(bpAddr)
		return thread.SigTRAP, true
	}

	status, ok := th.Status()
	if ok {
		cause := isa.ExCause((status >> 16) & 0x7)
		if sig, found := excauseSignal[cause]; found {
			return sig, false
		}
	}

	// Walk back past NOPs looking for a TRAP instruction.
	addr := pc
	for i := 0; i < maxNOPWalkback; i++ {
		addr -= isa.ShortInstrLen
		word, ok := th.ReadMem16(addr)
		if !ok {
			break
		}
		if word == isa.OpcodeNOP {
			continue
		}
		if word == isa.OpcodeTRAP {
			num, ok := s.trapNumberAt(th, addr)
			if ok {
				if sig, found := trapSignal[num]; found {
					return sig, false
				}
			}
			return thread.SigSYS, false
		}
		break
	}

	return thread.SigNone, false
}

// maxNOPWalkback bounds the backward scan for a TRAP instruction past a
// run of NOPs (spec.md §4.8: "walk back past NOPs").
const maxNOPWalkback = 8

func (s *Server) isInstalledBreakpoint(tid int, addr uint32) bool {
	entries := s.mpoints.ForThread(tid)
	_, ok := entries[addr]
	return ok
}

// trapNumberAt reads the 32-bit TRAP encoding at addr and extracts the
// 6-bit trap number from its high bits (spec.md §4.7: "xxxx xxxx xx 0000
// 0011 1110 0010", trap number in the high 6 bits).
func (s *Server) trapNumberAt(th *thread.Thread, addr uint32) (int, bool) {
	word, ok := th.ReadMem32(addr)
	if !ok {
		return 0, false
	}
	return int((word >> 26) & 0x3f), true
}
