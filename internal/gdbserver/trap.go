package gdbserver

import (
	"fmt"
	"strings"

	"github.com/coremesh/meshgdb/internal/rsp"
	"github.com/coremesh/meshgdb/internal/thread"
)

// Semi-hosting trap numbers (spec.md §4.7 "Trap / semi-hosting").
const (
	trapWrite   = 0
	trapRead    = 1
	trapOpen    = 2
	trapExit    = 3
	trapPass    = 4
	trapFail    = 5
	trapClose   = 6
	trapSyscall = 7
)

// syscall sub-codes selected by R3 for trapSyscall (spec.md §4.7).
const (
	sysOpen = iota
	sysClose
	sysRead
	sysWrite
	sysLseek
	sysUnlink
	sysStat
	sysFstat
)

// maxHostString bounds how far handleSyscallTrap will scan target memory
// looking for a NUL-terminated path argument (spec.md §4.7: "up to a NUL
// or 1024 bytes").
const maxHostString = 1024

// dispatchTrap implements spec.md §4.7's trap table. It is called once
// Decode has classified the current instruction as isa.Trap. Any `F`
// request is written directly through framer; the return value reports
// whether the thread must now wait for the client's `F` reply packet
// before it may resume.
func (s *Server) dispatchTrap(framer *rsp.Framer, th *thread.Thread, num int) (awaitingHostReply bool) {
	switch num {
	case trapWrite, trapRead, trapOpen, trapClose:
		call := hostCallMnemonic(num)
		r0, _ := th.ReadReg(0)
		r1, _ := th.ReadReg(1)
		r2, _ := th.ReadReg(2)
		framer.WriteReply(fmt.Sprintf("F%s,%x,%x,%x", call, r0, r1, r2))
		return true
	case trapExit:
		th.SetPendingSignal(thread.SigQUIT)
		return false
	case trapPass, trapFail:
		// Silent per spec.md: no report, just let the caller continue
		// past the instruction.
		return false
	case trapSyscall:
		return s.dispatchSyscallTrap(framer, th)
	default:
		return false
	}
}

func hostCallMnemonic(num int) string {
	switch num {
	case trapWrite:
		return "write"
	case trapRead:
		return "read"
	case trapOpen:
		return "open"
	case trapClose:
		return "close"
	default:
		return "?"
	}
}

// dispatchSyscallTrap implements the R3-selected SYS_* sub-dispatch
// (spec.md §4.7).
func (s *Server) dispatchSyscallTrap(framer *rsp.Framer, th *thread.Thread) bool {
	sel, _ := th.ReadReg(3)
	r0, _ := th.ReadReg(0)
	r1, _ := th.ReadReg(1)
	r2, _ := th.ReadReg(2)

	switch sel {
	case sysOpen, sysUnlink, sysStat:
		path := s.readHostString(th, r0)
		framer.WriteReply(fmt.Sprintf("Fopen,%s,%x,%x", hexEncodeBytes([]byte(path)), r1, r2))
	case sysClose:
		framer.WriteReply(fmt.Sprintf("Fclose,%x", r0))
	case sysRead:
		framer.WriteReply(fmt.Sprintf("Fread,%x,%x,%x", r0, r1, r2))
	case sysWrite:
		if s.ttySink != nil {
			// --tty redirection: the print goes straight to the local
			// tty, no client round-trip needed (spec.md §6.3).
			s.writeToTTY(th, r1, r2)
			return false
		}
		framer.WriteReply(fmt.Sprintf("Fwrite,%x,%x,%x", r0, r1, r2))
	case sysLseek:
		framer.WriteReply(fmt.Sprintf("Flseek,%x,%x,%x", r0, r1, r2))
	case sysFstat:
		framer.WriteReply(fmt.Sprintf("Ffstat,%x,%x", r0, r1))
	default:
		th.SetPendingSignal(thread.SigSYS)
		return false
	}
	return true
}

// writeToTTY copies a SYS_write buffer (addr r1, length r2) from target
// memory straight to the configured --tty sink.
func (s *Server) writeToTTY(th *thread.Thread, addr, length uint32) int {
	data, ok := th.ReadBlock(addr, int(length))
	if !ok {
		return 0
	}
	n, _ := s.ttySink.Write(data)
	return n
}

// readHostString reads a NUL-terminated path argument from target memory,
// up to maxHostString bytes (spec.md §4.7).
func (s *Server) readHostString(th *thread.Thread, addr uint32) string {
	var sb strings.Builder
	for i := 0; i < maxHostString; i++ {
		b, ok := th.ReadMem8(addr + uint32(i))
		if !ok || b == 0 {
			break
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

// deliverHostReply implements the `F<ret>,<errno>` packet: it writes the
// return value and errno into R0/R3 of the current thread and resumes it
// (spec.md §4.7 "F<ret>,<errno>").
func (s *Server) deliverHostReply(payload string) string {
	retStr, errnoStr, _ := splitOnce(payload, ',')
	ret, err := parseHexInt(retStr)
	if err != nil {
		return errReply(1)
	}
	errno := 0
	if errnoStr != "" {
		errno, _ = parseHexInt(errnoStr)
	}

	th := s.currentThread()
	th.WriteReg(0, uint32(ret))
	th.WriteReg(3, uint32(errno))
	th.Resume()
	th.SetLastAction(thread.ActionContinue)
	return noReply
}
