package gdbserver

import (
	"strings"

	"github.com/coremesh/meshgdb/internal/rsp"
	"github.com/coremesh/meshgdb/internal/thread"
)

// dispatch classifies one command payload by its leading byte/verb and
// routes it to the matching handler (spec.md §4.7's packet table).
//
// Grounded on aykevl-emculator/gdb-rsp.go's gdbHandle: a chain of
// strings.HasPrefix/switch comparisons over the raw packet text, extended
// here to cover the full multi-thread/multi-process surface spec.md §4.7
// names.
func (s *Server) dispatch(framer *rsp.Framer, packet string) (reply string, closeConn bool) {
	switch {
	case packet == "?":
		return s.handleStopStatus(framer), false

	case packet == "g":
		return s.handleReadAllRegs(), false
	case strings.HasPrefix(packet, "G"):
		return s.handleWriteAllRegs(packet[1:]), false

	case strings.HasPrefix(packet, "m"):
		return s.handleReadMem(packet[1:]), false
	case strings.HasPrefix(packet, "M"):
		return s.handleWriteMemASCII(packet[1:]), false
	case strings.HasPrefix(packet, "X"):
		return s.handleWriteMemBinary(packet[1:]), false

	case strings.HasPrefix(packet, "p"):
		return s.handleReadReg(packet[1:]), false
	case strings.HasPrefix(packet, "P"):
		return s.handleWriteReg(packet[1:]), false

	case strings.HasPrefix(packet, "Hc") || strings.HasPrefix(packet, "Hg"):
		return s.handleSelectThread(packet), false

	case strings.HasPrefix(packet, "T"):
		return s.handleThreadAlive(packet[1:]), false

	case packet == "vCont?":
		return vContCap, false
	case strings.HasPrefix(packet, "vCont"):
		return s.handleVCont(framer, packet), false
	case packet == "vStopped":
		return s.handleVStopped(framer), false
	case strings.HasPrefix(packet, "vAttach;"):
		return s.handleVAttach(strings.TrimPrefix(packet, "vAttach;")), false
	case strings.HasPrefix(packet, "vRun"):
		return s.handleRestart(), false

	case len(packet) > 0 && (packet[0] == 'c' || packet[0] == 's' || packet[0] == 'C' || packet[0] == 'S'):
		return s.handleOldStyleResume(framer, packet[0], packet[1:]), false

	case packet == "D" || packet == "k":
		return s.handleDetachOrKill()
	case strings.HasPrefix(packet, "R"):
		return s.handleRestart(), false

	case strings.HasPrefix(packet, "Z") && len(packet) > 3:
		return s.handleInsertBkpt(packet[3:], packet[1]), false
	case strings.HasPrefix(packet, "z") && len(packet) > 3:
		return s.handleRemoveBkpt(packet[3:], packet[1]), false

	case strings.HasPrefix(packet, "qSupported"):
		return s.handleQSupported(), false
	case packet == "qC":
		return s.handleQC(), false
	case strings.HasPrefix(packet, "qXfer:"):
		return s.handleQXfer(packet), false
	case strings.HasPrefix(packet, "qRcmd,"):
		return s.handleMonitor(framer, strings.TrimPrefix(packet, "qRcmd,")), false

	case strings.HasPrefix(packet, "QNonStop:"):
		return s.handleQNonStop(strings.TrimPrefix(packet, "QNonStop:")), false
	case packet == "QStartNoAckMode":
		framer.SetAcks(false)
		return "OK", false

	case strings.HasPrefix(packet, "F"):
		return s.deliverHostReply(packet[1:]), false

	default:
		return unsupported(), false
	}
}

// handleStopStatus implements `?` (spec.md §4.7): all-stop halts the
// current process's threads and reports the current thread; non-stop
// marks everything continued and arms the notification channel.
func (s *Server) handleStopStatus(framer *rsp.Framer) string {
	if s.mode == NonStop {
		for _, th := range s.threadsInCurrentProcess() {
			th.SetLastAction(thread.ActionContinue)
		}
		s.armNotifications(framer)
		return "OK"
	}

	for _, th := range s.threadsInCurrentProcess() {
		th.Halt()
		th.SetLastAction(thread.ActionStop)
	}
	return s.reportStop(s.currentThread())
}

// handleQNonStop flips the session-wide debug mode (spec.md §4.7
// "QNonStop:0|1").
func (s *Server) handleQNonStop(value string) string {
	switch value {
	case "0":
		s.mode = AllStop
	case "1":
		s.mode = NonStop
	default:
		return errReply(1)
	}
	return "OK"
}
