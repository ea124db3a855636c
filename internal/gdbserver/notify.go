package gdbserver

import (
	"github.com/coremesh/meshgdb/internal/process"
	"github.com/coremesh/meshgdb/internal/rsp"
	"github.com/coremesh/meshgdb/internal/thread"
)

// armNotifications implements the non-stop half of spec.md §4.7's vCont
// handling: rather than blocking, scan for any thread that has stopped
// (last-action Stop but debug state Halted) and not yet been announced,
// and, if the notification channel is free, push a `Stop:T...`
// notification. notifiedTIDs remembers which halts are already announced
// so a thread that stays halted across repeated scans doesn't eclipse its
// still-unreported siblings; resuming a thread clears its entry so a
// later halt can be reported again.
func (s *Server) armNotifications(framer *rsp.Framer) {
	for _, th := range s.threadsInCurrentProcess() {
		if th.DebugState() != thread.Halted {
			continue
		}
		if th.LastAction() != thread.ActionStop {
			continue
		}
		if s.notifiedTIDs[th.ID] {
			continue
		}
		s.notifiedTIDs[th.ID] = true
		payload := "Stop:" + s.reportStop(th)
		framer.WriteNotification(payload)
		return
	}
}

// handleVStopped answers the client's `vStopped` drain packets: it clears
// the outstanding-notification gate, then if another thread is already
// halted-and-unreported it replies with that thread's stop report
// directly (not another out-of-band notification — this is how the
// client walks the whole backlog one vStopped at a time); once nothing is
// left it replies OK (spec.md §4.7, §5 "Notifications... strictly
// serialised").
func (s *Server) handleVStopped(framer *rsp.Framer) string {
	framer.NotificationAcked()
	for _, th := range s.threadsInCurrentProcess() {
		if th.DebugState() != thread.Halted {
			continue
		}
		if th.LastAction() != thread.ActionStop {
			continue
		}
		if s.notifiedTIDs[th.ID] {
			continue
		}
		s.notifiedTIDs[th.ID] = true
		return s.reportStop(th)
	}
	return "OK"
}

// handleBreak implements spec.md §5's break/ctrl-C cancellation rule: an
// immediate halt of every thread in the current process, followed by a
// stop report with SIGINT on the first thread whose last action was
// Continue.
func (s *Server) handleBreak(framer *rsp.Framer) {
	var target *thread.Thread
	for _, th := range s.threadsInCurrentProcess() {
		wasRunning := th.LastAction() == thread.ActionContinue
		th.Halt()
		th.SetLastAction(thread.ActionStop)
		if wasRunning && target == nil {
			target = th
		}
	}
	if target == nil {
		return
	}
	target.SetPendingSignal(thread.SigINT)
	reply := s.reportStop(target)
	framer.WriteReply(reply)
}

// handleVAttach implements spec.md §4.7 `vAttach;pid`: halt and
// force-activate every idle thread in the process, make it current,
// report the exception (HUP if halt failed) then mark all stopped.
func (s *Server) handleVAttach(payload string) string {
	pidHex := payload
	pid, err := parseHexInt(pidHex)
	if err != nil {
		return errReply(1)
	}
	proc, ok := s.procs.Get(pid)
	if !ok {
		return errReply(1)
	}

	s.curPID = pid
	var reportOn *thread.Thread
	for _, tid := range proc.Threads() {
		th, ok := s.threads[tid]
		if !ok {
			continue
		}
		if th.RunState() == thread.Idle {
			th.Activate()
		}
		if !s.opts.DontHaltOnAttach {
			ok2 := th.Halt()
			if !ok2 {
				th.SetPendingSignal(thread.SigHUP)
			}
		}
		th.SetLastAction(thread.ActionStop)
		if reportOn == nil {
			reportOn = th
		}
	}
	if reportOn == nil {
		return errReply(1)
	}
	s.curTID = reportOn.ID
	return s.reportStop(reportOn)
}

// handleDetachOrKill implements `D`/`k`: resume every non-idle thread and
// dissolve its process back into the idle process (spec.md §4.5
// "kill/detach on a non-idle process returns them"), then signal the
// connection to close.
func (s *Server) handleDetachOrKill() (reply string, closeConn bool) {
	for pid := range s.procSet() {
		if pid == process.IdlePID {
			continue
		}
		if proc, ok := s.procs.Get(pid); ok {
			for _, tid := range proc.Threads() {
				if th, ok := s.threads[tid]; ok {
					th.Resume()
					th.SetLastAction(thread.ActionContinue)
				}
			}
		}
		s.procs.Dissolve(pid)
	}
	return "OK", true
}

// handleRestart implements `R`/`vRun;`: write 0 to the current thread's PC
// and report S05 (spec.md §4.7).
func (s *Server) handleRestart() string {
	th := s.currentThread()
	th.SetPC(0)
	return "S05"
}

// procSet exposes the live pid set for iteration; process.Set does not
// expose this directly so the server tracks membership through its own
// thread table by asking the owner of each tid.
func (s *Server) procSet() map[int]bool {
	out := make(map[int]bool)
	for tid := range s.threads {
		if owner, ok := s.procs.Owner(tid); ok {
			out[owner.PID] = true
		}
	}
	return out
}
