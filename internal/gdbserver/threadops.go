package gdbserver

import "fmt"

// handleSelectThread implements `Hc<tid>`/`Hg<tid>` (spec.md §4.7): both
// forms select a thread by the same resolution rule; this server does not
// distinguish "thread for step/continue" from "thread for other
// operations" the way some stubs do, since every op here already routes
// through the current process/thread pair.
func (s *Server) handleSelectThread(payload string) string {
	if len(payload) < 2 {
		return errReply(1)
	}
	tidStr := payload[1:]
	tid, err := parseHexInt(tidStr)
	if err != nil {
		return errReply(1)
	}
	resolved, ok := s.resolveTID(tid)
	if !ok {
		return errReply(1)
	}
	if resolved != -1 {
		s.curTID = resolved
	}
	return "OK"
}

// handleThreadAlive answers `T<tid>`: OK if the thread exists in the
// current process, E01 otherwise.
func (s *Server) handleThreadAlive(payload string) string {
	tid, err := parseHexInt(payload)
	if err != nil {
		return errReply(1)
	}
	if !s.currentProcess().HasThread(tid) {
		return errReply(1)
	}
	return "OK"
}

// handleQC answers `qC`: the current thread as `QCp<pid>.<tid>`.
func (s *Server) handleQC() string {
	return fmt.Sprintf("QCp%x.%x", s.curPID, s.curTID)
}
