package gdbserver

import (
	"fmt"
	"strings"

	"github.com/coremesh/meshgdb/internal/process"
	"github.com/coremesh/meshgdb/internal/rsp"
	"github.com/coremesh/meshgdb/internal/thread"
)

// vContCap is the fixed capability answer to `vCont?` (spec.md §4.7).
const vContCap = "vCont;c;C;s;S;t"

// vContAction is one (action, tid) pair parsed out of a `vCont;...` packet.
type vContAction struct {
	action byte // 'c', 'C', 's', 'S', or 't'
	tid    int  // -1 means "every thread not otherwise matched"
}

func parseVCont(payload string) []vContAction {
	parts := strings.Split(payload, ";")
	var out []vContAction
	for _, p := range parts[1:] { // parts[0] is "vCont"
		if p == "" {
			continue
		}
		action := p[0]
		tid := -1
		if colon := strings.IndexByte(p, ':'); colon >= 0 {
			tid, _ = parseHexInt(p[colon+1:])
		}
		out = append(out, vContAction{action: action, tid: tid})
	}
	return out
}

// handleVCont implements spec.md §4.7's "vCont;<a>[:tid];..." dispatch:
// halts are applied to every matched thread before any resume (§5
// ordering rule), then the old-style c/s/C/S packets reduce to a single
// vContAction and funnel through the same path.
func (s *Server) handleVCont(framer *rsp.Framer, payload string) string {
	actions := parseVCont(payload)

	toHalt, toResume, toStep := s.resolveVContActions(actions)

	for _, th := range toHalt {
		if th.LastAction() == thread.ActionContinue {
			th.Halt()
		}
		th.SetLastAction(thread.ActionStop)
	}

	var stopped []*thread.Thread
	for _, th := range toStep {
		sig := s.singleStep(framer, th)
		th.SetLastAction(thread.ActionStop)
		th.SetPendingSignal(sig)
		stopped = append(stopped, th)
	}

	for _, th := range toResume {
		if th.LastAction() == thread.ActionStop && th.PendingSignal() == thread.SigNone {
			th.Resume()
			th.SetLastAction(thread.ActionContinue)
			delete(s.notifiedTIDs, th.ID)
		}
	}

	if s.mode == NonStop {
		s.armNotifications(framer)
		return "OK"
	}

	return s.waitAllStop(framer, stopped)
}

// resolveVContActions matches each (action, tid) pair against every known
// thread, per spec.md's "matched against all threads" rule: a specific
// tid entry takes priority over a wildcard (-1) entry appearing later.
func (s *Server) resolveVContActions(actions []vContAction) (halt, resume, step []*thread.Thread) {
	matched := make(map[int]byte)
	for _, a := range actions {
		if a.tid == -1 {
			for tid := range s.threads {
				if _, already := matched[tid]; !already {
					matched[tid] = a.action
				}
			}
			continue
		}
		matched[a.tid] = a.action
	}

	for tid, action := range matched {
		th, ok := s.threads[tid]
		if !ok {
			continue
		}
		switch action {
		case 'c', 'C':
			resume = append(resume, th)
		case 's', 'S':
			step = append(step, th)
		case 't':
			halt = append(halt, th)
		}
	}
	return halt, resume, step
}

// waitAllStop implements all-stop continue/step: after halts/resumes are
// applied, block until some thread in the current process reports a
// halt, then halt the rest of the process and report the one thread
// (spec.md §4.7 "All-stop... waits").
func (s *Server) waitAllStop(framer *rsp.Framer, alreadyStopped []*thread.Thread) string {
	if len(alreadyStopped) > 0 {
		return s.reportStop(alreadyStopped[0])
	}

	for _, th := range s.threadsInCurrentProcess() {
		if th.LastAction() != thread.ActionContinue {
			continue
		}
		if th.Halt() {
			s.haltRestOfProcess(th)
			return s.reportStop(th)
		}
	}
	// Nothing resumed in this process; report the current thread as-is.
	return s.reportStop(s.currentThread())
}

func (s *Server) haltRestOfProcess(stopped *thread.Thread) {
	for _, th := range s.threadsInCurrentProcess() {
		if th.ID == stopped.ID {
			continue
		}
		if th.LastAction() == thread.ActionContinue {
			th.Halt()
			th.SetLastAction(thread.ActionStop)
		}
	}
}

// reportStop formats a `T<sig>thread:p<pid>.<tid>;` stop reply (spec.md
// §4.7 "?").
func (s *Server) reportStop(th *thread.Thread) string {
	th.SetLastAction(thread.ActionStop)
	sig, swbreak := s.decodeStopSignal(th)
	if th.PendingSignal() != thread.SigNone {
		sig = th.PendingSignal()
		th.SetPendingSignal(thread.SigNone)
	}
	num := gdbSignalNumbers[sig]
	pid := process.IdlePID
	if owner, ok := s.procs.Owner(th.ID); ok {
		pid = owner.PID
	}
	attrs := ""
	if swbreak {
		attrs = "swbreak:;"
	}
	return fmt.Sprintf("T%02xthread:p%x.%x;%s", num, pid, th.ID, attrs)
}

// handleOldStyleResume implements the legacy `c[addr]`, `s[addr]`, `C`,
// `S` packets by translating them into the equivalent vCont action on the
// current thread (spec.md §4.7: "dispatched through vCont machinery").
func (s *Server) handleOldStyleResume(framer *rsp.Framer, kind byte, rest string) string {
	th := s.currentThread()

	var action byte
	switch kind {
	case 'c', 'C':
		action = 'c'
	case 's', 'S':
		action = 's'
	}

	// C/S carry a signal number and an optional ";addr"; c/s carry a bare
	// optional addr. Either way, only the address (if present) matters
	// here — the signal number itself is not delivered to the target.
	addrHex := rest
	if kind == 'C' || kind == 'S' {
		if semi := strings.IndexByte(rest, ';'); semi >= 0 {
			addrHex = rest[semi+1:]
		} else {
			addrHex = ""
		}
	}
	if addrHex != "" {
		if addr, err := parseHexUint32(addrHex); err == nil {
			th.SetPC(addr)
		}
	}

	synth := fmt.Sprintf("vCont;%c:%x", action, th.ID)
	return s.handleVCont(framer, synth)
}
