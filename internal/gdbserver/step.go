package gdbserver

import (
	"time"

	"github.com/coremesh/meshgdb/internal/isa"
	"github.com/coremesh/meshgdb/internal/rsp"
	"github.com/coremesh/meshgdb/internal/thread"
)

// iretRegIndex is the GDB register index of IRET within the SCR block
// (CONFIG, STATUS, PC, DEBUGSTATUS, LC, LS, LE, IRET -> offset 7).
const iretRegIndex = thread.NumGPR + 7

// regAdapter satisfies isa.RegisterFile by reading through a Thread's
// GDB-indexed register file.
type regAdapter struct{ th *thread.Thread }

func (r regAdapter) Reg(n int) uint32 {
	v, _ := r.th.ReadReg(n)
	return v
}

func (r regAdapter) IRET() uint32 {
	v, _ := r.th.ReadReg(iretRegIndex)
	return v
}

// stepTimeout bounds the poll-for-halt loop a synthesized single-step
// uses after resuming the core (spec.md §4.7, §5: bounded hardware waits).
const stepTimeout = 100 * time.Millisecond

// singleStep implements spec.md §4.7 "Synthesized single-step": the
// hardware lacks a step bit, so the server plants temporary breakpoints
// at the fallthrough and (if applicable) branch-target addresses, resumes
// for exactly one instruction's worth of execution, then restores state.
func (s *Server) singleStep(framer *rsp.Framer, th *thread.Thread) thread.Signal {
	pc, ok := th.PC()
	if !ok {
		return thread.SigNone
	}
	first, ok := th.ReadMem16(pc)
	if !ok {
		return thread.SigNone
	}

	if first == isa.OpcodeIDLE {
		imask, _ := th.ReadReg(iretRegIndex + 1) // IMASK follows IRET in the SCR table
		ilat, ok := th.ReadReg(iretRegIndex + 2)  // ILAT follows IMASK
		if ok && ilat&^imask != 0 {
			return s.armAndStepISR(framer, th, pc)
		}
		return thread.SigNone
	}

	word32, _ := th.ReadMem32(pc)
	outcome := isa.Decode(word32, pc, regAdapter{th})

	switch outcome.Kind {
	case isa.Trap:
		awaiting := s.dispatchTrap(framer, th, outcome.Num)
		if !awaiting {
			th.SetPC(pc + isa.LongInstrLen)
		}
		return thread.SigNone
	case isa.Idle:
		return thread.SigNone
	}

	fallthroughAddr := pc + uint32(isa.InstrLen(first))
	targets := []uint32{fallthroughAddr}
	if outcome.Kind == isa.Branch || outcome.Kind == isa.Jump || outcome.Kind == isa.Ret {
		targets = append(targets, outcome.Target)
	}

	return s.stepViaTempBreakpoints(th, targets)
}

// stepViaTempBreakpoints plants BKPT at every candidate address, arms the
// IVT so an interrupt mid-step is recognisable, resumes, waits, then
// restores everything and backs PC up past the BKPT it landed on (spec.md
// §4.7 step 3).
func (s *Server) stepViaTempBreakpoints(th *thread.Thread, targets []uint32) thread.Signal {
	type saved struct {
		addr uint32
		op   uint16
	}
	var plants []saved
	for _, addr := range targets {
		op, ok := th.ReadMem16(addr)
		if !ok {
			continue
		}
		plants = append(plants, saved{addr, op})
		th.InsertBkpt(addr)
	}
	th.SaveIVT()
	fillIVTWithBkpt(th)

	th.Resume()
	halted := pollHalt(th, stepTimeout)

	for _, p := range plants {
		th.WriteMem16(p.addr, p.op)
	}
	th.RestoreIVT()

	if !halted {
		return thread.SigNone
	}

	pc, ok := th.PC()
	if ok {
		th.SetPC(pc - isa.ShortInstrLen)
	}
	return thread.SigTRAP
}

// fillIVTWithBkpt overwrites every IVT entry with BKPT so an interrupt
// that fires mid-step is itself recognised as a step-stop (spec.md §4.7).
func fillIVTWithBkpt(th *thread.Thread) {
	buf := make([]byte, isa.IVTBytes)
	for i := 0; i < isa.IVTEntries; i++ {
		buf[i*isa.RegWidth] = byte(isa.OpcodeBKPT)
		buf[i*isa.RegWidth+1] = byte(isa.OpcodeBKPT >> 8)
	}
	th.WriteBlock(0, buf)
}

func pollHalt(th *thread.Thread, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if th.Halt() {
			return true
		}
	}
	return false
}

// armAndStepISR handles the IDLE-with-pending-interrupt case: rather than
// planting a breakpoint at a fallthrough address that will never execute,
// it plants one on the IDLE itself and relies on stepViaTempBreakpoints
// filling every IVT entry with BKPT, so the pending interrupt's vector is
// where the core stops.
func (s *Server) armAndStepISR(framer *rsp.Framer, th *thread.Thread, pc uint32) thread.Signal {
	return s.stepViaTempBreakpoints(th, []uint32{pc})
}
