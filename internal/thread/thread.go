// Package thread implements the per-core debug/run state machine of
// spec.md §4.3.
package thread

import (
	"encoding/binary"
	"time"

	"github.com/coremesh/meshgdb/internal/coreid"
	"github.com/coremesh/meshgdb/internal/isa"
	"github.com/coremesh/meshgdb/internal/target"
)

// DebugState is the cached halted/running state of a thread.
type DebugState int

const (
	Running DebugState = iota
	Halted
)

// RunState is the orthogonal active/idle state, set externally by
// idle()/activate() or detected on halt after the core executed IDLE.
type RunState int

const (
	RunUnknown RunState = iota
	Active
	Idle
)

// LastAction records whether the thread was last told to stop or continue,
// used to decide vCont transitions (spec.md §4.7).
type LastAction int

const (
	ActionStop LastAction = iota
	ActionContinue
)

// Signal is a target-signal value, as reported to the debugger (TRAP, BUS,
// FPE, ILL, ABRT, EMT, QUIT, USR1, USR2, SYS, INT, HUP, NONE).
type Signal string

const (
	SigNone  Signal = "NONE"
	SigTRAP  Signal = "TRAP"
	SigBUS   Signal = "BUS"
	SigFPE   Signal = "FPE"
	SigILL   Signal = "ILL"
	SigABRT  Signal = "ABRT"
	SigEMT   Signal = "EMT"
	SigQUIT  Signal = "QUIT"
	SigUSR1  Signal = "USR1"
	SigUSR2  Signal = "USR2"
	SigSYS   Signal = "SYS"
	SigINT   Signal = "INT"
	SigHUP   Signal = "HUP"
)

// Thread is per-core debug state: wraps register/memory ops scoped to its
// core and tracks the state machine of spec.md §4.3.
type Thread struct {
	ID   int // externally visible tid
	Core coreid.ID

	tg target.Target

	debugState DebugState
	runState   RunState
	lastAction LastAction
	pending    Signal

	ivt [isa.IVTBytes]byte

	// HaltTimeout bounds halt()'s poll loop (spec.md §4.3: 1s, with one
	// retry). Tests override this to avoid real sleeps.
	HaltTimeout  time.Duration
	PollInterval time.Duration
}

// New creates a Thread for a core, initially cached as halted (the state
// every enumerated core starts attach in).
func New(id int, core coreid.ID, tg target.Target) *Thread {
	return &Thread{
		ID:           id,
		Core:         core,
		tg:           tg,
		debugState:   Halted,
		runState:     RunUnknown,
		lastAction:   ActionStop,
		pending:      SigNone,
		HaltTimeout:  time.Second,
		PollInterval: 10 * time.Microsecond,
	}
}

func (t *Thread) DebugState() DebugState   { return t.debugState }
func (t *Thread) RunState() RunState       { return t.runState }
func (t *Thread) LastAction() LastAction   { return t.lastAction }
func (t *Thread) PendingSignal() Signal    { return t.pending }
func (t *Thread) SetLastAction(a LastAction) { t.lastAction = a }
func (t *Thread) SetPendingSignal(s Signal)  { t.pending = s }

// Halt writes DEBUGCMD=HALT and polls DEBUGSTATUS bit 0, retrying once
// after 1s. Returns true if halted with no outstanding external fetch.
func (t *Thread) Halt() bool {
	for attempt := 0; attempt < 2; attempt++ {
		if err := t.tg.WriteReg(t.Core, isa.Named.DEBUGCMD, isa.DebugCmdHalt); err != nil {
			continue
		}
		deadline := time.Now().Add(t.HaltTimeout)
		for time.Now().Before(deadline) {
			status, err := t.tg.ReadReg(t.Core, isa.Named.DEBUGSTATUS)
			if err == nil && status&isa.DebugStatusHalted != 0 {
				t.debugState = Halted
				return status&isa.DebugStatusExternalPnd == 0
			}
			time.Sleep(t.PollInterval)
		}
	}
	// Leaves the cached debug state unchanged.
	return false
}

// Resume writes DEBUGCMD=RUN and caches running.
func (t *Thread) Resume() bool {
	if err := t.tg.WriteReg(t.Core, isa.Named.DEBUGCMD, isa.DebugCmdRun); err != nil {
		return false
	}
	t.debugState = Running
	return true
}

// Idle clears STATUS bit 0 into FSTATUS; only meaningful while halted.
func (t *Thread) Idle() bool {
	status, err := t.tg.ReadReg(t.Core, isa.Named.STATUS)
	if err != nil {
		return false
	}
	status &^= isa.StatusActiveBit
	if err := t.tg.WriteReg(t.Core, isa.Named.FSTATUS, status); err != nil {
		return false
	}
	t.runState = Idle
	return true
}

// Activate sets STATUS bit 0 into FSTATUS.
func (t *Thread) Activate() bool {
	status, err := t.tg.ReadReg(t.Core, isa.Named.STATUS)
	if err != nil {
		return false
	}
	status |= isa.StatusActiveBit
	if err := t.tg.WriteReg(t.Core, isa.Named.FSTATUS, status); err != nil {
		return false
	}
	t.runState = Active
	return true
}

// SaveIVT reads the 40-byte IVT at address 0 into the save buffer.
func (t *Thread) SaveIVT() bool {
	data, err := t.readLocalBlock(0, isa.IVTBytes)
	if err != nil {
		return false
	}
	copy(t.ivt[:], data)
	return true
}

// RestoreIVT writes the save buffer back to address 0.
func (t *Thread) RestoreIVT() bool {
	return t.writeLocalBlock(0, t.ivt[:]) == nil
}

// InsertBkpt writes the BKPT opcode at a 32-bit local or global address.
func (t *Thread) InsertBkpt(addr uint32) bool {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, isa.OpcodeBKPT)
	return t.writeBytesAt(addr, buf) == nil
}

// ReadReg reads GDB register index n by indexing the fixed offset table.
func (t *Thread) ReadReg(n int) (uint32, bool) {
	off, ok := regOffset(n)
	if !ok {
		return 0, false
	}
	v, err := t.tg.ReadReg(t.Core, off)
	return v, err == nil
}

// WriteReg writes GDB register index n.
func (t *Thread) WriteReg(n int, v uint32) bool {
	off, ok := regOffset(n)
	if !ok {
		return false
	}
	return t.tg.WriteReg(t.Core, off, v) == nil
}

// PC/STATUS/COREID convenience accessors, used throughout the gdbserver
// package for stepping and stop-reason decoding.

func (t *Thread) PC() (uint32, bool) {
	v, err := t.tg.ReadReg(t.Core, isa.Named.PC)
	return v, err == nil
}

func (t *Thread) SetPC(v uint32) bool {
	return t.tg.WriteReg(t.Core, isa.Named.PC, v) == nil
}

func (t *Thread) Status() (uint32, bool) {
	v, err := t.tg.ReadReg(t.Core, isa.Named.STATUS)
	return v, err == nil
}

func (t *Thread) CoreIDReg() (uint32, bool) {
	v, err := t.tg.ReadReg(t.Core, isa.Named.COREID)
	return v, err == nil
}

// ReadMem8/16/32, WriteMem8/16/32 and ReadBlock/WriteBlock map a core-local
// address into this core's 1MiB window and pass any other address through
// unchanged. They do not check that an access stays inside the window; the
// only bounds enforced are the Target's own (a short transfer, or strict
// address validation when enabled).

func (t *Thread) ReadMem8(addr uint32) (uint8, bool) {
	b, err := t.readLocalBlock(addr, 1)
	if err != nil {
		return 0, false
	}
	return b[0], true
}

func (t *Thread) ReadMem16(addr uint32) (uint16, bool) {
	b, err := t.readLocalBlock(addr, 2)
	if err != nil {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

func (t *Thread) ReadMem32(addr uint32) (uint32, bool) {
	b, err := t.readLocalBlock(addr, 4)
	if err != nil {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (t *Thread) WriteMem8(addr uint32, v uint8) bool {
	return t.writeBytesAt(addr, []byte{v}) == nil
}

func (t *Thread) WriteMem16(addr uint32, v uint16) bool {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return t.writeBytesAt(addr, buf) == nil
}

func (t *Thread) WriteMem32(addr uint32, v uint32) bool {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return t.writeBytesAt(addr, buf) == nil
}

func (t *Thread) ReadBlock(addr uint32, length int) ([]byte, bool) {
	b, err := t.readLocalBlock(addr, length)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (t *Thread) WriteBlock(addr uint32, data []byte) bool {
	return t.writeBytesAt(addr, data) == nil
}

// localGlobal resolves a thread-scoped address: if it is already a global
// address outside the core-local window it is used unchanged, otherwise it
// is mapped into this thread's core window.
func (t *Thread) localGlobal(addr uint32) uint32 {
	if !t.tg.IsLocalAddr(addr) {
		return addr
	}
	return globalAddr(t.Core, addr)
}

func (t *Thread) readLocalBlock(addr uint32, length int) ([]byte, error) {
	return t.tg.ReadBurst(t.localGlobal(addr), length)
}

func (t *Thread) writeLocalBlock(addr uint32, data []byte) error {
	return t.tg.WriteBurst(t.localGlobal(addr), data)
}

func (t *Thread) writeBytesAt(addr uint32, data []byte) error {
	return t.tg.WriteBurst(t.localGlobal(addr), data)
}
