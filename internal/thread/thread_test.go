package thread

import (
	"testing"
	"time"

	"github.com/coremesh/meshgdb/internal/coreid"
	"github.com/coremesh/meshgdb/internal/isa"
	"github.com/coremesh/meshgdb/internal/platform"
	"github.com/coremesh/meshgdb/internal/target"
)

func testTarget() target.Target {
	desc := platform.Description{Chips: []platform.Chip{{Row: 0, Col: 0, Rows: 1, Cols: 1}}}
	return target.NewSim(desc, target.SimMemSize)
}

func newTestThread(t *testing.T, tg target.Target) *Thread {
	th := New(101, coreid.ID{Row: 0, Col: 0}, tg)
	th.HaltTimeout = 10 * time.Millisecond
	th.PollInterval = time.Microsecond
	return th
}

func TestHaltSetsDebugStatusAndReportsNoExternalFetch(t *testing.T) {
	tg := testTarget()
	th := newTestThread(t, tg)

	// Simulate the core acknowledging the halt request.
	tg.WriteReg(th.Core, isa.Named.DEBUGSTATUS, isa.DebugStatusHalted)

	if ok := th.Halt(); !ok {
		t.Fatal("Halt() = false, want true")
	}
	if th.DebugState() != Halted {
		t.Fatalf("DebugState() = %v, want Halted", th.DebugState())
	}
}

func TestHaltTimesOutWhenCoreNeverHalts(t *testing.T) {
	tg := testTarget()
	th := newTestThread(t, tg)

	if ok := th.Halt(); ok {
		t.Fatal("Halt() = true, want false (core never reports halted)")
	}
}

func TestResumeCachesRunning(t *testing.T) {
	tg := testTarget()
	th := newTestThread(t, tg)
	th.debugState = Halted

	if ok := th.Resume(); !ok {
		t.Fatal("Resume() = false")
	}
	if th.DebugState() != Running {
		t.Fatalf("DebugState() = %v, want Running", th.DebugState())
	}
}

func TestIdleActivateToggleStatusBit(t *testing.T) {
	tg := testTarget()
	th := newTestThread(t, tg)

	tg.WriteReg(th.Core, isa.Named.STATUS, isa.StatusActiveBit)
	if !th.Idle() {
		t.Fatal("Idle() failed")
	}
	v, _ := tg.ReadReg(th.Core, isa.Named.FSTATUS)
	if v&isa.StatusActiveBit != 0 {
		t.Fatalf("FSTATUS active bit still set after Idle(): %#x", v)
	}

	if !th.Activate() {
		t.Fatal("Activate() failed")
	}
	v, _ = tg.ReadReg(th.Core, isa.Named.FSTATUS)
	if v&isa.StatusActiveBit == 0 {
		t.Fatalf("FSTATUS active bit not set after Activate(): %#x", v)
	}
}

func TestSaveRestoreIVT(t *testing.T) {
	tg := testTarget()
	th := newTestThread(t, tg)

	original := make([]byte, isa.IVTBytes)
	for i := range original {
		original[i] = byte(i + 1)
	}
	th.WriteBlock(0, original)

	if !th.SaveIVT() {
		t.Fatal("SaveIVT() failed")
	}

	zeros := make([]byte, isa.IVTBytes)
	th.WriteBlock(0, zeros)

	if !th.RestoreIVT() {
		t.Fatal("RestoreIVT() failed")
	}
	got, ok := th.ReadBlock(0, isa.IVTBytes)
	if !ok {
		t.Fatal("ReadBlock failed")
	}
	for i := range got {
		if got[i] != original[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], original[i])
		}
	}
}

func TestInsertBkptWritesOpcode(t *testing.T) {
	tg := testTarget()
	th := newTestThread(t, tg)

	if !th.InsertBkpt(0x1000) {
		t.Fatal("InsertBkpt failed")
	}
	v, ok := th.ReadMem16(0x1000)
	if !ok || v != isa.OpcodeBKPT {
		t.Fatalf("ReadMem16(0x1000) = %#x,%v want %#x", v, ok, isa.OpcodeBKPT)
	}
}

func TestRegReadWriteRoundTrip(t *testing.T) {
	tg := testTarget()
	th := newTestThread(t, tg)

	if !th.WriteReg(10, 0xcafef00d) {
		t.Fatal("WriteReg(10) failed")
	}
	v, ok := th.ReadReg(10)
	if !ok || v != 0xcafef00d {
		t.Fatalf("ReadReg(10) = %#x,%v want 0xcafef00d", v, ok)
	}
}

func TestRegOutOfRangeFails(t *testing.T) {
	tg := testTarget()
	th := newTestThread(t, tg)

	if _, ok := th.ReadReg(999); ok {
		t.Fatal("ReadReg(999) should fail")
	}
	if th.WriteReg(999, 0) {
		t.Fatal("WriteReg(999) should fail")
	}
}
