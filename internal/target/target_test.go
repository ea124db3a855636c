package target

import (
	"testing"

	"github.com/coremesh/meshgdb/internal/coreid"
	"github.com/coremesh/meshgdb/internal/isa"
	"github.com/coremesh/meshgdb/internal/platform"
)

func testDesc() platform.Description {
	return platform.Description{
		Chips: []platform.Chip{{Row: 0, Col: 0, Rows: 2, Cols: 2}},
	}
}

func TestListCoresEnumeratesRectangle(t *testing.T) {
	tg := NewSim(testDesc(), SimMemSize)
	cores := tg.ListCores()
	if len(cores) != 4 {
		t.Fatalf("ListCores() returned %d cores, want 4", len(cores))
	}
}

func TestResetCoreZeroesRegisters(t *testing.T) {
	tg := NewSim(testDesc(), SimMemSize)
	id := coreid.ID{Row: 0, Col: 0}

	if err := tg.WriteReg(id, isa.RegOffset(5), 0xdeadbeef); err != nil {
		t.Fatalf("WriteReg: %v", err)
	}
	if err := tg.ResetCore(id); err != nil {
		t.Fatalf("ResetCore: %v", err)
	}
	v, err := tg.ReadReg(id, isa.RegOffset(5))
	if err != nil {
		t.Fatalf("ReadReg: %v", err)
	}
	if v != 0 {
		t.Fatalf("R5 = %#x after reset, want 0", v)
	}
}

func TestResetCoreMasksAllButSync(t *testing.T) {
	tg := NewSim(testDesc(), SimMemSize)
	id := coreid.ID{Row: 1, Col: 1}

	if err := tg.ResetCore(id); err != nil {
		t.Fatalf("ResetCore: %v", err)
	}
	mask, err := tg.ReadReg(id, isa.Named.IMASK)
	if err != nil {
		t.Fatalf("ReadReg: %v", err)
	}
	if mask&isa.ILatSync != 0 {
		t.Fatalf("IMASK = %#x, SYNC bit should be unmasked (clear)", mask)
	}
}

func TestResetGroupPulsesResetCore(t *testing.T) {
	tg := NewSim(testDesc(), SimMemSize)
	if err := tg.ResetGroup(coreid.ID{Row: 0, Col: 0}, 2, 2); err != nil {
		t.Fatalf("ResetGroup: %v", err)
	}
	v, err := tg.ReadReg(coreid.ID{Row: 0, Col: 0}, isa.Named.RESETCORE)
	if err != nil {
		t.Fatalf("ReadReg: %v", err)
	}
	if v != 0 {
		t.Fatalf("RESETCORE left at %#x, want 0 (1-then-0 pulse)", v)
	}
}

func TestStartGroupSetsSyncBit(t *testing.T) {
	tg := NewSim(testDesc(), SimMemSize)
	id := coreid.ID{Row: 0, Col: 1}
	if err := tg.StartGroup(id, 1, 1, false); err != nil {
		t.Fatalf("StartGroup: %v", err)
	}
	v, err := tg.ReadReg(id, isa.Named.ILATST)
	if err != nil {
		t.Fatalf("ReadReg: %v", err)
	}
	if v&isa.ILatSync == 0 {
		t.Fatalf("ILATST = %#x, SYNC bit not set", v)
	}
}

func TestParseBackendRejectsUnknown(t *testing.T) {
	if _, err := ParseBackend("bogus"); err == nil {
		t.Fatal("expected ParseBackend to reject an unknown value")
	}
}

func TestNewWiresStrictAddressValidation(t *testing.T) {
	tg, err := New(BackendSim, testDesc(), nil, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// An address well outside every chip/bank range must now be rejected
	// rather than silently passed through.
	if _, err := tg.ReadMem(0xffffffff, 1); err == nil {
		t.Fatalf("expected strict validation to reject an unmapped address")
	}
}

func TestNewRequiresDriverForHardwareBackend(t *testing.T) {
	if _, err := New(BackendHardware, testDesc(), nil, false); err == nil {
		t.Fatalf("expected New to require a driver for the hardware backend")
	}
}

func TestAnomalyShimPicksCommonAlignment(t *testing.T) {
	tg := NewESim(testDesc(), SimMemSize)
	base := tg.(*Base)
	row1 := coreid.ID{Row: 1, Col: 0}
	addr := mmioGlobal(base, row1, 0x100)
	width := RowAnomalyShim()(base.Classifier.Classify(addr), addr, 8)
	if width != 8 {
		t.Fatalf("width = %d, want 8 for an 8-aligned address/length", width)
	}
}

func mmioGlobal(b *Base, id coreid.ID, offset uint32) uint32 {
	return platform.CoreBase(id) + offset
}
