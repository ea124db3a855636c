package thread

import (
	"github.com/coremesh/meshgdb/internal/coreid"
	"github.com/coremesh/meshgdb/internal/isa"
	"github.com/coremesh/meshgdb/internal/platform"
)

// NumGPR and NumSCR are the register counts GDB's g/G packets assume
// (spec.md §4.7: "64 GPRs then 42 SCRs").
const (
	NumGPR = 64
	NumSCR = 42
)

// scrOffsets is the fixed order of special control registers after the 64
// GPRs, spanning the platform constants named in spec.md §3.
var scrOffsets = buildSCROffsets()

func buildSCROffsets() [NumSCR]uint32 {
	named := []uint32{
		isa.Named.CONFIG, isa.Named.STATUS, isa.Named.PC, isa.Named.DEBUGSTATUS,
		isa.Named.LC, isa.Named.LS, isa.Named.LE, isa.Named.IRET, isa.Named.IMASK,
		isa.Named.ILAT, isa.Named.ILATST, isa.Named.ILATCL, isa.Named.IPEND,
		isa.Named.FSTATUS, isa.Named.DEBUGCMD, isa.Named.RESETCORE, isa.Named.COREID,
		isa.Named.CTIMER0, isa.Named.CTIMER1, isa.Named.MEMSTATUS, isa.Named.MEMPROTECT,
		isa.Named.DMA0CONFIG, isa.Named.DMA0STRIDE, isa.Named.DMA0COUNT,
		isa.Named.DMA0SRC, isa.Named.DMA0DST, isa.Named.DMA0STATUS,
		isa.Named.DMA1CONFIG, isa.Named.DMA1STRIDE, isa.Named.DMA1COUNT,
		isa.Named.DMA1SRC, isa.Named.DMA1DST, isa.Named.DMA1STATUS,
		isa.Named.MESHCONFIG,
	}
	var out [NumSCR]uint32
	copy(out[:], named)
	for i := len(named); i < NumSCR; i++ {
		out[i] = isa.RouteOffset(i - len(named))
	}
	return out
}

// regOffset maps a GDB register index to a register-range offset: indices
// 0..63 are GPRs, 64..105 are SCRs. ok is false for any other index
// (spec.md §4.3: "false on out-of-range").
func regOffset(n int) (offset uint32, ok bool) {
	switch {
	case n >= 0 && n < NumGPR:
		return isa.RegOffset(n), true
	case n >= NumGPR && n < NumGPR+NumSCR:
		return scrOffsets[n-NumGPR], true
	default:
		return 0, false
	}
}

// NumRegs is the total register count g/G packets encode.
const NumRegs = NumGPR + NumSCR

func globalAddr(id coreid.ID, localOffset uint32) uint32 {
	return platform.CoreBase(id) + localOffset
}
