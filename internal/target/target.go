// Package target implements the Target Abstraction of spec.md §4.2: a
// capability interface over the MMIO Gateway, selected once at startup by
// the backend named in the EMULATOR_TARGET environment variable (spec.md
// §6.4, §9).
package target

import (
	"fmt"
	"time"

	"github.com/coremesh/meshgdb/internal/coreid"
	"github.com/coremesh/meshgdb/internal/isa"
	"github.com/coremesh/meshgdb/internal/mmio"
	"github.com/coremesh/meshgdb/internal/platform"
)

// Target is the capability set the rest of the server depends on. It never
// exposes the raw gateway directly so every caller goes through
// classification and register-aware helpers.
type Target interface {
	ListCores() []coreid.ID
	Rows() int
	Cols() int
	Abs2Rel(id coreid.ID) coreid.ID

	ResetPlatform() error
	ResetCore(id coreid.ID) error
	ResetGroup(origin coreid.ID, rows, cols int) error
	StartGroup(origin coreid.ID, rows, cols int, haltFirst bool) error

	ReadReg(id coreid.ID, offset uint32) (uint32, error)
	WriteReg(id coreid.ID, offset uint32, v uint32) error

	ReadMem(addr uint32, length int) ([]byte, error)
	WriteMem(addr uint32, data []byte) error
	ReadBurst(addr uint32, length int) ([]byte, error)
	WriteBurst(addr uint32, data []byte) error

	IsLocalAddr(addr uint32) bool
	IsCoreMem(addr uint32) bool
	IsExternalMem(addr uint32) bool
}

// Base is a Target implementation built directly over an mmio.Gateway. It
// is shared by every backend (sim/esim/hw); backends differ only in which
// mmio.Device they wrap and which mmio.Options (such as esim's anomaly
// shim) they pass to the Gateway.
type Base struct {
	Gateway    *mmio.Gateway
	Classifier *mmio.Classifier
	Desc       platform.Description
	Cores      []coreid.ID

	// PollInterval paces the busy-wait loops in ResetGroup's external-fetch
	// retry. Tests override this to avoid real sleeps.
	PollInterval time.Duration
}

// NewBase constructs the common Target machinery.
func NewBase(desc platform.Description, gw *mmio.Gateway, classifier *mmio.Classifier) *Base {
	return &Base{
		Gateway:      gw,
		Classifier:   classifier,
		Desc:         desc,
		Cores:        desc.Cores(),
		PollInterval: 10 * time.Microsecond,
	}
}

func (b *Base) ListCores() []coreid.ID { return b.Cores }

func (b *Base) Rows() int {
	max := 0
	for _, c := range b.Desc.Chips {
		if c.Row+c.Rows > max {
			max = c.Row + c.Rows
		}
	}
	return max
}

func (b *Base) Cols() int {
	max := 0
	for _, c := range b.Desc.Chips {
		if c.Col+c.Cols > max {
			max = c.Col + c.Cols
		}
	}
	return max
}

// Abs2Rel maps an absolute mesh coordinate to the chip-relative coordinate;
// with a single chip the two coincide.
func (b *Base) Abs2Rel(id coreid.ID) coreid.ID {
	for _, chip := range b.Desc.Chips {
		if int(id.Row) >= chip.Row && int(id.Row) < chip.Row+chip.Rows &&
			int(id.Col) >= chip.Col && int(id.Col) < chip.Col+chip.Cols {
			return coreid.ID{Row: id.Row - uint8(chip.Row), Col: id.Col - uint8(chip.Col)}
		}
	}
	return id
}

func (b *Base) regAddr(id coreid.ID, offset uint32) uint32 {
	return mmio.GlobalAddr(id, platform.RegisterRangeStart+offset)
}

func (b *Base) ReadReg(id coreid.ID, offset uint32) (uint32, error) {
	return b.Gateway.ReadWord(b.regAddr(id, offset))
}

func (b *Base) WriteReg(id coreid.ID, offset uint32, v uint32) error {
	return b.Gateway.WriteWord(b.regAddr(id, offset), v)
}

func (b *Base) ReadMem(addr uint32, length int) ([]byte, error) {
	return b.Gateway.ReadMem(addr, length)
}

func (b *Base) WriteMem(addr uint32, data []byte) error {
	return b.Gateway.WriteMem(addr, data)
}

func (b *Base) ReadBurst(addr uint32, length int) ([]byte, error) {
	return b.Gateway.ReadBurst(addr, length)
}

func (b *Base) WriteBurst(addr uint32, data []byte) error {
	return b.Gateway.WriteBurst(addr, data)
}

func (b *Base) IsLocalAddr(addr uint32) bool { return mmio.IsLocal(addr) }

func (b *Base) IsCoreMem(addr uint32) bool {
	return b.Classifier.Classify(addr).Class == mmio.InCoreMemory
}

func (b *Base) IsExternalMem(addr uint32) bool {
	return b.Classifier.Classify(addr).Class == mmio.InExternalMemory
}

func (b *Base) ResetPlatform() error {
	return b.Gateway.ResetPlatform()
}

// ResetCore implements the soft core reset sequence of spec.md §4.2.
func (b *Base) ResetCore(id coreid.ID) error {
	if err := b.stopDMA(id, 0); err != nil {
		return err
	}
	if err := b.stopDMA(id, 1); err != nil {
		return err
	}

	for n := 0; n < 64; n++ {
		if err := b.WriteReg(id, isa.RegOffset(n), 0); err != nil {
			return err
		}
	}

	cfg, err := b.ReadReg(id, isa.Named.CONFIG)
	if err != nil {
		return err
	}
	if err := b.WriteReg(id, isa.Named.CONFIG, cfg|clockGateBit); err != nil {
		return err
	}
	mesh, err := b.ReadReg(id, isa.Named.MESHCONFIG)
	if err != nil {
		return err
	}
	if err := b.WriteReg(id, isa.Named.MESHCONFIG, mesh|clockGateBit); err != nil {
		return err
	}

	for _, reg := range []uint32{
		isa.Named.FSTATUS, isa.Named.PC, isa.Named.LC, isa.Named.LS, isa.Named.LE,
		isa.Named.IRET, isa.Named.CTIMER0, isa.Named.CTIMER1,
		isa.Named.MEMSTATUS, isa.Named.MEMPROTECT,
	} {
		if err := b.WriteReg(id, reg, 0); err != nil {
			return err
		}
	}

	if err := b.WriteReg(id, isa.Named.IMASK, ^uint32(isa.ILatSync)); err != nil {
		return err
	}
	if err := b.WriteReg(id, isa.Named.ILATCL, 0xffffffff); err != nil {
		return err
	}
	return nil
}

const (
	clockGateBit   = 1 << 0
	dmaPauseBit    = 1 << 1
	dmaIdleTimeout = 10 * time.Millisecond
)

func (b *Base) stopDMA(id coreid.ID, channel int) error {
	cfgOff, strideOff, countOff, srcOff, dstOff, statusOff := dmaRegs(channel)

	cfg, err := b.ReadReg(id, cfgOff)
	if err != nil {
		return err
	}
	if err := b.WriteReg(id, cfgOff, cfg|dmaPauseBit); err != nil {
		return err
	}

	for _, reg := range []uint32{cfgOff, strideOff, countOff, srcOff, dstOff} {
		if err := b.WriteReg(id, reg, 0); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(dmaIdleTimeout)
	for {
		status, err := b.ReadReg(id, statusOff)
		if err != nil {
			return err
		}
		if status == 0 {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("target: dma channel %d on core %v never went idle", channel, id)
		}
		time.Sleep(b.PollInterval)
	}
	return nil
}

func dmaRegs(channel int) (cfg, stride, count, src, dst, status uint32) {
	if channel == 0 {
		return isa.Named.DMA0CONFIG, isa.Named.DMA0STRIDE, isa.Named.DMA0COUNT,
			isa.Named.DMA0SRC, isa.Named.DMA0DST, isa.Named.DMA0STATUS
	}
	return isa.Named.DMA1CONFIG, isa.Named.DMA1STRIDE, isa.Named.DMA1COUNT,
		isa.Named.DMA1SRC, isa.Named.DMA1DST, isa.Named.DMA1STATUS
}

// coresIn enumerates the cores in a row/col rectangle among the Target's
// enumerated cores.
func (b *Base) coresIn(origin coreid.ID, rows, cols int) []coreid.ID {
	var out []coreid.ID
	for _, id := range b.Cores {
		if int(id.Row) >= int(origin.Row) && int(id.Row) < int(origin.Row)+rows &&
			int(id.Col) >= int(origin.Col) && int(id.Col) < int(origin.Col)+cols {
			out = append(out, id)
		}
	}
	return out
}

// ResetGroup implements spec.md §4.2's group reset: halt every core in the
// rectangle, refuse if any has an outstanding external fetch after
// retrying for 100ms, pause DMAs, pulse RESETCORE.
func (b *Base) ResetGroup(origin coreid.ID, rows, cols int) error {
	cores := b.coresIn(origin, rows, cols)

	for _, id := range cores {
		if err := b.WriteReg(id, isa.Named.DEBUGCMD, isa.DebugCmdHalt); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(100 * time.Millisecond)
	for _, id := range cores {
		for {
			status, err := b.ReadReg(id, isa.Named.DEBUGSTATUS)
			if err != nil {
				return err
			}
			if status&isa.DebugStatusExternalPnd == 0 {
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("target: core %v stuck in external fetch", id)
			}
			time.Sleep(b.PollInterval)
		}
	}

	for _, id := range cores {
		if err := b.stopDMA(id, 0); err != nil {
			return err
		}
		if err := b.stopDMA(id, 1); err != nil {
			return err
		}
	}

	for _, id := range cores {
		if err := b.WriteReg(id, isa.Named.RESETCORE, 1); err != nil {
			return err
		}
		if err := b.WriteReg(id, isa.Named.RESETCORE, 0); err != nil {
			return err
		}
	}

	return nil
}

// StartGroup implements spec.md §4.2's start sequence.
func (b *Base) StartGroup(origin coreid.ID, rows, cols int, haltFirst bool) error {
	cores := b.coresIn(origin, rows, cols)

	if haltFirst {
		for _, id := range cores {
			if err := b.WriteReg(id, isa.Named.DEBUGCMD, isa.DebugCmdHalt); err != nil {
				return err
			}
		}
	}

	for _, id := range cores {
		if err := b.WriteReg(id, isa.Named.ILATST, isa.ILatSync); err != nil {
			return err
		}
	}
	return nil
}
