package target

import (
	"github.com/coremesh/meshgdb/internal/mmio"
	"github.com/coremesh/meshgdb/internal/platform"
)

// simDevice is a flat in-process byte array backing the "sim" backend,
// used for EMULATOR_TARGET=sim and in every package test that does not
// need real hardware.
type simDevice struct {
	mem []byte
}

// NewSimDevice allocates a simulated device with the given address-space
// size.
func NewSimDevice(size int) mmio.Device {
	return &simDevice{mem: make([]byte, size)}
}

func (d *simDevice) Read(addr uint32, buf []byte) (int, error) {
	end := int(addr) + len(buf)
	if end > len(d.mem) {
		end = len(d.mem)
	}
	if int(addr) >= end {
		return 0, nil
	}
	return copy(buf, d.mem[addr:end]), nil
}

func (d *simDevice) Write(addr uint32, buf []byte) (int, error) {
	end := int(addr) + len(buf)
	if end > len(d.mem) {
		end = len(d.mem)
	}
	if int(addr) >= end {
		return 0, nil
	}
	return copy(d.mem[addr:end], buf), nil
}

func (d *simDevice) ResetPlatform() error {
	for i := range d.mem {
		d.mem[i] = 0
	}
	return nil
}

// NewSim builds a Target backed by the in-process simulator, with strict
// address validation off by default (matching §4.1's default) unless an
// mmio.WithStrictValidation option is passed explicitly.
func NewSim(desc platform.Description, memSize int, opts ...mmio.Option) Target {
	dev := NewSimDevice(memSize)
	classifier := mmio.NewClassifier(desc)
	gw := mmio.New(dev, classifier, opts...)
	return NewBase(desc, gw, classifier)
}

// NewESim builds a Target backed by the in-process simulator with the
// hardware-anomaly width shim engaged, for exercising chip-revision quirks
// (spec.md §4.1) without real hardware.
func NewESim(desc platform.Description, memSize int, opts ...mmio.Option) Target {
	dev := NewSimDevice(memSize)
	classifier := mmio.NewClassifier(desc)
	opts = append([]mmio.Option{mmio.WithAnomalyShim(RowAnomalyShim())}, opts...)
	gw := mmio.New(dev, classifier, opts...)
	return NewBase(desc, gw, classifier)
}

// RowAnomalyShim implements spec.md §4.1's per-revision shim: reads from
// rows 1 and 2 of core memory use a transfer width matching the common
// alignment of address and length.
func RowAnomalyShim() mmio.AnomalyShim {
	return func(classified mmio.Classified, addr uint32, length int) int {
		if classified.Class != mmio.InCoreMemory {
			return 0
		}
		if classified.Core.Row != 1 && classified.Core.Row != 2 {
			return 0
		}
		width := commonAlignment(addr, length)
		if width < 1 {
			width = 1
		}
		return width
	}
}

// commonAlignment returns the largest power-of-two width (capped at 8)
// that divides both addr and length.
func commonAlignment(addr uint32, length int) int {
	width := 8
	for width > 1 {
		if addr%uint32(width) == 0 && length%width == 0 {
			break
		}
		width /= 2
	}
	return width
}
