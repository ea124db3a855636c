package mmio

import (
	"github.com/coremesh/meshgdb/internal/coreid"
	"github.com/coremesh/meshgdb/internal/platform"
)

// AddrClass is the disjoint classification every global address falls
// into, computed once from the platform description (spec.md §3).
type AddrClass int

const (
	Invalid AddrClass = iota
	InCoreMemory
	InExternalMemory
)

// Classified is the result of classifying one global address.
type Classified struct {
	Class  AddrClass
	Core   coreid.ID // valid when Class == InCoreMemory
	Offset uint32    // valid when Class == InCoreMemory: offset within the core's window
	Bank   string    // valid when Class == InExternalMemory
}

// IsRegister reports whether a core-local offset falls in the register
// sub-range (0xF0000..0xF1000).
func (c Classified) IsRegister() bool {
	return c.Class == InCoreMemory &&
		c.Offset >= platform.RegisterRangeStart && c.Offset < platform.RegisterRangeEnd
}

// Classifier classifies global addresses against a fixed platform
// description, built once at startup.
type Classifier struct {
	desc  platform.Description
	cores map[coreid.ID]bool
}

// NewClassifier builds a Classifier from a platform description.
func NewClassifier(desc platform.Description) *Classifier {
	cores := make(map[coreid.ID]bool)
	for _, id := range desc.Cores() {
		cores[id] = true
	}
	return &Classifier{desc: desc, cores: cores}
}

// Classify determines which of the three disjoint classes a global address
// falls into.
func (c *Classifier) Classify(addr uint32) Classified {
	id := coreid.FromPacked(uint16(addr >> 20))
	offset := addr & (platform.CoreMemSize - 1)
	if c.cores[id] && offset < platform.CoreMemSize {
		return Classified{Class: InCoreMemory, Core: id, Offset: offset}
	}

	for _, bank := range c.desc.Banks {
		if addr >= bank.PhyBase && addr < bank.PhyBase+bank.Size {
			return Classified{Class: InExternalMemory, Bank: bank.Name}
		}
	}

	return Classified{Class: Invalid}
}

// IsLocal reports whether addr is a "local" address: < 1 MiB, shorthand
// for "whatever core this operation is scoped to" per spec.md §3.
func IsLocal(addr uint32) bool {
	return addr < platform.CoreMemSize
}

// GlobalAddr computes the global address of a local offset within a core's
// window.
func GlobalAddr(id coreid.ID, localOffset uint32) uint32 {
	return platform.CoreBase(id) + localOffset
}
