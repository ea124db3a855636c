// Package platform holds the minimal structure the (out-of-scope) platform
// description loader hands to the debug server core: mesh geometry, the
// global-address ranges each core and external bank occupy. The loader
// itself — file-format parsing — is an external collaborator; this package
// only defines the shape of what it produces.
package platform

import "github.com/coremesh/meshgdb/internal/coreid"

// CoreMemSize is the size in bytes of a core's local address window
// (spec.md §3: "offset < 1 MiB").
const CoreMemSize = 1 << 20

// RegisterRangeStart and RegisterRangeEnd bound the register sub-range
// within a core's local window.
const (
	RegisterRangeStart = 0xf0000
	RegisterRangeEnd   = 0xf1000
)

// Chip describes one rectangular chip in the mesh: its origin core and
// extent, as produced by the platform description parser.
type Chip struct {
	Row, Col   int
	Rows, Cols int
	Version    string
}

// Bank describes one external memory region.
type Bank struct {
	Name     string
	PhyBase  uint32 // global address as seen by cores
	EPhyBase uint32 // global address as seen by the host
	Size     uint32
	Type     string
}

// Description is the parsed platform: every chip and external bank. The
// core consumes only this — never the source file format.
type Description struct {
	Chips []Chip
	Banks []Bank
}

// Cores enumerates every core across every chip, in ascending (row, col)
// order.
func (d Description) Cores() []coreid.ID {
	var out []coreid.ID
	for _, chip := range d.Chips {
		for r := 0; r < chip.Rows; r++ {
			for c := 0; c < chip.Cols; c++ {
				out = append(out, coreid.ID{
					Row: uint8(chip.Row + r),
					Col: uint8(chip.Col + c),
				})
			}
		}
	}
	return out
}

// CoreBase returns the global base address of a core's local window. Cores
// are laid out at a fixed stride derived from their packed coreId, matching
// the convention used by the address classifier.
func CoreBase(id coreid.ID) uint32 {
	return uint32(id.Packed()) << 20
}
