// Package mmio implements the byte/half/word/burst memory access layer
// that sits between the debug server and the raw device driver, spec.md
// §4.1.
package mmio

import (
	"encoding/binary"
	"fmt"
)

// Device is the narrow byte-level collaborator interface the device driver
// is expected to provide (spec.md §6.1): raw reads and writes against the
// global 32-bit address space, plus a platform-wide reset.
type Device interface {
	Read(addr uint32, buf []byte) (n int, err error)
	Write(addr uint32, buf []byte) (n int, err error)
	ResetPlatform() error
}

// AnomalyShim selects a transfer width for chip revisions that require it
// (spec.md §4.1: "reads from rows 1 and 2 of core memory must use a
// transfer width matching the alignment of source, destination, and
// length"). Returns 0 if no special width is required.
type AnomalyShim func(classified Classified, addr uint32, length int) (width int)

// Gateway is the MMIO Gateway: read/write primitives plus burst transfers,
// with optional strict address validation.
type Gateway struct {
	dev        Device
	classifier *Classifier
	strict     bool
	anomaly    AnomalyShim
}

// Option configures a Gateway at construction.
type Option func(*Gateway)

// WithStrictValidation turns on the §4.1 "config flag": addresses outside
// known core/external regions become fatal errors instead of passing
// through unchanged.
func WithStrictValidation(strict bool) Option {
	return func(g *Gateway) { g.strict = strict }
}

// WithAnomalyShim installs the per-chip-revision width shim.
func WithAnomalyShim(shim AnomalyShim) Option {
	return func(g *Gateway) { g.anomaly = shim }
}

// New builds a Gateway over a device and a fixed address classifier.
func New(dev Device, classifier *Classifier, opts ...Option) *Gateway {
	g := &Gateway{dev: dev, classifier: classifier}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ErrShort is returned when a read or write transfers fewer bytes than
// requested — spec.md §4.1: "any short read or short write is reported to
// the caller as failure".
type ErrShort struct {
	Addr      uint32
	Requested int
	Got       int
}

func (e *ErrShort) Error() string {
	return fmt.Sprintf("short transfer at %#x: requested %d, got %d", e.Addr, e.Requested, e.Got)
}

// ErrInvalidAddr is returned by strict validation when addr falls outside
// every known core or external region.
type ErrInvalidAddr struct{ Addr uint32 }

func (e *ErrInvalidAddr) Error() string {
	return fmt.Sprintf("address %#x is not mapped", e.Addr)
}

func (g *Gateway) validate(addr uint32) error {
	if !g.strict {
		return nil
	}
	if g.classifier.Classify(addr).Class == Invalid {
		return &ErrInvalidAddr{Addr: addr}
	}
	return nil
}

func (g *Gateway) transferWidth(addr uint32, length int) int {
	if g.anomaly == nil {
		return 0
	}
	return g.anomaly(g.classifier.Classify(addr), addr, length)
}

// ReadMem reads len bytes (1, 2, or 4) from addr. Word reads are issued as
// a single atomic transfer.
func (g *Gateway) ReadMem(addr uint32, length int) ([]byte, error) {
	if length != 1 && length != 2 && length != 4 {
		return nil, fmt.Errorf("mmio: unsupported read length %d", length)
	}
	if err := g.validate(addr); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	n, err := g.dev.Read(addr, buf)
	if err != nil {
		return nil, err
	}
	if n != length {
		return nil, &ErrShort{Addr: addr, Requested: length, Got: n}
	}
	return buf, nil
}

// WriteMem writes 1, 2, or 4 bytes to addr atomically.
func (g *Gateway) WriteMem(addr uint32, data []byte) error {
	if len(data) != 1 && len(data) != 2 && len(data) != 4 {
		return fmt.Errorf("mmio: unsupported write length %d", len(data))
	}
	if err := g.validate(addr); err != nil {
		return err
	}
	n, err := g.dev.Write(addr, data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return &ErrShort{Addr: addr, Requested: len(data), Got: n}
	}
	return nil
}

// ReadWord reads a little-endian 32-bit word.
func (g *Gateway) ReadWord(addr uint32) (uint32, error) {
	buf, err := g.ReadMem(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// WriteWord writes a little-endian 32-bit word.
func (g *Gateway) WriteWord(addr uint32, v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return g.WriteMem(addr, buf)
}

const maxBurst = 4096 // largest single doubleword-aligned burst the gateway issues

// ReadBurst implements the large-transfer read path of spec.md §4.1:
// word-aligned reads use doubleword bursts with a byte trailer; unaligned
// reads degrade to per-byte.
func (g *Gateway) ReadBurst(addr uint32, length int) ([]byte, error) {
	if err := g.validate(addr); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}

	out := make([]byte, 0, length)

	if addr%4 != 0 {
		// Unaligned: degrade to per-byte reads.
		for i := 0; i < length; i++ {
			b, err := g.readRaw(addr+uint32(i), 1)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	}

	pos := uint32(0)
	remaining := length
	for remaining >= 8 {
		width := g.burstWidth(addr+pos, remaining, 8)
		chunk, err := g.readRaw(addr+pos, width)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		pos += uint32(width)
		remaining -= width
	}
	if remaining > 0 {
		chunk, err := g.readRaw(addr+pos, remaining)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// WriteBurst implements the large-transfer write path of spec.md §4.1:
// a single word transfer for an exact word-aligned 4-byte write, otherwise
// byte-walk to the next 8-byte boundary, maximum-size doubleword-aligned
// bursts, trailing doubleword, trailing bytes.
func (g *Gateway) WriteBurst(addr uint32, data []byte) error {
	if err := g.validate(addr); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	if len(data) == 4 && addr%4 == 0 {
		return g.writeRaw(addr, data)
	}

	pos := 0

	// Byte-walk up to the next 8-byte boundary.
	for pos < len(data) && (addr+uint32(pos))%8 != 0 {
		if err := g.writeRaw(addr+uint32(pos), data[pos:pos+1]); err != nil {
			return err
		}
		pos++
	}

	// Maximum-size doubleword-aligned bursts.
	for len(data)-pos >= 8 {
		width := g.burstWidth(addr+uint32(pos), len(data)-pos, maxBurst)
		width -= width % 8
		if width == 0 {
			break
		}
		if err := g.writeRaw(addr+uint32(pos), data[pos:pos+width]); err != nil {
			return err
		}
		pos += width
	}

	// Trailing doubleword.
	for len(data)-pos >= 8 {
		if err := g.writeRaw(addr+uint32(pos), data[pos:pos+8]); err != nil {
			return err
		}
		pos += 8
	}

	// Trailing bytes.
	for pos < len(data) {
		if err := g.writeRaw(addr+uint32(pos), data[pos:pos+1]); err != nil {
			return err
		}
		pos++
	}

	return nil
}

// burstWidth caps a burst at maxBurst and the hardware-anomaly shim's
// preferred width, if any, else the requested cap.
func (g *Gateway) burstWidth(addr uint32, remaining, cap int) int {
	width := remaining
	if width > cap {
		width = cap
	}
	if width > maxBurst {
		width = maxBurst
	}
	if shimWidth := g.transferWidth(addr, width); shimWidth > 0 && shimWidth < width {
		width = shimWidth
	}
	return width
}

func (g *Gateway) readRaw(addr uint32, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := g.dev.Read(addr, buf)
	if err != nil {
		return nil, err
	}
	if n != length {
		return nil, &ErrShort{Addr: addr, Requested: length, Got: n}
	}
	return buf, nil
}

func (g *Gateway) writeRaw(addr uint32, data []byte) error {
	n, err := g.dev.Write(addr, data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return &ErrShort{Addr: addr, Requested: len(data), Got: n}
	}
	return nil
}

// ResetPlatform resets every core and routing element on the device.
func (g *Gateway) ResetPlatform() error {
	return g.dev.ResetPlatform()
}
