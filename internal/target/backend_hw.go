package target

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/coremesh/meshgdb/internal/mmio"
	"github.com/coremesh/meshgdb/internal/platform"
)

// DriverHandle is the external device driver collaborator named in spec.md
// §6.1: byte-level read/write against the global address space, plus a
// platform reset, backed by an open file descriptor onto the mesh device
// node.
type DriverHandle interface {
	mmio.Device
	Fd() uintptr
}

// hwDevice wraps a DriverHandle and serializes bursts that span more than
// one external bank behind a file lock on the device handle, per spec.md
// §5 ("a file lock on the device handle is taken around each multi-step
// access to the shared-memory table that backs inter-process shared
// regions").
type hwDevice struct {
	driver     DriverHandle
	classifier *mmio.Classifier
	mu         sync.Mutex
}

// NewHW builds a Target backed by a real device driver handle.
func NewHW(desc platform.Description, driver DriverHandle, opts ...mmio.Option) Target {
	classifier := mmio.NewClassifier(desc)
	dev := &hwDevice{driver: driver, classifier: classifier}
	gw := mmio.New(dev, classifier, opts...)
	return NewBase(desc, gw, classifier)
}

func (d *hwDevice) spansMultipleBanks(addr uint32, length int) bool {
	if length <= 0 {
		return false
	}
	first := d.classifier.Classify(addr)
	last := d.classifier.Classify(addr + uint32(length) - 1)
	return first.Class == mmio.InExternalMemory &&
		(last.Class != mmio.InExternalMemory || first.Bank != last.Bank)
}

func (d *hwDevice) withLock(addr uint32, length int, fn func() (int, error)) (int, error) {
	if !d.spansMultipleBanks(addr, length) {
		return fn()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := unix.Flock(int(d.driver.Fd()), unix.LOCK_EX); err != nil {
		return 0, fmt.Errorf("target: flock device handle: %w", err)
	}
	defer unix.Flock(int(d.driver.Fd()), unix.LOCK_UN)

	return fn()
}

func (d *hwDevice) Read(addr uint32, buf []byte) (int, error) {
	return d.withLock(addr, len(buf), func() (int, error) {
		return d.driver.Read(addr, buf)
	})
}

func (d *hwDevice) Write(addr uint32, buf []byte) (int, error) {
	return d.withLock(addr, len(buf), func() (int, error) {
		return d.driver.Write(addr, buf)
	})
}

func (d *hwDevice) ResetPlatform() error {
	return d.driver.ResetPlatform()
}
