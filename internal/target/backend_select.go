package target

import (
	"github.com/coremesh/meshgdb/internal/mmio"
	"github.com/coremesh/meshgdb/internal/platform"
)

// Backend identifies which Target implementation to build, selected from
// the EMULATOR_TARGET environment variable (spec.md §6.4).
type Backend string

const (
	BackendHardware Backend = "" // unset: real hardware
	BackendSim      Backend = "sim"
	BackendESim     Backend = "esim"
	BackendPAL      Backend = "pal"
)

// ParseBackend maps an environment variable value to a Backend. Unknown
// values are rejected so a typo fails startup loudly rather than silently
// falling back to hardware.
func ParseBackend(value string) (Backend, error) {
	switch Backend(value) {
	case BackendHardware, BackendSim, BackendESim, BackendPAL:
		return Backend(value), nil
	default:
		return "", &ErrUnknownBackend{Value: value}
	}
}

// ErrUnknownBackend is returned by ParseBackend for an unrecognized value.
type ErrUnknownBackend struct{ Value string }

func (e *ErrUnknownBackend) Error() string {
	return "target: unknown backend " + e.Value
}

// SimMemSize is the address-space size simulated backends allocate; large
// enough to cover every core window exercised by tests and small meshes.
const SimMemSize = 1 << 27

// New builds a Target for the given backend and driver factory. driver is
// only consulted for BackendHardware and BackendPAL; it may be nil for the
// simulated backends. strictAddress wires §4.1's optional strict
// global-address validation (the `--check-hw-address` flag) into the
// Gateway regardless of which backend is selected.
func New(backend Backend, desc platform.Description, driver DriverHandle, strictAddress bool) (Target, error) {
	var opts []mmio.Option
	if strictAddress {
		opts = append(opts, mmio.WithStrictValidation(true))
	}

	switch backend {
	case BackendSim:
		return NewSim(desc, SimMemSize, opts...), nil
	case BackendESim:
		return NewESim(desc, SimMemSize, opts...), nil
	case BackendHardware, BackendPAL:
		if driver == nil {
			return nil, &ErrNoDriver{Backend: backend}
		}
		return NewHW(desc, driver, opts...), nil
	default:
		return nil, &ErrUnknownBackend{Value: string(backend)}
	}
}

// ErrNoDriver is returned when a hardware-backed Backend is selected but no
// DriverHandle was supplied.
type ErrNoDriver struct{ Backend Backend }

func (e *ErrNoDriver) Error() string {
	return "target: backend " + string(e.Backend) + " requires a device driver handle"
}
