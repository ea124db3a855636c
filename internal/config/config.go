// Package config holds the CLI-flag-backed configuration struct that
// cmd/meshgdb builds once at startup and threads through every
// constructor (spec.md §9's "explicit server-construction parameters"
// note): nothing in internal/gdbserver or internal/target reads a flag or
// an environment variable directly.
package config

import (
	"fmt"
	"strings"

	"github.com/coremesh/meshgdb/internal/target"
)

// Class identifies one of the eight independent diagnostic-logging
// categories named in spec.md §6.3. Each maps to an slog attribute group
// rather than a bespoke print statement, per internal/log.
type Class string

const (
	ClassStopResume       Class = "stop-resume"
	ClassTrapAndRSPCon    Class = "trap-and-rsp-con"
	ClassStopResumeDetail Class = "stop-resume-detail"
	ClassTargetWR         Class = "target-wr"
	ClassCtrlCWait        Class = "ctrl-c-wait"
	ClassTranDetail       Class = "tran-detail"
	ClassHWDetail         Class = "hw-detail"
	ClassTiming           Class = "timing"
)

var knownClasses = map[Class]bool{
	ClassStopResume:       true,
	ClassTrapAndRSPCon:    true,
	ClassStopResumeDetail: true,
	ClassTargetWR:         true,
	ClassCtrlCWait:        true,
	ClassTranDetail:       true,
	ClassHWDetail:         true,
	ClassTiming:           true,
}

// ClassSet is the bitset of enabled diagnostic classes, built once from
// the repeatable `-d` flag.
type ClassSet map[Class]bool

// ParseClasses validates and collects the `-d <class>` flag values.
func ParseClasses(values []string) (ClassSet, error) {
	set := make(ClassSet, len(values))
	for _, v := range values {
		c := Class(strings.TrimSpace(v))
		if !knownClasses[c] {
			return nil, fmt.Errorf("config: unknown diagnostic class %q", v)
		}
		set[c] = true
	}
	return set, nil
}

// Enabled reports whether a diagnostic class was requested.
func (s ClassSet) Enabled(c Class) bool { return s[c] }

// Config is the full set of flags that affect the debug-server core
// (spec.md §6.3's table; port/tty/attach/address-check/diagnostics).
// Flags affecting only the outer layer (none currently) are not modeled
// here.
type Config struct {
	Port int

	TTYPath string

	DontHaltOnAttach bool
	CheckHWAddress   bool

	Diagnostics ClassSet

	Backend target.Backend
}

// DefaultPort matches spec.md §6.3's documented default.
const DefaultPort = 51000

// New validates and assembles a Config from already-parsed flag values
// and the EMULATOR_TARGET environment variable (spec.md §6.4). It never
// touches os.Args or os.Getenv itself — cmd/meshgdb reads those and
// passes the raw strings in, keeping this package testable without a
// process environment.
func New(port int, tty string, dontHalt, checkAddr bool, diagClasses []string, targetEnv string) (Config, error) {
	classes, err := ParseClasses(diagClasses)
	if err != nil {
		return Config{}, err
	}
	backend, err := target.ParseBackend(targetEnv)
	if err != nil {
		return Config{}, err
	}
	if port <= 0 {
		port = DefaultPort
	}
	return Config{
		Port:             port,
		TTYPath:          tty,
		DontHaltOnAttach: dontHalt,
		CheckHWAddress:   checkAddr,
		Diagnostics:      classes,
		Backend:          backend,
	}, nil
}

// Addr formats the listen address for net.Listen.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
