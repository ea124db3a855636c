// Package process implements the workgroup/process abstraction of spec.md
// §4.5: a named group of threads, with a reserved idle process that
// initially owns every enumerated thread.
package process

import (
	"fmt"
	"sort"

	"github.com/coremesh/meshgdb/internal/coreid"
)

// IdlePID is the reserved pid of the process that owns every thread not
// yet claimed by a workgroup.
const IdlePID = 1

// Process is {pid, ordered set of threads}. Threads are tracked by tid and
// iterated in ascending CoreId order, per spec.md §4.5.
type Process struct {
	PID     int
	threads map[int]coreid.ID // tid -> core, for ordering
}

// New creates an empty process with the given pid.
func New(pid int) *Process {
	return &Process{PID: pid, threads: make(map[int]coreid.ID)}
}

// AddThread adds tid (owned by core) to the process.
func (p *Process) AddThread(tid int, core coreid.ID) {
	p.threads[tid] = core
}

// EraseThread removes tid from the process.
func (p *Process) EraseThread(tid int) {
	delete(p.threads, tid)
}

// HasThread reports whether tid belongs to this process.
func (p *Process) HasThread(tid int) bool {
	_, ok := p.threads[tid]
	return ok
}

// ThreadCount returns the number of threads owned by this process.
func (p *Process) ThreadCount() int {
	return len(p.threads)
}

// Threads returns every tid owned by this process, ordered by (row, col)
// of the owning core.
func (p *Process) Threads() []int {
	tids := make([]int, 0, len(p.threads))
	for tid := range p.threads {
		tids = append(tids, tid)
	}
	sort.Slice(tids, func(i, j int) bool {
		return p.threads[tids[i]].Less(p.threads[tids[j]])
	})
	return tids
}

// FirstThread returns the first tid in CoreId order, used to resolve
// `Hg0`/`Hc0` (spec.md §4.7: "tid = 0 resolves to first thread of current
// process").
func (p *Process) FirstThread() (int, bool) {
	tids := p.Threads()
	if len(tids) == 0 {
		return 0, false
	}
	return tids[0], true
}

// Set owns every Process in the server, keyed by pid, and enforces the
// partition invariant (spec.md §8 invariant 2): every enumerated thread is
// owned by exactly one process.
type Set struct {
	byPID  map[int]*Process
	nextPID int
}

// NewSet creates a Set with only the idle process, owning every tid in
// allThreads.
func NewSet(allThreads map[int]coreid.ID) *Set {
	idle := New(IdlePID)
	for tid, core := range allThreads {
		idle.AddThread(tid, core)
	}
	return &Set{
		byPID:   map[int]*Process{IdlePID: idle},
		nextPID: IdlePID + 1,
	}
}

// Idle returns the idle process.
func (s *Set) Idle() *Process { return s.byPID[IdlePID] }

// Get returns the process with the given pid.
func (s *Set) Get(pid int) (*Process, bool) {
	p, ok := s.byPID[pid]
	return p, ok
}

// Owner returns the process owning tid, and true if found. Every tid must
// be owned by exactly one process, so this search is authoritative for the
// partition invariant.
func (s *Set) Owner(tid int) (*Process, bool) {
	for _, p := range s.byPID {
		if p.HasThread(tid) {
			return p, true
		}
	}
	return nil, false
}

// ErrThreadNotIdle is returned by CreateWorkgroup when a requested thread
// is not currently owned by the idle process.
type ErrThreadNotIdle struct{ TID int }

func (e *ErrThreadNotIdle) Error() string {
	return fmt.Sprintf("process: thread %d is not in the idle process", e.TID)
}

// CreateWorkgroup moves every tid in tids out of the idle process into a
// newly allocated process, returning its pid. If any tid is not currently
// in the idle process the whole operation is rolled back — nothing is
// moved — and an error is returned (spec.md §4.5: "if any thread in the
// requested rectangle is not found in the idle process, the whole
// operation is rolled back").
func (s *Set) CreateWorkgroup(tids []int, cores map[int]coreid.ID) (int, error) {
	idle := s.Idle()
	for _, tid := range tids {
		if !idle.HasThread(tid) {
			return 0, &ErrThreadNotIdle{TID: tid}
		}
	}

	pid := s.nextPID
	s.nextPID++
	p := New(pid)
	for _, tid := range tids {
		idle.EraseThread(tid)
		p.AddThread(tid, cores[tid])
	}
	s.byPID[pid] = p
	return pid, nil
}

// Dissolve returns every thread of a non-idle process back to the idle
// process and removes it from the set (spec.md §4.5: "kill/detach on a
// non-idle process returns them").
func (s *Set) Dissolve(pid int) error {
	if pid == IdlePID {
		return fmt.Errorf("process: cannot dissolve the idle process")
	}
	p, ok := s.byPID[pid]
	if !ok {
		return fmt.Errorf("process: no such process %d", pid)
	}
	idle := s.Idle()
	for _, tid := range p.Threads() {
		idle.AddThread(tid, p.threads[tid])
	}
	delete(s.byPID, pid)
	return nil
}

// AllThreadsPartitioned reports whether the union of every process's
// threads equals want and the processes are pairwise disjoint — spec.md §8
// invariant 2, exposed for tests.
func (s *Set) AllThreadsPartitioned(want map[int]coreid.ID) bool {
	seen := make(map[int]bool)
	for _, p := range s.byPID {
		for tid := range p.threads {
			if seen[tid] {
				return false
			}
			seen[tid] = true
		}
	}
	if len(seen) != len(want) {
		return false
	}
	for tid := range want {
		if !seen[tid] {
			return false
		}
	}
	return true
}
