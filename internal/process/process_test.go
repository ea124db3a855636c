package process

import (
	"testing"

	"github.com/coremesh/meshgdb/internal/coreid"
)

func allThreads() map[int]coreid.ID {
	return map[int]coreid.ID{
		101: {Row: 0, Col: 0},
		102: {Row: 0, Col: 1},
		201: {Row: 1, Col: 0},
		202: {Row: 1, Col: 1},
	}
}

func TestNewSetPartitionInvariant(t *testing.T) {
	all := allThreads()
	s := NewSet(all)
	if !s.AllThreadsPartitioned(all) {
		t.Fatal("expected fresh Set to satisfy the partition invariant")
	}
}

func TestCreateWorkgroupMovesThreadsOutOfIdle(t *testing.T) {
	all := allThreads()
	s := NewSet(all)

	pid, err := s.CreateWorkgroup([]int{101, 102}, all)
	if err != nil {
		t.Fatalf("CreateWorkgroup: %v", err)
	}
	if s.Idle().HasThread(101) || s.Idle().HasThread(102) {
		t.Fatal("idle process still owns a moved thread")
	}
	wg, ok := s.Get(pid)
	if !ok || !wg.HasThread(101) || !wg.HasThread(102) {
		t.Fatal("workgroup does not own its requested threads")
	}
	if !s.AllThreadsPartitioned(all) {
		t.Fatal("partition invariant broken after CreateWorkgroup")
	}
}

func TestCreateWorkgroupRollsBackOnMissingThread(t *testing.T) {
	all := allThreads()
	s := NewSet(all)

	// First move 101 into its own workgroup so it is no longer idle.
	if _, err := s.CreateWorkgroup([]int{101}, all); err != nil {
		t.Fatalf("CreateWorkgroup: %v", err)
	}

	// Now request a rectangle that includes 101 (no longer idle) and 102.
	_, err := s.CreateWorkgroup([]int{101, 102}, all)
	if err == nil {
		t.Fatal("expected CreateWorkgroup to fail")
	}
	if !s.Idle().HasThread(102) {
		t.Fatal("rollback should have left 102 untouched in the idle process")
	}
	if !s.AllThreadsPartitioned(all) {
		t.Fatal("partition invariant broken after failed CreateWorkgroup")
	}
}

func TestDissolveReturnsThreadsToIdle(t *testing.T) {
	all := allThreads()
	s := NewSet(all)
	pid, _ := s.CreateWorkgroup([]int{201, 202}, all)

	if err := s.Dissolve(pid); err != nil {
		t.Fatalf("Dissolve: %v", err)
	}
	if !s.Idle().HasThread(201) || !s.Idle().HasThread(202) {
		t.Fatal("Dissolve did not return threads to idle")
	}
	if _, ok := s.Get(pid); ok {
		t.Fatal("dissolved process still present")
	}
}

func TestFirstThreadOrdersByCoreID(t *testing.T) {
	p := New(5)
	p.AddThread(202, coreid.ID{Row: 1, Col: 1})
	p.AddThread(101, coreid.ID{Row: 0, Col: 0})

	first, ok := p.FirstThread()
	if !ok || first != 101 {
		t.Fatalf("FirstThread() = %d,%v want 101,true", first, ok)
	}
}
