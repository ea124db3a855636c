package matchpoint

import "testing"

func TestAddRemoveIdempotence(t *testing.T) {
	tbl := New()
	key := Key{Kind: SoftwareBreakpoint, Addr: 0x1000, ThreadID: 101}

	tbl.Add(key, 0xbeef)
	orig, ok := tbl.Remove(key)
	if !ok || orig != 0xbeef {
		t.Fatalf("Remove() = %#x,%v want 0xbeef,true", orig, ok)
	}

	if _, ok := tbl.Lookup(key); ok {
		t.Fatal("Lookup() found an entry after Remove()")
	}
}

func TestAddReplacesExistingEntry(t *testing.T) {
	tbl := New()
	key := Key{Kind: SoftwareBreakpoint, Addr: 0x2000, ThreadID: 102}

	tbl.Add(key, 0x1111)
	tbl.Add(key, 0x2222)

	v, ok := tbl.Lookup(key)
	if !ok || v != 0x2222 {
		t.Fatalf("Lookup() = %#x,%v want 0x2222,true", v, ok)
	}
}

func TestForThreadFiltersByThreadID(t *testing.T) {
	tbl := New()
	tbl.Add(Key{Kind: SoftwareBreakpoint, Addr: 0x1000, ThreadID: 101}, 0xaaaa)
	tbl.Add(Key{Kind: SoftwareBreakpoint, Addr: 0x1004, ThreadID: 101}, 0xbbbb)
	tbl.Add(Key{Kind: SoftwareBreakpoint, Addr: 0x1000, ThreadID: 102}, 0xcccc)

	got := tbl.ForThread(101)
	if len(got) != 2 || got[0x1000] != 0xaaaa || got[0x1004] != 0xbbbb {
		t.Fatalf("ForThread(101) = %#v", got)
	}
}

func TestRemoveMissingKeyReportsNotFound(t *testing.T) {
	tbl := New()
	if _, ok := tbl.Remove(Key{Addr: 0xdead}); ok {
		t.Fatal("Remove() on empty table reported found")
	}
}
