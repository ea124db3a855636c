package coreid

import "testing"

func TestThreadIDBijection(t *testing.T) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			id := ID{Row: uint8(row), Col: uint8(col)}
			tid := id.ThreadID()

			want := (row+1)*100 + col + 1
			if tid != want {
				t.Fatalf("ThreadID(%v) = %d, want %d", id, tid, want)
			}

			back, ok := FromThreadID(tid)
			if !ok {
				t.Fatalf("FromThreadID(%d) reported not ok", tid)
			}
			if back != id {
				t.Fatalf("FromThreadID(%d) = %v, want %v", tid, back, id)
			}
		}
	}
}

func TestFromThreadIDRejectsOutOfRange(t *testing.T) {
	if _, ok := FromThreadID(0); ok {
		t.Fatal("expected tid 0 to be rejected")
	}
	if _, ok := FromThreadID(100); ok {
		t.Fatal("expected tid 100 to be rejected")
	}
}

func TestPackedRoundTrip(t *testing.T) {
	id := ID{Row: 12, Col: 34}
	if got := FromPacked(id.Packed()); got != id {
		t.Fatalf("FromPacked(Packed()) = %v, want %v", got, id)
	}
}

func TestLessOrdering(t *testing.T) {
	a := ID{Row: 0, Col: 1}
	b := ID{Row: 1, Col: 0}
	if !a.Less(b) {
		t.Fatalf("expected %v < %v", a, b)
	}
	if b.Less(a) {
		t.Fatalf("did not expect %v < %v", b, a)
	}
}
