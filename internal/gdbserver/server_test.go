package gdbserver

import (
	"bufio"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/coremesh/meshgdb/internal/coreid"
	"github.com/coremesh/meshgdb/internal/isa"
	"github.com/coremesh/meshgdb/internal/platform"
	"github.com/coremesh/meshgdb/internal/rsp"
	"github.com/coremesh/meshgdb/internal/target"
	"github.com/coremesh/meshgdb/internal/thread"
)

func testServer(t *testing.T) (*Server, target.Target) {
	t.Helper()
	desc := platform.Description{Chips: []platform.Chip{{Row: 0, Col: 0, Rows: 1, Cols: 2}}}
	tg := target.NewSim(desc, target.SimMemSize)
	s := New(tg, slog.Default(), DefaultOptions())
	for _, th := range s.threads {
		th.HaltTimeout = 5 * time.Millisecond
		th.PollInterval = time.Microsecond
	}
	return s, tg
}

// fakeFramer is a no-op stand-in for tests that exercise handlers directly
// without a live connection (notifications are simply dropped).
func fakeFramer() *rsp.Framer { return nil }

// pipeFramer returns a real Framer over one end of a net.Pipe, plus the
// raw client-side connection, for tests whose handler writes an extra
// reply directly through the framer (e.g. monitorWorkgroup's two-packet
// reply). Acks are disabled so WriteReply doesn't block waiting for a '+'
// the test never sends.
func pipeFramer(t *testing.T) (*rsp.Framer, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	f := rsp.NewFramer(bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)))
	f.SetAcks(false)
	return f, client
}

// readPipeFrame reads one raw '$...#hh' or '%...#hh' frame's unescaped
// payload off conn without acking it (acks are disabled on the paired
// pipeFramer).
func readPipeFrame(t *testing.T, conn net.Conn) string {
	t.Helper()
	r := bufio.NewReader(conn)
	lead, err := r.ReadByte()
	for err == nil && lead != '$' && lead != '%' {
		lead, err = r.ReadByte()
	}
	if err != nil {
		t.Fatalf("reading frame lead byte: %v", err)
	}
	raw, err := r.ReadString('#')
	if err != nil {
		t.Fatalf("reading frame body: %v", err)
	}
	raw = raw[:len(raw)-1]
	if _, err := r.ReadByte(); err != nil {
		t.Fatalf("reading checksum byte 1: %v", err)
	}
	if _, err := r.ReadByte(); err != nil {
		t.Fatalf("reading checksum byte 2: %v", err)
	}
	body, err := rsp.Unescape([]byte(raw))
	if err != nil {
		t.Fatalf("unescaping frame: %v", err)
	}
	return string(body)
}

func TestDispatchRegisterRoundTrip(t *testing.T) {
	s, _ := testServer(t)

	if reply, _ := s.dispatch(fakeFramer(), "P0=78563412"); reply != "OK" {
		t.Fatalf("P0= reply = %q, want OK", reply)
	}
	reply, _ := s.dispatch(fakeFramer(), "p0")
	if reply != "78563412" {
		t.Fatalf("p0 reply = %q, want 78563412", reply)
	}
}

func TestDispatchReadAllRegsLength(t *testing.T) {
	s, _ := testServer(t)
	reply, _ := s.dispatch(fakeFramer(), "g")
	if len(reply) != numAllRegs*8 {
		t.Fatalf("g reply length = %d, want %d", len(reply), numAllRegs*8)
	}
}

func TestDispatchMemoryRoundTrip(t *testing.T) {
	s, _ := testServer(t)

	if reply, _ := s.dispatch(fakeFramer(), "M1000,4:deadbeef"); reply != "OK" {
		t.Fatalf("M reply = %q, want OK", reply)
	}
	reply, _ := s.dispatch(fakeFramer(), "m1000,4")
	if reply != "deadbeef" {
		t.Fatalf("m reply = %q, want deadbeef", reply)
	}
}

func TestBreakpointShadowHidesBKPTOnRead(t *testing.T) {
	s, _ := testServer(t)

	// Seed memory with a known opcode, then install a breakpoint over it.
	s.dispatch(fakeFramer(), "M2000,4:aabbccdd")
	if reply, _ := s.dispatch(fakeFramer(), "Z0,2000,2"); reply != "OK" {
		t.Fatalf("Z0 reply = %q, want OK", reply)
	}

	reply, _ := s.dispatch(fakeFramer(), "m2000,4")
	if reply != "aabbccdd" {
		t.Fatalf("m2000,4 after breakpoint = %q, want original bytes aabbccdd", reply)
	}

	if reply, _ := s.dispatch(fakeFramer(), "z0,2000,2"); reply != "OK" {
		t.Fatalf("z0 reply = %q, want OK", reply)
	}
	reply, _ = s.dispatch(fakeFramer(), "m2000,4")
	if reply != "aabbccdd" {
		t.Fatalf("m2000,4 after removal = %q, want aabbccdd", reply)
	}
}

// TestBreakpointShadowSurvivesOverlappingWrite exercises the write-side
// half of the breakpoint shadow: a client write that overlaps an
// installed breakpoint's address must not dislodge the BKPT opcode from
// hardware, but a later read must still show the client's intended bytes.
func TestBreakpointShadowSurvivesOverlappingWrite(t *testing.T) {
	s, _ := testServer(t)

	s.dispatch(fakeFramer(), "M2000,4:aabbccdd")
	if reply, _ := s.dispatch(fakeFramer(), "Z0,2000,2"); reply != "OK" {
		t.Fatalf("Z0 reply = %q, want OK", reply)
	}

	if reply, _ := s.dispatch(fakeFramer(), "M2000,4:11223344"); reply != "OK" {
		t.Fatalf("M2000,4 reply = %q, want OK", reply)
	}

	th := s.currentThread()
	hw, ok := th.ReadMem16(0x2000)
	if !ok || hw != isa.OpcodeBKPT {
		t.Fatalf("hardware at 0x2000 = %#x,%v, want BKPT opcode %#x still installed", hw, ok, isa.OpcodeBKPT)
	}

	reply, _ := s.dispatch(fakeFramer(), "m2000,4")
	if reply != "11223344" {
		t.Fatalf("m2000,4 after overlapping write = %q, want the client's intended bytes 11223344", reply)
	}

	if reply, _ := s.dispatch(fakeFramer(), "z0,2000,2"); reply != "OK" {
		t.Fatalf("z0 reply = %q, want OK", reply)
	}
	reply, _ = s.dispatch(fakeFramer(), "m2000,4")
	if reply != "11223344" {
		t.Fatalf("m2000,4 after removal = %q, want 11223344", reply)
	}
}

func TestStopStatusAllStopReportsCurrentThread(t *testing.T) {
	s, tg := testServer(t)
	core := coreid.ID{Row: 0, Col: 0}
	tg.WriteReg(core, isa.Named.DEBUGSTATUS, isa.DebugStatusHalted)

	reply, _ := s.dispatch(fakeFramer(), "?")
	if len(reply) == 0 || reply[0] != 'T' {
		t.Fatalf("? reply = %q, want a T-prefixed stop reply", reply)
	}
}

func TestQSupportedAdvertisesCapabilities(t *testing.T) {
	s, _ := testServer(t)
	reply, _ := s.dispatch(fakeFramer(), "qSupported:xmlRegisters=i386")
	for _, want := range []string{"qXfer:osdata:read+", "qXfer:threads:read+", "swbreak+", "QNonStop+", "multiprocess+"} {
		if !containsSubstring(reply, want) {
			t.Fatalf("qSupported reply %q missing %q", reply, want)
		}
	}
}

func TestMonitorHelpReturnsHexText(t *testing.T) {
	s, _ := testServer(t)
	cmd := hexEncodeBytes([]byte("help"))
	reply, _ := s.dispatch(fakeFramer(), "qRcmd,"+cmd)
	decoded, err := hexDecodeBytes(reply)
	if err != nil {
		t.Fatalf("decoding monitor reply: %v", err)
	}
	if !containsSubstring(string(decoded), "monitor commands") {
		t.Fatalf("monitor help = %q, missing header", decoded)
	}
}

// TestMonitorWorkgroupCreatesProcess also exercises the two-packet reply
// monitorWorkgroup writes directly through the framer (spec.md §8 scenario
// S4): the console status line, followed by dispatch's own "OK" return.
func TestMonitorWorkgroupCreatesProcess(t *testing.T) {
	s, _ := testServer(t)
	framer, conn := pipeFramer(t)
	cmd := hexEncodeBytes([]byte("workgroup 0 0 1 2"))

	replyCh := make(chan string, 1)
	go func() {
		reply, _ := s.dispatch(framer, "qRcmd,"+cmd)
		replyCh <- reply
	}()

	statusReply := readPipeFrame(t, conn)
	decoded, err := hexDecodeBytes(statusReply)
	if err != nil {
		t.Fatalf("decoding monitor status reply %q: %v", statusReply, err)
	}
	if !containsSubstring(string(decoded), "created workgroup") {
		t.Fatalf("workgroup monitor status reply = %q", decoded)
	}

	if reply := <-replyCh; reply != "OK" {
		t.Fatalf("workgroup monitor trailing reply = %q, want OK", reply)
	}
}

func TestSingleStepAdvancesAndReportsTrap(t *testing.T) {
	s, tg := testServer(t)
	core := coreid.ID{Row: 0, Col: 0}
	th := s.threads[core.ThreadID()]

	// Zero memory at PC decodes as Fallthrough (first halfword 0). Once
	// the server plants a BKPT at PC+2 and resumes, simulate the core
	// having hit it by pre-marking DEBUGSTATUS halted and advancing PC
	// past the planted BKPT, exactly as real hardware would leave it.
	tg.WriteReg(core, isa.Named.PC, 0)
	go func() {
		time.Sleep(time.Millisecond)
		tg.WriteReg(core, isa.Named.PC, isa.ShortInstrLen+isa.ShortInstrLen)
		tg.WriteReg(core, isa.Named.DEBUGSTATUS, isa.DebugStatusHalted)
	}()

	reply := s.singleStep(fakeFramer(), th)
	if reply != thread.SigTRAP {
		t.Fatalf("singleStep signal = %q, want %q", reply, thread.SigTRAP)
	}
	pc, _ := th.PC()
	if pc != isa.ShortInstrLen {
		t.Fatalf("PC after step = %#x, want %#x (backed up past the planted BKPT)", pc, isa.ShortInstrLen)
	}
}

func containsSubstring(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
