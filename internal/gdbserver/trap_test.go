package gdbserver

import (
	"bytes"
	"testing"
)

func TestSysWriteRedirectsToTTYSinkWhenConfigured(t *testing.T) {
	s, _ := testServer(t)
	var sink bytes.Buffer
	s.SetTTYSink(&sink)

	th := s.currentThread()
	th.WriteBlock(0x100, []byte("hello"))
	th.WriteReg(1, 0x100)
	th.WriteReg(2, 5)
	th.WriteReg(3, sysWrite)

	awaiting := s.dispatchSyscallTrap(fakeFramer(), th)
	if awaiting {
		t.Fatalf("dispatchSyscallTrap should not await a host reply when a tty sink is set")
	}
	if sink.String() != "hello" {
		t.Fatalf("tty sink got %q, want hello", sink.String())
	}
}
