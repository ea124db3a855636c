package log

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestHandleWritesMessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)
	logger.Info("halted core", slog.String("core", "0.1"))

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("MESSAGE : halted core")) {
		t.Fatalf("output missing message line: %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("CORE : 0.1")) {
		t.Fatalf("output missing attr line: %q", out)
	}
}

func TestDiagnosticTagsClassGroup(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf)
	d := Diagnostic(base, "stop-resume")
	d.Info("resumed thread")

	if !bytes.Contains(buf.Bytes(), []byte("NAME")) {
		t.Fatalf("diagnostic output missing class name attr: %q", buf.String())
	}
}
