package config

import "testing"

func TestParseClassesAcceptsKnownValues(t *testing.T) {
	set, err := ParseClasses([]string{"stop-resume", "timing"})
	if err != nil {
		t.Fatalf("ParseClasses: %v", err)
	}
	if !set.Enabled(ClassStopResume) || !set.Enabled(ClassTiming) {
		t.Fatalf("set = %+v, want stop-resume and timing enabled", set)
	}
	if set.Enabled(ClassHWDetail) {
		t.Fatalf("hw-detail should not be enabled")
	}
}

func TestParseClassesRejectsUnknown(t *testing.T) {
	if _, err := ParseClasses([]string{"bogus"}); err == nil {
		t.Fatalf("expected an error for an unknown diagnostic class")
	}
}

func TestNewDefaultsPortWhenUnset(t *testing.T) {
	cfg, err := New(0, "", false, false, nil, "sim")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("Port = %d, want default %d", cfg.Port, DefaultPort)
	}
	if cfg.Addr() != ":51000" {
		t.Fatalf("Addr() = %q", cfg.Addr())
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New(51000, "", false, false, nil, "nonsense"); err == nil {
		t.Fatalf("expected an error for an unknown EMULATOR_TARGET value")
	}
}
