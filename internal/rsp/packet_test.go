package rsp

import (
	"bytes"
	"testing"
)

func TestEncodeCommandFraming(t *testing.T) {
	pkt := EncodeCommand([]byte("g"))
	want := []byte("$g#" + Checksum([]byte("g")))
	if !bytes.Equal(pkt, want) {
		t.Fatalf("EncodeCommand(%q) = %q, want %q", "g", pkt, want)
	}
}

func TestChecksumWraps(t *testing.T) {
	// 256 bytes of 0x01 sums to 256, which must wrap to 0x00.
	payload := bytes.Repeat([]byte{0x01}, 256)
	if got := Checksum(payload); got != "00" {
		t.Fatalf("Checksum() = %q, want %q", got, "00")
	}
}

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	raw := []byte("m$1000,4#}*weird")
	escaped := Escape(raw)
	for _, b := range escaped {
		if b == '$' || b == '#' {
			t.Fatalf("escaped payload still contains a framing byte: %q", escaped)
		}
	}
	back, err := Unescape(escaped)
	if err != nil {
		t.Fatalf("Unescape: %v", err)
	}
	if !bytes.Equal(back, raw) {
		t.Fatalf("round trip = %q, want %q", back, raw)
	}
}

func TestUnescapeExpandsRunLength(t *testing.T) {
	// 'a' followed by *<n+29> means "repeat 'a' n more times".
	data := []byte{'a', '*', 29 + 3}
	got, err := Unescape(data)
	if err != nil {
		t.Fatalf("Unescape: %v", err)
	}
	want := []byte("aaaa")
	if !bytes.Equal(got, want) {
		t.Fatalf("Unescape RLE = %q, want %q", got, want)
	}
}

func TestUnescapeRejectsDanglingEscape(t *testing.T) {
	if _, err := Unescape([]byte{'a', '}'}); err == nil {
		t.Fatal("expected error for dangling escape byte")
	}
}

func TestUnescapeRejectsLeadingRunLength(t *testing.T) {
	if _, err := Unescape([]byte{'*', 29}); err == nil {
		t.Fatal("expected error for run-length with no preceding byte")
	}
}

func TestEncodeNotificationUsesPercentLead(t *testing.T) {
	pkt := EncodeNotification([]byte("Stop:T05"))
	if pkt[0] != '%' {
		t.Fatalf("EncodeNotification lead byte = %q, want %%", pkt[0])
	}
}
