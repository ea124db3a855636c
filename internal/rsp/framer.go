package rsp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
)

// CtrlC is delivered by Framer.ReadCommand in place of a real command when
// the client sends a bare 0x03 byte outside any packet (spec.md §4.6: "a
// raw ctrl-C byte is a first-class event, not a side channel of the next
// packet read").
const CtrlC = "\x03"

// maxRetransmits bounds how many times Framer will resend a packet after a
// '-' (nak) before giving up, so a wedged link cannot spin forever.
const maxRetransmits = 5

// ErrChecksumMismatch is returned by ReadCommand when every retransmit
// attempt (from the client's perspective, the server requesting more
// accurate analysis is not possible over RSP, so this just means the
// packet was nak'd by us and never resent cleanly) still failed.
var ErrChecksumMismatch = errors.New("rsp: checksum mismatch")

// Framer wraps a byte stream with RSP packet framing: ack/nak, escaping,
// run-length decoding, and notification-channel serialization. One Framer
// serves one client connection (spec.md §4.9: only one client at a time).
//
// Grounded on aykevl-emculator/gdb-rsp.go's gdbRecvPacket/gdbSendPacket,
// generalized to add the escaping, run-length decoding, ack/nak
// retransmission and notification gating that file's own "TODO: escaping"
// comments mark as unimplemented.
type Framer struct {
	rw *bufio.ReadWriter

	mu       sync.Mutex
	acksOn   bool
	notifyOK bool // no notification awaiting vStopped ack
}

// NewFramer wraps rw. Acks are enabled until QStartNoAckMode negotiates
// them off (spec.md §4.6).
func NewFramer(rw *bufio.ReadWriter) *Framer {
	return &Framer{rw: rw, acksOn: true, notifyOK: true}
}

// SetAcks enables or disables ack/nak framing, driven by QStartNoAckMode.
func (f *Framer) SetAcks(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acksOn = on
}

// ReadCommand blocks for the next command packet's unescaped, RLE-expanded
// payload. It returns CtrlC if the client sent a bare interrupt byte.
func (f *Framer) ReadCommand() (string, error) {
	for {
		payload, err := f.readPacket()
		if err != nil {
			return "", err
		}
		if payload == CtrlC {
			return CtrlC, nil
		}
		if payload == "" {
			continue
		}
		return payload, nil
	}
}

// readPacket reads one '$'-framed packet, validating its checksum and
// nak'ing/retrying on mismatch. A bare ctrl-C byte short-circuits as CtrlC.
func (f *Framer) readPacket() (string, error) {
	for attempt := 0; ; attempt++ {
		c, err := f.rw.ReadByte()
		if err != nil {
			return "", err
		}
		for c != '$' {
			if c == 0x03 {
				return CtrlC, nil
			}
			c, err = f.rw.ReadByte()
			if err != nil {
				return "", err
			}
		}

		raw, err := f.rw.ReadString('#')
		if err != nil {
			return "", err
		}
		raw = raw[:len(raw)-1] // drop trailing '#'

		c1, err := f.rw.ReadByte()
		if err != nil {
			return "", err
		}
		c2, err := f.rw.ReadByte()
		if err != nil {
			return "", err
		}
		checksum := string([]byte{c1, c2})

		if checksum != Checksum([]byte(raw)) {
			if f.ackLocked() {
				f.rw.WriteByte('-')
				f.rw.Flush()
			}
			if attempt >= maxRetransmits {
				return "", ErrChecksumMismatch
			}
			continue
		}

		if f.ackLocked() {
			f.rw.WriteByte('+')
			f.rw.Flush()
		}

		payload, err := Unescape([]byte(raw))
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}
}

func (f *Framer) ackLocked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acksOn
}

// WriteReply sends a command reply packet and, if acks are enabled, waits
// for '+' before returning (retrying on '-' up to maxRetransmits times).
func (f *Framer) WriteReply(payload string) error {
	pkt := EncodeCommand(Escape([]byte(payload)))
	for attempt := 0; ; attempt++ {
		if _, err := f.rw.Write(pkt); err != nil {
			return err
		}
		if err := f.rw.Flush(); err != nil {
			return err
		}
		if !f.ackLocked() {
			return nil
		}
		ack, err := f.rw.ReadByte()
		if err != nil {
			return err
		}
		if ack == '+' {
			return nil
		}
		if attempt >= maxRetransmits {
			return fmt.Errorf("rsp: peer nak'd reply %d times", attempt+1)
		}
	}
}

// WriteNotification sends a '%'-framed asynchronous notification. Per
// spec.md §4.6 ("no second Stop: notification may be sent before the
// client's vStopped...OK completes the previous one"), WriteNotification
// refuses to send a second notification until the caller acknowledges the
// first one finished draining via NotificationAcked.
func (f *Framer) WriteNotification(payload string) error {
	f.mu.Lock()
	if !f.notifyOK {
		f.mu.Unlock()
		return errors.New("rsp: a notification is already outstanding")
	}
	f.notifyOK = false
	f.mu.Unlock()

	pkt := EncodeNotification(Escape([]byte(payload)))
	_, err := f.rw.Write(pkt)
	if err != nil {
		return err
	}
	return f.rw.Flush()
}

// NotificationAcked marks the outstanding notification's vStopped sequence
// as fully drained, allowing WriteNotification to send another.
func (f *Framer) NotificationAcked() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifyOK = true
}

// ReadRaw exposes the underlying reader for binary X-packet payloads that
// must be consumed outside the normal command-packet framing. Neither the
// packet loop nor gdbserver's X handler (which receives the already
// unescaped payload from ReadCommand) calls it.
func (f *Framer) ReadRaw(n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := io.ReadFull(f.rw, buf)
	return buf, err
}
