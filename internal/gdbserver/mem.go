package gdbserver

import (
	"fmt"

	"github.com/coremesh/meshgdb/internal/isa"
	"github.com/coremesh/meshgdb/internal/matchpoint"
)

// handleReadMem answers `m<addr>,<length>`: bounds-checked read, then
// applies the breakpoint shadow so a client reading over an installed
// breakpoint sees the original opcode, not the BKPT instruction (spec.md
// §4.7 "Breakpoint shadow").
func (s *Server) handleReadMem(payload string) string {
	addrStr, lenStr, ok := splitOnce(payload, ',')
	if !ok {
		return errReply(1)
	}
	addr64, err := parseHexUint32(addrStr)
	if err != nil {
		return errReply(1)
	}
	length, err := parseHexInt(lenStr)
	if err != nil || length < 0 {
		return errReply(1)
	}

	th := s.currentThread()
	data, ok := th.ReadBlock(addr64, length)
	if !ok {
		return errReply(2)
	}
	s.spliceReadShadow(th.ID, addr64, data)
	s.trafficBytes[th.ID] += uint64(len(data))
	return hexEncodeBytes(data)
}

// handleWriteMemASCII answers `M<addr>,<length>:<hex data>`.
func (s *Server) handleWriteMemASCII(payload string) string {
	header, hexData, ok := splitOnce(payload, ':')
	if !ok {
		return errReply(1)
	}
	data, err := hexDecodeBytes(hexData)
	if err != nil {
		return errReply(1)
	}
	return s.writeMemCommon(header, data)
}

// handleWriteMemBinary answers `X<addr>,<length>:<binary data>`, where the
// payload has already been unescaped/RLE-expanded by the Framer.
func (s *Server) handleWriteMemBinary(payload string) string {
	header, raw, ok := splitOnce(payload, ':')
	if !ok {
		return errReply(1)
	}
	return s.writeMemCommon(header, []byte(raw))
}

func (s *Server) writeMemCommon(header string, data []byte) string {
	addrStr, lenStr, ok := splitOnce(header, ',')
	if !ok {
		return errReply(1)
	}
	addr, err := parseHexUint32(addrStr)
	if err != nil {
		return errReply(1)
	}
	length, err := parseHexInt(lenStr)
	if err != nil || length < 0 {
		return errReply(1)
	}
	if length != len(data) {
		return errReply(1)
	}

	th := s.currentThread()
	s.spliceWriteShadow(th.ID, addr, data)
	if !th.WriteBlock(addr, data) {
		return errReply(2)
	}
	s.trafficBytes[th.ID] += uint64(len(data))
	return "OK"
}

// spliceReadShadow restores any installed breakpoint's original opcode
// into data, which was just read starting at addr, so the displaced BKPT
// is invisible to the client (spec.md §4.7).
func (s *Server) spliceReadShadow(tid int, addr uint32, data []byte) {
	entries := s.mpoints.ForThread(tid)
	if len(entries) == 0 {
		return
	}
	for bpAddr, orig := range entries {
		spliceOpcodeInto(data, addr, bpAddr, orig)
	}
}

// spliceWriteShadow keeps an installed breakpoint live across a client
// write that overlaps its address: the BKPT opcode is spliced back into
// the outgoing write so hardware keeps trapping there, while the
// matchpoint entry is updated to the value the client actually intended
// to write, so a later read-side shadow restores the right bytes
// (spec.md §4.7).
func (s *Server) spliceWriteShadow(tid int, addr uint32, data []byte) {
	entries := s.mpoints.ForThread(tid)
	for bpAddr := range entries {
		if bpAddr < addr || bpAddr+1 >= addr+uint32(len(data)) {
			continue
		}
		off := bpAddr - addr
		newOrig := uint16(data[off]) | uint16(data[off+1])<<8
		spliceOpcodeInto(data, addr, bpAddr, isa.OpcodeBKPT)
		s.mpoints.Add(matchpoint.Key{Kind: matchpoint.SoftwareBreakpoint, Addr: bpAddr, ThreadID: tid}, newOrig)
	}
}

// spliceOpcodeInto overwrites the two bytes of data (window starting at
// windowAddr) that overlap bpAddr with the little-endian encoding of
// orig, if bpAddr falls within the window.
func spliceOpcodeInto(data []byte, windowAddr, bpAddr uint32, orig uint16) {
	if bpAddr < windowAddr || bpAddr+1 >= windowAddr+uint32(len(data)) {
		return
	}
	off := bpAddr - windowAddr
	data[off] = byte(orig)
	data[off+1] = byte(orig >> 8)
}

func parseHexUint32(s string) (uint32, error) {
	v, err := parseHexInt(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("gdbserver: negative address %q", s)
	}
	return uint32(v), nil
}
