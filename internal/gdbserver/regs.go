package gdbserver

import "github.com/coremesh/meshgdb/internal/thread"

// numAllRegs is 64 GPRs followed by 42 SCRs, per spec.md §4.7 "g, G".
const numAllRegs = thread.NumRegs

// handleReadAllRegs answers `g`: every register, 8 hex digits each,
// unsupported indices encoded as "xxxxxxxx" (spec.md: `unsupported regs
// return "XX..."`).
func (s *Server) handleReadAllRegs() string {
	th := s.currentThread()
	out := make([]byte, 0, numAllRegs*8)
	for n := 0; n < numAllRegs; n++ {
		v, ok := th.ReadReg(n)
		if !ok {
			out = append(out, []byte("xxxxxxxx")...)
			continue
		}
		out = append(out, []byte(hexEncodeLE32(v))...)
	}
	return string(out)
}

// handleWriteAllRegs answers `G<hex...>`.
func (s *Server) handleWriteAllRegs(payload string) string {
	th := s.currentThread()
	if len(payload) != numAllRegs*8 {
		return errReply(1)
	}
	for n := 0; n < numAllRegs; n++ {
		chunk := payload[n*8 : n*8+8]
		if chunk == "xxxxxxxx" {
			continue
		}
		v, err := hexDecodeLE32(chunk)
		if err != nil {
			return errReply(1)
		}
		if !th.WriteReg(n, v) {
			return errReply(3)
		}
	}
	return "OK"
}

// handleReadReg answers `p<n>`.
func (s *Server) handleReadReg(payload string) string {
	n, err := parseHexInt(payload)
	if err != nil {
		return errReply(1)
	}
	if n < 0 || n >= numAllRegs {
		return errReply(2)
	}
	v, ok := s.currentThread().ReadReg(n)
	if !ok {
		return errReply(3)
	}
	return hexEncodeLE32(v)
}

// handleWriteReg answers `P<n>=<hex>`.
func (s *Server) handleWriteReg(payload string) string {
	idx, val, ok := splitOnce(payload, '=')
	if !ok {
		return errReply(1)
	}
	n, err := parseHexInt(idx)
	if err != nil {
		return errReply(1)
	}
	if n < 0 || n >= numAllRegs {
		return errReply(2)
	}
	v, err := hexDecodeLE32(val)
	if err != nil {
		return errReply(1)
	}
	if !s.currentThread().WriteReg(n, v) {
		return errReply(3)
	}
	return "OK"
}
