package gdbserver

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// hexEncodeLE32 encodes v as 8 lowercase hex digits, little-endian byte
// order, matching GDB's register/memory wire encoding (spec.md §4.7).
func hexEncodeLE32(v uint32) string {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return hex.EncodeToString(buf)
}

func hexDecodeLE32(s string) (uint32, error) {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return 0, err
	}
	if len(buf) != 4 {
		return 0, fmt.Errorf("gdbserver: want 4 bytes, got %d", len(buf))
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func hexEncodeBytes(data []byte) string { return hex.EncodeToString(data) }

func hexDecodeBytes(s string) ([]byte, error) { return hex.DecodeString(s) }
