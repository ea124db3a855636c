package gdbserver

import "strconv"

// parseHexInt parses a plain (unsigned) hex string such as "1a" or "-1"
// (GDB uses "-1" literally for the "all threads" tid, not two's-complement
// hex) into an int.
func parseHexInt(s string) (int, error) {
	if s == "-1" {
		return -1, nil
	}
	v, err := strconv.ParseInt(s, 16, 64)
	return int(v), err
}

// splitOnce splits s on the first occurrence of sep, reporting whether sep
// was found.
func splitOnce(s string, sep byte) (before, after string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}
