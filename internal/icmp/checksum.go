package icmp

// Checksum calculates the Internet Checksum (RFC 1071) over b.
//
// Words are summed in network byte order with 64-bit accumulation, so any
// slice length is summed exactly. A trailing
// odd byte is treated as the high byte of a half-word whose low byte is zero.
// Carries are folded back until none remain, then the sum is complemented.
func Checksum(b []byte) uint16 {
	return ^fold(sum(b))
}

// Verify returns the checksum computed over a finished message, including its
// checksum field. A message with a correct checksum yields zero.
func Verify(b []byte) uint16 {
	return Checksum(b)
}

// Valid reports whether the checksum embedded in b is correct.
func Valid(b []byte) bool {
	return Verify(b) == 0
}

func sum(b []byte) uint64 {
	var s uint64
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		s += uint64(b[i])<<8 | uint64(b[i+1])
	}
	if n%2 == 1 {
		s += uint64(b[n-1]) << 8
	}
	return s
}

func fold(s uint64) uint16 {
	for s>>16 != 0 {
		s = (s >> 16) + (s & 0xffff)
	}
	return uint16(s)
}
