package packet

// Checksum returns the one's-complement Internet checksum (RFC 1071) of
// b[offset:offset+length]. An odd trailing byte is padded with a zero low byte.
func Checksum(b []byte, offset, length int) uint16 {
	return ^fold(sum(0, b[offset:offset+length]))
}

// UDPChecksum computes the UDP checksum over the IPv4 pseudo header and the
// whole UDP segment. The checksum field of udp must be zero. A computed zero
// is transmitted as 0xFFFF (RFC 768).
func UDPChecksum(src, dst [4]byte, udp []byte) uint16 {
	var pseudo [12]byte
	copy(pseudo[0:4], src[:])
	copy(pseudo[4:8], dst[:])
	pseudo[9] = ProtocolUDP
	pseudo[10] = byte(len(udp) >> 8)
	pseudo[11] = byte(len(udp))

	s := ^fold(sum(sum(0, pseudo[:]), udp))
	if s == 0 {
		return 0xffff
	}
	return s
}

func sum(acc uint32, b []byte) uint32 {
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		acc += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		acc += uint32(b[n-1]) << 8
	}
	return acc
}

func fold(acc uint32) uint16 {
	for acc>>16 != 0 {
		acc = (acc & 0xffff) + (acc >> 16)
	}
	return uint16(acc)
}
