package packet

import (
	"encoding/binary"
	"errors"
	"net/netip"

	"golang.org/x/net/ipv4"
)

const (
	ProtocolUDP = 17
	PortDNS     = 53

	UDPHeaderLen = 8

	// MinDNSPacketLen is the shortest datagram the classifier looks into.
	MinDNSPacketLen = ipv4.HeaderLen + UDPHeaderLen

	// IPv4 header offsets
	offVersionIHL = 0
	offTotalLen   = 2
	offProtocol   = 9
	offChecksum   = 10
	offSrc        = 12
	offDst        = 16

	// UDP header offsets, relative to the end of the IPv4 header
	offSrcPort  = 0
	offDstPort  = 2
	offUDPLen   = 4
	offUDPCheck = 6
)

var (
	ErrShort     = errors.New("packet too short")
	ErrVersion   = errors.New("not an ipv4 packet")
	ErrTruncated = errors.New("empty or truncated udp payload")
	ErrInvariant = errors.New("reply invariant violated")
)

// IPv4 is an owned IPv4 datagram. Every accessor checks bounds, so a short
// slice yields zero values instead of a panic.
type IPv4 []byte

func (p IPv4) Version() int {
	if len(p) < 1 {
		return 0
	}
	return int(p[offVersionIHL] >> 4)
}

// HeaderLen returns IHL*4 in bytes.
func (p IPv4) HeaderLen() int {
	if len(p) < 1 {
		return 0
	}
	return int(p[offVersionIHL]&0x0f) << 2
}

func (p IPv4) TotalLen() int {
	if len(p) < offTotalLen+2 {
		return 0
	}
	return int(binary.BigEndian.Uint16(p[offTotalLen:]))
}

func (p IPv4) SetTotalLen(n int) {
	binary.BigEndian.PutUint16(p[offTotalLen:], uint16(n))
}

func (p IPv4) Protocol() int {
	if len(p) <= offProtocol {
		return 0
	}
	return int(p[offProtocol])
}

func (p IPv4) HeaderChecksum() uint16 {
	if len(p) < offChecksum+2 {
		return 0
	}
	return binary.BigEndian.Uint16(p[offChecksum:])
}

func (p IPv4) SetHeaderChecksum(sum uint16) {
	binary.BigEndian.PutUint16(p[offChecksum:], sum)
}

func (p IPv4) Src() (a [4]byte) {
	if len(p) >= offSrc+4 {
		copy(a[:], p[offSrc:offSrc+4])
	}
	return a
}

func (p IPv4) SetSrc(a [4]byte) { copy(p[offSrc:offSrc+4], a[:]) }

func (p IPv4) Dst() (a [4]byte) {
	if len(p) >= offDst+4 {
		copy(a[:], p[offDst:offDst+4])
	}
	return a
}

func (p IPv4) SetDst(a [4]byte) { copy(p[offDst:offDst+4], a[:]) }

func (p IPv4) SrcAddr() netip.Addr { return netip.AddrFrom4(p.Src()) }
func (p IPv4) DstAddr() netip.Addr { return netip.AddrFrom4(p.Dst()) }

// UpdateHeaderChecksum zeroes the checksum field, recomputes it over the
// whole header and writes it back.
func (p IPv4) UpdateHeaderChecksum() {
	hl := p.HeaderLen()
	p.SetHeaderChecksum(0)
	p.SetHeaderChecksum(Checksum(p, 0, hl))
}

// UDP returns the transport header that follows the IPv4 header. The view
// is empty when the datagram cannot hold one.
func (p IPv4) UDP() UDP {
	hl := p.HeaderLen()
	if hl < ipv4.HeaderLen || len(p) < hl+UDPHeaderLen {
		return nil
	}
	return UDP(p[hl:])
}

// Payload returns the bytes after the UDP header, nil when there are none.
func (p IPv4) Payload() []byte {
	u := p.UDP()
	if len(u) <= UDPHeaderLen {
		return nil
	}
	return u[UDPHeaderLen:]
}

// UDP is a view over a UDP header and its payload.
type UDP []byte

func (u UDP) SrcPort() uint16 {
	if len(u) < offSrcPort+2 {
		return 0
	}
	return binary.BigEndian.Uint16(u[offSrcPort:])
}

func (u UDP) SetSrcPort(port uint16) { binary.BigEndian.PutUint16(u[offSrcPort:], port) }

func (u UDP) DstPort() uint16 {
	if len(u) < offDstPort+2 {
		return 0
	}
	return binary.BigEndian.Uint16(u[offDstPort:])
}

func (u UDP) SetDstPort(port uint16) { binary.BigEndian.PutUint16(u[offDstPort:], port) }

func (u UDP) Length() int {
	if len(u) < offUDPLen+2 {
		return 0
	}
	return int(binary.BigEndian.Uint16(u[offUDPLen:]))
}

func (u UDP) SetLength(n int) { binary.BigEndian.PutUint16(u[offUDPLen:], uint16(n)) }

func (u UDP) Checksum() uint16 {
	if len(u) < offUDPCheck+2 {
		return 0
	}
	return binary.BigEndian.Uint16(u[offUDPCheck:])
}

func (u UDP) SetChecksum(sum uint16) { binary.BigEndian.PutUint16(u[offUDPCheck:], sum) }
