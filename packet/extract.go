package packet

import (
	"fmt"
	"net/netip"

	"golang.org/x/net/ipv4"
)

// Exchange holds one intercepted DNS query together with the header fields
// needed to address the reply.
type Exchange struct {
	Query []byte

	Src     [4]byte
	Dst     [4]byte
	SrcPort uint16
	DstPort uint16

	// Header is a private copy of the original IPv4 header, options included.
	Header []byte
}

func (e *Exchange) HeaderLen() int { return len(e.Header) }

func (e *Exchange) Source() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(e.Src), e.SrcPort)
}

func (e *Exchange) Destination() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(e.Dst), e.DstPort)
}

func (e *Exchange) String() string {
	return fmt.Sprintf("%s->%s len=%d", e.Source(), e.Destination(), len(e.Query))
}

// Extract copies the UDP payload and addressing of p out into an Exchange.
// The payload length is len(p) - IHL*4 - 8; when it is not positive the
// datagram is rejected with ErrTruncated.
func Extract(p []byte) (*Exchange, error) {
	pkt := IPv4(p)
	hl := pkt.HeaderLen()
	if hl < ipv4.HeaderLen || len(p) < hl {
		return nil, fmt.Errorf("%w: len=%d, ihl=%d", ErrShort, len(p), hl)
	}

	n := len(p) - hl - UDPHeaderLen
	if n <= 0 {
		return nil, fmt.Errorf("%w: len=%d, ihl=%d", ErrTruncated, len(p), hl)
	}

	u := pkt.UDP()
	e := &Exchange{
		Query:   make([]byte, n),
		Src:     pkt.Src(),
		Dst:     pkt.Dst(),
		SrcPort: u.SrcPort(),
		DstPort: u.DstPort(),
		Header:  make([]byte, hl),
	}
	copy(e.Query, p[hl+UDPHeaderLen:])
	copy(e.Header, p[:hl])

	return e, nil
}
