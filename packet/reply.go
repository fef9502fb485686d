package packet

import (
	"fmt"
	"math"

	"golang.org/x/net/ipv4"
)

type replyOptions struct {
	udpChecksum bool
}

type Option func(*replyOptions)

// WithUDPChecksum fills in the UDP checksum of the reply. Without it the
// field is left zero, which IPv4 receivers read as "no checksum".
func WithUDPChecksum() Option {
	return func(o *replyOptions) { o.udpChecksum = true }
}

// Synthesize builds the IPv4/UDP datagram that answers e with resp. The
// original header is reused with addresses and ports swapped, the lengths
// rewritten and the header checksum recomputed.
func Synthesize(e *Exchange, resp []byte, opts ...Option) ([]byte, error) {
	var o replyOptions
	for _, opt := range opts {
		opt(&o)
	}

	hl := e.HeaderLen()
	if hl < ipv4.HeaderLen || hl > 60 || hl%4 != 0 {
		return nil, fmt.Errorf("%w: header length %d", ErrInvariant, hl)
	}

	total := hl + UDPHeaderLen + len(resp)
	if total > math.MaxUint16 {
		return nil, fmt.Errorf("%w: total length %d", ErrInvariant, total)
	}

	buf := make([]byte, total)
	copy(buf, e.Header)

	pkt := IPv4(buf)
	if pkt.HeaderLen() != hl {
		return nil, fmt.Errorf("%w: ihl %d, header %d", ErrInvariant, pkt.HeaderLen(), hl)
	}
	pkt.SetSrc(e.Dst)
	pkt.SetDst(e.Src)
	pkt.SetTotalLen(total)

	u := pkt.UDP()
	u.SetSrcPort(e.DstPort)
	u.SetDstPort(e.SrcPort)
	u.SetLength(UDPHeaderLen + len(resp))
	u.SetChecksum(0)
	copy(u[UDPHeaderLen:], resp)

	if o.udpChecksum {
		u.SetChecksum(UDPChecksum(pkt.Src(), pkt.Dst(), u))
	}

	pkt.UpdateHeaderChecksum()

	return buf, nil
}
