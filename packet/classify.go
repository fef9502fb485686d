package packet

import "golang.org/x/net/ipv4"

// Reason tells why a datagram was or was not taken as a DNS query.
type Reason string

const (
	ReasonDNS      Reason = "dns"
	ReasonShort    Reason = "short"
	ReasonVersion  Reason = "version"
	ReasonProtocol Reason = "protocol"
	ReasonPort     Reason = "port"
)

type Verdict struct {
	IsDNS  bool
	Reason Reason
}

// Classify reports whether p is an IPv4 UDP datagram addressed to port 53.
// Only header fields are inspected; the DNS message itself is not parsed.
func Classify(p []byte) Verdict {
	if len(p) < MinDNSPacketLen {
		return Verdict{Reason: ReasonShort}
	}

	pkt := IPv4(p)
	if pkt.Version() != ipv4.Version {
		return Verdict{Reason: ReasonVersion}
	}

	if pkt.Protocol() != ProtocolUDP {
		return Verdict{Reason: ReasonProtocol}
	}

	u := pkt.UDP()
	if u == nil {
		return Verdict{Reason: ReasonShort}
	}

	if u.DstPort() != PortDNS {
		return Verdict{Reason: ReasonPort}
	}

	return Verdict{IsDNS: true, Reason: ReasonDNS}
}

// IsDNS is shorthand for Classify(p).IsDNS.
func IsDNS(p []byte) bool { return Classify(p).IsDNS }
