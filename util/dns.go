package util

import (
	"fmt"

	"github.com/miekg/dns"
)

// DNSSummary is the part of a wire message worth logging.
type DNSSummary struct {
	ID       uint16
	Response bool
	Rcode    int
	Question string
	Answers  int
}

func (s DNSSummary) String() string {
	if s.Response {
		return fmt.Sprintf("id=%d, %s, %s answer %d", s.ID, s.Question, dns.RcodeToString[s.Rcode], s.Answers)
	}
	return fmt.Sprintf("id=%d, query=[%s]", s.ID, s.Question)
}

// DNSSummarize unpacks raw and reports its header and first question.
func DNSSummarize(raw []byte) (DNSSummary, error) {
	var m = new(dns.Msg)
	if err := m.Unpack(raw); err != nil {
		return DNSSummary{}, err
	}

	s := DNSSummary{
		ID:       m.Id,
		Response: m.Response,
		Rcode:    m.Rcode,
		Answers:  len(m.Answer),
	}
	if len(m.Question) > 0 {
		s.Question = m.Question[0].String()
	}

	return s, nil
}

// DNSNewQuery packs a recursive query for name and qtype with a random id.
func DNSNewQuery(name string, qtype uint16) ([]byte, error) {
	var m = new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true
	return m.Pack()
}

// DNSMatch reports whether resp answers req. Messages that do not parse are
// treated as matching; the resolvers forward bytes and do not judge them.
func DNSMatch(req, resp []byte) bool {
	var q, r = new(dns.Msg), new(dns.Msg)
	if q.Unpack(req) != nil || r.Unpack(resp) != nil {
		return true
	}
	return q.Id == r.Id
}

// DNSSplitAnswer returns the address carried by an A or AAAA record.
func DNSSplitAnswer(rr dns.RR) string {
	switch rr := rr.(type) {
	case *dns.A:
		return rr.A.String()
	case *dns.AAAA:
		return rr.AAAA.String()
	default:
		return ""
	}
}

// DNSAnswers unpacks raw and returns the addresses in its answer section.
func DNSAnswers(raw []byte) ([]string, error) {
	var m = new(dns.Msg)
	if err := m.Unpack(raw); err != nil {
		return nil, err
	}

	var ips = make([]string, 0, len(m.Answer))
	for _, rr := range m.Answer {
		if ip := DNSSplitAnswer(rr); len(ip) > 0 {
			ips = append(ips, ip)
		}
	}
	return ips, nil
}
