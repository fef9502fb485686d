package util

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answer(t *testing.T, query []byte, ip string) []byte {
	t.Helper()
	var req = new(dns.Msg)
	require.NoError(t, req.Unpack(query))

	var resp = new(dns.Msg)
	resp.SetReply(req)
	resp.Answer = append(resp.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
		A:   net.ParseIP(ip),
	})
	raw, err := resp.Pack()
	require.NoError(t, err)
	return raw
}

func TestDNSSummarize(t *testing.T) {
	query, err := DNSNewQuery("example.com", dns.TypeA)
	require.NoError(t, err)

	s, err := DNSSummarize(query)
	require.NoError(t, err)
	assert.False(t, s.Response)
	assert.Contains(t, s.Question, "example.com.")
	assert.Contains(t, s.String(), "query=[")

	s, err = DNSSummarize(answer(t, query, "93.184.216.34"))
	require.NoError(t, err)
	assert.True(t, s.Response)
	assert.Equal(t, 1, s.Answers)
	assert.Contains(t, s.String(), "NOERROR answer 1")

	_, err = DNSSummarize([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestDNSMatch(t *testing.T) {
	query, err := DNSNewQuery("example.com", dns.TypeA)
	require.NoError(t, err)
	resp := answer(t, query, "93.184.216.34")

	other := append([]byte(nil), resp...)
	other[0] ^= 0xff

	tests := []struct {
		name string
		req  []byte
		resp []byte
		want bool
	}{
		{name: "same id", req: query, resp: resp, want: true},
		{name: "other id", req: query, resp: other, want: false},
		{name: "garbage response", req: query, resp: []byte{0xde, 0xad}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DNSMatch(tt.req, tt.resp))
		})
	}
}

func TestDNSAnswers(t *testing.T) {
	query, err := DNSNewQuery("example.com", dns.TypeA)
	require.NoError(t, err)

	ips, err := DNSAnswers(answer(t, query, "93.184.216.34"))
	require.NoError(t, err)
	assert.Equal(t, []string{"93.184.216.34"}, ips)
}
