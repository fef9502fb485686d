package tun

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prefixes(t *testing.T, raw ...string) []netip.Prefix {
	t.Helper()
	out := make([]netip.Prefix, 0, len(raw))
	for _, r := range raw {
		out = append(out, netip.MustParsePrefix(r))
	}
	return out
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    []netip.Prefix
		wantErr error
	}{
		{
			name: "split",
			opts: Options{SplitTunnel: true, DNSServers: []string{"1.1.1.1", "1.0.0.1"}},
			want: prefixes(t, "1.1.1.1/32", "1.0.0.1/32", "8.8.8.8/32", "8.8.4.4/32"),
		},
		{
			name: "split dedup",
			opts: Options{SplitTunnel: true, DNSServers: []string{"8.8.8.8", "8.8.4.4"}},
			want: prefixes(t, "8.8.8.8/32", "8.8.4.4/32"),
		},
		{
			name: "full",
			opts: Options{SplitTunnel: false, DNSServers: []string{"1.1.1.1"}},
			want: prefixes(t, "0.0.0.0/0"),
		},
		{
			name:    "ipv6 server",
			opts:    Options{SplitTunnel: true, DNSServers: []string{"2606:4700::1111"}},
			wantErr: ErrNotIPv4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Routes(tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Routes(Options{SplitTunnel: true, DNSServers: []string{"dns.google"}})
	assert.Error(t, err)
}

func TestWithDefaults(t *testing.T) {
	o := Options{}.WithDefaults()
	assert.Equal(t, "dohtun0", o.Name)
	assert.Equal(t, "10.0.0.2", o.Address)
	assert.Equal(t, 1500, o.MTU)
	assert.Equal(t, DefaultTable, o.Table)
	assert.Equal(t, DefaultPriority, o.Priority)

	o = Options{Name: "tun9", MTU: 1280}.WithDefaults()
	assert.Equal(t, "tun9", o.Name)
	assert.Equal(t, 1280, o.MTU)
}
