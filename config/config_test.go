package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treemana/dohtun/resolver"
	"github.com/treemana/dohtun/tun"
)

func TestParseDefaults(t *testing.T) {
	o, err := Parse([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, string(resolver.DohPost), o.Mode)
	assert.Equal(t, resolver.DefaultPrimary, o.DNSPrimary)
	assert.Equal(t, resolver.DefaultSecondary, o.DNSSecondary)
	assert.Equal(t, resolver.DefaultEndpoint, o.DoHEndpoint)
	assert.Equal(t, 5000, o.TimeoutMS)
	assert.Equal(t, 1024, o.UDPBuffer)
	assert.True(t, o.Split())
	assert.True(t, o.Log.STDOUT)
	assert.Equal(t, tun.DefaultName, o.Tun.Name)
	assert.Equal(t, tun.DefaultAddress, o.Tun.Address)
	assert.Equal(t, tun.DefaultMTU, o.Tun.MTU)
	assert.NotZero(t, o.FwMark)
	assert.Empty(t, o.Metrics.Path)
}

func TestParse(t *testing.T) {
	raw := `{
		"log": {"file": "/tmp/dohtun.log", "verbose": true, "json": true},
		"mode": "doh",
		"dns_primary": "9.9.9.9",
		"dns_secondary": "149.112.112.112",
		"doh_endpoint": "https://dns.quad9.net/dns-query",
		"timeout_ms": 2500,
		"udp_buffer": 4096,
		"udp_checksum": true,
		"fallback": ["plain-udp"],
		"block_ads": true,
		"split_tunnel": false,
		"workers": 8,
		"fwmark": 100,
		"tun": {"name": "dns0", "address": "10.8.0.2", "mtu": 1400},
		"metrics": {"listen": ":9090"}
	}`

	o, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "doh-post", o.Mode)
	assert.False(t, o.Split())
	assert.False(t, o.Log.STDOUT)
	assert.Equal(t, "/metrics", o.Metrics.Path)
	assert.Equal(t, 2500*time.Millisecond, o.Timeout())

	lc := o.LogConfig()
	assert.Equal(t, "/tmp/dohtun.log", lc.File)
	assert.Equal(t, int8(-1), lc.Level)
	assert.True(t, lc.JsonFormat)

	rc := o.ResolverConfig()
	assert.Equal(t, resolver.DohPost, rc.Transport)
	assert.Equal(t, "9.9.9.9", rc.Primary)
	assert.Equal(t, "https://dns.quad9.net/dns-query", rc.Endpoint)
	assert.Equal(t, 4096, rc.UDPBufferSize)
	assert.Equal(t, []resolver.Transport{resolver.PlainUDP}, rc.Fallback)

	to := o.TunOptions()
	assert.Equal(t, "dns0", to.Name)
	assert.Equal(t, 1400, to.MTU)
	assert.Equal(t, []string{"9.9.9.9", "149.112.112.112"}, to.DNSServers)
	assert.False(t, to.SplitTunnel)
	assert.Equal(t, uint32(100), to.Mark)

	ec := o.EngineConfig()
	assert.Equal(t, "9.9.9.9:53", ec.Upstream)
	assert.Equal(t, 8, ec.Workers)
	assert.True(t, ec.UDPChecksum)
	assert.False(t, ec.SplitTunnel)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		fields []string
	}{
		{"mode", `{"mode": "tcp"}`, []string{"mode"}},
		{"primary", `{"dns_primary": "one.one.one.one"}`, []string{"dns_primary"}},
		{"endpoint", `{"doh_endpoint": "not a url"}`, []string{"doh_endpoint"}},
		{"buffer", `{"udp_buffer": 512}`, []string{"udp_buffer"}},
		{"fallback", `{"fallback": ["doh-post", "dot"]}`, []string{"fallback[1]"}},
		{"tun", `{"tun": {"name": "a-very-long-interface", "mtu": 100}}`, []string{"tun.name", "tun.mtu"}},
		{"metrics", `{"metrics": {"listen": ":9090", "path": "metrics"}}`, []string{"metrics.path"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)

			var ve ValidationErrors
			require.True(t, errors.As(err, &ve), err.Error())

			var fields []string
			for _, e := range ve {
				fields = append(fields, e.Field)
			}
			assert.ElementsMatch(t, tt.fields, fields)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte(`{"mode":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse option")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"mode": "plain-udp"}`), 0o600))

	o, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, resolver.PlainUDP, o.ResolverConfig().Transport)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidationErrorsMessage(t *testing.T) {
	ve := ValidationErrors{{Field: "tun.mtu", Message: "must be >= 576"}}
	assert.Equal(t, "validation failed with 1 error(s):\n  1. tun.mtu: must be >= 576", ve.Error())
	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
}
