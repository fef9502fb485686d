// Package config loads the dohtun option file.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/treemana/dohtun/log"
	"github.com/treemana/dohtun/protect"
	"github.com/treemana/dohtun/resolver"
	"github.com/treemana/dohtun/tun"
	"github.com/treemana/dohtun/tunnel"
)

const (
	DefaultFile = "dohtun.json"

	// modeDoH is the transport name older option files use for DoH POST.
	modeDoH = "doh"

	defaultMark = 0x2d0
)

// Option represents the option file. Zero values are replaced by defaults
// in Load, so booleans that default to true are pointers.
type Option struct {
	Log struct {
		File    string `json:"file"`
		STDOUT  bool   `json:"stdout"`
		Verbose bool   `json:"verbose"`
		JSON    bool   `json:"json"`
	} `json:"log"`

	Mode         string   `json:"mode" validate:"oneof=doh-post doh-get plain-udp"`
	DNSPrimary   string   `json:"dns_primary" validate:"required,ipv4"`
	DNSSecondary string   `json:"dns_secondary" validate:"required,ipv4"`
	DoHEndpoint  string   `json:"doh_endpoint" validate:"required,url"`
	TimeoutMS    int      `json:"timeout_ms" validate:"min=1,max=60000"`
	UDPBuffer    int      `json:"udp_buffer" validate:"min=1024,max=65535"`
	UDPChecksum  bool     `json:"udp_checksum"`
	Fallback     []string `json:"fallback" validate:"dive,oneof=doh-post doh-get plain-udp"`

	// BlockAds is accepted for compatibility and has no effect yet.
	BlockAds    bool  `json:"block_ads"`
	SplitTunnel *bool `json:"split_tunnel"`

	Workers int    `json:"workers" validate:"min=0,max=1024"`
	FwMark  uint32 `json:"fwmark"`

	Tun struct {
		Name    string `json:"name" validate:"max=15"`
		Address string `json:"address" validate:"ipv4"`
		MTU     int    `json:"mtu" validate:"min=576,max=65535"`
	} `json:"tun"`

	Metrics struct {
		Listen string `json:"listen" validate:"omitempty,hostname_port"`
		Path   string `json:"path" validate:"omitempty,startswith=/"`
	} `json:"metrics"`
}

// Load reads the option file at path, fills defaults and validates it.
func Load(path string) (*Option, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Option, error) {
	var option Option
	if err := json.Unmarshal(raw, &option); err != nil {
		return nil, fmt.Errorf("parse option: %w", err)
	}

	option.SetDefaults()

	if err := option.Validate(); err != nil {
		return nil, err
	}

	return &option, nil
}

// Default returns the option set used when no file is given.
func Default() *Option {
	var option Option
	option.SetDefaults()
	return &option
}

func (o *Option) SetDefaults() {
	if len(o.Log.File) == 0 {
		o.Log.STDOUT = true
	}
	if len(o.Mode) == 0 || o.Mode == modeDoH {
		o.Mode = string(resolver.DohPost)
	}
	if len(o.DNSPrimary) == 0 {
		o.DNSPrimary = resolver.DefaultPrimary
	}
	if len(o.DNSSecondary) == 0 {
		o.DNSSecondary = resolver.DefaultSecondary
	}
	if len(o.DoHEndpoint) == 0 {
		o.DoHEndpoint = resolver.DefaultEndpoint
	}
	if o.TimeoutMS == 0 {
		o.TimeoutMS = int(resolver.DefaultTimeout / time.Millisecond)
	}
	if o.UDPBuffer == 0 {
		o.UDPBuffer = resolver.MinUDPBufferSize
	}
	if o.SplitTunnel == nil {
		split := true
		o.SplitTunnel = &split
	}
	if o.FwMark == 0 {
		o.FwMark = defaultMark
	}
	if len(o.Tun.Name) == 0 {
		o.Tun.Name = tun.DefaultName
	}
	if len(o.Tun.Address) == 0 {
		o.Tun.Address = tun.DefaultAddress
	}
	if o.Tun.MTU == 0 {
		o.Tun.MTU = tun.DefaultMTU
	}
	if len(o.Metrics.Listen) > 0 && len(o.Metrics.Path) == 0 {
		o.Metrics.Path = "/metrics"
	}
}

func (o *Option) Split() bool { return o.SplitTunnel == nil || *o.SplitTunnel }

func (o *Option) Timeout() time.Duration {
	return time.Duration(o.TimeoutMS) * time.Millisecond
}

// Protector marks resolver and forwarder sockets with FwMark.
func (o *Option) Protector() protect.Protector {
	return protect.Mark(int(o.FwMark))
}

func (o *Option) LogConfig() log.Config {
	lc := log.Config{
		File:       o.Log.File,
		STDOUT:     o.Log.STDOUT,
		JsonFormat: o.Log.JSON,
		MaxAge:     2,
		MaxSize:    10,
		MaxBackups: 100,
	}

	if o.Log.Verbose {
		lc.Level = -1
	}

	return lc
}

func (o *Option) ResolverConfig() resolver.Config {
	fallback := make([]resolver.Transport, 0, len(o.Fallback))
	for _, f := range o.Fallback {
		fallback = append(fallback, resolver.Transport(f))
	}

	return resolver.Config{
		Transport:     resolver.Transport(o.Mode),
		Primary:       o.DNSPrimary,
		Secondary:     o.DNSSecondary,
		Endpoint:      o.DoHEndpoint,
		Timeout:       o.Timeout(),
		UDPBufferSize: o.UDPBuffer,
		Fallback:      fallback,
		Protect:       o.Protector(),
	}
}

func (o *Option) TunOptions() tun.Options {
	return tun.Options{
		Name:        o.Tun.Name,
		Address:     o.Tun.Address,
		MTU:         o.Tun.MTU,
		DNSServers:  []string{o.DNSPrimary, o.DNSSecondary},
		SplitTunnel: o.Split(),
		Mark:        o.FwMark,
	}
}

func (o *Option) EngineConfig() tunnel.Config {
	return tunnel.Config{
		SplitTunnel: o.Split(),
		Upstream:    net.JoinHostPort(o.DNSPrimary, "53"),
		Transport:   o.Mode,
		Timeout:     o.Timeout(),
		Workers:     o.Workers,
		UDPChecksum: o.UDPChecksum,
		Protect:     o.Protector(),
	}
}
