package util

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"
)

const (
	IPInfoURL = "https://ipinfo.io/json"

	ipInfoTimeout = 8 * time.Second
	ipInfoAgent   = "dohtun/1.0"
)

// IPInfo is the subset of the ipinfo.io document dohtun prints.
type IPInfo struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Org     string `json:"org"`
}

var (
	pingNetwork = "tcp"
	pingPorts   = []string{"53", "443"}
	pingTimeout = 3 * time.Second
)

// GetPublicIP asks url (IPInfoURL when empty) which address the request
// came from.
func GetPublicIP(ctx context.Context, url string) (*IPInfo, error) {
	if len(url) == 0 {
		url = IPInfoURL
	}

	ctx, cancel := context.WithTimeout(ctx, ipInfoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ipInfoAgent)
	req.Header.Set("Accept", "application/json")

	var res *http.Response
	if res, err = http.DefaultClient.Do(req); err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip info status %d", res.StatusCode)
	}

	var raw []byte
	if raw, err = io.ReadAll(res.Body); err != nil {
		return nil, err
	}

	var info IPInfo
	if err = json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

// Ping return the minimum tcp connect latency in millisecond over ports,
// 53 and 443 by default.
// host : (net.IP).String()
// when dial error or timeout, return math.MaxUint32
func Ping(host string, ports ...string) uint32 {

	if len(host) == 0 {
		return math.MaxUint32
	}

	if len(ports) == 0 {
		ports = pingPorts
	}

	var c = make(chan uint32, len(ports))
	for _, port := range ports {
		addr := net.JoinHostPort(host, port)
		go ping(addr, c)
	}

	var min uint32 = math.MaxUint32
	for range ports {
		latency := <-c
		if latency < min {
			min = latency
		}
	}

	return min
}

func ping(addr string, c chan<- uint32) {
	var dialer = net.Dialer{Timeout: pingTimeout}

	start := time.Now()
	conn, err := dialer.Dial(pingNetwork, addr)
	if err != nil {
		c <- math.MaxUint32
		return
	}
	elapsed := time.Since(start)

	_ = conn.Close()

	c <- uint32(elapsed.Milliseconds())
}
