package resolver

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/treemana/dohtun/protect"
)

const (
	dnsMessageContentType = "application/dns-message"
	dohQueryParam         = "dns"
)

// DoH resolves over DNS-over-HTTPS (RFC 8484), by POST of the wire message
// or by GET with the message base64url encoded in the dns parameter.
type DoH struct {
	method   string
	endpoint *url.URL
	timeout  time.Duration
	client   *http.Client
}

// NewDoH builds a DoH resolver for t, which must be DohPost or DohGet.
// Connections go to the primary server on port 443 whatever the endpoint
// host resolves to; TLS still verifies the endpoint name.
func NewDoH(config Config, t Transport) (*DoH, error) {
	config = config.WithDefaults()

	var method string
	switch t {
	case DohPost:
		method = http.MethodPost
	case DohGet:
		method = http.MethodGet
	default:
		return nil, fmt.Errorf("transport %q is not doh", t)
	}

	u, err := parseEndpoint(config.Endpoint)
	if err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	if config.TLS != nil {
		tlsConfig = config.TLS.Clone()
	} else {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	dialer := protect.Dialer(config.Protect, config.Timeout)
	target := withPort(config.Primary, portHTTPS)
	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !strings.HasPrefix(network, "tcp") {
			return nil, fmt.Errorf("protocol not supported: %v", network)
		}
		return dialer.DialContext(ctx, network, target)
	}

	return &DoH{
		method:   method,
		endpoint: u,
		timeout:  config.Timeout,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           dialContext,
				TLSClientConfig:       tlsConfig,
				ForceAttemptHTTP2:     true,
				TLSHandshakeTimeout:   config.Timeout,
				ResponseHeaderTimeout: config.Timeout,
				IdleConnTimeout:       30 * time.Second,
				MaxIdleConnsPerHost:   4,
				DisableCompression:    true,
			},
		},
	}, nil
}

func (d *DoH) String() string {
	if d.method == http.MethodGet {
		return string(DohGet) + "://" + d.endpoint.Host
	}
	return string(DohPost) + "://" + d.endpoint.Host
}

func (d *DoH) Resolve(ctx context.Context, query []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := d.newRequest(ctx, query)
	if err != nil {
		return nil, failure(d.String(), query, err)
	}

	start := time.Now()
	var resp *http.Response
	if resp, err = d.client.Do(req); err != nil {
		return nil, failure(d.String(), query, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, failure(d.String(), query, fmt.Errorf("got HTTP status %v", resp.StatusCode))
	}

	var body []byte
	if body, err = io.ReadAll(resp.Body); err != nil {
		return nil, failure(d.String(), query, fmt.Errorf("failed to read response: %w", err))
	}

	return checkResponse(d.String(), query, body, time.Since(start))
}

// Close drops idle connections kept for reuse.
func (d *DoH) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

func (d *DoH) newRequest(ctx context.Context, query []byte) (*http.Request, error) {
	if d.method == http.MethodGet {
		u := *d.endpoint
		q := u.Query()
		q.Set(dohQueryParam, EncodeQuery(query))
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", dnsMessageContentType)
		return req, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint.String(), bytes.NewReader(query))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", dnsMessageContentType)
	req.Header.Set("Accept", dnsMessageContentType)
	return req, nil
}

// EncodeQuery is the unpadded base64url form used by the GET transport.
func EncodeQuery(query []byte) string {
	return base64.RawURLEncoding.EncodeToString(query)
}
