package tls

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func server(t *testing.T) (*httptest.Server, Options) {
	t.Helper()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(ts.Close)

	transport, ok := ts.Client().Transport.(*http.Transport)
	require.True(t, ok)
	return ts, Options{Config: transport.TLSClientConfig}
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestNewConn(t *testing.T) {
	ctx := context.TODO()
	ts, opts := server(t)
	u, _ := url.Parse(ts.URL)

	tests := []struct {
		name    string
		u       url.URL
		target  string
		wantNil bool
		wantErr bool
	}{
		{
			name: "direct",
			u:    *u,
		},
		{
			name:   "pinned",
			u:      url.URL{Scheme: "https", Host: "127.0.0.1:1"},
			target: ts.Listener.Addr().String(),
		},
		{
			name:    "refused",
			u:       *u,
			target:  closedAddr(t),
			wantNil: true,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := opts
			o.Target = tt.target
			got, elapse, err := NewConn(ctx, tt.u, o)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewConn() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if (got == nil) != tt.wantNil {
				t.Errorf("NewConn() got nil, wantNil %v", tt.wantNil)
				return
			}
			if got == nil {
				assert.Equal(t, time.Duration(math.MaxInt64), elapse)
				return
			}

			t.Logf("NewConn() of %s elapse %s", tt.u.Host, elapse)
			if err = got.Close(); err != nil {
				t.Errorf("NewConn() close error = %v", err)
				return
			}
		})
	}
}

func TestProbe(t *testing.T) {
	ts, opts := server(t)
	good := ts.Listener.Addr().String()
	bad := closedAddr(t)

	got, err := Probe(context.Background(), ts.URL, []string{bad, good, good}, opts)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, bad, got[0].Target)
	assert.Error(t, got[0].Err)
	assert.Equal(t, good, got[1].Target)
	assert.NoError(t, got[1].Err)

	fast := Fastest(got)
	require.NotNil(t, fast)
	assert.Equal(t, good, fast.Target)

	_, err = Probe(context.Background(), "://bad", nil, opts)
	assert.Error(t, err)
}

func TestFastest(t *testing.T) {
	assert.Nil(t, Fastest(nil))
	assert.Nil(t, Fastest([]Latency{{Target: "a", Err: errors.New("x")}}))

	got := Fastest([]Latency{{Target: "a", Elapse: 30}, {Target: "b", Elapse: 10}, {Target: "c", Elapse: 20}})
	require.NotNil(t, got)
	assert.Equal(t, "b", got.Target)
}
