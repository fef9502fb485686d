package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer(t *testing.T) {
	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	defer func() { assert.NoError(t, s.Stop(context.Background())) }()

	PacketsTotal.WithLabelValues("dns").Inc()

	res, err := http.Get("http://" + s.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `dohtun_packets_total{verdict="dns"}`)
}

func TestStopBeforeStart(t *testing.T) {
	s := NewServer("127.0.0.1:0", "/m")
	assert.Nil(t, s.Addr())
	assert.NoError(t, s.Stop(context.Background()))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(DropsTotal.WithLabelValues("short"))
	DropsTotal.WithLabelValues("short").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(DropsTotal.WithLabelValues("short")))
}
