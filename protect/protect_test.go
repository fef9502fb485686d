package protect

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlNil(t *testing.T) {
	assert.Nil(t, Control(nil))
	assert.Nil(t, Dialer(nil, time.Second).Control)
}

func TestDialContextProtectsOnce(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = pc.Close() }()

	var calls atomic.Int32
	p := func(fd uintptr) {
		assert.NotZero(t, fd)
		calls.Add(1)
	}

	conn, err := DialContext(context.Background(), p, "udp", pc.LocalAddr().String(), time.Second)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
