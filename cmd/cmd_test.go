package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treemana/dohtun/config"
	"github.com/treemana/dohtun/tun"
)

// idleDevice blocks reads until closed.
type idleDevice struct {
	once   sync.Once
	closed chan struct{}
}

func newIdleDevice() *idleDevice { return &idleDevice{closed: make(chan struct{})} }

func (d *idleDevice) Read(p []byte) (int, error) {
	<-d.closed
	return 0, os.ErrClosed
}

func (d *idleDevice) Write(p []byte) (int, error) { return len(p), nil }

func (d *idleDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

func (d *idleDevice) MTU() int { return 1500 }

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	assert.True(t, strings.HasPrefix(out.String(), "dohtun "+Version+" "))
}

func TestPrintIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"ip":"203.0.113.7","city":"Sydney","region":"NSW","country":"AU","org":"AS13335"}`)
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, printIP(context.Background(), &out, srv.URL))
	assert.Equal(t, "203.0.113.7 Sydney, NSW, AU (AS13335)\n", out.String())

	assert.Error(t, printIP(context.Background(), &out, srv.URL+"/missing"))
}

func TestLoadOption(t *testing.T) {
	defer func(old string) { configFile = old }(configFile)

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	configFile = config.DefaultFile
	o, err := loadOption()
	require.NoError(t, err)
	assert.Equal(t, config.Default(), o)

	configFile = filepath.Join(dir, "custom.json")
	_, err = loadOption()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(configFile, []byte(`{"mode": "plain-udp"}`), 0o600))
	o, err = loadOption()
	require.NoError(t, err)
	assert.Equal(t, "plain-udp", o.Mode)
}

func TestServe(t *testing.T) {
	o := config.Default()
	dev := newIdleDevice()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- serve(ctx, o, func() (tun.Device, error) { return dev, nil })
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}

	select {
	case <-dev.closed:
	default:
		t.Fatal("device left open")
	}
}

func TestServeOpenError(t *testing.T) {
	boom := errors.New("no tun")
	err := serve(context.Background(), config.Default(), func() (tun.Device, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}
