package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/treemana/dohtun/config"
	"github.com/treemana/dohtun/log"
	"github.com/treemana/dohtun/metrics"
	"github.com/treemana/dohtun/resolver"
	"github.com/treemana/dohtun/tun"
	"github.com/treemana/dohtun/tunnel"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the TUN interface and start intercepting DNS",
	Long: `Open the TUN interface described by the option file, install its routes
and answer every intercepted DNS query until SIGINT or SIGTERM.

Needs CAP_NET_ADMIN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := loadOption()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts := o.TunOptions()
		return serve(ctx, o, func() (tun.Device, error) { return tun.Open(opts) })
	},
}

// serve runs one engine until ctx ends or the interface goes away.
func serve(ctx context.Context, o *config.Option, open tunnel.OpenFunc) error {
	if err := log.Init(o.LogConfig()); err != nil {
		fmt.Fprintln(os.Stderr, "log init error", err)
		return err
	}
	defer log.Sync()

	if len(o.Metrics.Listen) > 0 {
		ms := metrics.NewServer(o.Metrics.Listen, o.Metrics.Path)
		if err := ms.Start(ctx); err != nil {
			log.Sugar.Error(err)
			return err
		}
		defer func() {
			_ = ms.Stop(context.Background())
		}()
	}

	r, err := resolver.New(o.ResolverConfig())
	if err != nil {
		log.Sugar.Error(err)
		return err
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	engine := tunnel.New(open, r, o.EngineConfig())
	if err = engine.Start(ctx); err != nil {
		log.Sugar.Errorf("engine start error=[%+v]", err)
		return err
	}
	log.Sugar.Infof("dohtun running mode=%s split=%t primary=%s tun=%s",
		o.Mode, o.Split(), o.DNSPrimary, o.Tun.Name)

	select {
	case <-ctx.Done():
		log.Sugar.Infof("shutting down: %v", context.Cause(ctx))
	case <-engine.Done():
		log.Sugar.Warn("engine stopped on its own")
	}

	err = engine.Stop()
	if err != nil {
		log.Sugar.Errorf("engine stop error=[%+v]", err)
	}

	st := engine.Stats()
	log.Sugar.Infof("session stats packets=%d answered=%d dropped=%d connected=%s",
		st.Packets, st.Answered, st.Dropped, st.Connected.Round(time.Second))

	return err
}
