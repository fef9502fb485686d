package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/miekg/dns"
	"github.com/spf13/cobra"

	"github.com/treemana/dohtun/config"
	"github.com/treemana/dohtun/log"
	"github.com/treemana/dohtun/resolver"
	"github.com/treemana/dohtun/tls"
	"github.com/treemana/dohtun/util"
)

var (
	checkName    string
	checkVerbose bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe the configured DNS servers without opening the interface",
	Long: `Report TCP reachability of the primary and secondary servers, the TLS
handshake time to the DoH endpoint through each of them, and resolve one
name with the configured transport.

Examples:
  dohtun check
  dohtun check -c /etc/dohtun.json --name example.org`,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := loadOption()
		if err != nil {
			return err
		}
		if checkVerbose {
			log.InitDevelop()
			defer log.Sync()
		}
		return check(cmd.Context(), cmd.OutOrStdout(), o, checkName)
	},
}

func init() {
	checkCmd.Flags().StringVarP(&checkName, "name", "n", "example.com", "name to resolve")
	checkCmd.Flags().BoolVarP(&checkVerbose, "verbose", "v", false, "log resolver activity to stderr")
}

func check(ctx context.Context, w io.Writer, o *config.Option, name string) error {
	for _, host := range []string{o.DNSPrimary, o.DNSSecondary} {
		if ms := util.Ping(host); ms == math.MaxUint32 {
			fmt.Fprintf(w, "ping %-16s unreachable\n", host)
		} else {
			fmt.Fprintf(w, "ping %-16s %dms\n", host, ms)
		}
	}

	if o.Mode != string(resolver.PlainUDP) {
		latencies, err := tls.Probe(ctx, o.DoHEndpoint, []string{o.DNSPrimary, o.DNSSecondary}, tls.Options{})
		if err != nil {
			return err
		}
		for _, l := range latencies {
			if l.Err != nil {
				fmt.Fprintf(w, "tls  %-16s %v\n", l.Target, l.Err)
			} else {
				fmt.Fprintf(w, "tls  %-16s %s\n", l.Target, l.Elapse.Round(time.Millisecond))
			}
		}
		if best := tls.Fastest(latencies); best != nil {
			fmt.Fprintf(w, "fastest %s\n", best.Target)
		}
	}

	// unprivileged, so no socket mark
	rc := o.ResolverConfig()
	rc.Protect = nil

	r, err := resolver.New(rc)
	if err != nil {
		return err
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	query, err := util.DNSNewQuery(name, dns.TypeA)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := r.Resolve(ctx, query)
	if err != nil {
		return err
	}

	answers, err := util.DNSAnswers(resp)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s %s %v\n", o.Mode, name, time.Since(start).Round(time.Millisecond), answers)

	return nil
}
