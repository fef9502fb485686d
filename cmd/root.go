// Package cmd implements the dohtun command line.
package cmd

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/treemana/dohtun/config"
)

// Version is set at build time with -ldflags "-X".
var Version = "0.1.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "dohtun",
	Short: "dohtun - DNS over HTTPS through a TUN interface",
	Long: `dohtun captures IPv4 DNS queries on a TUN interface, resolves them over
DNS-over-HTTPS (or plain UDP) and writes the answers back as packets.

In split mode only the configured DNS servers are routed into the
interface. In full mode every IPv4 packet is, and non-DNS traffic is
relayed to the primary server.`,
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the root command. It is called by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultFile,
		"option file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(ipCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadOption reads the option file, falling back to defaults when the
// default file is absent.
func loadOption() (*config.Option, error) {
	o, err := config.Load(configFile)
	if err == nil {
		return o, nil
	}
	if configFile == config.DefaultFile && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}
