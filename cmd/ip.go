package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/treemana/dohtun/util"
)

var ipURL string

var ipCmd = &cobra.Command{
	Use:   "ip",
	Short: "Print the public address traffic leaves from",
	Long: `Print the public address reported by an ipinfo.io compatible service.
Run it with the interface up in full tunnel mode to see where relayed
traffic exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printIP(cmd.Context(), cmd.OutOrStdout(), ipURL)
	},
}

func init() {
	ipCmd.Flags().StringVar(&ipURL, "url", util.IPInfoURL, "lookup service")
}

func printIP(ctx context.Context, w io.Writer, url string) error {
	info, err := util.GetPublicIP(ctx, url)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s %s, %s, %s (%s)\n", info.IP, info.City, info.Region, info.Country, info.Org)
	return nil
}
