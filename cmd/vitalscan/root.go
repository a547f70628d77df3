package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vitalscan",
		Short: "Website vitals scanning service",
		Long: `vitalscan audits websites for performance, accessibility, SEO and
security posture. The serve command runs the HTTP API together with the
background scan workers; the scan command runs a single audit locally and
prints the result.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScanCmd())
	return cmd
}
