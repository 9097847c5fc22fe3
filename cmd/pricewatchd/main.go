package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modoterra/pricewatch/internal/buildinfo"
)

var (
	configPath string
	socketFlag string
	httpFlag   string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "pricewatchd",
	Short:        "Supervise the price tracker's scraping and import workers",
	Long:         "pricewatchd runs the main scraping worker with a cooldown between runs, starts import jobs on request and serves their shared log over a Unix socket and HTTP.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), options{
			configPath: configPath,
			socket:     socketFlag,
			http:       httpFlag,
			httpSet:    cmd.Flags().Changed("http"),
			verbose:    verbose,
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pricewatchd %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to pricewatch.yaml (default: search paths)")
	rootCmd.Flags().StringVar(&socketFlag, "socket", "", "override listen.socket")
	rootCmd.Flags().StringVar(&httpFlag, "http", "", "override listen.http (empty disables the HTTP API)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(versionCmd)
}
