package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/foliocache/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "foliocache",
	Short: "Cache-first image proxy for a static portfolio site",
	Long: `foliocache sits in front of a static portfolio site and serves its
images cache-first from a persistent store. Visiting the home page, or
running the prefetch command, warms the cache with every image listed in
the site's work manifest.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

