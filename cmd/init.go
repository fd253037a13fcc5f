package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/foliocache/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize foliocache configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure foliocache for your site and writes the config file (.foliocache.yml unless --config says otherwise).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
