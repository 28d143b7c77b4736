package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tamaroning/blockchain-sim/config"
	"github.com/tamaroning/blockchain-sim/logger"
)

var profileOut string

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Write an example network profile",
	Long: `Write a starter network profile JSON: three honest nodes and one
selfish miner. Edit the hashrates and strategies, then pass the file back
via --profile.`,
	RunE: runProfile,
}

func init() {
	profileCmd.Flags().StringVarP(&profileOut, "out", "o", "profile.json", "output path")
}

func runProfile(cmd *cobra.Command, args []string) error {
	if err := config.ExampleProfile().Save(profileOut); err != nil {
		return err
	}
	logger.Infof("Wrote example profile to %s", profileOut)
	return nil
}
