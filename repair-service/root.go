package main

import (
	"github.com/spf13/cobra"

	"fadedreams/repairshop/repair-service/config"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "repair-service",
		Short:         "Car repair booking backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexesCmd())
	cmd.AddCommand(newTokenCmd())
	return cmd
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.DefaultEnvFiles...)
}
