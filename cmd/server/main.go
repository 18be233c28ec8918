package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dipr-ads/be-release-orders/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:           "release-orders",
		Short:         "DIPR advertisement and release-order workflow service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", "", "directory containing config.yaml (default ./config)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(newServeCmd(load), newMigrateCmd(load))
	return root
}
