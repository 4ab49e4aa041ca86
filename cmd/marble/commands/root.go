package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath   string
	manifestPath string
	jsonOutput   bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "marble",
		Short: "Marble - Declarative deployment engine for the data platform",
		Long: `Marble deploys declarative resource definitions to the data platform.

It compares your manifests against the platform's observed state, computes
the minimal set of create, update, and delete operations, orders them by
their dependencies, and ships them in batches with automatic retry and
batch splitting on partial failures.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "marble.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifests", "m", "manifests", "manifest file or directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newDeployCommand(version))
	rootCmd.AddCommand(newDestroyCommand(version))
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
