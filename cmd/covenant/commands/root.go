package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "covenant",
		Short: "Covenant - governance and authorization engine",
		Long: `Covenant governs an entity through roles, permissions and policies.

Proposals carry action batches that only execute once token-weighted votes or
role signatures satisfy every policy they claim.

Features:
  - Role, permission and policy registry changed only by self-calls
  - Token-weighted voting with locked deposits
  - One, all and quorum signature policies
  - Trusted host attestations over action hashes
  - Rego guard rules at propose and execute time`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (.yaml, .toml, .json or .cue)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newBootstrapCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newRolesCommand())
	rootCmd.AddCommand(newCheckPermissionCommand())
	rootCmd.AddCommand(newValidateConfigCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
