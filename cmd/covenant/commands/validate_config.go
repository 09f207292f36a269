package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/covenantdao/covenant/pkg/config"
)

func newValidateConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-config [path]",
		Short: "Validate a node configuration file",
		Long: `Validate a node configuration file after environment overrides.

This command checks:
  - File syntax (.yaml, .toml, .json or .cue)
  - Unknown keys
  - Field rules (amounts, hex arguments, durations, policy methods)
  - The built-in CUE #Config schema
  - Genesis conversion into roles, permissions and policies`,
		Example: `  # Validate the config given with --config
  covenant validate-config --config covenant.yaml

  # Validate a specific file
  covenant validate-config ./node.cue`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) > 0 {
				path = args[0]
			}

			cfg, err := config.Load(path)
			if err == nil {
				_, err = cfg.Entity.Engine()
			}
			if err == nil {
				_, err = cfg.Genesis.Build()
			}

			out := cmd.OutOrStdout()
			if err != nil {
				var verrs config.ValidationErrors
				if jsonOutput && errors.As(err, &verrs) {
					if perr := printJSON(out, verrs); perr != nil {
						return perr
					}
				} else if errors.As(err, &verrs) {
					for _, e := range verrs {
						fmt.Fprintf(out, "✗ %s\n", e.Error())
					}
				}
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if jsonOutput {
				return printJSON(out, cfg)
			}
			fmt.Fprintf(out, "✓ Configuration valid (entity %s, store %s)\n", cfg.Entity.Address, cfg.Store.Driver)
			return nil
		},
	}
	return cmd
}
