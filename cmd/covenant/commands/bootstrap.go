package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/covenantdao/covenant/pkg/telemetry"
)

func newBootstrapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Store the entity settings and apply the genesis registry",
		Long: `Bootstrap writes the configured quorum, minimum weights and voting period and
applies the genesis section: leaders, roles with their members, permissions and
policies. An entity can be bootstrapped only once.`,
		Example: `  # Bootstrap a node from its config file
  covenant bootstrap --config covenant.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			n, err := openNode(ctx)
			if err != nil {
				return err
			}
			defer n.Close(context.Background())

			genesis, err := n.cfg.Genesis.Build()
			if err != nil {
				return fmt.Errorf("invalid genesis: %w", err)
			}

			err = n.instrument(ctx, "bootstrap", func(ctx context.Context, logger *telemetry.Logger) error {
				logger.WithFields(map[string]interface{}{
					"leaders":     len(genesis.Leaders),
					"roles":       len(genesis.Roles),
					"permissions": len(genesis.Permissions),
					"policies":    len(genesis.Policies),
				}).Info("Bootstrapping entity")
				return n.engine.Bootstrap(ctx, genesis)
			})
			if err != nil {
				return describeError(err)
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), genesis)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Bootstrapped %s\n", n.engine.EntityAddress())
			fmt.Fprintf(out, "  leaders:     %d\n", len(genesis.Leaders))
			fmt.Fprintf(out, "  roles:       %d\n", len(genesis.Roles))
			fmt.Fprintf(out, "  permissions: %d\n", len(genesis.Permissions))
			fmt.Fprintf(out, "  policies:    %d\n", len(genesis.Policies))
			return nil
		},
	}
	return cmd
}
