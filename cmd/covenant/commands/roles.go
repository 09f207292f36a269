package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/covenantdao/covenant/pkg/engine"
	"github.com/covenantdao/covenant/pkg/telemetry"
)

type roleView struct {
	Name     string           `json:"name"`
	Members  []engine.Address `json:"members"`
	Policies []engine.Policy  `json:"policies,omitempty"`
}

func newRolesCommand() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "roles [name]",
		Short: "List roles with their members and policies",
		Long: `List every role of the entity with its members and the policies bound to it.
With a role name only that role is shown. With --user the roles held by an
address are listed instead.`,
		Example: `  # All roles
  covenant roles

  # One role
  covenant roles council

  # Roles held by an address
  covenant roles --user erd1alice`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			n, err := openNode(ctx)
			if err != nil {
				return err
			}
			defer n.Close(context.Background())

			if user != "" {
				var names []string
				err := n.instrument(ctx, "roles", func(ctx context.Context, logger *telemetry.Logger) error {
					logger.WithCaller(user).Debug("Listing user roles")
					var err error
					names, err = n.engine.UserRoles(ctx, engine.Address(user))
					return err
				})
				if err != nil {
					return describeError(err)
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), names)
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			var views []roleView
			err = n.instrument(ctx, "roles", func(ctx context.Context, logger *telemetry.Logger) error {
				roles, err := n.engine.Roles(ctx)
				if err != nil {
					return err
				}
				policies, err := n.engine.Policies(ctx)
				if err != nil {
					return err
				}

				for _, role := range roles {
					if len(args) > 0 && role.Name != args[0] {
						continue
					}
					members, err := n.engine.RoleMembers(ctx, role.Name)
					if err != nil {
						return err
					}
					view := roleView{Name: role.Name, Members: members}
					for _, p := range policies {
						if p.Role == role.Name {
							view.Policies = append(view.Policies, p)
						}
					}
					views = append(views, view)
				}
				if len(args) > 0 && len(views) == 0 {
					return engine.ErrRoleNotFound.WithDetail("role", args[0])
				}
				return nil
			})
			if err != nil {
				return describeError(err)
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), views)
			}
			out := cmd.OutOrStdout()
			for _, v := range views {
				fmt.Fprintf(out, "%s (%d members)\n", v.Name, len(v.Members))
				for _, m := range v.Members {
					fmt.Fprintf(out, "  - %s\n", m)
				}
				for _, p := range v.Policies {
					line := fmt.Sprintf("  policy %s: %s", p.Permission, p.Method)
					if p.Quorum != nil && p.Method.RequiresQuorum() {
						line += fmt.Sprintf(" quorum=%s", p.Quorum)
					}
					if p.VotingPeriodMinutes > 0 {
						line += fmt.Sprintf(" period=%dm", p.VotingPeriodMinutes)
					}
					fmt.Fprintln(out, line)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "list the roles held by this address")
	return cmd
}
