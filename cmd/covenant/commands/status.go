package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/covenantdao/covenant/pkg/engine"
	"github.com/covenantdao/covenant/pkg/telemetry"
)

type statusView struct {
	Proposal *engine.Proposal      `json:"proposal"`
	Status   engine.ProposalStatus `json:"status"`
	Polls    map[uint8]string      `json:"polls,omitempty"`
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <proposal-id>",
		Short: "Show the resolved status of a proposal",
		Long: `Resolve a proposal's status at the current time and print its vote totals,
voting window and signature poll results.`,
		Example: `  # Show proposal 3
  covenant status 3

  # Machine readable
  covenant status 3 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid proposal id %q: %w", args[0], err)
			}

			ctx := cmd.Context()
			n, err := openNode(ctx)
			if err != nil {
				return err
			}
			defer n.Close(context.Background())

			var view statusView
			err = n.instrument(ctx, "status", func(ctx context.Context, logger *telemetry.Logger) error {
				logger.WithProposalID(id).Debug("Resolving proposal status")

				var err error
				if view.Proposal, err = n.engine.Proposal(ctx, id); err != nil {
					return err
				}
				if view.Status, err = n.engine.Status(ctx, id); err != nil {
					return err
				}
				polls, err := n.engine.PollResults(ctx, id)
				if err != nil {
					return err
				}
				if len(polls) > 0 {
					view.Polls = make(map[uint8]string, len(polls))
					for option, weight := range polls {
						view.Polls[option] = weight.String()
					}
				}
				return nil
			})
			if err != nil {
				return describeError(err)
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), view)
			}

			p := view.Proposal
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Proposal %d: %s\n", p.ID, view.Status)
			fmt.Fprintf(out, "  proposer:      %s\n", p.Proposer)
			fmt.Fprintf(out, "  window:        %s - %s\n", p.StartsAt.Format(time.RFC3339), p.EndsAt.Format(time.RFC3339))
			fmt.Fprintf(out, "  votes for:     %s\n", p.VotesFor)
			fmt.Fprintf(out, "  votes against: %s\n", p.VotesAgainst)
			if len(p.ActionsHash) > 0 {
				fmt.Fprintf(out, "  actions hash:  %s\n", hex.EncodeToString(p.ActionsHash))
			}
			for _, perm := range p.Permissions {
				fmt.Fprintf(out, "  permission:    %s\n", perm)
			}
			options := make([]int, 0, len(view.Polls))
			for option := range view.Polls {
				options = append(options, int(option))
			}
			sort.Ints(options)
			for _, option := range options {
				fmt.Fprintf(out, "  poll %d:        %s\n", option, view.Polls[uint8(option)])
			}
			return nil
		},
	}
	return cmd
}
