package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/covenantdao/covenant/pkg/engine"
	"github.com/covenantdao/covenant/pkg/telemetry"
)

type actionFlags struct {
	destination string
	endpoint    string
	value       string
	args        []string
	payments    []string
	gasLimit    uint64
}

// action builds the action described by the flags. Arguments are hex; payments are
// token:nonce:amount or token:amount.
func (f actionFlags) action() (engine.Action, error) {
	a := engine.Action{
		Destination: engine.Address(f.destination),
		Endpoint:    f.endpoint,
		GasLimit:    f.gasLimit,
	}

	if f.value != "" {
		v, ok := new(big.Int).SetString(f.value, 10)
		if !ok || v.Sign() < 0 {
			return engine.Action{}, fmt.Errorf("invalid value %q", f.value)
		}
		a.Value = v
	}

	for i, arg := range f.args {
		raw, err := hex.DecodeString(strings.TrimPrefix(arg, "0x"))
		if err != nil {
			return engine.Action{}, fmt.Errorf("invalid argument %d: %w", i, err)
		}
		a.Arguments = append(a.Arguments, raw)
	}

	for _, p := range f.payments {
		pay, err := parsePayment(p)
		if err != nil {
			return engine.Action{}, err
		}
		a.Payments = append(a.Payments, pay)
	}
	return a, nil
}

func parsePayment(s string) (engine.Payment, error) {
	parts := strings.Split(s, ":")
	var token, nonce, amount string
	switch len(parts) {
	case 2:
		token, amount = parts[0], parts[1]
	case 3:
		token, nonce, amount = parts[0], parts[1], parts[2]
	default:
		return engine.Payment{}, fmt.Errorf("invalid payment %q, want token:nonce:amount", s)
	}

	pay := engine.Payment{Token: engine.TokenID(token)}
	if token == "" {
		return engine.Payment{}, fmt.Errorf("invalid payment %q: empty token", s)
	}
	if nonce != "" {
		n, err := strconv.ParseUint(nonce, 10, 64)
		if err != nil {
			return engine.Payment{}, fmt.Errorf("invalid payment nonce %q: %w", nonce, err)
		}
		pay.Nonce = n
	}
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok || v.Sign() < 0 {
		return engine.Payment{}, fmt.Errorf("invalid payment amount %q", amount)
	}
	pay.Amount = v
	return pay, nil
}

func newCheckPermissionCommand() *cobra.Command {
	var flags actionFlags

	cmd := &cobra.Command{
		Use:   "check-permission <permission>",
		Short: "Check whether an action falls within a permission",
		Long: `Match a single action against a stored permission: destination, endpoint,
leading arguments, native value limit and per-token payment limits. The command
exits non-zero when the action is not allowed.`,
		Example: `  # Can the vendor be paid 400 USDC?
  covenant check-permission pay-vendor --destination erd1vendor \
    --endpoint pay --payment USDC-1a2b3c:0:400

  # Self-call with a hex argument
  covenant check-permission manage-roles --destination erd1entity \
    --endpoint createRole --arg 636f756e63696c`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			action, err := flags.action()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			n, err := openNode(ctx)
			if err != nil {
				return err
			}
			defer n.Close(context.Background())

			var allowed bool
			err = n.instrument(ctx, "check-permission", func(ctx context.Context, logger *telemetry.Logger) error {
				logger.WithField("permission", name).Debug("Matching action")
				var err error
				allowed, err = n.engine.CheckPermission(ctx, name, action)
				return err
			})
			if err != nil {
				return describeError(err)
			}

			if jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"permission": name,
					"allowed":    allowed,
					"action":     action,
				}); err != nil {
					return err
				}
			} else if allowed {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Action allowed by %s\n", name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "✗ Action not allowed by %s\n", name)
			}

			if !allowed {
				return fmt.Errorf("action not allowed by permission %s", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.destination, "destination", "", "called address")
	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "called endpoint")
	cmd.Flags().StringVar(&flags.value, "value", "", "native value sent with the call")
	cmd.Flags().StringArrayVar(&flags.args, "arg", nil, "hex encoded call argument (repeatable)")
	cmd.Flags().StringArrayVar(&flags.payments, "payment", nil, "token payment as token:nonce:amount (repeatable)")
	cmd.Flags().Uint64Var(&flags.gasLimit, "gas-limit", 0, "gas forwarded with the call")

	return cmd
}
