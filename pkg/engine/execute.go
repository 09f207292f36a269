package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.opentelemetry.io/otel/attribute"
)

// Execute runs the action batch of a succeeded proposal. The batch is applied at most once:
// every check and every self-call runs in the transaction that marks the proposal executed,
// and calls to other destinations reach the ledger only after that transaction commits.
// A ledger failure at that point leaves the proposal executed and returns
// ErrExecutionIncomplete naming the first action that was not dispatched.
func (e *Engine) Execute(ctx context.Context, caller Address, id uint64, actions []Action) error {
	attrs := []attribute.KeyValue{
		attribute.Int64("proposal_id", int64(id)),
		attribute.Int("action_count", len(actions)),
	}
	return e.run(ctx, "execute", caller, attrs, func(ctx context.Context, op *operation) error {
		hash, err := e.HashActions(actions)
		if err != nil {
			return err
		}

		var external []int
		err = e.store.Update(ctx, func(tx Tx) error {
			external = external[:0]

			s, err := e.settings(ctx, tx)
			if err != nil {
				return err
			}
			p, err := mustGetProposal(ctx, tx, id)
			if err != nil {
				return err
			}

			status, err := e.resolveStatus(ctx, tx, p, e.clock.Now(), s)
			if err != nil {
				return err
			}
			switch status {
			case StatusSucceeded:
			case StatusExecuted:
				return ErrAlreadyExecuted
			default:
				return ErrProposalNotExecutable.WithDetail("status", string(status))
			}

			if !bytes.Equal(hash, p.ActionsHash) {
				return ErrActionsMismatch
			}

			if err := e.checkActionPermissions(ctx, tx, p, actions); err != nil {
				return err
			}

			_, roles, err := rolesOf(ctx, tx, p.Proposer)
			if err != nil {
				return err
			}
			if err := e.checkGuard(ctx, op, &GuardInput{
				Operation:     "execute",
				Entity:        e.cfg.EntityAddress,
				Proposal:      p,
				Actions:       actions,
				ProposerRoles: roles,
			}); err != nil {
				return err
			}

			if err := e.checkAvailableBalance(ctx, tx, actions); err != nil {
				return err
			}

			for i := range actions {
				if actions[i].Destination != e.cfg.EntityAddress {
					external = append(external, i)
					continue
				}
				if err := e.dispatchSelf(ctx, tx, op, &actions[i]); err != nil {
					return err
				}
			}
			if len(external) > 0 && e.ledger == nil {
				return ErrInternal.Wrap(errors.New("no ledger configured"))
			}

			p.Executed = true
			if err := tx.UpdateProposal(ctx, p); err != nil {
				return internal(fmt.Errorf("failed to mark proposal executed: %w", err))
			}
			return nil
		})
		if err != nil {
			return err
		}
		op.committed = true
		e.recordActions("self", len(actions)-len(external))

		data := map[string]interface{}{"actions": len(actions)}
		defer func() {
			op.emit(Event{Type: EventProposalExecuted, ProposalID: id, Data: data})
		}()

		for n, i := range external {
			if err := e.ledger.Call(ctx, actions[i]); err != nil {
				data["failed_action"] = i
				return ErrExecutionIncomplete.
					Wrap(fmt.Errorf("failed to call %s: %w", actions[i].Destination, err)).
					WithDetail("action", i).
					WithDetail("dispatched", n)
			}
			e.recordActions("external", 1)
		}
		return nil
	})
}

// checkActionPermissions requires every action to fall within one of the proposal's permissions.
func (e *Engine) checkActionPermissions(ctx context.Context, tx Tx, p *Proposal, actions []Action) error {
	if len(p.Permissions) == 0 {
		return nil
	}

	perms := make([]*Permission, 0, len(p.Permissions))
	for _, name := range p.Permissions {
		perm, err := tx.GetPermission(ctx, name)
		if err != nil {
			return internal(fmt.Errorf("failed to load permission %s: %w", name, err))
		}
		if perm != nil {
			perms = append(perms, perm)
		}
	}

	for i := range actions {
		if !matchesAny(perms, &actions[i]) {
			return ErrNoPermission.WithDetail("action", i)
		}
	}
	return nil
}

type tokenKey struct {
	token TokenID
	nonce uint64
}

// checkAvailableBalance verifies that governance token payments fit within the balance not
// reserved by vote deposits, summed across the batch.
func (e *Engine) checkAvailableBalance(ctx context.Context, tx Tx, actions []Action) error {
	needed := make(map[tokenKey]*big.Int)
	var order []tokenKey

	for _, a := range actions {
		if a.Destination == e.cfg.EntityAddress {
			continue
		}
		for _, pay := range a.Payments {
			if !e.isGovernanceToken(pay.Token, pay.Nonce) {
				continue
			}
			key := tokenKey{pay.Token, pay.Nonce}
			if needed[key] == nil {
				needed[key] = zero()
				order = append(order, key)
			}
			needed[key].Add(needed[key], amountOrZero(pay.Amount))
		}
	}
	if len(order) == 0 {
		return nil
	}
	if e.ledger == nil {
		return ErrInternal.Wrap(errors.New("no ledger configured"))
	}

	for _, key := range order {
		balance, err := e.ledger.Balance(ctx, key.token, key.nonce)
		if err != nil {
			return internal(fmt.Errorf("failed to query balance: %w", err))
		}
		reserved, err := tx.Reserved(ctx, key.token, key.nonce)
		if err != nil {
			return internal(fmt.Errorf("failed to query reserved balance: %w", err))
		}
		available := new(big.Int).Sub(amountOrZero(balance), amountOrZero(reserved))
		if needed[key].Cmp(available) > 0 {
			return ErrInsufficientBalance.
				WithDetail("token", string(key.token)).
				WithDetail("needed", needed[key].String()).
				WithDetail("available", available.String())
		}
	}
	return nil
}
