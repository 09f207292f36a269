package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.opentelemetry.io/otel/attribute"
)

// VoteRequest describes a token-weighted vote.
type VoteRequest struct {
	// Voter is the voting address.
	Voter Address

	// ProposalID is the proposal voted on.
	ProposalID uint64

	// Type is the vote direction.
	Type VoteType

	// Weight is the governance token amount paid with the vote. It is ignored when weight
	// comes from a WeightSource.
	Weight *big.Int

	// PollOption adds the vote weight to a poll option when non-zero.
	PollOption uint8
}

// Vote records a token-weighted vote on an active proposal.
func (e *Engine) Vote(ctx context.Context, req VoteRequest) error {
	attrs := []attribute.KeyValue{
		attribute.Int64("proposal_id", int64(req.ProposalID)),
		attribute.String("vote_type", string(req.Type)),
	}
	return e.run(ctx, "vote", req.Voter, attrs, func(ctx context.Context, op *operation) error {
		if err := req.Type.Validate(); err != nil {
			return err
		}

		weight, err := e.voteWeight(ctx, req)
		if err != nil {
			return err
		}
		if weight.Sign() <= 0 {
			return ErrZeroWeight
		}

		return e.store.Update(ctx, func(tx Tx) error {
			s, err := e.settings(ctx, tx)
			if err != nil {
				return err
			}
			if weight.Cmp(amountOrZero(s.MinVoteWeight)) < 0 {
				return ErrWeightBelowMinimum.WithDetail("minimum", amountOrZero(s.MinVoteWeight).String())
			}

			p, err := e.requireActive(ctx, tx, req.ProposalID, s)
			if err != nil {
				return err
			}
			if _, err := tx.EnsureUser(ctx, req.Voter); err != nil {
				return internal(fmt.Errorf("failed to register voter: %w", err))
			}

			switch req.Type {
			case VoteFor:
				p.VotesFor = new(big.Int).Add(amountOrZero(p.VotesFor), weight)
			case VoteAgainst:
				p.VotesAgainst = new(big.Int).Add(amountOrZero(p.VotesAgainst), weight)
			}
			if err := tx.UpdateProposal(ctx, p); err != nil {
				return internal(fmt.Errorf("failed to update proposal: %w", err))
			}

			if e.cfg.GovernanceToken != "" {
				if err := e.lockDeposit(ctx, tx, p.ID, req.Voter, weight); err != nil {
					return err
				}
			}

			if req.PollOption != 0 {
				if err := tx.AddPollVote(ctx, p.ID, req.PollOption, weight); err != nil {
					return internal(fmt.Errorf("failed to record poll vote: %w", err))
				}
			}

			if e.metrics != nil {
				e.metrics.RecordVote(req.Type, weight)
			}
			op.emit(Event{
				Type:       EventProposalVoted,
				ProposalID: p.ID,
				Data: map[string]interface{}{
					"type":        string(req.Type),
					"weight":      weight.String(),
					"poll_option": req.PollOption,
				},
			})
			return nil
		})
	})
}

// voteWeight determines the weight of a vote from its source.
func (e *Engine) voteWeight(ctx context.Context, req VoteRequest) (*big.Int, error) {
	switch {
	case e.cfg.GovernanceToken != "":
		return amountOrZero(req.Weight), nil
	case e.weights != nil:
		w, err := e.weights.WeightOf(ctx, req.Voter)
		if err != nil {
			return nil, internal(fmt.Errorf("failed to query vote weight: %w", err))
		}
		return amountOrZero(w), nil
	default:
		return nil, ErrNoVoteSource
	}
}

// Sign records the caller's signature in every role they hold.
func (e *Engine) Sign(ctx context.Context, caller Address, id uint64, pollOption uint8) error {
	attrs := []attribute.KeyValue{attribute.Int64("proposal_id", int64(id))}
	return e.run(ctx, "sign", caller, attrs, func(ctx context.Context, op *operation) error {
		return e.store.Update(ctx, func(tx Tx) error {
			s, err := e.settings(ctx, tx)
			if err != nil {
				return err
			}
			p, err := e.requireActive(ctx, tx, id, s)
			if err != nil {
				return err
			}

			userID, roles, err := rolesOf(ctx, tx, caller)
			if err != nil {
				return err
			}
			if len(roles) == 0 {
				return ErrNoRoleToSign
			}

			for _, role := range roles {
				added, err := tx.AddSigner(ctx, p.ID, role, userID)
				if err != nil {
					return internal(fmt.Errorf("failed to record signature: %w", err))
				}
				if added && e.metrics != nil {
					e.metrics.RecordSignature(role)
				}
			}

			if pollOption != 0 {
				if err := tx.AddPollVote(ctx, p.ID, pollOption, big.NewInt(1)); err != nil {
					return internal(fmt.Errorf("failed to record poll vote: %w", err))
				}
			}

			op.emit(Event{
				Type:       EventProposalSigned,
				ProposalID: p.ID,
				Data:       map[string]interface{}{"roles": roles, "poll_option": pollOption},
			})
			return nil
		})
	})
}

// Withdraw returns the voter's locked governance tokens once the proposal's window has closed.
// The deposits are released in one transaction before any transfer; deposits whose transfer
// fails are locked again so a later Withdraw returns exactly what is still owed.
func (e *Engine) Withdraw(ctx context.Context, voter Address, id uint64) (*big.Int, error) {
	total := zero()
	attrs := []attribute.KeyValue{attribute.Int64("proposal_id", int64(id))}
	err := e.run(ctx, "withdraw", voter, attrs, func(ctx context.Context, op *operation) error {
		if e.ledger == nil {
			return ErrInternal.Wrap(errors.New("no ledger configured"))
		}

		var deposits []Deposit
		err := e.store.Update(ctx, func(tx Tx) error {
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
			if status.IsOpen() {
				return ErrVotingWindowOpen
			}

			deposits, err = tx.TakeDeposits(ctx, id, voter)
			if err != nil {
				return internal(fmt.Errorf("failed to load deposits: %w", err))
			}
			if len(deposits) == 0 {
				return ErrNothingToWithdraw
			}
			for _, d := range deposits {
				if err := tx.AdjustReserved(ctx, d.Token, d.Nonce, new(big.Int).Neg(d.Amount)); err != nil {
					return internal(fmt.Errorf("failed to release reserved balance: %w", err))
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		op.committed = true

		for i, d := range deposits {
			if err := e.ledger.Transfer(ctx, voter, d.Token, d.Nonce, d.Amount); err != nil {
				err = fmt.Errorf("failed to return deposit: %w", err)
				if rerr := e.relock(ctx, deposits[i:]); rerr != nil {
					err = errors.Join(err, rerr)
				}
				e.emitWithdrawn(op, id, total)
				return internal(err)
			}
			total.Add(total, d.Amount)
		}
		e.emitWithdrawn(op, id, total)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

func (e *Engine) emitWithdrawn(op *operation, id uint64, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	op.emit(Event{
		Type:       EventDepositWithdrawn,
		ProposalID: id,
		Data:       map[string]interface{}{"amount": amount.String()},
	})
}

// relock restores deposits that were released but never returned.
func (e *Engine) relock(ctx context.Context, deposits []Deposit) error {
	return e.store.Update(ctx, func(tx Tx) error {
		for _, d := range deposits {
			if err := tx.AddDeposit(ctx, d); err != nil {
				return fmt.Errorf("failed to restore deposit: %w", err)
			}
			if err := tx.AdjustReserved(ctx, d.Token, d.Nonce, d.Amount); err != nil {
				return fmt.Errorf("failed to restore reserved balance: %w", err)
			}
		}
		return nil
	})
}

// requireActive loads a proposal and checks that its voting window is open.
func (e *Engine) requireActive(ctx context.Context, tx Tx, id uint64, s *Settings) (*Proposal, error) {
	p, err := mustGetProposal(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	status, err := e.resolveStatus(ctx, tx, p, e.clock.Now(), s)
	if err != nil {
		return nil, err
	}
	if status != StatusActive {
		return nil, ErrProposalNotActive.WithDetail("status", string(status))
	}
	return p, nil
}

// lockDeposit records a governance token deposit and reserves it against execution.
func (e *Engine) lockDeposit(ctx context.Context, tx Tx, id uint64, voter Address, amount *big.Int) error {
	d := Deposit{
		ProposalID: id,
		Voter:      voter,
		Token:      e.cfg.GovernanceToken,
		Nonce:      e.cfg.GovernanceTokenNonce,
		Amount:     new(big.Int).Set(amount),
	}
	if err := tx.AddDeposit(ctx, d); err != nil {
		return internal(fmt.Errorf("failed to record deposit: %w", err))
	}
	if err := tx.AdjustReserved(ctx, d.Token, d.Nonce, d.Amount); err != nil {
		return internal(fmt.Errorf("failed to reserve deposit: %w", err))
	}
	return nil
}
