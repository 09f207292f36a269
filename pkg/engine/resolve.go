package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

var hundred = big.NewInt(100)

// HasSufficientVotes reports whether p carries a supermajority in favour that reaches quorum.
// The supermajority threshold is 50 percent of the cast weight, computed with integer division.
func HasSufficientVotes(p *Proposal, quorum *big.Int) bool {
	votesFor := amountOrZero(p.VotesFor)
	total := new(big.Int).Add(votesFor, amountOrZero(p.VotesAgainst))
	if total.Sign() == 0 {
		return false
	}

	percent := new(big.Int).Mul(votesFor, hundred)
	percent.Quo(percent, total)

	return percent.Cmp(big.NewInt(50)) >= 0 && votesFor.Cmp(amountOrZero(quorum)) >= 0
}

// resolveStatus computes the status of p at now from stored state.
func (e *Engine) resolveStatus(ctx context.Context, tx Tx, p *Proposal, now time.Time, s *Settings) (ProposalStatus, error) {
	if p.Executed {
		return StatusExecuted, nil
	}

	hasActions := p.HasActions()
	leaderless, err := isLeaderless(ctx, tx)
	if err != nil {
		return "", err
	}

	hasPermission := false
	if !leaderless && hasActions {
		var weighted bool
		hasPermission, weighted, err = e.fulfillment(ctx, tx, p)
		if err != nil {
			return "", err
		}
		if hasPermission && !weighted {
			return StatusSucceeded, nil
		}
	}

	if now.Before(p.StartsAt) {
		return StatusPending, nil
	}
	if now.Before(p.EndsAt) {
		return StatusActive, nil
	}

	if (leaderless || !hasActions) && e.hasVoteSource() {
		if HasSufficientVotes(p, s.Quorum) {
			return StatusSucceeded, nil
		}
		return StatusDefeated, nil
	}

	if hasPermission {
		return StatusSucceeded, nil
	}
	return StatusDefeated, nil
}

// fulfillment checks whether the proposer's roles have collected the approvals their policies
// require. weighted is set when any applicable policy uses the weight method.
func (e *Engine) fulfillment(ctx context.Context, tx Tx, p *Proposal) (hasPermission, weighted bool, err error) {
	proposerID, roles, err := rolesOf(ctx, tx, p.Proposer)
	if err != nil {
		return false, false, err
	}
	if len(roles) == 0 {
		return false, false, nil
	}

	if len(p.Permissions) == 0 {
		for _, role := range roles {
			ok, err := signerMajority(ctx, tx, p.ID, role)
			if err != nil || !ok {
				return false, false, err
			}
		}
		return true, false, nil
	}

	for _, perm := range p.Permissions {
		for _, role := range roles {
			policy, err := tx.GetPolicy(ctx, role, perm)
			if err != nil {
				return false, weighted, internal(fmt.Errorf("failed to load policy %s/%s: %w", role, perm, err))
			}

			var ok bool
			if policy == nil {
				ok, err = signerMajority(ctx, tx, p.ID, role)
			} else {
				if policy.Method == MethodWeight {
					weighted = true
				}
				ok, err = e.enforcePolicy(ctx, tx, p, proposerID, policy)
			}
			if err != nil || !ok {
				return false, weighted, err
			}
		}
	}

	return true, weighted, nil
}

// enforcePolicy applies a single policy's method to the proposal.
func (e *Engine) enforcePolicy(ctx context.Context, tx Tx, p *Proposal, proposerID uint64, policy *Policy) (bool, error) {
	switch policy.Method {
	case MethodWeight:
		return HasSufficientVotes(p, policy.Quorum), nil

	case MethodOne:
		signers, err := loadSigners(ctx, tx, p.ID, policy.Role)
		if err != nil {
			return false, err
		}
		return containsID(signers, proposerID), nil

	case MethodAll:
		role, err := tx.GetRole(ctx, policy.Role)
		if err != nil {
			return false, internal(fmt.Errorf("failed to load role %s: %w", policy.Role, err))
		}
		if role == nil {
			return false, nil
		}
		signers, err := loadSigners(ctx, tx, p.ID, policy.Role)
		if err != nil {
			return false, err
		}
		return uint64(len(signers)) >= role.MemberCount, nil

	case MethodQuorum:
		signers, err := loadSigners(ctx, tx, p.ID, policy.Role)
		if err != nil {
			return false, err
		}
		return big.NewInt(int64(len(signers))).Cmp(amountOrZero(policy.Quorum)) >= 0, nil

	default:
		return false, ErrInternal.Wrap(fmt.Errorf("unknown policy method %q", policy.Method))
	}
}

// signerMajority reports whether more than half of the role's members signed.
func signerMajority(ctx context.Context, tx Tx, proposalID uint64, roleName string) (bool, error) {
	role, err := tx.GetRole(ctx, roleName)
	if err != nil {
		return false, internal(fmt.Errorf("failed to load role %s: %w", roleName, err))
	}
	var members uint64
	if role != nil {
		members = role.MemberCount
	}

	signers, err := loadSigners(ctx, tx, proposalID, roleName)
	if err != nil {
		return false, err
	}
	return uint64(len(signers)) >= members/2+1, nil
}

func loadSigners(ctx context.Context, tx Tx, proposalID uint64, role string) ([]uint64, error) {
	signers, err := tx.Signers(ctx, proposalID, role)
	if err != nil {
		return nil, internal(fmt.Errorf("failed to load signers: %w", err))
	}
	return signers, nil
}

// Status resolves the current status of a proposal.
func (e *Engine) Status(ctx context.Context, id uint64) (ProposalStatus, error) {
	var status ProposalStatus
	err := e.store.View(ctx, func(tx Tx) error {
		p, err := mustGetProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		s, err := e.settings(ctx, tx)
		if err != nil {
			return err
		}
		status, err = e.resolveStatus(ctx, tx, p, e.clock.Now(), s)
		return err
	})
	return status, err
}

// Proposal returns a stored proposal.
func (e *Engine) Proposal(ctx context.Context, id uint64) (*Proposal, error) {
	var out *Proposal
	err := e.store.View(ctx, func(tx Tx) error {
		p, err := mustGetProposal(ctx, tx, id)
		out = p
		return err
	})
	return out, err
}

// ProposalCount returns the number of proposals created so far.
func (e *Engine) ProposalCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := e.store.View(ctx, func(tx Tx) error {
		var err error
		n, err = tx.ProposalCount(ctx)
		return internal(err)
	})
	return n, err
}
