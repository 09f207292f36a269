package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/covenantdao/covenant/pkg/attestation"
)

// ProposeRequest describes a new proposal.
type ProposeRequest struct {
	// Proposer is the address creating the proposal.
	Proposer Address

	// ContentHash is the hash of the off-chain proposal content.
	ContentHash []byte

	// ActionsHash is the hash of the action batch, empty for proposals without actions.
	ActionsHash []byte

	// Permissions are the permission names the proposal claims; empty names are dropped.
	Permissions []string

	// Weight is the governance token amount paid with the proposal. It is ignored when
	// weight comes from a WeightSource.
	Weight *big.Int

	// PollOption casts an initial poll vote when non-zero.
	PollOption uint8

	// TrustedHostID is the one-time identifier of the attestation.
	TrustedHostID []byte

	// Signature is the trusted host signature over the attestation message.
	Signature []byte
}

// Propose creates a proposal and returns its id.
func (e *Engine) Propose(ctx context.Context, req ProposeRequest) (uint64, error) {
	var id uint64
	err := e.run(ctx, "propose", req.Proposer, []attribute.KeyValue{
		attribute.Int("permission_count", len(req.Permissions)),
	}, func(ctx context.Context, op *operation) error {
		permissions := filterEmpty(req.Permissions)

		if len(req.ActionsHash) > 0 && len(req.ActionsHash) != HashLength {
			return ErrInvalidHashLength.WithDetail("length", len(req.ActionsHash))
		}

		if err := e.verifyAttestation(req, permissions); err != nil {
			return err
		}

		weight, err := e.proposerWeight(ctx, req)
		if err != nil {
			return err
		}

		return e.store.Update(ctx, func(tx Tx) error {
			var err error
			id, err = e.propose(ctx, tx, op, req, permissions, weight)
			return err
		})
	})
	return id, err
}

func (e *Engine) propose(ctx context.Context, tx Tx, op *operation, req ProposeRequest, permissions []string, weight *big.Int) (uint64, error) {
	if len(req.TrustedHostID) > 0 {
		fresh, err := tx.ConsumeAttestation(ctx, e.verifier.Host(), req.TrustedHostID)
		if err != nil {
			return 0, internal(fmt.Errorf("failed to record trusted host id: %w", err))
		}
		if !fresh {
			return 0, ErrTrustedHostIDUsed
		}
	}

	s, err := e.settings(ctx, tx)
	if err != nil {
		return 0, err
	}

	proposerID, err := tx.EnsureUser(ctx, req.Proposer)
	if err != nil {
		return 0, internal(fmt.Errorf("failed to register proposer: %w", err))
	}
	roles, err := tx.UserRoles(ctx, proposerID)
	if err != nil {
		return 0, internal(fmt.Errorf("failed to load proposer roles: %w", err))
	}

	allowed, policies, err := e.resolveProposePermissions(ctx, tx, roles, len(req.ActionsHash) > 0, permissions)
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, ErrNoPermission
	}

	if len(roles) == 0 || anyWeightPolicy(policies) {
		if weight.Cmp(amountOrZero(s.MinProposeWeight)) < 0 {
			return 0, ErrWeightBelowMinimum.WithDetail("minimum", amountOrZero(s.MinProposeWeight).String())
		}
	}

	now := e.clock.Now()
	period := s.VotingPeriodMinutes
	if max := maxVotingPeriod(policies); max > 0 {
		period = max
	}

	p := &Proposal{
		Proposer:     req.Proposer,
		ContentHash:  req.ContentHash,
		ActionsHash:  req.ActionsHash,
		StartsAt:     now,
		EndsAt:       now.Add(time.Duration(period) * time.Minute),
		VotesFor:     new(big.Int).Set(weight),
		VotesAgainst: zero(),
		Permissions:  permissions,
	}

	if err := e.checkGuard(ctx, op, &GuardInput{
		Operation:     "propose",
		Entity:        e.cfg.EntityAddress,
		Proposal:      p,
		ProposerRoles: roles,
	}); err != nil {
		return 0, err
	}

	id, err := tx.CreateProposal(ctx, p)
	if err != nil {
		return 0, internal(fmt.Errorf("failed to create proposal: %w", err))
	}
	p.ID = id

	for _, role := range roles {
		if _, err := tx.AddSigner(ctx, id, role, proposerID); err != nil {
			return 0, internal(fmt.Errorf("failed to record proposer signature: %w", err))
		}
	}

	if weight.Sign() > 0 && e.cfg.GovernanceToken != "" {
		if err := e.lockDeposit(ctx, tx, id, req.Proposer, weight); err != nil {
			return 0, err
		}
	}

	if req.PollOption != 0 {
		pollWeight := weight
		if pollWeight.Sign() == 0 {
			pollWeight = big.NewInt(1)
		}
		if err := tx.AddPollVote(ctx, id, req.PollOption, pollWeight); err != nil {
			return 0, internal(fmt.Errorf("failed to record poll vote: %w", err))
		}
	}

	if e.metrics != nil {
		e.metrics.RecordProposalCreated()
	}
	op.emit(Event{
		Type:       EventProposalCreated,
		ProposalID: id,
		Data: map[string]interface{}{
			"permissions": permissions,
			"weight":      weight.String(),
			"ends_at":     p.EndsAt,
		},
	})

	e.logger.Debug().
		Uint64("proposal_id", id).
		Str("proposer", string(req.Proposer)).
		Strs("roles", roles).
		Uint64("voting_period_minutes", period).
		Msg("Created proposal")

	return id, nil
}

// verifyAttestation checks the trusted host signature, if a trusted host is configured.
func (e *Engine) verifyAttestation(req ProposeRequest, permissions []string) error {
	if !e.verifier.Enabled() {
		return nil
	}
	// The id is the replay key.
	if len(req.TrustedHostID) == 0 {
		return ErrNotTrustedHost.WithDetail("trusted_host_id", "missing")
	}
	err := e.verifier.Verify(attestation.Message{
		Proposer:      string(req.Proposer),
		Entity:        string(e.cfg.EntityAddress),
		TrustedHostID: req.TrustedHostID,
		ContentHash:   req.ContentHash,
		ActionsHash:   req.ActionsHash,
		Permissions:   permissions,
	}, req.Signature)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, attestation.ErrNotTrustedHost):
		return ErrNotTrustedHost
	case errors.Is(err, attestation.ErrInvalidSignature):
		return ErrInvalidSignature
	default:
		return ErrInvalidSignature.Wrap(err)
	}
}

// proposerWeight determines the weight a proposer brings to their own proposal.
func (e *Engine) proposerWeight(ctx context.Context, req ProposeRequest) (*big.Int, error) {
	if e.cfg.GovernanceToken != "" {
		w := amountOrZero(req.Weight)
		if w.Sign() < 0 {
			return nil, ErrInvalidArgument.Wrap(errors.New("weight must not be negative"))
		}
		return w, nil
	}
	if e.weights != nil {
		w, err := e.weights.WeightOf(ctx, req.Proposer)
		if err != nil {
			return nil, internal(fmt.Errorf("failed to query vote weight: %w", err))
		}
		return amountOrZero(w), nil
	}
	return zero(), nil
}

// resolveProposePermissions decides whether a proposer with roles may create a proposal
// claiming permissions, returning the policies that apply.
func (e *Engine) resolveProposePermissions(ctx context.Context, tx Tx, roles []string, hasActions bool, permissions []string) (bool, []Policy, error) {
	if !hasActions && len(permissions) == 0 {
		return true, nil, nil
	}

	leaderless, err := isLeaderless(ctx, tx)
	if err != nil {
		return false, nil, err
	}
	if leaderless {
		return true, nil, nil
	}

	isLeader := containsString(roles, RoleLeader)
	if len(permissions) == 0 {
		return isLeader, nil, nil
	}

	var policies []Policy
	for _, name := range permissions {
		perm, err := tx.GetPermission(ctx, name)
		if err != nil {
			return false, nil, internal(fmt.Errorf("failed to load permission %s: %w", name, err))
		}
		if perm == nil {
			return false, nil, nil
		}

		found := false
		for _, role := range roles {
			policy, err := tx.GetPolicy(ctx, role, name)
			if err != nil {
				return false, nil, internal(fmt.Errorf("failed to load policy %s/%s: %w", role, name, err))
			}
			if policy != nil {
				policies = append(policies, *policy)
				found = true
			}
		}
		if !found && !isLeader {
			return false, nil, nil
		}
	}
	return true, policies, nil
}

func anyWeightPolicy(policies []Policy) bool {
	for _, p := range policies {
		if p.Method == MethodWeight {
			return true
		}
	}
	return false
}

func maxVotingPeriod(policies []Policy) uint64 {
	var max uint64
	for _, p := range policies {
		if p.VotingPeriodMinutes > max {
			max = p.VotingPeriodMinutes
		}
	}
	return max
}

func filterEmpty(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// checkGuard evaluates the guard, if any, and blocks on violations.
func (e *Engine) checkGuard(ctx context.Context, op *operation, input *GuardInput) error {
	if e.guard == nil {
		return nil
	}
	result, err := e.guard.Evaluate(ctx, input)
	if err != nil {
		return internal(fmt.Errorf("failed to evaluate guard rules: %w", err))
	}
	if result.Allowed {
		return nil
	}

	rules := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		rules = append(rules, v.Rule)
	}

	var proposalID uint64
	if input.Proposal != nil {
		proposalID = input.Proposal.ID
	}
	// Violations are reported even though the operation rolls back.
	if e.events != nil {
		e.events.Emit(Event{
			Type:       EventGuardViolation,
			ProposalID: proposalID,
			Caller:     op.caller,
			Timestamp:  e.clock.Now(),
			Data:       map[string]interface{}{"operation": input.Operation, "rules": rules},
		})
	}
	return ErrBlockedByGuardRule.WithDetail("rules", rules)
}

// PollResults returns the poll tallies of a proposal.
func (e *Engine) PollResults(ctx context.Context, id uint64) (map[uint8]*big.Int, error) {
	var out map[uint8]*big.Int
	err := e.store.View(ctx, func(tx Tx) error {
		if _, err := mustGetProposal(ctx, tx, id); err != nil {
			return err
		}
		var err error
		out, err = tx.PollResults(ctx, id)
		return internal(err)
	})
	return out, err
}

// Signers returns the addresses that signed a proposal in a role.
func (e *Engine) Signers(ctx context.Context, id uint64, role string) ([]Address, error) {
	var out []Address
	err := e.store.View(ctx, func(tx Tx) error {
		if _, err := mustGetProposal(ctx, tx, id); err != nil {
			return err
		}
		ids, err := loadSigners(ctx, tx, id, role)
		if err != nil {
			return err
		}
		out, err = addressesOf(ctx, tx, ids)
		return err
	})
	return out, err
}
