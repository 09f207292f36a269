package engine

import (
	"fmt"
	"strings"
)

// ProposalStatus represents the resolved lifecycle state of a proposal.
type ProposalStatus string

const (
	// StatusPending indicates the voting window has not opened yet.
	StatusPending ProposalStatus = "pending"

	// StatusActive indicates the voting window is open.
	StatusActive ProposalStatus = "active"

	// StatusSucceeded indicates the proposal passed and may be executed.
	StatusSucceeded ProposalStatus = "succeeded"

	// StatusDefeated indicates the proposal failed.
	StatusDefeated ProposalStatus = "defeated"

	// StatusExecuted indicates the action batch ran. Terminal.
	StatusExecuted ProposalStatus = "executed"
)

// IsTerminal returns true if no further transition is possible.
func (s ProposalStatus) IsTerminal() bool {
	return s == StatusExecuted || s == StatusDefeated
}

// IsOpen returns true while the voting window has not closed.
func (s ProposalStatus) IsOpen() bool {
	return s == StatusPending || s == StatusActive
}

// PolicyMethod is the enforcement method of a policy.
type PolicyMethod string

const (
	// MethodWeight requires a token-weighted supermajority reaching the policy quorum.
	MethodWeight PolicyMethod = "weight"

	// MethodOne requires the proposer's own signature in the role.
	MethodOne PolicyMethod = "one"

	// MethodAll requires as many signatures in the role as it has members. Signatures are
	// not withdrawn when a member leaves the role, so a proposal that reached the count stays
	// satisfied after the role shrinks.
	MethodAll PolicyMethod = "all"

	// MethodQuorum requires at least quorum signatures in the role.
	MethodQuorum PolicyMethod = "quorum"
)

// Validate checks if the policy method is known.
func (m PolicyMethod) Validate() error {
	switch m {
	case MethodWeight, MethodOne, MethodAll, MethodQuorum:
		return nil
	default:
		return ErrInvalidArgument.Wrap(fmt.Errorf("invalid policy method: %s", m))
	}
}

// RequiresQuorum reports whether policies using this method need a positive quorum.
func (m PolicyMethod) RequiresQuorum() bool {
	return m == MethodWeight || m == MethodQuorum
}

// ParsePolicyMethod parses a policy method name, case-insensitively.
func ParsePolicyMethod(s string) (PolicyMethod, error) {
	m := PolicyMethod(strings.ToLower(strings.TrimSpace(s)))
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

// VoteType is the direction of a token-weighted vote.
type VoteType string

const (
	// VoteFor supports the proposal.
	VoteFor VoteType = "for"

	// VoteAgainst opposes the proposal.
	VoteAgainst VoteType = "against"
)

// Validate checks if the vote type is known.
func (v VoteType) Validate() error {
	switch v {
	case VoteFor, VoteAgainst:
		return nil
	default:
		return ErrInvalidArgument.Wrap(fmt.Errorf("invalid vote type: %s", v))
	}
}
