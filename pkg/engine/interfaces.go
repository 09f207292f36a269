package engine

import (
	"context"
	"math/big"
	"time"
)

// Store persists governance state. Every mutating engine operation runs inside a single
// Update call; reads and writes made through the Tx commit together or not at all.
type Store interface {
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Update runs fn in a read-write transaction. A non-nil error from fn rolls back every write.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the transactional view of the store handed to View and Update callbacks.
// Getters return nil and no error for absent records.
type Tx interface {
	IdentityStore
	RoleStore
	PermissionStore
	ProposalStore
	SettingsStore
	AttestationStore
}

// IdentityStore maps addresses to dense user ids.
type IdentityStore interface {
	// UserID returns the id of addr, or 0 when the address was never seen.
	UserID(ctx context.Context, addr Address) (uint64, error)

	// EnsureUser returns the id of addr, registering it with the next free id if needed.
	EnsureUser(ctx context.Context, addr Address) (uint64, error)

	// UserAddress returns the address registered under id, or "" when unknown.
	UserAddress(ctx context.Context, id uint64) (Address, error)
}

// RoleStore persists roles and their members. Implementations keep Role.MemberCount equal
// to the size of the member set.
type RoleStore interface {
	GetRole(ctx context.Context, name string) (*Role, error)

	// PutRole creates an empty role.
	PutRole(ctx context.Context, name string) error

	// DeleteRole removes the role, all of its memberships and the policies granted to it.
	DeleteRole(ctx context.Context, name string) error

	ListRoles(ctx context.Context) ([]Role, error)

	// AddRoleMember reports whether the user was newly added.
	AddRoleMember(ctx context.Context, role string, userID uint64) (bool, error)

	// RemoveRoleMember reports whether the user was a member.
	RemoveRoleMember(ctx context.Context, role string, userID uint64) (bool, error)

	// RoleMembers returns member ids in ascending order.
	RoleMembers(ctx context.Context, role string) ([]uint64, error)

	// UserRoles returns the role names held by the user, sorted.
	UserRoles(ctx context.Context, userID uint64) ([]string, error)
}

// PermissionStore persists permissions and the policies binding them to roles.
type PermissionStore interface {
	GetPermission(ctx context.Context, name string) (*Permission, error)

	// PutPermission creates or replaces the permission with the same name.
	PutPermission(ctx context.Context, perm *Permission) error

	// DeletePermission removes the permission and every policy referencing it.
	DeletePermission(ctx context.Context, name string) error

	ListPermissions(ctx context.Context) ([]Permission, error)

	GetPolicy(ctx context.Context, role, permission string) (*Policy, error)
	PutPolicy(ctx context.Context, policy *Policy) error
	DeletePolicy(ctx context.Context, role, permission string) error

	// PoliciesForRole returns the policies granted to a role, ordered by permission name.
	PoliciesForRole(ctx context.Context, role string) ([]Policy, error)

	ListPolicies(ctx context.Context) ([]Policy, error)
}

// ProposalStore persists proposals, signer sets, poll tallies and vote deposits.
type ProposalStore interface {
	// CreateProposal stores p under the next proposal id and returns that id.
	CreateProposal(ctx context.Context, p *Proposal) (uint64, error)

	GetProposal(ctx context.Context, id uint64) (*Proposal, error)
	UpdateProposal(ctx context.Context, p *Proposal) error

	// ProposalCount returns the next proposal id.
	ProposalCount(ctx context.Context) (uint64, error)

	// AddSigner reports whether the user was newly recorded for the (proposal, role) pair.
	AddSigner(ctx context.Context, proposalID uint64, role string, userID uint64) (bool, error)

	// Signers returns the signer ids for the (proposal, role) pair in ascending order.
	Signers(ctx context.Context, proposalID uint64, role string) ([]uint64, error)

	AddPollVote(ctx context.Context, proposalID uint64, option uint8, weight *big.Int) error
	PollResults(ctx context.Context, proposalID uint64) (map[uint8]*big.Int, error)

	// AddDeposit accumulates a deposit onto the voter's existing deposit for the same token.
	AddDeposit(ctx context.Context, d Deposit) error

	// TakeDeposits removes and returns the voter's deposits on a proposal.
	TakeDeposits(ctx context.Context, proposalID uint64, voter Address) ([]Deposit, error)

	// Reserved returns the amount of a token locked by outstanding deposits.
	Reserved(ctx context.Context, token TokenID, nonce uint64) (*big.Int, error)

	// AdjustReserved adds delta, which may be negative, to the reserved amount.
	AdjustReserved(ctx context.Context, token TokenID, nonce uint64, delta *big.Int) error
}

// SettingsStore persists the tunable governance parameters.
type SettingsStore interface {
	// GetSettings returns nil before the entity is bootstrapped.
	GetSettings(ctx context.Context) (*Settings, error)
	PutSettings(ctx context.Context, s *Settings) error
}

// AttestationStore records consumed trusted host identifiers.
type AttestationStore interface {
	// ConsumeAttestation marks (host, id) as used and reports false if it already was.
	ConsumeAttestation(ctx context.Context, host string, id []byte) (bool, error)
}

// Settings are the governance parameters changed through self-calls.
type Settings struct {
	// Quorum is the global quorum used for token-weighted resolution.
	Quorum *big.Int `json:"quorum"`

	// MinVoteWeight is the minimum weight of a single vote.
	MinVoteWeight *big.Int `json:"min_vote_weight"`

	// MinProposeWeight is the minimum weight needed to propose without a role policy.
	MinProposeWeight *big.Int `json:"min_propose_weight"`

	// VotingPeriodMinutes is the default voting window.
	VotingPeriodMinutes uint64 `json:"voting_period_minutes"`

	// Bootstrapped is set once the genesis configuration has been applied.
	Bootstrapped bool `json:"bootstrapped"`
}

// Clone returns a deep copy of the settings.
func (s *Settings) Clone() *Settings {
	return &Settings{
		Quorum:              amountOrZero(s.Quorum),
		MinVoteWeight:       amountOrZero(s.MinVoteWeight),
		MinProposeWeight:    amountOrZero(s.MinProposeWeight),
		VotingPeriodMinutes: s.VotingPeriodMinutes,
		Bootstrapped:        s.Bootstrapped,
	}
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Ledger holds the entity's assets and forwards external calls.
type Ledger interface {
	// Balance returns the entity's balance of a token.
	Balance(ctx context.Context, token TokenID, nonce uint64) (*big.Int, error)

	// Transfer sends tokens from the entity to an address.
	Transfer(ctx context.Context, to Address, token TokenID, nonce uint64, amount *big.Int) error

	// Call forwards an action with its value, payments and gas limit.
	Call(ctx context.Context, action Action) error
}

// WeightSource supplies vote weight when no governance token is configured.
type WeightSource interface {
	WeightOf(ctx context.Context, addr Address) (*big.Int, error)
}

// EventSink receives governance events. Emit must not block the caller.
type EventSink interface {
	Emit(event Event)
}

// EventType identifies a governance event.
type EventType string

const (
	EventProposalCreated  EventType = "proposal.created"
	EventProposalVoted    EventType = "proposal.voted"
	EventProposalSigned   EventType = "proposal.signed"
	EventProposalExecuted EventType = "proposal.executed"
	EventDepositWithdrawn EventType = "deposit.withdrawn"
	EventRegistryChanged  EventType = "registry.changed"
	EventGuardViolation   EventType = "guard.violation"
)

// Event is a fire-and-forget notification about a committed state change.
type Event struct {
	Type       EventType              `json:"type"`
	ProposalID uint64                 `json:"proposal_id"`
	Caller     Address                `json:"caller,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Guard evaluates execution rules against a proposal and its action batch.
type Guard interface {
	Evaluate(ctx context.Context, input *GuardInput) (*GuardResult, error)
}

// GuardInput is the document rules are evaluated against.
type GuardInput struct {
	// Operation is "propose" or "execute".
	Operation string `json:"operation"`

	// Entity is the governed entity's own address.
	Entity Address `json:"entity"`

	// Proposal is the proposal under evaluation; nil fields are omitted at propose time.
	Proposal *Proposal `json:"proposal,omitempty"`

	// Actions is the action batch, available at execute time.
	Actions []Action `json:"actions,omitempty"`

	// ProposerRoles are the roles currently held by the proposer.
	ProposerRoles []string `json:"proposer_roles"`
}

// GuardResult is the outcome of a guard evaluation.
type GuardResult struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists every rule violation.
	Violations []GuardViolation `json:"violations,omitempty"`
}

// GuardViolation describes a single rule violation.
type GuardViolation struct {
	Rule     string `json:"rule"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Metrics records engine operation outcomes.
type Metrics interface {
	RecordOperation(operation, outcome string, duration time.Duration)
	RecordVote(voteType VoteType, weight *big.Int)
	RecordSignature(role string)
	RecordProposalCreated()
	RecordActionExecuted(target string)
	RecordError(class, code string)
}
