package engine

import (
	"math/big"
	"time"
)

// RoleLeader is the built-in role whose membership decides whether the entity is leaderless.
const RoleLeader = "leader"

// HashLength is the required length of an actions hash.
const HashLength = 32

// Address identifies an account or contract. The engine treats it as opaque.
type Address string

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool {
	return a == ""
}

// TokenID identifies a fungible or semi-fungible token.
type TokenID string

// Payment is a token transfer attached to an action, or a payment limit inside a permission.
type Payment struct {
	// Token is the token identifier.
	Token TokenID `json:"token" cbor:"1,keyasint"`

	// Nonce is the token nonce, 0 for fungible tokens.
	Nonce uint64 `json:"nonce" cbor:"2,keyasint"`

	// Amount is the transferred amount, or the maximum amount when used as a permission limit.
	Amount *big.Int `json:"amount" cbor:"3,keyasint"`
}

// Action is a single call in a proposal's action batch.
type Action struct {
	// Destination is the called address.
	Destination Address `json:"destination" cbor:"1,keyasint"`

	// Endpoint is the called function, empty for plain transfers.
	Endpoint string `json:"endpoint,omitempty" cbor:"2,keyasint"`

	// Arguments are the raw call arguments in order.
	Arguments [][]byte `json:"arguments,omitempty" cbor:"3,keyasint,omitempty"`

	// Value is the native value sent with the call.
	Value *big.Int `json:"value,omitempty" cbor:"4,keyasint"`

	// Payments are token payments sent with the call.
	Payments []Payment `json:"payments,omitempty" cbor:"5,keyasint,omitempty"`

	// GasLimit is the gas forwarded with the call.
	GasLimit uint64 `json:"gas_limit" cbor:"6,keyasint"`
}

// User is a registered actor. IDs are dense, start at 1 and are never reused.
type User struct {
	ID      uint64  `json:"id"`
	Address Address `json:"address"`
}

// Role is a named group of users.
type Role struct {
	// Name is the unique role name.
	Name string `json:"name"`

	// MemberCount is the number of users holding the role.
	MemberCount uint64 `json:"member_count"`
}

// Permission is a scoping rule describing which concrete actions a policy may authorize.
// Empty fields leave the corresponding axis unconstrained.
type Permission struct {
	// Name is the unique permission name.
	Name string `json:"name"`

	// ValueLimit is the maximum native value; zero means unlimited.
	ValueLimit *big.Int `json:"value_limit"`

	// Destination restricts the called address.
	Destination Address `json:"destination,omitempty"`

	// Endpoint restricts the called function.
	Endpoint string `json:"endpoint,omitempty"`

	// Arguments constrain the leading call arguments.
	Arguments [][]byte `json:"arguments,omitempty"`

	// Payments limit which tokens may be sent and how much of each.
	Payments []Payment `json:"payments,omitempty"`
}

// Policy binds a role's authority over a permission to an enforcement method.
type Policy struct {
	// Role is the role name.
	Role string `json:"role"`

	// Permission is the permission name.
	Permission string `json:"permission"`

	// Method is the enforcement method.
	Method PolicyMethod `json:"method"`

	// Quorum is a token amount for the weight method and a signer count for the quorum method.
	Quorum *big.Int `json:"quorum"`

	// VotingPeriodMinutes is the voting window this policy requires.
	VotingPeriodMinutes uint64 `json:"voting_period_minutes"`
}

// Proposal is a unit of governance action subject to a vote or signature window.
type Proposal struct {
	// ID is the monotonic proposal identifier, starting at 0.
	ID uint64 `json:"id"`

	// Proposer is the address that created the proposal.
	Proposer Address `json:"proposer"`

	// ContentHash is the hash of the off-chain proposal content.
	ContentHash []byte `json:"content_hash,omitempty"`

	// ActionsHash is the hash of the action batch, empty when the proposal has no actions.
	ActionsHash []byte `json:"actions_hash,omitempty"`

	// StartsAt is when voting opens.
	StartsAt time.Time `json:"starts_at"`

	// EndsAt is when voting closes.
	EndsAt time.Time `json:"ends_at"`

	// Executed is set once the action batch ran.
	Executed bool `json:"executed"`

	// VotesFor is the accumulated weight in favour.
	VotesFor *big.Int `json:"votes_for"`

	// VotesAgainst is the accumulated weight against.
	VotesAgainst *big.Int `json:"votes_against"`

	// Permissions lists the permission names the proposal claims.
	Permissions []string `json:"permissions,omitempty"`
}

// HasActions reports whether the proposal carries an action batch or claims permissions.
func (p *Proposal) HasActions() bool {
	return len(p.ActionsHash) > 0 || len(p.Permissions) > 0
}

// Deposit is a governance-token amount locked by a vote until the voter withdraws it.
type Deposit struct {
	ProposalID uint64   `json:"proposal_id"`
	Voter      Address  `json:"voter"`
	Token      TokenID  `json:"token"`
	Nonce      uint64   `json:"nonce"`
	Amount     *big.Int `json:"amount"`
}

// zero returns a fresh zero amount.
func zero() *big.Int {
	return new(big.Int)
}

// amountOrZero returns a copy of v, treating nil as zero.
func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return zero()
	}
	return new(big.Int).Set(v)
}

// isPositive reports whether v is set and greater than zero.
func isPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
