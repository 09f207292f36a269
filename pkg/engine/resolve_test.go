package engine_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covenantdao/covenant/pkg/engine"
)

func TestHasSufficientVotes(t *testing.T) {
	tests := []struct {
		name    string
		for_    int64
		against int64
		quorum  int64
		want    bool
	}{
		{name: "two thirds in favour above quorum", for_: 20, against: 10, quorum: 15, want: true},
		{name: "unanimous but below quorum", for_: 9, against: 0, quorum: 15, want: false},
		{name: "exactly half", for_: 10, against: 10, quorum: 10, want: true},
		{name: "just under half truncates below", for_: 99, against: 101, quorum: 1, want: false},
		{name: "no votes", for_: 0, against: 0, quorum: 0, want: false},
		{name: "quorum met exactly", for_: 15, against: 0, quorum: 15, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &engine.Proposal{VotesFor: big.NewInt(tt.for_), VotesAgainst: big.NewInt(tt.against)}
			assert.Equal(t, tt.want, engine.HasSufficientVotes(p, big.NewInt(tt.quorum)))
		})
	}
}

// Role quorum policy: one signature of three members satisfies quorum 1.
func TestRoleQuorumPolicySucceeds(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(&engine.Genesis{
		Leaders: []engine.Address{dave},
		Roles:   []engine.GenesisRole{{Name: "builder", Members: []engine.Address{alice, bob, carol}}},
		Permissions: []engine.Permission{
			{Name: "deposit", Destination: vault, Endpoint: "deposit"},
		},
		Policies: []engine.Policy{
			{Role: "builder", Permission: "deposit", Method: engine.MethodQuorum, Quorum: big.NewInt(1), VotingPeriodMinutes: 10},
		},
	})

	actions := []engine.Action{{Destination: vault, Endpoint: "deposit"}}
	id := f.propose(alice, []string{"deposit"}, actions, 0)

	p, err := f.engine.Proposal(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, genesisTime.Add(10*time.Minute), p.EndsAt, "voting period comes from the policy")

	f.clock.Advance(11 * time.Minute)
	assert.Equal(t, engine.StatusSucceeded, f.status(id))

	require.NoError(t, f.engine.Execute(f.ctx, bob, id, actions))
	assert.Equal(t, engine.StatusExecuted, f.status(id))
	assert.Len(t, f.ledger.Calls(), 1)
}

func TestTokenWeightedResolution(t *testing.T) {
	f := newFixture(t, withGovernanceToken(), withQuorum(15))
	f.bootstrap(&engine.Genesis{Leaders: []engine.Address{dave}})

	passing := f.propose(alice, nil, nil, 20)
	require.NoError(t, f.vote(bob, passing, engine.VoteAgainst, 10))

	failing := f.propose(carol, nil, nil, 9)

	assert.Equal(t, engine.StatusActive, f.status(passing))
	f.closeWindow()

	assert.Equal(t, engine.StatusSucceeded, f.status(passing))
	assert.Equal(t, engine.StatusDefeated, f.status(failing))

	p, err := f.engine.Proposal(f.ctx, passing)
	require.NoError(t, err)
	assert.Equal(t, int64(20), p.VotesFor.Int64())
	assert.Equal(t, int64(10), p.VotesAgainst.Int64())
}

func TestSoleLeaderGrantsUnpolicedPermission(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(&engine.Genesis{
		Leaders:     []engine.Address{alice},
		Permissions: []engine.Permission{{Name: "treasury", Destination: vault, Endpoint: "invest"}},
	})

	actions := []engine.Action{{Destination: vault, Endpoint: "invest"}}
	id := f.propose(alice, []string{"treasury"}, actions, 0)

	// The leader's own signature is a majority of a one-member role.
	assert.Equal(t, engine.StatusSucceeded, f.status(id))
	require.NoError(t, f.engine.Execute(f.ctx, alice, id, actions))

	_, err := f.engine.Propose(f.ctx, f.request(bob, []string{"treasury"}, actions, 0))
	assert.ErrorIs(t, err, engine.ErrNoPermission)
}

func TestPolicyMethods(t *testing.T) {
	tests := []struct {
		name    string
		method  engine.PolicyMethod
		quorum  int64
		signers []engine.Address
		want    engine.ProposalStatus
	}{
		{name: "one needs only the proposer", method: engine.MethodOne, want: engine.StatusSucceeded},
		{name: "all waits for every member", method: engine.MethodAll, signers: []engine.Address{bob}, want: engine.StatusActive},
		{name: "all satisfied", method: engine.MethodAll, signers: []engine.Address{bob, carol}, want: engine.StatusSucceeded},
		{name: "quorum of two", method: engine.MethodQuorum, quorum: 2, signers: []engine.Address{carol}, want: engine.StatusSucceeded},
		{name: "quorum of three pending", method: engine.MethodQuorum, quorum: 3, signers: []engine.Address{carol}, want: engine.StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.bootstrap(&engine.Genesis{
				Leaders:     []engine.Address{dave},
				Roles:       []engine.GenesisRole{{Name: "builder", Members: []engine.Address{alice, bob, carol}}},
				Permissions: []engine.Permission{{Name: "deposit", Destination: vault, Endpoint: "deposit"}},
				Policies: []engine.Policy{
					{Role: "builder", Permission: "deposit", Method: tt.method, Quorum: big.NewInt(tt.quorum)},
				},
			})

			id := f.propose(alice, []string{"deposit"}, []engine.Action{{Destination: vault, Endpoint: "deposit"}}, 0)
			for _, signer := range tt.signers {
				require.NoError(t, f.engine.Sign(f.ctx, signer, id, 0))
			}
			assert.Equal(t, tt.want, f.status(id))
		})
	}
}

func TestAllPolicyCountsSignaturesAgainstMembers(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(&engine.Genesis{
		Leaders:     []engine.Address{dave},
		Roles:       []engine.GenesisRole{{Name: "builder", Members: []engine.Address{alice, bob, carol}}},
		Permissions: []engine.Permission{{Name: "deposit", Destination: vault, Endpoint: "deposit"}},
		Policies:    []engine.Policy{{Role: "builder", Permission: "deposit", Method: engine.MethodAll}},
	})
	actions := []engine.Action{{Destination: vault, Endpoint: "deposit"}}

	signed := f.propose(alice, []string{"deposit"}, actions, 0)
	for _, signer := range []engine.Address{bob, carol} {
		require.NoError(t, f.engine.Sign(f.ctx, signer, signed, 0))
	}
	pending := f.propose(alice, []string{"deposit"}, actions, 0)
	require.NoError(t, f.engine.Sign(f.ctx, bob, pending, 0))

	require.NoError(t, f.engine.UnassignRole(f.ctx, entity, "builder", carol))

	// signed keeps carol's signature; pending meets the smaller member count.
	assert.Equal(t, engine.StatusSucceeded, f.status(signed))
	assert.Equal(t, engine.StatusSucceeded, f.status(pending))
}

func TestWeightPolicyWaitsForWindow(t *testing.T) {
	f := newFixture(t, withGovernanceToken())
	f.bootstrap(&engine.Genesis{
		Leaders:     []engine.Address{dave},
		Roles:       []engine.GenesisRole{{Name: "builder", Members: []engine.Address{alice}}},
		Permissions: []engine.Permission{{Name: "deposit", Destination: vault, Endpoint: "deposit"}},
		Policies: []engine.Policy{
			{Role: "builder", Permission: "deposit", Method: engine.MethodWeight, Quorum: big.NewInt(10)},
		},
	})

	id := f.propose(alice, []string{"deposit"}, []engine.Action{{Destination: vault, Endpoint: "deposit"}}, 12)

	// Enough weight, but weight policies resolve only once voting closes.
	assert.Equal(t, engine.StatusActive, f.status(id))
	f.closeWindow()
	assert.Equal(t, engine.StatusSucceeded, f.status(id))
}

func TestStatusIsPure(t *testing.T) {
	f := newFixture(t, withGovernanceToken(), withQuorum(5))
	f.bootstrap(&engine.Genesis{Leaders: []engine.Address{dave}})

	id := f.propose(alice, nil, nil, 3)
	require.NoError(t, f.vote(bob, id, engine.VoteFor, 4))

	for _, advance := range []time.Duration{0, 30 * time.Minute, 31 * time.Minute} {
		f.clock.Advance(advance)
		first := f.status(id)
		second := f.status(id)
		assert.Equal(t, first, second)
	}
	assert.Equal(t, engine.StatusSucceeded, f.status(id))
}

func TestProposalWithoutVoteSourceIsDefeated(t *testing.T) {
	f := newFixture(t, withMinProposeWeight(0))
	f.bootstrap(&engine.Genesis{Leaders: []engine.Address{dave}})

	id := f.propose(alice, nil, nil, 0)
	f.closeWindow()
	assert.Equal(t, engine.StatusDefeated, f.status(id))
}

func TestLeaderlessEntityResolvesByVote(t *testing.T) {
	f := newFixture(t, withGovernanceToken(), withQuorum(10))
	f.bootstrap(nil)

	actions := []engine.Action{{Destination: vault, Endpoint: "deposit"}}
	id := f.propose(alice, []string{"anything"}, actions, 10)

	assert.Equal(t, engine.StatusActive, f.status(id))
	f.closeWindow()
	assert.Equal(t, engine.StatusSucceeded, f.status(id))
}

func TestStatusOfMissingProposal(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(nil)

	_, err := f.engine.Status(f.ctx, 7)
	assert.ErrorIs(t, err, engine.ErrProposalNotFound)
	assert.True(t, engine.IsState(err))
}
