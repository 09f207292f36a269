package engine_test

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/covenantdao/covenant/pkg/clock"
	"github.com/covenantdao/covenant/pkg/engine"
	"github.com/covenantdao/covenant/pkg/ledger"
	"github.com/covenantdao/covenant/pkg/stores"
)

const (
	entity   engine.Address = "erd1entity"
	vault    engine.Address = "erd1vault"
	govToken engine.TokenID = "GOV-123456"

	alice engine.Address = "erd1alice"
	bob   engine.Address = "erd1bob"
	carol engine.Address = "erd1carol"
	dave  engine.Address = "erd1dave"
)

var genesisTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []engine.Event
}

func (s *recordingSink) Emit(ev engine.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) types() []engine.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.EventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// staticWeights is a WeightSource backed by a fixed table.
type staticWeights map[engine.Address]int64

func (w staticWeights) WeightOf(_ context.Context, addr engine.Address) (*big.Int, error) {
	return big.NewInt(w[addr]), nil
}

// stubGuard blocks every evaluation of the configured operation.
type stubGuard struct {
	blockOperation string
	inputs         []*engine.GuardInput
}

func (g *stubGuard) Evaluate(_ context.Context, input *engine.GuardInput) (*engine.GuardResult, error) {
	g.inputs = append(g.inputs, input)
	if input.Operation != g.blockOperation {
		return &engine.GuardResult{Allowed: true}, nil
	}
	return &engine.GuardResult{
		Allowed: false,
		Violations: []engine.GuardViolation{
			{Rule: "test-rule", Message: "blocked for test", Severity: "error"},
		},
	}, nil
}

// fixture wires an engine to in-memory collaborators.
type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *stores.MemoryStore
	ledger *ledger.MemoryLedger
	clock  *clock.Fake
	events *recordingSink
	engine *engine.Engine
}

type fixtureConfig struct {
	cfg  engine.Config
	opts []engine.Option
}

type fixtureOption func(*fixtureConfig)

func withGovernanceToken() fixtureOption {
	return func(c *fixtureConfig) { c.cfg.GovernanceToken = govToken }
}

func withQuorum(q int64) fixtureOption {
	return func(c *fixtureConfig) { c.cfg.Quorum = big.NewInt(q) }
}

func withMinVoteWeight(w int64) fixtureOption {
	return func(c *fixtureConfig) { c.cfg.MinVoteWeight = big.NewInt(w) }
}

func withMinProposeWeight(w int64) fixtureOption {
	return func(c *fixtureConfig) { c.cfg.MinProposeWeight = big.NewInt(w) }
}

func withEngineOption(opt engine.Option) fixtureOption {
	return func(c *fixtureConfig) { c.opts = append(c.opts, opt) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	fc := &fixtureConfig{cfg: engine.DefaultConfig(entity)}
	fc.cfg.VotingPeriodMinutes = 60
	for _, opt := range opts {
		opt(fc)
	}

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  stores.NewMemoryStore(),
		ledger: ledger.NewMemoryLedger(zerolog.Nop()),
		clock:  clock.NewFake(genesisTime),
		events: &recordingSink{},
	}

	engineOpts := append([]engine.Option{
		engine.WithLedger(f.ledger),
		engine.WithClock(f.clock),
		engine.WithEventSink(f.events),
	}, fc.opts...)

	eng, err := engine.New(fc.cfg, f.store, engineOpts...)
	require.NoError(t, err)
	f.engine = eng
	return f
}

func (f *fixture) bootstrap(g *engine.Genesis) {
	f.t.Helper()
	require.NoError(f.t, f.engine.Bootstrap(f.ctx, g))
	f.events.reset()
}

// propose creates a proposal carrying actions and returns its id.
func (f *fixture) propose(proposer engine.Address, permissions []string, actions []engine.Action, weight int64) uint64 {
	f.t.Helper()
	id, err := f.engine.Propose(f.ctx, f.request(proposer, permissions, actions, weight))
	require.NoError(f.t, err)
	return id
}

func (f *fixture) request(proposer engine.Address, permissions []string, actions []engine.Action, weight int64) engine.ProposeRequest {
	f.t.Helper()
	hash, err := f.engine.HashActions(actions)
	require.NoError(f.t, err)
	return engine.ProposeRequest{
		Proposer:    proposer,
		ContentHash: []byte("ipfs://proposal"),
		ActionsHash: hash,
		Permissions: permissions,
		Weight:      big.NewInt(weight),
	}
}

func (f *fixture) vote(voter engine.Address, id uint64, typ engine.VoteType, weight int64) error {
	return f.engine.Vote(f.ctx, engine.VoteRequest{
		Voter:      voter,
		ProposalID: id,
		Type:       typ,
		Weight:     big.NewInt(weight),
	})
}

func (f *fixture) status(id uint64) engine.ProposalStatus {
	f.t.Helper()
	status, err := f.engine.Status(f.ctx, id)
	require.NoError(f.t, err)
	return status
}

// closeWindow moves the clock past the default voting period.
func (f *fixture) closeWindow() {
	f.clock.Advance(61 * time.Minute)
}

func randomID(t *testing.T) []byte {
	t.Helper()
	id := make([]byte, 16)
	_, err := rand.Read(id)
	require.NoError(t, err)
	return id
}

func transferTo(dest engine.Address, token engine.TokenID, amount int64) engine.Action {
	return engine.Action{
		Destination: dest,
		Payments:    []engine.Payment{{Token: token, Amount: big.NewInt(amount)}},
	}
}
