package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/covenantdao/covenant/pkg/attestation"
	"github.com/covenantdao/covenant/pkg/clock"
)

const tracerName = "github.com/covenantdao/covenant/pkg/engine"

// DefaultVotingPeriodMinutes is the voting window used when neither configuration nor policies set one.
const DefaultVotingPeriodMinutes = 60 * 24 * 3

// Config holds the static parameters of a governed entity.
type Config struct {
	// EntityAddress is the entity's own address. Self-calls to it reach the registry.
	EntityAddress Address

	// GovernanceToken is the token locked by votes; empty when voting uses a WeightSource.
	GovernanceToken TokenID

	// GovernanceTokenNonce is the nonce of the governance token.
	GovernanceTokenNonce uint64

	// Quorum is the initial global quorum.
	Quorum *big.Int

	// MinVoteWeight is the initial minimum vote weight.
	MinVoteWeight *big.Int

	// MinProposeWeight is the initial minimum propose weight.
	MinProposeWeight *big.Int

	// VotingPeriodMinutes is the initial default voting window.
	VotingPeriodMinutes uint64
}

// DefaultConfig returns a configuration for entity with a quorum and minimum weights of 1.
func DefaultConfig(entity Address) Config {
	return Config{
		EntityAddress:       entity,
		Quorum:              big.NewInt(1),
		MinVoteWeight:       big.NewInt(1),
		MinProposeWeight:    big.NewInt(1),
		VotingPeriodMinutes: DefaultVotingPeriodMinutes,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.EntityAddress.IsZero() {
		return ErrInvalidArgument.Wrap(errors.New("entity address is required"))
	}
	if !isPositive(c.Quorum) {
		return ErrZeroQuorum
	}
	if c.MinVoteWeight != nil && c.MinVoteWeight.Sign() < 0 {
		return ErrInvalidArgument.Wrap(errors.New("min vote weight must not be negative"))
	}
	if c.MinProposeWeight != nil && c.MinProposeWeight.Sign() < 0 {
		return ErrInvalidArgument.Wrap(errors.New("min propose weight must not be negative"))
	}
	return nil
}

func (c Config) settings() *Settings {
	period := c.VotingPeriodMinutes
	if period == 0 {
		period = DefaultVotingPeriodMinutes
	}
	return &Settings{
		Quorum:              amountOrZero(c.Quorum),
		MinVoteWeight:       amountOrZero(c.MinVoteWeight),
		MinProposeWeight:    amountOrZero(c.MinProposeWeight),
		VotingPeriodMinutes: period,
	}
}

// Engine resolves proposals and enforces role, permission and vote rules over a Store.
type Engine struct {
	// cfg holds the static entity parameters
	cfg Config

	// store persists all governance state
	store Store

	// ledger holds the entity's assets, nil when execution of external calls is disabled
	ledger Ledger

	// clock provides the time used for window checks
	clock Clock

	// hasher hashes action batches
	hasher attestation.Hasher

	// verifier checks trusted host attestations
	verifier *attestation.Verifier

	// weights supplies vote weight when no governance token is configured
	weights WeightSource

	// guard evaluates execution rules, optional
	guard Guard

	// events receives committed state changes, optional
	events EventSink

	// metrics records operation outcomes, optional
	metrics Metrics

	logger zerolog.Logger
	tracer trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLedger sets the asset ledger.
func WithLedger(l Ledger) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithHasher sets the hash used for action batches.
func WithHasher(h attestation.Hasher) Option {
	return func(e *Engine) { e.hasher = h }
}

// WithVerifier sets the trusted host verifier.
func WithVerifier(v *attestation.Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithWeightSource installs an external vote weight plug.
func WithWeightSource(w WeightSource) Option {
	return func(e *Engine) { e.weights = w }
}

// WithGuard sets the execution rule guard.
func WithGuard(g Guard) Option {
	return func(e *Engine) { e.guard = g }
}

// WithEventSink sets the event sink.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.events = s }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over store.
func New(cfg Config, store Store, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, ErrInvalidArgument.Wrap(errors.New("store is required"))
	}

	e := &Engine{
		cfg:    cfg,
		store:  store,
		clock:  clock.Real(),
		hasher: attestation.Keccak256{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With().Str("component", "governance-engine").Logger()
	e.tracer = otel.Tracer(tracerName)

	return e, nil
}

// EntityAddress returns the governed entity's address.
func (e *Engine) EntityAddress() Address {
	return e.cfg.EntityAddress
}

// hasVoteSource reports whether token-weighted resolution is possible.
func (e *Engine) hasVoteSource() bool {
	return e.cfg.GovernanceToken != "" || e.weights != nil
}

// isGovernanceToken reports whether a payment is denominated in the governance token.
func (e *Engine) isGovernanceToken(token TokenID, nonce uint64) bool {
	return e.cfg.GovernanceToken != "" && token == e.cfg.GovernanceToken && nonce == e.cfg.GovernanceTokenNonce
}

// settings returns the stored parameters, falling back to the static configuration.
func (e *Engine) settings(ctx context.Context, tx Tx) (*Settings, error) {
	s, err := tx.GetSettings(ctx)
	if err != nil {
		return nil, internal(fmt.Errorf("failed to load settings: %w", err))
	}
	if s == nil {
		return e.cfg.settings(), nil
	}
	return s, nil
}

// Settings returns the current governance parameters.
func (e *Engine) Settings(ctx context.Context) (*Settings, error) {
	var out *Settings
	err := e.store.View(ctx, func(tx Tx) error {
		s, err := e.settings(ctx, tx)
		if err != nil {
			return err
		}
		out = s.Clone()
		return nil
	})
	return out, err
}

// operation is the per-call bookkeeping shared by every public operation.
type operation struct {
	name   string
	caller Address
	events []Event

	// committed is set once the operation's transaction has committed, so its events are
	// delivered even if a later ledger step fails.
	committed bool
}

func (op *operation) emit(ev Event) {
	op.events = append(op.events, ev)
}

// run executes fn inside a span, records metrics and logs the outcome. Events collected by fn
// are delivered when fn succeeds or after its transaction has committed.
func (e *Engine) run(ctx context.Context, name string, caller Address, attrs []attribute.KeyValue, fn func(ctx context.Context, op *operation) error) error {
	ctx, span := e.tracer.Start(ctx, "governance."+name,
		trace.WithAttributes(append(attrs, attribute.String("caller", string(caller)))...))
	defer span.End()

	op := &operation{name: name, caller: caller}
	start := time.Now()
	err := fn(ctx, op)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		class := ClassOf(err)
		if class == "" {
			class = ErrorClassInternal
		}
		if e.metrics != nil {
			e.metrics.RecordOperation(name, "rejected", duration)
			e.metrics.RecordError(string(class), CodeOf(err))
		}

		evt := e.logger.Warn()
		if class == ErrorClassInternal {
			evt = e.logger.Error()
		}
		evt.Err(err).
			Str("operation", name).
			Str("caller", string(caller)).
			Str("error_class", string(class)).
			Msg("Operation rejected")
		if op.committed {
			e.deliver(op, caller)
		}
		return err
	}

	span.SetStatus(codes.Ok, "")
	if e.metrics != nil {
		e.metrics.RecordOperation(name, "ok", duration)
	}
	e.logger.Debug().
		Str("operation", name).
		Str("caller", string(caller)).
		Dur("duration", duration).
		Msg("Operation completed")

	e.deliver(op, caller)
	return nil
}

func (e *Engine) deliver(op *operation, caller Address) {
	if e.events == nil {
		return
	}
	now := e.clock.Now()
	for _, ev := range op.events {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
		if ev.Caller == "" {
			ev.Caller = caller
		}
		e.events.Emit(ev)
	}
}

// mustGetProposal loads a proposal or fails with ErrProposalNotFound.
func mustGetProposal(ctx context.Context, tx Tx, id uint64) (*Proposal, error) {
	p, err := tx.GetProposal(ctx, id)
	if err != nil {
		return nil, internal(fmt.Errorf("failed to load proposal %d: %w", id, err))
	}
	if p == nil {
		return nil, ErrProposalNotFound.WithDetail("proposal_id", id)
	}
	return p, nil
}

// rolesOf returns the roles held by addr, and its user id (0 if unknown).
func rolesOf(ctx context.Context, tx Tx, addr Address) (uint64, []string, error) {
	id, err := tx.UserID(ctx, addr)
	if err != nil {
		return 0, nil, internal(fmt.Errorf("failed to resolve user: %w", err))
	}
	if id == 0 {
		return 0, nil, nil
	}
	roles, err := tx.UserRoles(ctx, id)
	if err != nil {
		return 0, nil, internal(fmt.Errorf("failed to load user roles: %w", err))
	}
	return id, roles, nil
}

// isLeaderless reports whether the leader role is absent or empty.
func isLeaderless(ctx context.Context, tx Tx) (bool, error) {
	leader, err := tx.GetRole(ctx, RoleLeader)
	if err != nil {
		return false, internal(fmt.Errorf("failed to load leader role: %w", err))
	}
	return leader == nil || leader.MemberCount == 0, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsID(list []uint64, id uint64) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
