package config

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/covenantdao/covenant/pkg/attestation"
	"github.com/covenantdao/covenant/pkg/engine"
	"github.com/covenantdao/covenant/pkg/guard"
	"github.com/covenantdao/covenant/pkg/stores"
	"github.com/covenantdao/covenant/pkg/telemetry"
)

// Engine converts the entity section into an engine configuration. Empty amounts keep the
// engine defaults.
func (c EntityConfig) Engine() (engine.Config, error) {
	cfg := engine.DefaultConfig(engine.Address(c.Address))
	cfg.GovernanceToken = engine.TokenID(c.GovernanceToken)
	cfg.GovernanceTokenNonce = c.GovernanceTokenNonce
	if c.VotingPeriodMinutes > 0 {
		cfg.VotingPeriodMinutes = c.VotingPeriodMinutes
	}

	for _, f := range []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"quorum", c.Quorum, &cfg.Quorum},
		{"min_vote_weight", c.MinVoteWeight, &cfg.MinVoteWeight},
		{"min_propose_weight", c.MinProposeWeight, &cfg.MinProposeWeight},
	} {
		if f.value == "" {
			continue
		}
		v, err := parseAmount(f.value)
		if err != nil {
			return engine.Config{}, fmt.Errorf("invalid entity.%s: %w", f.name, err)
		}
		*f.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return engine.Config{}, fmt.Errorf("invalid entity configuration: %w", err)
	}
	return cfg, nil
}

// Attestation creates the action hash service and the trusted host verifier.
func (c EntityConfig) Attestation() (*attestation.Service, *attestation.Verifier, error) {
	alg, err := attestation.ParseAlgorithm(c.HashAlgorithm)
	if err != nil {
		return nil, nil, err
	}
	svc, err := attestation.NewService(alg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create attestation service: %w", err)
	}
	key, err := attestation.ParsePublicKey(c.TrustedHostKey)
	if err != nil {
		return nil, nil, err
	}
	return svc, attestation.NewVerifier(svc, key), nil
}

// Build converts the genesis section into the engine's genesis registry.
func (g GenesisConfig) Build() (*engine.Genesis, error) {
	out := &engine.Genesis{}

	for _, addr := range g.Leaders {
		out.Leaders = append(out.Leaders, engine.Address(addr))
	}

	for _, r := range g.Roles {
		role := engine.GenesisRole{Name: r.Name}
		for _, m := range r.Members {
			role.Members = append(role.Members, engine.Address(m))
		}
		out.Roles = append(out.Roles, role)
	}

	for _, p := range g.Permissions {
		perm, err := p.build()
		if err != nil {
			return nil, fmt.Errorf("invalid permission %s: %w", p.Name, err)
		}
		out.Permissions = append(out.Permissions, perm)
	}

	for _, p := range g.Policies {
		method, err := engine.ParsePolicyMethod(p.Method)
		if err != nil {
			return nil, fmt.Errorf("invalid policy %s/%s: %w", p.Role, p.Permission, err)
		}
		policy := engine.Policy{
			Role:                p.Role,
			Permission:          p.Permission,
			Method:              method,
			VotingPeriodMinutes: p.VotingPeriodMinutes,
		}
		if p.Quorum != "" {
			if policy.Quorum, err = parseAmount(p.Quorum); err != nil {
				return nil, fmt.Errorf("invalid policy %s/%s quorum: %w", p.Role, p.Permission, err)
			}
		}
		out.Policies = append(out.Policies, policy)
	}

	return out, nil
}

func (p PermissionConfig) build() (engine.Permission, error) {
	perm := engine.Permission{
		Name:        p.Name,
		Destination: engine.Address(p.Destination),
		Endpoint:    p.Endpoint,
	}

	if p.ValueLimit != "" {
		v, err := parseAmount(p.ValueLimit)
		if err != nil {
			return engine.Permission{}, fmt.Errorf("value_limit: %w", err)
		}
		perm.ValueLimit = v
	}

	for i, arg := range p.Arguments {
		raw, err := decodeHex(arg)
		if err != nil {
			return engine.Permission{}, fmt.Errorf("argument %d: %w", i, err)
		}
		perm.Arguments = append(perm.Arguments, raw)
	}

	for _, pay := range p.Payments {
		amount, err := parseAmount(pay.Amount)
		if err != nil {
			return engine.Permission{}, fmt.Errorf("payment %s: %w", pay.Token, err)
		}
		perm.Payments = append(perm.Payments, engine.Payment{
			Token:  engine.TokenID(pay.Token),
			Nonce:  pay.Nonce,
			Amount: amount,
		})
	}

	return perm, nil
}

// Open opens the configured store. SQLite stores are initialized and migrated.
func (c StoreConfig) Open(ctx context.Context) (engine.Store, error) {
	switch c.Driver {
	case "", "memory":
		return stores.NewMemoryStore(), nil
	case "sqlite":
		var lifetime time.Duration
		if c.ConnMaxLifetime != "" {
			d, err := time.ParseDuration(c.ConnMaxLifetime)
			if err != nil {
				return nil, fmt.Errorf("invalid store.conn_max_lifetime: %w", err)
			}
			lifetime = d
		}

		store, err := stores.NewSQLiteStore(stores.Config{
			Path:            c.Path,
			MaxOpenConns:    c.MaxOpenConns,
			MaxIdleConns:    c.MaxIdleConns,
			ConnMaxLifetime: lifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite store: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to migrate sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", c.Driver)
	}
}

// Build creates the guard, or returns nil when the guard is disabled. With Watch set, custom
// rules are reloaded until ctx is done or the guard is closed.
func (c GuardConfig) Build(ctx context.Context, logger zerolog.Logger) (*guard.Guard, error) {
	if !c.Enabled {
		return nil, nil
	}

	g, err := guard.New(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create guard: %w", err)
	}

	if len(c.Paths) > 0 {
		if c.Watch {
			err = g.Watch(ctx, c.Paths)
		} else {
			err = g.LoadRules(ctx, c.Paths)
		}
		if err != nil {
			g.Close()
			return nil, err
		}
	}

	for _, name := range c.DisabledRules {
		if err := g.DisableRule(name); err != nil {
			g.Close()
			return nil, err
		}
	}
	return g, nil
}

// Build converts the telemetry section into a telemetry configuration.
func (c TelemetryConfig) Build(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if c.Environment == "production" {
		cfg = telemetry.ProductionConfig()
	}
	cfg.ServiceVersion = version

	if c.Environment != "" {
		cfg.Environment = c.Environment
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Logging.Format = c.LogFormat
	}
	if c.LogOutput != "" {
		cfg.Logging.Output = c.LogOutput
	}

	cfg.Metrics.Enabled = c.MetricsEnabled
	if c.MetricsAddress != "" {
		cfg.Metrics.ListenAddress = c.MetricsAddress
	}
	if c.MetricsPath != "" {
		cfg.Metrics.Path = c.MetricsPath
	}

	cfg.Tracing.Enabled = c.TracingEnabled
	if c.TracingExporter != "" {
		cfg.Tracing.Exporter = c.TracingExporter
	}
	if c.TracingEndpoint != "" {
		cfg.Tracing.Endpoint = c.TracingEndpoint
	}
	cfg.Tracing.Insecure = c.TracingInsecure
	cfg.Tracing.SamplingRate = c.SamplingRate

	if c.EventsBufferSize > 0 {
		cfg.Events.BufferSize = c.EventsBufferSize
	}
	return cfg
}

func parseAmount(s string) (*big.Int, error) {
	if !isAmount(s) {
		return nil, fmt.Errorf("not a non-negative decimal amount: %q", s)
	}
	v, _ := new(big.Int).SetString(s, 10)
	return v, nil
}
