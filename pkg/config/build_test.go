package config

import (
	"context"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/covenantdao/covenant/pkg/attestation"
	"github.com/covenantdao/covenant/pkg/engine"
	"github.com/covenantdao/covenant/pkg/stores"
)

func TestEntityConfig_Engine(t *testing.T) {
	c := EntityConfig{
		Address:              "erd1entity",
		GovernanceToken:      "GOV-abcdef",
		GovernanceTokenNonce: 3,
		Quorum:               "1000",
		MinVoteWeight:        "10",
		VotingPeriodMinutes:  90,
	}

	cfg, err := c.Engine()
	if err != nil {
		t.Fatalf("Engine() error = %v", err)
	}
	if cfg.EntityAddress != "erd1entity" || cfg.GovernanceToken != "GOV-abcdef" || cfg.GovernanceTokenNonce != 3 {
		t.Errorf("unexpected identity fields: %+v", cfg)
	}
	if cfg.Quorum.Cmp(big.NewInt(1000)) != 0 || cfg.MinVoteWeight.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("unexpected amounts: quorum %s, min vote %s", cfg.Quorum, cfg.MinVoteWeight)
	}
	if cfg.MinProposeWeight.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("expected default min propose weight, got %s", cfg.MinProposeWeight)
	}
	if cfg.VotingPeriodMinutes != 90 {
		t.Errorf("expected voting period 90, got %d", cfg.VotingPeriodMinutes)
	}

	c.Quorum = "0"
	if _, err := c.Engine(); err == nil {
		t.Error("expected a zero quorum to be rejected")
	}
}

func TestEntityConfig_Attestation(t *testing.T) {
	svc, verifier, err := EntityConfig{HashAlgorithm: "blake3"}.Attestation()
	if err != nil {
		t.Fatalf("Attestation() error = %v", err)
	}
	if svc.Algorithm() != attestation.AlgorithmBlake3 {
		t.Errorf("expected blake3, got %s", svc.Algorithm())
	}
	if verifier.Enabled() {
		t.Error("verifier without a key should be disabled")
	}

	key := strings.Repeat("ab", 32)
	_, verifier, err = EntityConfig{TrustedHostKey: key}.Attestation()
	if err != nil {
		t.Fatalf("Attestation() error = %v", err)
	}
	if !verifier.Enabled() {
		t.Error("verifier with a key should be enabled")
	}

	if _, _, err := (EntityConfig{HashAlgorithm: "md5"}).Attestation(); err == nil {
		t.Error("expected an unsupported algorithm error")
	}
}

func TestGenesisConfig_Build(t *testing.T) {
	g := GenesisConfig{
		Leaders: []string{"erd1alice"},
		Roles:   []RoleConfig{{Name: "council", Members: []string{"erd1bob"}}},
		Permissions: []PermissionConfig{{
			Name:        "pay-vendor",
			ValueLimit:  "0",
			Destination: "erd1vendor",
			Endpoint:    "pay",
			Arguments:   []string{"0x0a0b", "ff"},
			Payments:    []PaymentConfig{{Token: "USDC-1a2b3c", Nonce: 0, Amount: "500"}},
		}},
		Policies: []PolicyConfig{
			{Role: "council", Permission: "pay-vendor", Method: "Quorum", Quorum: "2", VotingPeriodMinutes: 60},
			{Role: "leader", Permission: "pay-vendor", Method: "one"},
		},
	}

	out, err := g.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(out.Leaders) != 1 || out.Leaders[0] != "erd1alice" {
		t.Errorf("unexpected leaders: %v", out.Leaders)
	}
	if len(out.Roles) != 1 || out.Roles[0].Members[0] != "erd1bob" {
		t.Errorf("unexpected roles: %+v", out.Roles)
	}

	perm := out.Permissions[0]
	if perm.Destination != "erd1vendor" || perm.Endpoint != "pay" {
		t.Errorf("unexpected permission: %+v", perm)
	}
	if len(perm.Arguments) != 2 || perm.Arguments[0][1] != 0x0b || perm.Arguments[1][0] != 0xff {
		t.Errorf("unexpected arguments: %x", perm.Arguments)
	}
	if len(perm.Payments) != 1 || perm.Payments[0].Amount.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("unexpected payments: %+v", perm.Payments)
	}

	if out.Policies[0].Method != engine.MethodQuorum || out.Policies[0].Quorum.Cmp(big.NewInt(2)) != 0 {
		t.Errorf("unexpected quorum policy: %+v", out.Policies[0])
	}
	if out.Policies[1].Method != engine.MethodOne || out.Policies[1].Quorum != nil {
		t.Errorf("unexpected one policy: %+v", out.Policies[1])
	}

	bad := GenesisConfig{Policies: []PolicyConfig{{Role: "r", Permission: "p", Method: "most"}}}
	if _, err := bad.Build(); err == nil {
		t.Error("expected an invalid method error")
	}
}

func TestGenesisBootstrapsEngine(t *testing.T) {
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Entity.Address = "erd1entity"
	cfg.Genesis = GenesisConfig{
		Leaders:     []string{"erd1alice"},
		Roles:       []RoleConfig{{Name: "council", Members: []string{"erd1bob", "erd1carol"}}},
		Permissions: []PermissionConfig{{Name: "pay-vendor", Destination: "erd1vendor"}},
		Policies:    []PolicyConfig{{Role: "council", Permission: "pay-vendor", Method: "all"}},
	}

	engCfg, err := cfg.Entity.Engine()
	if err != nil {
		t.Fatalf("Engine() error = %v", err)
	}
	store, err := cfg.Store.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	eng, err := engine.New(engCfg, store)
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	genesis, err := cfg.Genesis.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := eng.Bootstrap(ctx, genesis); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	members, err := eng.RoleMembers(ctx, "council")
	if err != nil {
		t.Fatalf("RoleMembers() error = %v", err)
	}
	if len(members) != 2 {
		t.Errorf("expected 2 council members, got %v", members)
	}
	policies, err := eng.Policies(ctx)
	if err != nil {
		t.Fatalf("Policies() error = %v", err)
	}
	if len(policies) != 1 || policies[0].Method != engine.MethodAll {
		t.Errorf("unexpected policies: %+v", policies)
	}
}

func TestStoreConfig_Open(t *testing.T) {
	ctx := context.Background()

	mem, err := StoreConfig{Driver: "memory"}.Open(ctx)
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := mem.(*stores.MemoryStore); !ok {
		t.Errorf("expected a memory store, got %T", mem)
	}
	mem.Close()

	sqlite, err := StoreConfig{
		Driver:          "sqlite",
		Path:            filepath.Join(t.TempDir(), "covenant.db"),
		ConnMaxLifetime: "1m",
	}.Open(ctx)
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	defer sqlite.Close()

	s, ok := sqlite.(*stores.SQLiteStore)
	if !ok {
		t.Fatalf("expected a sqlite store, got %T", sqlite)
	}
	if _, dirty, err := s.SchemaVersion(ctx); err != nil || dirty {
		t.Errorf("expected a clean migrated schema, dirty=%v err=%v", dirty, err)
	}

	if _, err := (StoreConfig{Driver: "etcd"}).Open(ctx); err == nil {
		t.Error("expected an unsupported driver error")
	}
}

func TestGuardConfig_Build(t *testing.T) {
	ctx := context.Background()

	g, err := GuardConfig{}.Build(ctx, zerolog.Nop())
	if err != nil || g != nil {
		t.Fatalf("disabled guard should build to nil, got %v, %v", g, err)
	}

	g, err = GuardConfig{Enabled: true, DisabledRules: []string{"destination-required"}}.Build(ctx, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer g.Close()

	rule, err := g.GetRule("destination-required")
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if rule.Enabled {
		t.Error("expected destination-required to be disabled")
	}

	if _, err := (GuardConfig{Enabled: true, DisabledRules: []string{"no-such-rule"}}).Build(ctx, zerolog.Nop()); err == nil {
		t.Error("expected an unknown rule error")
	}
}

func TestTelemetryConfig_Build(t *testing.T) {
	c := DefaultConfig().Telemetry
	c.LogLevel = "debug"
	c.MetricsEnabled = true
	c.MetricsAddress = ":9191"
	c.TracingEnabled = true
	c.TracingExporter = "stdout"
	c.SamplingRate = 0.5
	c.EventsBufferSize = 64

	cfg := c.Build("1.2.3")
	if cfg.ServiceVersion != "1.2.3" || cfg.Logging.Level != "debug" {
		t.Errorf("unexpected service or logging: %+v", cfg)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.ListenAddress != ":9191" {
		t.Errorf("unexpected metrics: %+v", cfg.Metrics)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "stdout" || cfg.Tracing.SamplingRate != 0.5 {
		t.Errorf("unexpected tracing: %+v", cfg.Tracing)
	}
	if cfg.Events.BufferSize != 64 {
		t.Errorf("expected buffer 64, got %d", cfg.Events.BufferSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("built telemetry config should validate: %v", err)
	}
}
