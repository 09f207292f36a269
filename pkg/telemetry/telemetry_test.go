package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/covenantdao/covenant/pkg/clock"
	"github.com/covenantdao/covenant/pkg/engine"
	"github.com/covenantdao/covenant/pkg/ledger"
	"github.com/covenantdao/covenant/pkg/stores"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "default", modify: func(*Config) {}},
		{name: "production needs endpoint", modify: func(c *Config) { *c = *ProductionConfig() }, wantErr: true},
		{name: "production with endpoint", modify: func(c *Config) {
			*c = *ProductionConfig()
			c.Tracing.Endpoint = "collector:4317"
		}},
		{name: "missing service", modify: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "bad level", modify: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", modify: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", modify: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, wantErr: true},
		{name: "bad sampling", modify: func(c *Config) { c.Tracing.SamplingRate = 1.5 }, wantErr: true},
		{name: "no buffer", modify: func(c *Config) { c.Events.BufferSize = 0 }, wantErr: true},
		{name: "metrics without address", modify: func(c *Config) { c.Metrics.ListenAddress = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LoggingConfig{Level: "debug", Format: "json"})

	logger.NewComponentLogger("cli").
		WithProposalID(12).
		WithCaller("erd1alice").
		WithOperation("vote").
		Info("Vote cast")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log line %q: %v", buf.String(), err)
	}

	want := map[string]interface{}{
		"component":   "cli",
		"proposal_id": float64(12),
		"caller":      "erd1alice",
		"operation":   "vote",
		"message":     "Vote cast",
		"level":       "info",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("Field %s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LoggingConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("Unexpected output for warn level: %s", buf.String())
	}
}

func TestFromContextWithoutLogger(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("Expected a fallback logger")
	}
	logger.Info("discarded")
}

func TestEngineOptionsWireTelemetry(t *testing.T) {
	ctx := context.Background()

	var logs bytes.Buffer
	cfg := DefaultConfig()
	cfg.Events.EnableAsync = false
	tel, err := newTelemetry(cfg, NewLoggerWithWriter(&logs, LoggingConfig{Level: "debug", Format: "json"}))
	if err != nil {
		t.Fatalf("Failed to create telemetry: %v", err)
	}
	defer tel.Shutdown(ctx)

	var published []Event
	tel.Events.Subscribe(func(e Event) { published = append(published, e) }, nil)

	opts := append(tel.EngineOptions(),
		engine.WithLedger(ledger.NewMemoryLedger(zerolog.Nop())),
		engine.WithClock(clock.NewFake(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))),
	)
	eng, err := engine.New(engine.DefaultConfig("erd1entity"), stores.NewMemoryStore(), opts...)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if err := eng.Bootstrap(ctx, &engine.Genesis{Leaders: []engine.Address{"erd1leader"}}); err != nil {
		t.Fatalf("Failed to bootstrap: %v", err)
	}

	if err := eng.CreateRole(ctx, "erd1outsider", "council"); err == nil {
		t.Fatal("Registry changes from outside the entity should be rejected")
	}

	if got := testutil.ToFloat64(tel.Metrics.operations.WithLabelValues("create_role", "rejected")); got != 1 {
		t.Errorf("Expected 1 rejected create_role, got %v", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.errorsByClass.WithLabelValues(string(engine.ErrorClassAuthorization))); got != 1 {
		t.Errorf("Expected 1 authorization error, got %v", got)
	}
	if !strings.Contains(logs.String(), `"component":"governance-engine"`) {
		t.Errorf("Expected engine logs in the telemetry logger, got %s", logs.String())
	}
	if len(published) == 0 {
		t.Fatal("Expected bootstrap events to be published")
	}
	for _, e := range published {
		if e.Source != "governance-engine" || e.ID == "" {
			t.Errorf("Unexpected published event: %+v", e)
		}
	}
}

func TestConfigValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	cfg.Events.MaxBatchSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected a validation error")
	}
	for _, want := range []string{"invalid log level", "event batch size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in %v", want, err)
		}
	}
}

func TestResourceAttributesCarryEntity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Entity = "erd1entity"
	cfg.ResourceAttributes["region"] = "eu-west"

	found := map[string]string{}
	for _, kv := range resourceAttributes(cfg) {
		found[string(kv.Key)] = kv.Value.Emit()
	}
	if found[string(AttrEntity)] != "erd1entity" {
		t.Errorf("Expected entity attribute, got %v", found)
	}
	if found["region"] != "eu-west" || found["service.name"] != "covenant" {
		t.Errorf("Unexpected resource attributes: %v", found)
	}
}
