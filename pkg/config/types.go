package config

import (
	"fmt"
	"strings"
)

// Config is the service configuration of a covenant node.
type Config struct {
	// Entity holds the static parameters of the governed entity.
	Entity EntityConfig `json:"entity" yaml:"entity" toml:"entity"`

	// Store selects and configures the state store.
	Store StoreConfig `json:"store" yaml:"store" toml:"store"`

	// Guard configures the execution rule guard.
	Guard GuardConfig `json:"guard" yaml:"guard" toml:"guard"`

	// Telemetry configures logging, metrics, tracing and events.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry" toml:"telemetry"`

	// Genesis is the initial registry applied by the bootstrap command.
	Genesis GenesisConfig `json:"genesis" yaml:"genesis" toml:"genesis" ignored:"true"`
}

// EntityConfig holds the static parameters of the governed entity.
type EntityConfig struct {
	// Address is the entity's own address.
	Address string `json:"address" yaml:"address" toml:"address" validate:"required" split_words:"true"`

	// GovernanceToken is the token locked by votes. Empty selects an external weight source.
	GovernanceToken string `json:"governance_token,omitempty" yaml:"governance_token" toml:"governance_token" split_words:"true"`

	// GovernanceTokenNonce is the nonce of the governance token.
	GovernanceTokenNonce uint64 `json:"governance_token_nonce,omitempty" yaml:"governance_token_nonce" toml:"governance_token_nonce" split_words:"true"`

	// Quorum is the initial global quorum as a decimal string.
	Quorum string `json:"quorum,omitempty" yaml:"quorum" toml:"quorum" validate:"omitempty,amount"`

	// MinVoteWeight is the initial minimum vote weight as a decimal string.
	MinVoteWeight string `json:"min_vote_weight,omitempty" yaml:"min_vote_weight" toml:"min_vote_weight" validate:"omitempty,amount" split_words:"true"`

	// MinProposeWeight is the initial minimum propose weight as a decimal string.
	MinProposeWeight string `json:"min_propose_weight,omitempty" yaml:"min_propose_weight" toml:"min_propose_weight" validate:"omitempty,amount" split_words:"true"`

	// VotingPeriodMinutes is the initial default voting window.
	VotingPeriodMinutes uint64 `json:"voting_period_minutes,omitempty" yaml:"voting_period_minutes" toml:"voting_period_minutes" split_words:"true"`

	// TrustedHostKey is the hex encoded ed25519 key of the trusted host, if any.
	TrustedHostKey string `json:"trusted_host_key,omitempty" yaml:"trusted_host_key" toml:"trusted_host_key" validate:"omitempty,hexbytes,len=64" split_words:"true"`

	// HashAlgorithm is the action hash, keccak256 or blake3.
	HashAlgorithm string `json:"hash_algorithm,omitempty" yaml:"hash_algorithm" toml:"hash_algorithm" validate:"omitempty,oneof=keccak256 blake3" split_words:"true"`
}

// StoreConfig selects and configures the state store.
type StoreConfig struct {
	// Driver is memory or sqlite.
	Driver string `json:"driver" yaml:"driver" toml:"driver" validate:"required,oneof=memory sqlite"`

	// Path is the SQLite database file.
	Path string `json:"path,omitempty" yaml:"path" toml:"path" validate:"required_if=Driver sqlite"`

	// MaxOpenConns is the SQLite connection pool size.
	MaxOpenConns int `json:"max_open_conns,omitempty" yaml:"max_open_conns" toml:"max_open_conns" validate:"gte=0" split_words:"true"`

	// MaxIdleConns is the number of idle SQLite connections kept.
	MaxIdleConns int `json:"max_idle_conns,omitempty" yaml:"max_idle_conns" toml:"max_idle_conns" validate:"gte=0" split_words:"true"`

	// ConnMaxLifetime is a duration string such as "5m".
	ConnMaxLifetime string `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime" toml:"conn_max_lifetime" validate:"omitempty,duration" split_words:"true"`
}

// GuardConfig configures the execution rule guard.
type GuardConfig struct {
	// Enabled installs the guard in the engine.
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// Paths are .rego files, JSON bundles or directories of them.
	Paths []string `json:"paths,omitempty" yaml:"paths" toml:"paths" validate:"dive,required"`

	// Watch reloads custom rules when their files change.
	Watch bool `json:"watch" yaml:"watch" toml:"watch"`

	// DisabledRules names rules, built-in or custom, that start disabled.
	DisabledRules []string `json:"disabled_rules,omitempty" yaml:"disabled_rules" toml:"disabled_rules" validate:"dive,required" split_words:"true"`
}

// TelemetryConfig configures logging, metrics, tracing and events.
type TelemetryConfig struct {
	// Environment labels traces (development, production).
	Environment string `json:"environment,omitempty" yaml:"environment" toml:"environment"`

	// LogLevel is trace, debug, info, warn, error or fatal.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level" toml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal" split_words:"true"`

	// LogFormat is console or json.
	LogFormat string `json:"log_format,omitempty" yaml:"log_format" toml:"log_format" validate:"omitempty,oneof=console json" split_words:"true"`

	// LogOutput is stdout, stderr or a file path.
	LogOutput string `json:"log_output,omitempty" yaml:"log_output" toml:"log_output" split_words:"true"`

	// MetricsEnabled serves Prometheus metrics.
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled" toml:"metrics_enabled" split_words:"true"`

	// MetricsAddress is the metrics listen address.
	MetricsAddress string `json:"metrics_address,omitempty" yaml:"metrics_address" toml:"metrics_address" validate:"required_if=MetricsEnabled true" split_words:"true"`

	// MetricsPath is the HTTP path of the metrics endpoint.
	MetricsPath string `json:"metrics_path,omitempty" yaml:"metrics_path" toml:"metrics_path" split_words:"true"`

	// TracingEnabled exports OpenTelemetry traces.
	TracingEnabled bool `json:"tracing_enabled" yaml:"tracing_enabled" toml:"tracing_enabled" split_words:"true"`

	// TracingExporter is otlp, stdout or none.
	TracingExporter string `json:"tracing_exporter,omitempty" yaml:"tracing_exporter" toml:"tracing_exporter" validate:"omitempty,oneof=otlp stdout none" split_words:"true"`

	// TracingEndpoint is the OTLP collector address.
	TracingEndpoint string `json:"tracing_endpoint,omitempty" yaml:"tracing_endpoint" toml:"tracing_endpoint" validate:"required_if=TracingExporter otlp" split_words:"true"`

	// TracingInsecure disables TLS towards the collector.
	TracingInsecure bool `json:"tracing_insecure" yaml:"tracing_insecure" toml:"tracing_insecure" split_words:"true"`

	// SamplingRate is the trace sampling ratio.
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" toml:"sampling_rate" validate:"gte=0,lte=1" split_words:"true"`

	// EventsBufferSize is the governance event buffer size.
	EventsBufferSize int `json:"events_buffer_size,omitempty" yaml:"events_buffer_size" toml:"events_buffer_size" validate:"gte=0" split_words:"true"`
}

// GenesisConfig is the initial registry of the entity.
type GenesisConfig struct {
	// Leaders are assigned the built-in leader role.
	Leaders []string `json:"leaders,omitempty" yaml:"leaders" toml:"leaders" validate:"dive,required"`

	// Roles are created with their initial members.
	Roles []RoleConfig `json:"roles,omitempty" yaml:"roles" toml:"roles" validate:"dive"`

	// Permissions are created before policies.
	Permissions []PermissionConfig `json:"permissions,omitempty" yaml:"permissions" toml:"permissions" validate:"dive"`

	// Policies bind roles to permissions.
	Policies []PolicyConfig `json:"policies,omitempty" yaml:"policies" toml:"policies" validate:"dive"`
}

// RoleConfig is a genesis role.
type RoleConfig struct {
	Name    string   `json:"name" yaml:"name" toml:"name" validate:"required"`
	Members []string `json:"members,omitempty" yaml:"members" toml:"members" validate:"dive,required"`
}

// PermissionConfig is a genesis permission.
type PermissionConfig struct {
	// Name identifies the permission.
	Name string `json:"name" yaml:"name" toml:"name" validate:"required"`

	// ValueLimit caps the native value of a matching action. Empty or zero means unlimited.
	ValueLimit string `json:"value_limit,omitempty" yaml:"value_limit" toml:"value_limit" validate:"omitempty,amount"`

	// Destination restricts the target address; empty matches any.
	Destination string `json:"destination,omitempty" yaml:"destination" toml:"destination"`

	// Endpoint restricts the called endpoint; empty matches any.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint" toml:"endpoint"`

	// Arguments are the hex encoded leading arguments a matching action must carry.
	Arguments []string `json:"arguments,omitempty" yaml:"arguments" toml:"arguments" validate:"dive,hexbytes"`

	// Payments are per-token limits.
	Payments []PaymentConfig `json:"payments,omitempty" yaml:"payments" toml:"payments" validate:"dive"`
}

// PaymentConfig is a token amount.
type PaymentConfig struct {
	Token  string `json:"token" yaml:"token" toml:"token" validate:"required"`
	Nonce  uint64 `json:"nonce,omitempty" yaml:"nonce" toml:"nonce"`
	Amount string `json:"amount" yaml:"amount" toml:"amount" validate:"required,amount"`
}

// PolicyConfig is a genesis policy.
type PolicyConfig struct {
	Role       string `json:"role" yaml:"role" toml:"role" validate:"required"`
	Permission string `json:"permission" yaml:"permission" toml:"permission" validate:"required"`

	// Method is weight, one, all or quorum.
	Method string `json:"method" yaml:"method" toml:"method" validate:"required,oneof=weight one all quorum"`

	// Quorum is a token weight for weight policies and a signer count for quorum policies.
	Quorum string `json:"quorum,omitempty" yaml:"quorum" toml:"quorum" validate:"omitempty,amount"`

	// VotingPeriodMinutes overrides the default voting window for proposals under this policy.
	VotingPeriodMinutes uint64 `json:"voting_period_minutes,omitempty" yaml:"voting_period_minutes" toml:"voting_period_minutes"`
}

// ValidationError represents a configuration error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path of the error (e.g., "genesis.policies.0.method").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	var loc string
	switch {
	case e.File != "" && e.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", e.File, e.Line, e.Column)
	case e.File != "":
		loc = e.File + ": "
	}
	if e.Path != "" {
		return fmt.Sprintf("%s%s: %s", loc, e.Path, e.Message)
	}
	return loc + e.Message
}

// ValidationErrors collects every problem found in a configuration.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d configuration errors: %s", len(errs), strings.Join(msgs, "; "))
}
