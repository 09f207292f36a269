package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ConfigSchema is the name of the built-in node configuration schema.
const ConfigSchema = "config"

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(ConfigSchema, builtinConfigSchema); err != nil {
		panic(fmt.Sprintf("built-in config schema: %v", err))
	}

	return sr
}

// Context returns the CUE context schemas are compiled in.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// RegisterSchema compiles and registers a CUE schema under name, replacing any
// schema of the same name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Definition looks up a definition such as "#Config" in a registered schema.
func (sr *SchemaRegistry) Definition(schemaName, def string) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}
	v := schema.LookupPath(cue.ParsePath(def))
	if !v.Exists() {
		return cue.Value{}, fmt.Errorf("definition %s not found in schema %s", def, schemaName)
	}
	return v, nil
}

// ValidateAgainstSchema validates data against a definition of a named schema.
// Data is encoded through its json tags.
func (sr *SchemaRegistry) ValidateAgainstSchema(schemaName, def string, data interface{}) error {
	schema, err := sr.Definition(schemaName, def)
	if err != nil {
		return err
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateConfig checks a configuration against the built-in #Config definition.
func (sr *SchemaRegistry) ValidateConfig(cfg *Config) error {
	return sr.ValidateAgainstSchema(ConfigSchema, "#Config", cfg)
}

// ListSchemas returns all registered schema names in sorted order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinConfigSchema = `
// Amount is a non-negative decimal integer.
#Amount: =~"^[0-9]+$"

// Hex is a hex encoded byte string with an optional 0x prefix.
#Hex: =~"^(0x)?([0-9a-fA-F]{2})*$"

// Duration is a Go duration string such as "5m" or "1h30m".
#Duration: =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"

#Config: {
	entity:     #Entity
	store:      #Store
	guard?:     #Guard
	telemetry?: #Telemetry
	genesis?:   #Genesis
}

#Entity: {
	address:                 string & !=""
	governance_token?:       string
	governance_token_nonce?: int & >=0
	quorum?:                 #Amount & !~"^0+$"
	min_vote_weight?:        #Amount
	min_propose_weight?:     #Amount
	voting_period_minutes?:  int & >=0
	trusted_host_key?:       =~"^[0-9a-fA-F]{64}$"
	hash_algorithm?:         "keccak256" | "blake3"
}

#Store: {
	driver:             "memory" | "sqlite"
	path?:              string
	max_open_conns?:    int & >=0
	max_idle_conns?:    int & >=0
	conn_max_lifetime?: #Duration

	if driver == "sqlite" {
		path: string & !=""
	}
}

#Guard: {
	enabled?:        bool
	paths?:          [...string & !=""]
	watch?:          bool
	disabled_rules?: [...string & !=""]
}

#Telemetry: {
	environment?:        string
	log_level?:          "trace" | "debug" | "info" | "warn" | "error" | "fatal"
	log_format?:         "console" | "json"
	log_output?:         string
	metrics_enabled?:    bool
	metrics_address?:    string
	metrics_path?:       =~"^/"
	tracing_enabled?:    bool
	tracing_exporter?:   "otlp" | "stdout" | "none"
	tracing_endpoint?:   string
	tracing_insecure?:   bool
	sampling_rate?:      number & >=0 & <=1
	events_buffer_size?: int & >=0
}

#Genesis: {
	leaders?:     [...string & !=""]
	roles?:       [...#Role]
	permissions?: [...#Permission]
	policies?:    [...#Policy]
}

#Role: {
	name:     string & !=""
	members?: [...string & !=""]
}

#Permission: {
	name:         string & !=""
	value_limit?: #Amount
	destination?: string
	endpoint?:    string
	arguments?:   [...#Hex]
	payments?:    [...#Payment]
}

#Payment: {
	token:  string & !=""
	nonce?: int & >=0
	amount: #Amount
}

#Policy: {
	role:                   string & !=""
	permission:             string & !=""
	method:                 "weight" | "one" | "all" | "quorum"
	quorum?:                #Amount
	voting_period_minutes?: int & >=0
}
`
