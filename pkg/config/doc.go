// Package config loads and validates the configuration of a covenant node.
//
// # Overview
//
// A node is configured from a single file plus environment overrides. The file
// format follows its extension:
//
//   - .yaml / .yml: decoded with gopkg.in/yaml.v3, unknown keys rejected
//   - .toml: decoded with BurntSushi/toml, undecoded keys rejected
//   - .json: decoded with encoding/json, unknown fields rejected
//   - .cue: compiled with CUE and unified with the #Config schema, so type errors
//     carry file, line and column
//
// After the file is decoded, variables prefixed with COVENANT_ override the
// entity, store, guard and telemetry sections (COVENANT_ENTITY_ADDRESS,
// COVENANT_STORE_DRIVER, COVENANT_TELEMETRY_LOG_LEVEL, ...). The genesis section
// is file-only.
//
// # Validation
//
// The merged configuration is checked twice: struct tag rules through
// go-playground/validator, including the custom amount, hexbytes and duration
// tags, and the built-in CUE #Config definition. Failures are reported as
// ValidationErrors with the snake_case field path of each problem:
//
//	cfg, err := config.Load("covenant.yaml")
//	var verrs config.ValidationErrors
//	if errors.As(err, &verrs) {
//	    for _, e := range verrs {
//	        fmt.Println(e.Path, e.Message)
//	    }
//	}
//
// # Building components
//
// Each section converts into the value its package expects:
//
//	engCfg, err := cfg.Entity.Engine()
//	svc, verifier, err := cfg.Entity.Attestation()
//	store, err := cfg.Store.Open(ctx)
//	g, err := cfg.Guard.Build(ctx, logger)
//	genesis, err := cfg.Genesis.Build()
//	telCfg := cfg.Telemetry.Build(version)
//
// # Example
//
//	entity:
//	  address: erd1qqqqqqqqqqqqqpgq
//	  governance_token: GOV-a1b2c3
//	  quorum: "1000000"
//	  voting_period_minutes: 4320
//	store:
//	  driver: sqlite
//	  path: /var/lib/covenant/covenant.db
//	guard:
//	  enabled: true
//	  paths: [/etc/covenant/rules]
//	  watch: true
//	genesis:
//	  leaders: [erd1alice]
//	  roles:
//	    - name: council
//	      members: [erd1bob, erd1carol]
//	  permissions:
//	    - name: pay-vendor
//	      destination: erd1vendor
//	      payments:
//	        - token: USDC-1a2b3c
//	          amount: "5000"
//	  policies:
//	    - role: council
//	      permission: pay-vendor
//	      method: quorum
//	      quorum: "2"
package config
