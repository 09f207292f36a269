package config

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. COVENANT_ENTITY_ADDRESS.
const EnvPrefix = "COVENANT"

// DefaultConfig returns a configuration with an in-memory store and the default telemetry
// settings. The entity address has no default.
func DefaultConfig() *Config {
	return &Config{
		Entity: EntityConfig{
			Quorum:           "1",
			MinVoteWeight:    "1",
			MinProposeWeight: "1",
			HashAlgorithm:    "keccak256",
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Telemetry: TelemetryConfig{
			Environment:      "development",
			LogLevel:         "info",
			LogFormat:        "console",
			LogOutput:        "stderr",
			MetricsEnabled:   false,
			MetricsAddress:   ":9090",
			MetricsPath:      "/metrics",
			TracingExporter:  "none",
			SamplingRate:     1.0,
			EventsBufferSize: 1024,
		},
	}
}

// Loader reads configuration files, applies environment overrides and validates the result.
type Loader struct {
	schemas  *SchemaRegistry
	cue      *CUEParser
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewLoader creates a loader.
func NewLoader(logger zerolog.Logger) *Loader {
	schemas := NewSchemaRegistry()
	return &Loader{
		schemas:  schemas,
		cue:      NewCUEParser(schemas),
		validate: newValidator(),
		logger:   logger.With().Str("component", "config").Logger(),
	}
}

// Load reads the configuration at path. An empty path loads the defaults. Environment
// overrides are applied on top of the file before validation.
func Load(path string) (*Config, error) {
	return NewLoader(zerolog.Nop()).Load(path)
}

// Load reads the configuration at path. The format follows the file extension:
// .yaml, .yml, .toml, .json or .cue.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := l.decodeFile(path, cfg); err != nil {
			return nil, err
		}
		l.logger.Debug().Str("path", path).Msg("Configuration file loaded")
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) decodeFile(path string, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
		}
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case ".cue":
		if err := l.cue.ParseFile(path, cfg); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported config format %q for %s", ext, path)
	}
	return nil
}

// Validate checks cfg with struct tag rules and then against the #Config CUE schema.
func (l *Loader) Validate(cfg *Config) error {
	if err := l.validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return convertFieldErrors(fieldErrs)
		}
		return fmt.Errorf("failed to validate config: %w", err)
	}

	if err := l.schemas.ValidateConfig(cfg); err != nil {
		return convertCUEErrors(err)
	}
	return nil
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Registration only fails for empty tags or nil functions.
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		return isAmount(fl.Field().String())
	})
	_ = v.RegisterValidation("hexbytes", func(fl validator.FieldLevel) bool {
		_, err := decodeHex(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})

	return v
}

func convertFieldErrors(fieldErrs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		msg := fmt.Sprintf("failed on %s", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed on %s=%s", fe.Tag(), fe.Param())
		}
		out = append(out, ValidationError{Path: path, Message: msg})
	}
	return out
}

func isAmount(s string) bool {
	if s == "" || s[0] == '-' || s[0] == '+' {
		return false
	}
	_, ok := new(big.Int).SetString(s, 10)
	return ok
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
