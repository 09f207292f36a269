package config

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
)

// CUEParser parses CUE configuration files against the #Config schema.
type CUEParser struct {
	schemas *SchemaRegistry
}

// NewCUEParser creates a new CUE parser backed by schemas.
func NewCUEParser(schemas *SchemaRegistry) *CUEParser {
	if schemas == nil {
		schemas = NewSchemaRegistry()
	}
	return &CUEParser{schemas: schemas}
}

// ParseFile parses a .cue file into cfg. Fields the file leaves out keep their current
// values, so required fields may still arrive from the environment.
func (cp *CUEParser) ParseFile(path string, cfg *Config) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return cp.parse(string(content), path, cfg)
}

// ParseInline parses inline CUE content into cfg.
func (cp *CUEParser) ParseInline(content string, cfg *Config) error {
	return cp.parse(content, "inline", cfg)
}

func (cp *CUEParser) parse(content, filename string, cfg *Config) error {
	val := cp.schemas.Context().CompileString(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return convertCUEErrors(err)
	}

	schema, err := cp.schemas.Definition(ConfigSchema, "#Config")
	if err != nil {
		return err
	}

	// Types and closedness are checked here with positions. Completeness is checked once
	// environment overrides have been applied.
	if err := schema.Unify(val).Validate(); err != nil {
		return convertCUEErrors(err)
	}

	if err := val.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config %s: %w", filename, err)
	}
	return nil
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		format, args := e.Msg()
		validationErrors = append(validationErrors, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}

	if len(validationErrors) == 0 {
		validationErrors = append(validationErrors, ValidationError{Message: err.Error()})
	}
	return validationErrors
}
