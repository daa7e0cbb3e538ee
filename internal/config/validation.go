package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"rpmirror/internal/backend"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

//go:embed config.schema.json
var schemaJSON []byte

const schemaURL = "config.schema.json"

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// ValidateDocument checks a YAML configuration document against the
// configuration schema. An empty document is valid.
func ValidateDocument(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	raw, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("convert to JSON: %w", err)
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload == nil {
		return nil
	}
	return schema.Validate(payload)
}

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks the options needed to report. With requireBackend unset
// the connection settings are not checked (dry runs).
func (c Config) Validate(requireBackend bool) error {
	var errs ValidationErrors

	if requireBackend {
		if strings.TrimSpace(c.Endpoint) == "" {
			errs.Add("endpoint", "is required")
		} else if u, err := url.Parse(c.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs.Add("endpoint", "must be an http(s) URL", c.Endpoint)
		}
		if strings.TrimSpace(c.Project) == "" {
			errs.Add("project", "is required")
		}
	}

	if strings.TrimSpace(c.Launch.Name) == "" {
		errs.Add("launch.name", "is required")
	}
	switch c.Mode() {
	case backend.LaunchModeDefault, backend.LaunchModeDebug:
	default:
		errs.Add("launch.mode", "must be one of: DEFAULT, DEBUG", c.Launch.Mode)
	}
	if c.RerunOf != "" && !c.Rerun {
		errs.Add("rerunOf", "requires rerun to be enabled", c.RerunOf)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
