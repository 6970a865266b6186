// Package validation checks untrusted JSON documents (reasoning output, request
// bodies) against JSON Schemas.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Err flattens the result into a single error, or nil when valid.
func (r *ValidationResult) Err() error {
	if r == nil || r.Valid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

// Schema is a compiled JSON Schema.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// Compile parses a JSON Schema document.
func Compile(name, schemaJSON string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: s}, nil
}

// MustCompile is Compile for package-level schema literals.
func MustCompile(name, schemaJSON string) *Schema {
	s, err := Compile(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string {
	return s.name
}

// ValidateJSON validates a raw JSON document.
func (s *Schema) ValidateJSON(doc []byte) *ValidationResult {
	return s.validate(gojsonschema.NewBytesLoader(doc))
}

// ValidateValue validates an already-decoded Go value.
func (s *Schema) ValidateValue(v interface{}) *ValidationResult {
	return s.validate(gojsonschema.NewGoLoader(v))
}

func (s *Schema) validate(doc gojsonschema.JSONLoader) *ValidationResult {
	result, err := s.schema.Validate(doc)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: err.Error(),
				Code:    "INVALID_JSON",
			}},
		}
	}
	if result.Valid() {
		return &ValidationResult{Valid: true}
	}

	errs := make([]ValidationError, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		}
	}
	return &ValidationResult{Valid: false, Errors: errs}
}
