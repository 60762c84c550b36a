// Package schema derives JSON Schemas from Go types and validates JSON
// documents against them.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	gschema "github.com/google/jsonschema-go/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalid is wrapped by validation failures.
var ErrInvalid = errors.New("document does not match schema")

// Schema is a compiled JSON Schema with a name for LM structured output.
type Schema struct {
	name     string
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// For derives and compiles the schema of T. Struct fields without omitempty
// are required; `jsonschema:"..."` tags become descriptions.
func For[T any](name string) (*Schema, error) {
	s, err := gschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("deriving schema %s: %w", name, err)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding schema %s: %w", name, err)
	}
	return Compile(name, raw)
}

// MustFor is For for package-level schemas of static types.
func MustFor[T any](name string) *Schema {
	s, err := For[T](name)
	if err != nil {
		panic(err)
	}
	return s
}

// Compile compiles a raw JSON Schema document.
func Compile(name string, raw json.RawMessage) (*Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(name+".json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	compiled, err := c.Compile(name + ".json")
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}

	return &Schema{name: name, raw: raw, compiled: compiled}, nil
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Raw returns the JSON Schema document.
func (s *Schema) Raw() json.RawMessage { return s.raw }

// Map returns the schema document as a generic map, the form most LM SDKs
// accept for tool parameters and response formats.
func (s *Schema) Map() map[string]any {
	var m map[string]any
	_ = json.Unmarshal(s.raw, &m)
	return m
}

// Validate checks data against the schema.
func (s *Schema) Validate(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %s: not JSON: %v", ErrInvalid, s.name, err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, s.name, err)
	}
	return nil
}

// Decode validates data and unmarshals it into out.
func (s *Schema) Decode(data []byte, out any) error {
	if err := s.Validate(data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, s.name, err)
	}
	return nil
}
