package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed definition.schema.yaml
var definitionSchemaYAML []byte

const definitionSchemaURI = "dpfactory://schemas/definition.schema.json"

// Validator handles JSON schema validation of Data Product definitions
type Validator struct {
	definitionSchema *jsonschema.Schema
}

// NewValidator compiles the embedded definition schema
func NewValidator() (*Validator, error) {
	schema, err := compileYAML(definitionSchemaURI, definitionSchemaYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to load definition schema: %w", err)
	}
	return &Validator{definitionSchema: schema}, nil
}

// ValidateDefinition validates a raw definition document (as decoded from YAML)
func (v *Validator) ValidateDefinition(doc interface{}) error {
	if v.definitionSchema == nil {
		return fmt.Errorf("definition schema not loaded")
	}

	instance, err := toJSONValue(doc)
	if err != nil {
		return err
	}
	if err := v.definitionSchema.Validate(instance); err != nil {
		return fmt.Errorf("%s", describe(err))
	}
	return nil
}

// compileYAML compiles a schema document written in YAML
func compileYAML(uri string, data []byte) (*jsonschema.Schema, error) {
	// Parse YAML to interface{} (supports both YAML and JSON)
	var schemaData interface{}
	if err := yaml.Unmarshal(data, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	// Convert to JSON for schema compiler
	jsonData, err := json.Marshal(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(uri, bytes.NewReader(jsonData)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

// toJSONValue round-trips a YAML-decoded value through JSON so the validator
// sees json.Number and map[string]interface{} only.
func toJSONValue(doc interface{}) (interface{}, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("definition is not representable as JSON: %w", err)
	}
	var value interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}
	return value, nil
}

// describe flattens a jsonschema validation error into one line per leaf cause
func describe(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}

	var leaves []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			location := e.InstanceLocation
			if location == "" {
				location = "/"
			}
			leaves = append(leaves, fmt.Sprintf("%s: %s", location, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(leaves, "; ")
}
