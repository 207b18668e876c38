// Package oapi embeds the OpenAPI description of the Firecracker control
// plane endpoints this module drives.
package oapi

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed firecracker.yaml
var specYAML []byte

var (
	loadOnce sync.Once
	shared   *openapi3.T
	loadErr  error
)

// GetSwagger parses the embedded description. Each call returns a fresh
// document so callers may modify it (for example clearing Servers in tests).
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	return doc, nil
}

// Spec returns the raw embedded YAML.
func Spec() []byte {
	return specYAML
}

func sharedDoc() (*openapi3.T, error) {
	loadOnce.Do(func() {
		shared, loadErr = GetSwagger()
	})
	return shared, loadErr
}

// Schema returns the named component schema.
func Schema(name string) (*openapi3.Schema, error) {
	doc, err := sharedDoc()
	if err != nil {
		return nil, err
	}
	if doc.Components == nil {
		return nil, fmt.Errorf("schema %s: spec has no components", name)
	}
	ref, ok := doc.Components.Schemas[name]
	if !ok || ref.Value == nil {
		return nil, fmt.Errorf("schema %s not found", name)
	}
	return ref.Value, nil
}

// ValidateJSON checks a JSON document against the named component schema.
// Properties the schema does not list are accepted.
func ValidateJSON(schemaName string, data []byte) error {
	schema, err := Schema(schemaName)
	if err != nil {
		return err
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	if err := schema.VisitJSON(value); err != nil {
		return fmt.Errorf("%s: %w", schemaName, err)
	}
	return nil
}
