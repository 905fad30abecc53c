// Package schema generates the JSON schema of the application descriptor.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/spinlet-dev/spinlet/domain/entities"
)

// GenerateSchema creates a JSON schema (Draft 2020-12) from a Go struct.
func GenerateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		Mapper:         mapType,
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return jsonBytes, nil
}

// DescriptorSchema returns the schema every application descriptor must satisfy.
func DescriptorSchema() ([]byte, error) {
	return GenerateSchema(&entities.App{})
}

// fileMountObject mirrors the mapping form of entities.FileMount.
type fileMountObject struct {
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
}

var fileMountType = reflect.TypeOf(entities.FileMount{})

// mapType overrides types whose YAML form differs from their struct shape.
func mapType(t reflect.Type) *jsonschema.Schema {
	if t != fileMountType {
		return nil
	}
	inner := jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	object := inner.Reflect(&fileMountObject{})
	object.Version = ""
	object.ID = ""

	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", Description: "glob relative to the descriptor directory"},
			object,
		},
	}
}
