// Package parser decodes application descriptors.
package parser

import (
	"bytes"
	"fmt"

	"github.com/spinlet-dev/spinlet/domain/entities"
	"github.com/spinlet-dev/spinlet/domain/ports"
	"gopkg.in/yaml.v3"
)

// YamlDescriptorParser implements DescriptorParser for YAML.
type YamlDescriptorParser struct{}

// NewYamlDescriptorParser creates a new YamlDescriptorParser.
func NewYamlDescriptorParser() ports.DescriptorParser {
	return &YamlDescriptorParser{}
}

// Parse unmarshals YAML bytes into an App. Unknown fields are rejected so
// that a misspelled key does not silently drop a grant.
func (p *YamlDescriptorParser) Parse(data []byte, dir string) (*entities.App, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var app entities.App
	if err := dec.Decode(&app); err != nil {
		return nil, fmt.Errorf("decoding descriptor: %w", err)
	}
	app.Dir = dir
	return &app, nil
}

// Document decodes data into generic maps and slices for schema validation.
func Document(data []byte) (any, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding descriptor: %w", err)
	}
	return doc, nil
}
