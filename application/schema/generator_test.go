package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchema_NestedStruct(t *testing.T) {
	type ServerConfig struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}
	type Config struct {
		Server  ServerConfig      `json:"server"`
		Labels  map[string]string `json:"labels,omitempty"`
		Timeout int               `json:"timeout"`
	}

	schema, err := GenerateSchema(Config{})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(schema, &decoded))

	assert.Contains(t, string(schema), "server")
	assert.Contains(t, string(schema), "host")
	assert.Contains(t, string(schema), "labels")
	assert.ElementsMatch(t, []any{"server", "timeout"}, decoded["required"])
}

func TestDescriptorSchema(t *testing.T) {
	schema, err := DescriptorSchema()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(schema, &decoded))

	props, ok := decoded["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")
	assert.Contains(t, props, "components")
	assert.NotContains(t, props, "Dir")
	assert.ElementsMatch(t, []any{"name", "components"}, decoded["required"])

	defs, ok := decoded["$defs"].(map[string]any)
	require.True(t, ok)
	component, ok := defs["Component"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"id", "source", "route"}, component["required"])

	props, ok = component["properties"].(map[string]any)
	require.True(t, ok)
	files, ok := props["files"].(map[string]any)
	require.True(t, ok)
	items, ok := files["items"].(map[string]any)
	require.True(t, ok)
	if ref, isRef := items["$ref"].(string); isRef {
		items, ok = defs[ref[len("#/$defs/"):]].(map[string]any)
		require.True(t, ok)
	}
	oneOf, ok := items["oneOf"].([]any)
	require.True(t, ok)
	assert.Len(t, oneOf, 2)
}
