package parser_test

import (
	"testing"

	"github.com/spinlet-dev/spinlet/domain/entities"
	"github.com/spinlet-dev/spinlet/infrastructure/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const descriptor = `
name: hello
version: 1.0.0
http:
  base: /api
components:
  - id: hello
    source: hello.wasm
    route: /hello/...
    method: GET
    allowed_outbound_hosts: ["https://example.com", self]
    files:
      - "static/**/*.css"
      - source: assets
        destination: /assets
    key_value_stores: [default]
    limits:
      memory_mb: 64
      timeout: 5s
  - id: cgi
    source: cgi.wasm
    route: /cgi
    executor: wagi
    wagi:
      argv: "${SCRIPT_NAME} --verbose ${ARGS}"
`

func TestYamlDescriptorParser_Parse(t *testing.T) {
	app, err := parser.NewYamlDescriptorParser().Parse([]byte(descriptor), "/srv/app")
	require.NoError(t, err)

	assert.Equal(t, "hello", app.Name)
	assert.Equal(t, "/api", app.BasePath())
	assert.Equal(t, "/srv/app", app.Dir)
	require.Len(t, app.Components, 2)

	hello := app.Components[0]
	assert.Equal(t, entities.ExecutorSpin, hello.ExecutorKind())
	assert.Equal(t, []string{"https://example.com", "self"}, hello.AllowedOutboundHosts)
	require.Len(t, hello.Files, 2)
	assert.True(t, hello.Files[0].IsGlob())
	assert.Equal(t, entities.FileMount{Source: "assets", Destination: "/assets"}, hello.Files[1])
	assert.Equal(t, uint32(64*16), hello.Limits.MemoryPages())

	cgi := app.Components[1]
	assert.Equal(t, entities.ExecutorWagi, cgi.ExecutorKind())
	assert.Equal(t, "_start", cgi.Wagi.EntrypointOrDefault())
	assert.Equal(t, "${SCRIPT_NAME} --verbose ${ARGS}", cgi.Wagi.ArgvOrDefault())
}

func TestYamlDescriptorParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", "name: [unterminated"},
		{"unknown field", "name: x\ncomponentz: []\n"},
		{"bad mount", "name: x\ncomponents:\n  - id: a\n    files: [[a]]\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parser.NewYamlDescriptorParser().Parse([]byte(tc.data), "")
			assert.Error(t, err)
		})
	}
}

func TestDocument(t *testing.T) {
	doc, err := parser.Document([]byte(descriptor))
	require.NoError(t, err)
	m, ok := doc.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello", m["name"])
}
