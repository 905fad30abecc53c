package template_test

import (
	"testing"

	"github.com/spinlet-dev/spinlet/application/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoTemplateEngine_Render(t *testing.T) {
	engine := template.NewGoTemplateEngine()
	vars := map[string]any{"name": "hello", "API_HOST": "https://api.example.com"}

	tests := []struct {
		name    string
		raw     string
		vars    map[string]any
		want    string
		wantErr string
	}{
		{name: "field access", raw: `name: "{{ .variables.name }}"`, vars: vars, want: `name: "hello"`},
		{name: "keys are lowercased", raw: `host: {{ .variables.api_host }}`, vars: vars, want: `host: https://api.example.com`},
		{name: "variable func ignores case", raw: `host: {{ variable "Api_Host" }}`, vars: vars, want: `host: https://api.example.com`},
		{name: "variableOr present", raw: `{{ variableOr "name" "x" }}`, vars: vars, want: `hello`},
		{name: "variableOr fallback", raw: `{{ variableOr "route" "/..." }}`, vars: vars, want: `/...`},
		{name: "plain descriptor", raw: "name: plain\n", want: "name: plain\n"},
		{name: "missing field", raw: `{{ .variables.missing }}`, vars: vars, wantErr: "map has no entry for key"},
		{name: "missing variable", raw: `{{ variable "missing" }}`, vars: vars, wantErr: `variable "missing" is not defined`},
		{name: "nil variables", raw: `{{ .variables.name }}`, wantErr: "map has no entry for key"},
		{name: "syntax error", raw: `name: "{{.variables.name"`, vars: vars, wantErr: "failed to parse descriptor template"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := engine.Render([]byte(tt.raw), tt.vars)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestGoTemplateEngine_NonStrict(t *testing.T) {
	engine := template.NewGoTemplateEngine(template.WithStrict(false))

	out, err := engine.Render([]byte(`host: "{{ .variables.host }}" port: "{{ variable "port" }}"`), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, `host: "<no value>" port: ""`, string(out))
}
