// Package template renders application descriptors with runtime variables.
package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/spinlet-dev/spinlet/domain/ports"
)

type templateConfig struct {
	strict bool
}

func defaultTemplateConfig() templateConfig {
	return templateConfig{strict: true}
}

// TemplateOption configures a GoTemplateEngine.
type TemplateOption func(*templateConfig)

// WithStrict enables/disables strict mode for missing variables.
// When enabled (default), rendering fails if a referenced variable is missing.
func WithStrict(enabled bool) TemplateOption {
	return func(c *templateConfig) {
		c.strict = enabled
	}
}

// GoTemplateEngine implements TemplateEngine using text/template.
//
// Variables are reachable as {{ .variables.name }} or through the
// functions variable and variableOr:
//
//	route: /{{ variable "prefix" }}/...
//	allowed_outbound_hosts: ["{{ variableOr "upstream" "https://example.com" }}"]
//
// Names are matched case-insensitively because runtime configuration
// lowercases its keys.
type GoTemplateEngine struct {
	config templateConfig
}

// NewGoTemplateEngine creates a new GoTemplateEngine.
func NewGoTemplateEngine(opts ...TemplateOption) ports.TemplateEngine {
	cfg := defaultTemplateConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &GoTemplateEngine{config: cfg}
}

// Render processes the raw descriptor bytes with the provided variables.
func (e *GoTemplateEngine) Render(raw []byte, variables map[string]any) ([]byte, error) {
	if !bytes.Contains(raw, []byte("{{")) {
		return raw, nil
	}

	vars := make(map[string]any, len(variables))
	for k, v := range variables {
		vars[strings.ToLower(k)] = v
	}

	tmpl := template.New("descriptor").Funcs(template.FuncMap{
		"variable": func(name string) (any, error) {
			v, ok := vars[strings.ToLower(name)]
			if !ok {
				if e.config.strict {
					return nil, fmt.Errorf("variable %q is not defined", name)
				}
				return "", nil
			}
			return v, nil
		},
		"variableOr": func(name string, fallback any) any {
			if v, ok := vars[strings.ToLower(name)]; ok {
				return v
			}
			return fallback
		},
	})
	if e.config.strict {
		tmpl = tmpl.Option("missingkey=error")
	}

	tmpl, err := tmpl.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse descriptor template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{"variables": vars}); err != nil {
		return nil, fmt.Errorf("failed to execute descriptor template: %w", err)
	}
	return buf.Bytes(), nil
}
