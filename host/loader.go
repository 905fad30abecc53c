package host

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apptemplate "github.com/spinlet-dev/spinlet/application/template"
	"github.com/spinlet-dev/spinlet/application/validation"
	"github.com/spinlet-dev/spinlet/domain/entities"
	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
	"github.com/spinlet-dev/spinlet/domain/ports"
	"github.com/spinlet-dev/spinlet/infrastructure/parser"
)

// loaderConfig holds configuration for the Loader.
type loaderConfig struct {
	templateEngine  ports.TemplateEngine
	parser          ports.DescriptorParser
	validator       *validation.DescriptorValidator
	strictTemplates bool // Fail on undefined variables
}

func defaultLoaderConfig() loaderConfig {
	return loaderConfig{
		parser:          parser.NewYamlDescriptorParser(),
		strictTemplates: true,
	}
}

// Loader orchestrates the descriptor loading pipeline: render variables,
// validate the document against the schema, parse, then validate the model.
type Loader struct {
	config loaderConfig
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithParser sets a custom descriptor parser.
func WithParser(p ports.DescriptorParser) LoaderOption {
	return func(c *loaderConfig) {
		c.parser = p
	}
}

// WithTemplateEngine sets a template engine.
func WithTemplateEngine(t ports.TemplateEngine) LoaderOption {
	return func(c *loaderConfig) {
		c.templateEngine = t
	}
}

// WithValidator sets the descriptor validator.
func WithValidator(v *validation.DescriptorValidator) LoaderOption {
	return func(c *loaderConfig) {
		c.validator = v
	}
}

// WithStrictTemplates enables/disables strict template mode.
// When enabled (default), rendering fails if a referenced variable is missing.
func WithStrictTemplates(enabled bool) LoaderOption {
	return func(c *loaderConfig) {
		c.strictTemplates = enabled
	}
}

// NewLoader creates a new Loader with defaults.
func NewLoader(opts ...LoaderOption) (*Loader, error) {
	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.templateEngine == nil {
		cfg.templateEngine = apptemplate.NewGoTemplateEngine(
			apptemplate.WithStrict(cfg.strictTemplates),
		)
	}
	if cfg.validator == nil {
		v, err := validation.NewDescriptorValidator()
		if err != nil {
			return nil, err
		}
		cfg.validator = v
	}
	return &Loader{config: cfg}, nil
}

// LoadFile reads the descriptor at path. Relative component paths resolve
// against its directory.
func (l *Loader) LoadFile(path string, variables map[string]any) (*entities.App, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &domainerrors.ConfigError{Field: "app", Err: err}
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, &domainerrors.ConfigError{Field: "app", Err: err}
	}
	return l.Load(raw, dir, variables)
}

// Load renders, validates and parses a descriptor.
func (l *Loader) Load(raw []byte, dir string, variables map[string]any) (*entities.App, error) {
	data, err := l.config.templateEngine.Render(raw, variables)
	if err != nil {
		return nil, &domainerrors.ConfigError{Field: "variables", Err: fmt.Errorf("failed to render descriptor: %w", err)}
	}

	doc, err := parser.Document(data)
	if err != nil {
		return nil, &domainerrors.ConfigError{Err: fmt.Errorf("failed to parse descriptor: %w", err)}
	}
	res, err := l.config.validator.ValidateDocument(doc)
	if err != nil {
		return nil, &domainerrors.ConfigError{Err: fmt.Errorf("validation error: %w", err)}
	}
	if !res.Valid {
		return nil, failed(res)
	}

	app, err := l.config.parser.Parse(data, dir)
	if err != nil {
		return nil, &domainerrors.ConfigError{Err: fmt.Errorf("failed to parse descriptor: %w", err)}
	}

	res, err = l.config.validator.Validate(app)
	if err != nil {
		return nil, &domainerrors.ConfigError{Err: fmt.Errorf("validation error: %w", err)}
	}
	if !res.Valid {
		return nil, failed(res)
	}
	return app, nil
}

func failed(res *entities.ValidationResult) error {
	msg := "descriptor validation failed:"
	for _, e := range res.Errors {
		msg += fmt.Sprintf("\n- %s: %s", e.Field, e.Message)
	}
	field := ""
	if len(res.Errors) > 0 {
		field = res.Errors[0].Field
	}
	return &domainerrors.ConfigError{Field: field, Err: fmt.Errorf("%s", strings.TrimSpace(msg))}
}
