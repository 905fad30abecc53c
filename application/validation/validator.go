// Package validation checks application descriptors before anything is compiled.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spinlet-dev/spinlet/application/schema"
	"github.com/spinlet-dev/spinlet/domain/entities"
	"github.com/spinlet-dev/spinlet/domain/policy"
	"github.com/spinlet-dev/spinlet/domain/ports"
	"github.com/spinlet-dev/spinlet/domain/routing"
)

const schemaResource = "spinlet-descriptor.json"

var componentIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// NewStructValidator returns a validator with spinlet's custom tags
// registered: component_id and duration. Field names in errors follow the
// yaml tag.
func NewStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("component_id", func(fl validator.FieldLevel) bool {
		return componentIDPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// DescriptorValidator implements ports.DescriptorValidator using struct tags,
// the generated JSON schema and cross-field checks.
type DescriptorValidator struct {
	validate *validator.Validate
	schema   *jsonschema.Schema
}

var _ ports.DescriptorValidator = (*DescriptorValidator)(nil)

// NewDescriptorValidator compiles the descriptor schema.
func NewDescriptorValidator() (*DescriptorValidator, error) {
	raw, err := schema.DescriptorSchema()
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResource, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add descriptor schema: %w", err)
	}
	sch, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("invalid descriptor schema: %w", err)
	}

	return &DescriptorValidator{validate: NewStructValidator(), schema: sch}, nil
}

// ValidateDocument checks a decoded descriptor document against the schema.
// The document is normalized through JSON so YAML scalars compare as JSON values.
func (v *DescriptorValidator) ValidateDocument(doc any) (*entities.ValidationResult, error) {
	result := &entities.ValidationResult{Valid: true}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare validation object: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var obj any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to prepare validation object: %w", err)
	}

	if err := v.schema.Validate(obj); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		for _, leaf := range leaves(ve) {
			field := strings.TrimPrefix(strings.ReplaceAll(leaf.InstanceLocation, "/", "."), ".")
			result.Add(field, leaf.Message)
		}
	}
	return result, nil
}

func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

// Validate checks struct constraints and the rules that span fields:
// unique component ids, parsable routes and egress entries.
func (v *DescriptorValidator) Validate(app *entities.App) (*entities.ValidationResult, error) {
	result := &entities.ValidationResult{Valid: true}
	if app == nil {
		result.Add("", "descriptor is empty")
		return result, nil
	}

	if err := v.validate.Struct(app); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		for _, fe := range fieldErrs {
			result.Add(trimRoot(fe.Namespace()), describe(fe))
		}
	}

	seen := make(map[string]bool, len(app.Components))
	for i, c := range app.Components {
		prefix := fmt.Sprintf("components[%d]", i)
		if c.ID != "" {
			if seen[c.ID] {
				result.Add(prefix+".id", fmt.Sprintf("duplicate component id %q", c.ID))
			}
			seen[c.ID] = true
		}
		if c.Route != "" {
			if _, err := routing.ParsePattern(app.BasePath(), c.Route); err != nil {
				result.Add(prefix+".route", err.Error())
			}
		}
		if _, err := policy.NewAllowList(c.AllowedOutboundHosts, c.AllowedHTTPHosts); err != nil {
			result.Add(prefix+".allowed_outbound_hosts", err.Error())
		}
		if c.Wagi != nil && c.ExecutorKind() != entities.ExecutorWagi {
			result.Add(prefix+".wagi", "wagi settings require executor: wagi")
		}
		for j, m := range c.Files {
			if strings.Contains(m.Source, "..") {
				result.Add(fmt.Sprintf("%s.files[%d]", prefix, j), "mount source must stay inside the application directory")
			}
		}
	}

	return result, nil
}

func trimRoot(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "component_id":
		return "must be lower-case letters, digits, '-' or '_'"
	case "duration":
		return fmt.Sprintf("%q is not a positive duration", fe.Value())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed '%s=%s' validation", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed '%s' validation", fe.Tag())
	}
}
