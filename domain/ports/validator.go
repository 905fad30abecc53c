package ports

import "github.com/spinlet-dev/spinlet/domain/entities"

// DescriptorValidator checks a parsed App before anything is compiled.
type DescriptorValidator interface {
	Validate(app *entities.App) (*entities.ValidationResult, error)
}
